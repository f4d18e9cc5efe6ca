package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"

	"TrendScan/internal/usecase"
	"TrendScan/pkg/config"
	xhttp "TrendScan/pkg/http"
	applogger "TrendScan/pkg/logger"
)

// Queue is the background job queue started alongside the scheduler.
type Queue interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type closer struct {
	name string
	fn   func() error
}

// App encapsulates the application lifecycle: one-shot batches, the weekly
// schedule, the manual-run queue and the read API.
type App struct {
	cfg       *config.Config
	l         *applogger.Logger
	runner    usecase.Runner
	handler   xhttp.Handler
	queue     Queue
	closers   []closer
	scheduler *gocron.Scheduler
}

// New creates a new App. handler may be nil when the HTTP server is disabled.
func New(cfg *config.Config, l *applogger.Logger, runner usecase.Runner, handler xhttp.Handler) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{cfg: cfg, l: l, runner: runner, handler: handler}
}

// SetQueue attaches the manual-run queue.
func (a *App) SetQueue(q Queue) { a.queue = q }

// AddCloser registers a resource released on shutdown, in reverse order.
func (a *App) AddCloser(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// RunOnce executes a single batch and releases every resource.
func (a *App) RunOnce(ctx context.Context) error {
	defer a.close()

	summary, err := a.runner.Run(ctx)
	if err != nil {
		return err
	}
	if summary.Skipped {
		a.l.Warn("run skipped, lock held by another instance")
	}
	return nil
}

// Run starts the HTTP server, the queue and the weekly schedule, then blocks
// until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var httpServer *xhttp.Server
	if a.cfg.Server.Enabled {
		opts := []xhttp.ServerOption{
			xhttp.WithPort(a.cfg.Server.Port),
			xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
			xhttp.WithSlowThreshold(a.cfg.Server.SlowThreshold),
			xhttp.WithLogger(a.l),
		}
		if a.cfg.Metrics.Enabled {
			opts = append(opts, xhttp.WithMetricsPath(a.cfg.Metrics.Path))
		}
		httpServer = xhttp.NewServer(a.handler, opts...)
		if err := httpServer.Start(); err != nil {
			a.l.Error("http server start error", applogger.Error(err))
			return err
		}
	}

	if a.queue != nil {
		if err := a.queue.Start(ctx); err != nil {
			a.l.Error("queue start error", applogger.Error(err))
			return err
		}
	}

	if a.cfg.Schedule.Enabled {
		s, err := a.schedule(ctx)
		if err != nil {
			return err
		}
		a.scheduler = s
		s.StartAsync()
		if _, next := s.NextRun(); !next.IsZero() {
			a.l.Info("weekly schedule armed",
				applogger.String("cron", a.cfg.Schedule.Cron),
				applogger.String("next_run", next.Format(time.RFC3339)))
		}
	}

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.shutdown(httpServer)
}

// schedule builds the scheduler running one batch per cron tick. Ticks that
// fire while a batch is still running are skipped.
func (a *App) schedule(ctx context.Context) (*gocron.Scheduler, error) {
	loc, err := time.LoadLocation(a.cfg.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule timezone: %w", err)
	}
	s := gocron.NewScheduler(loc)
	s.SingletonModeAll()
	if _, err := s.Cron(a.cfg.Schedule.Cron).Tag("trailstop-weekly").Do(a.scheduledRun, ctx); err != nil {
		return nil, fmt.Errorf("schedule cron %q: %w", a.cfg.Schedule.Cron, err)
	}
	return s, nil
}

func (a *App) scheduledRun(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	a.l.Info("scheduled run starting")
	if _, err := a.runner.Run(ctx); err != nil {
		a.l.Error("scheduled run failed", applogger.Error(err))
	}
}

// shutdown stops every service, then closes infrastructure clients.
func (a *App) shutdown(httpServer *xhttp.Server) error {
	a.l.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.l.Warn("queue stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if httpServer != nil {
		if err := httpServer.Stop(ctx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	a.close()

	a.l.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.l.Warn(c.name+" close error", applogger.Error(err))
		}
	}
	a.closers = nil
}
