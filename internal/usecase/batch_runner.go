package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"TrendScan/internal/domain/models"
	drepo "TrendScan/internal/domain/repository"
	"TrendScan/internal/services/trailstop"
	applogger "TrendScan/pkg/logger"
	"TrendScan/pkg/util"
)

const (
	runLockKey = "lock:trailstop:run"
	timeframe  = "weekly"
	sampleSize = 5
)

// RunSummary is what one batch produced.
type RunSummary struct {
	Meta     models.RunMeta
	Date     time.Time
	Buys     []string
	Sells    []string
	Report   trailstop.Report
	Skipped  bool
	Snapshot *models.Snapshot
}

// BatchRunner loads the weekly panel, runs the engine and fans the result
// out to storage, the signal bus and the snapshot cache.
type BatchRunner struct {
	prices  drepo.PriceSource
	store   drepo.ResultStore
	pub     drepo.SignalPublisher
	cache   drepo.SnapshotCache
	lock    drepo.RunLock
	metrics drepo.Metrics
	engine  *trailstop.Engine
	l       *applogger.Logger

	symbols      []string
	historyWeeks int
	lockTTL      time.Duration
	timeout      time.Duration
	asOf         time.Time

	now   func() time.Time
	newID func() string
}

// BatchOptions carries the non-dependency settings of a runner.
type BatchOptions struct {
	Symbols      []string
	HistoryWeeks int
	LockTTL      time.Duration
	Timeout      time.Duration
	// AsOf pins the last week of the history window. Zero means now.
	AsOf time.Time
}

// NewBatchRunner creates a runner. store, pub, cache and lock may be nil.
func NewBatchRunner(
	prices drepo.PriceSource,
	store drepo.ResultStore,
	pub drepo.SignalPublisher,
	cache drepo.SnapshotCache,
	lock drepo.RunLock,
	metrics drepo.Metrics,
	engine *trailstop.Engine,
	l *applogger.Logger,
	opts BatchOptions,
) *BatchRunner {
	if l == nil {
		l = applogger.Nop()
	}
	return &BatchRunner{
		prices:       prices,
		store:        store,
		pub:          pub,
		cache:        cache,
		lock:         lock,
		metrics:      metrics,
		engine:       engine,
		l:            l,
		symbols:      opts.Symbols,
		historyWeeks: opts.HistoryWeeks,
		lockTTL:      opts.LockTTL,
		timeout:      opts.Timeout,
		asOf:         opts.AsOf,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// Run executes one batch. A run already holding the lock elsewhere yields a
// skipped summary and no error.
func (r *BatchRunner) Run(ctx context.Context) (*RunSummary, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if r.lock != nil {
		ok, err := r.lock.TryLock(ctx, runLockKey, r.lockTTL)
		if err != nil {
			r.metrics.RecordError("lock")
			return nil, fmt.Errorf("acquire run lock: %w", err)
		}
		if !ok {
			r.l.Warn("batch skipped, another run holds the lock", applogger.String("key", runLockKey))
			r.metrics.RecordRun("skipped")
			return &RunSummary{Skipped: true}, nil
		}
		defer func() {
			if err := r.lock.Unlock(context.WithoutCancel(ctx), runLockKey); err != nil {
				r.l.Warn("release run lock failed", applogger.Error(err))
			}
		}()
	}

	summary, err := r.run(ctx)
	if err != nil {
		r.metrics.RecordRun("failed")
		r.l.Error("batch failed", applogger.Error(err))
		return nil, err
	}
	r.metrics.RecordRun("ok")
	return summary, nil
}

func (r *BatchRunner) run(ctx context.Context) (*RunSummary, error) {
	started := r.now()
	runID := r.newID()
	l := r.l.With(applogger.String("run_id", runID))

	symbols := r.symbols
	if len(symbols) == 0 {
		var err error
		if symbols, err = r.prices.Symbols(ctx); err != nil {
			r.metrics.RecordError("load")
			return nil, fmt.Errorf("list universe: %w", err)
		}
	}

	stage := time.Now()
	ref := started
	if !r.asOf.IsZero() {
		ref = r.asOf
	}
	// Saturday after the cutoff Friday, so the first bar is a whole week.
	to := util.WeekEnding(ref)
	from := util.WeeksBack(ref, r.historyWeeks).AddDate(0, 0, 1)
	panel, err := r.prices.LoadWeekly(ctx, symbols, from, to)
	if err != nil {
		r.metrics.RecordError("load")
		return nil, fmt.Errorf("load prices: %w", err)
	}
	r.metrics.RecordLatency("load", time.Since(stage).Seconds())
	r.metrics.SetUniverse(panel.Close.Width())
	l.Info("prices loaded",
		applogger.Int("weeks", panel.Close.Len()),
		applogger.Int("symbols", panel.Close.Width()),
	)

	stage = time.Now()
	res, err := r.engine.Run(ctx, panel)
	if err != nil {
		r.metrics.RecordError("engine")
		return nil, fmt.Errorf("engine: %w", err)
	}
	r.metrics.RecordLatency("engine", time.Since(stage).Seconds())
	for cfg, n := range res.StageFailures {
		r.metrics.RecordFailures(cfg, n)
	}
	for _, sym := range res.Report.Symbols() {
		l.Warn("security excluded",
			applogger.String("symbol", sym),
			applogger.String("reason", res.Report.Failures[sym]),
		)
	}
	for _, sym := range res.Report.ShortSymbols() {
		l.Debug("security has short history",
			applogger.String("symbol", sym),
			applogger.Int("weeks", res.Report.Short[sym]),
		)
	}

	meta := models.RunMeta{
		RunID:      runID,
		Timeframe:  timeframe,
		Params:     res.Params,
		TrendMap:   models.TrendMap(),
		Dates:      len(res.Dates()),
		Symbols:    len(res.Symbols()),
		Failures:   res.Report.Len(),
		StartedAt:  started,
		FinishedAt: r.now(),
	}

	if r.store != nil {
		stage = time.Now()
		if err := r.store.SaveRun(ctx, meta); err != nil {
			r.metrics.RecordError("persist")
			return nil, fmt.Errorf("persist run: %w", err)
		}
		if err := r.store.SaveResults(ctx, res.Rows(runID)); err != nil {
			r.metrics.RecordError("persist")
			return nil, fmt.Errorf("persist results: %w", err)
		}
		r.metrics.RecordLatency("persist", time.Since(stage).Seconds())
	}

	events := res.Events(runID)
	summary := &RunSummary{Meta: meta, Report: res.Report, Snapshot: res.Snapshot(meta)}
	summary.Date = summary.Snapshot.Date
	for _, e := range events {
		if e.Signal == models.SignalBuy.String() {
			summary.Buys = append(summary.Buys, e.Symbol)
		} else {
			summary.Sells = append(summary.Sells, e.Symbol)
		}
	}
	r.metrics.RecordSignals(models.SignalBuy.String(), len(summary.Buys))
	r.metrics.RecordSignals(models.SignalSell.String(), len(summary.Sells))

	if r.pub != nil && len(events) > 0 {
		stage = time.Now()
		if err := r.pub.PublishSignals(ctx, events); err != nil {
			r.metrics.RecordError("publish")
			l.Error("publish signals failed", applogger.Int("events", len(events)), applogger.Error(err))
		} else {
			r.metrics.RecordLatency("publish", time.Since(stage).Seconds())
		}
	}

	if r.cache != nil {
		if err := r.cache.Put(ctx, summary.Snapshot); err != nil {
			r.metrics.RecordError("cache")
			l.Error("cache snapshot failed", applogger.Error(err))
		}
	}

	l.Info("batch done",
		applogger.String("date", summary.Date.Format(time.DateOnly)),
		applogger.Int("dates", meta.Dates),
		applogger.Int("symbols", meta.Symbols),
		applogger.Int("failures", meta.Failures),
		applogger.Int("buys", len(summary.Buys)),
		applogger.Int("sells", len(summary.Sells)),
		applogger.Strings("buy_sample", sample(summary.Buys)),
		applogger.Strings("strong_bull_sample", summary.Snapshot.Symbols(models.TrendGreen.String(), "", sampleSize)),
		applogger.Duration("duration_ms", meta.FinishedAt.Sub(started)),
	)
	return summary, nil
}

func sample(xs []string) []string {
	if len(xs) > sampleSize {
		return xs[:sampleSize]
	}
	return xs
}
