package trailstop

import (
	"context"
	"fmt"
	"time"

	"TrendScan/internal/domain/models"
	applogger "TrendScan/pkg/logger"
)

// Result is the trimmed output of one batch. All four panels share Dates
// and Symbols with the trimmed input price panel.
type Result struct {
	Params    models.Params
	FastTrail models.Panel
	SlowTrail models.Panel
	Trend     models.TrendPanel
	Signals   models.SignalPanel
	Prices    models.PricePanel
	Report    Report
	// StageFailures counts excluded securities per stop config.
	StageFailures map[string]int
}

// Dates returns the trimmed date index.
func (r *Result) Dates() []time.Time { return r.FastTrail.Dates }

// Symbols returns the security columns.
func (r *Result) Symbols() []string { return r.FastTrail.Symbols }

// Engine computes the fast/slow trailing stops and their zone/signal panels.
type Engine struct {
	params  models.Params
	workers int
	l       *applogger.Logger
}

// NewEngine validates params and returns an engine. workers <= 0 uses
// GOMAXPROCS.
func NewEngine(params models.Params, workers int) (*Engine, error) {
	if err := ValidateParams(params); err != nil {
		return nil, err
	}
	if workers < 0 {
		return nil, &ConfigError{Field: "workers", Value: workers}
	}
	return &Engine{params: params, workers: workers}, nil
}

// SetLogger injects a structured logger.
func (e *Engine) SetLogger(l *applogger.Logger) { e.l = l }

// Params returns the configured parameters.
func (e *Engine) Params() models.Params { return e.params }

// ValidateParams rejects non-positive lengths and multipliers.
func ValidateParams(p models.Params) error {
	switch {
	case p.FastLength <= 0:
		return &ConfigError{Field: "fast_length", Value: p.FastLength}
	case p.SlowLength <= 0:
		return &ConfigError{Field: "slow_length", Value: p.SlowLength}
	case !(p.FastMultiplier > 0):
		return &ConfigError{Field: "fast_multiplier", Value: p.FastMultiplier}
	case !(p.SlowMultiplier > 0):
		return &ConfigError{Field: "slow_multiplier", Value: p.SlowMultiplier}
	}
	return nil
}

// ValidatePanel checks the shared index: every OHLC panel must have the same
// dates and symbols, dates strictly ascending, symbols unique.
func ValidatePanel(p models.PricePanel) error {
	c := p.Close
	for name, other := range map[string]models.Panel{"open": p.Open, "high": p.High, "low": p.Low} {
		if !models.SameIndex(c, other) {
			return fmt.Errorf("%w: %s index differs from close", ErrMalformedPanel, name)
		}
	}
	if len(c.Cols) != len(c.Symbols) {
		return fmt.Errorf("%w: %d columns for %d symbols", ErrMalformedPanel, len(c.Cols), len(c.Symbols))
	}
	for i := 1; i < len(c.Dates); i++ {
		if !c.Dates[i].After(c.Dates[i-1]) {
			return fmt.Errorf("%w: dates not ascending at %s", ErrMalformedPanel, c.Dates[i].Format(time.DateOnly))
		}
	}
	seen := make(map[string]struct{}, len(c.Symbols))
	for _, s := range c.Symbols {
		if _, dup := seen[s]; dup {
			return fmt.Errorf("%w: duplicate symbol %q", ErrMalformedPanel, s)
		}
		seen[s] = struct{}{}
	}
	return nil
}

// Run computes the full history, then trims the warm-up prefix from every
// output. Per-security problems land in Result.Report; config, panel-index
// and cancellation errors abort with no output.
func (e *Engine) Run(ctx context.Context, prices models.PricePanel) (*Result, error) {
	if err := ValidatePanel(prices); err != nil {
		return nil, err
	}
	report := NewReport()

	fast, fastReport, err := e.trail(ctx, prices, e.params.FastLength, e.params.FastMultiplier)
	if err != nil {
		return nil, fmt.Errorf("fast trail: %w", err)
	}
	report.Merge("fast", fastReport)

	slow, slowReport, err := e.trail(ctx, prices, e.params.SlowLength, e.params.SlowMultiplier)
	if err != nil {
		return nil, fmt.Errorf("slow trail: %w", err)
	}
	report.Merge("slow", slowReport)

	start := time.Now()
	trend, signals := Classify(fast, slow, prices)
	e.debug("classify done", applogger.Duration("duration_ms", time.Since(start)))

	warm := e.params.WarmUp()
	return &Result{
		Params:    e.params,
		FastTrail: fast.Trim(warm),
		SlowTrail: slow.Trim(warm),
		Trend:     trend.Trim(warm),
		Signals:   signals.Trim(warm),
		Prices:    prices.Trim(warm),
		Report:    report,
		StageFailures: map[string]int{
			"fast": fastReport.Len(),
			"slow": slowReport.Len(),
		},
	}, nil
}

func (e *Engine) trail(ctx context.Context, prices models.PricePanel, length int, mult float64) (models.Panel, Report, error) {
	start := time.Now()
	atr, atrReport, err := ATRPanel(ctx, prices, length, e.workers)
	if err != nil {
		return models.Panel{}, Report{}, err
	}
	trail, trailReport, err := ComputePanel(ctx, prices.Close, atr, mult, e.workers)
	if err != nil {
		return models.Panel{}, Report{}, err
	}
	for _, s := range atrReport.Symbols() {
		trailReport.Failures[s] = atrReport.Failures[s]
		delete(trailReport.Short, s)
	}
	e.debug("trail panel done",
		applogger.Int("length", length),
		applogger.Float64("multiplier", mult),
		applogger.Int("failures", trailReport.Len()),
		applogger.Int("short", len(trailReport.Short)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return trail, trailReport, nil
}

func (e *Engine) debug(msg string, fields ...applogger.Field) {
	if e.l != nil {
		e.l.Debug(msg, fields...)
	}
}
