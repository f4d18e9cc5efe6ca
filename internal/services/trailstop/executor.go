package trailstop

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"TrendScan/internal/domain/models"
)

// ComputePanel runs the trailing-stop recursion for every security of the
// close/ATR panels. Securities are independent tasks on a bounded worker
// pool; each writes only its own output column. A failing security gets an
// all-NaN column and a report entry; only cancellation fails the call. An
// all-NaN ATR column means the security is too young and is listed as short.
func ComputePanel(ctx context.Context, close, atr models.Panel, multiplier float64, workers int) (models.Panel, Report, error) {
	if !models.SameIndex(close, atr) {
		return models.Panel{}, Report{}, fmt.Errorf("%w: close and atr index differ", ErrMalformedPanel)
	}
	out := models.NewPanel(close.Dates, close.Symbols)
	report, err := fanOut(ctx, close.Symbols, workers, func(j int) error {
		sym := close.Symbols[j]
		c, a := close.Col(j), atr.Col(j)
		if err := checkColumns(sym, len(out.Dates), c, a); err != nil {
			return err
		}
		if len(a) > 0 && allNaN(a) {
			return &ShortHistoryError{Symbol: sym, Weeks: countDefined(c)}
		}
		out.Cols[j] = Trail(c, a, multiplier)
		return nil
	})
	if err != nil {
		return models.Panel{}, Report{}, err
	}
	return out, report, nil
}

// fanOut calls task(j) for every symbol index on at most workers goroutines
// (GOMAXPROCS when workers <= 0). Task failures and panics are collected per
// security; the returned error is non-nil only when ctx is done.
func fanOut(ctx context.Context, symbols []string, workers int, task func(j int) error) (Report, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	outcomes := make([]error, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for j := range symbols {
		if gctx.Err() != nil {
			break
		}
		j := j
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[j] = runTask(symbols[j], j, task)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("compute panel: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Report{}, fmt.Errorf("compute panel: %w", err)
	}

	report := NewReport()
	for _, err := range outcomes {
		var (
			short *ShortHistoryError
			mie   *MissingInputError
		)
		switch {
		case errors.As(err, &short):
			report.AddShort(short)
		case errors.As(err, &mie):
			report.Add(mie)
		}
	}
	return report, nil
}

// runTask returns nil, a *ShortHistoryError or a *MissingInputError.
func runTask(symbol string, j int, task func(j int) error) (outcome error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = &MissingInputError{Symbol: symbol, Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()
	err := task(j)
	if err == nil {
		return nil
	}
	var (
		short *ShortHistoryError
		mie   *MissingInputError
	)
	if errors.As(err, &short) || errors.As(err, &mie) {
		return err
	}
	return &MissingInputError{Symbol: symbol, Reason: err.Error()}
}

// checkColumns rejects a security whose columns are short, contain
// infinities, or whose price column holds no value at all.
func checkColumns(symbol string, n int, price []float64, others ...[]float64) error {
	for _, c := range append([][]float64{price}, others...) {
		if len(c) != n {
			return &MissingInputError{Symbol: symbol, Reason: fmt.Sprintf("column length %d, want %d", len(c), n)}
		}
		for _, v := range c {
			if math.IsInf(v, 0) {
				return &MissingInputError{Symbol: symbol, Reason: "non-finite value"}
			}
		}
	}
	if n > 0 && allNaN(price) {
		return &MissingInputError{Symbol: symbol, Reason: "no price data"}
	}
	return nil
}

func countDefined(xs []float64) int {
	n := 0
	for _, v := range xs {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

func allNaN(xs []float64) bool {
	for _, v := range xs {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}
