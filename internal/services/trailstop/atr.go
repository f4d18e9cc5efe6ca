package trailstop

import (
	"context"
	"math"

	"TrendScan/internal/domain/models"
)

// TrueRange returns max(h-l, |h-pc|, |l-pc|) ignoring undefined terms. It is
// NaN only when every term is NaN.
func TrueRange(high, low, prevClose float64) float64 {
	tr := math.NaN()
	for _, v := range [3]float64{high - low, math.Abs(high - prevClose), math.Abs(low - prevClose)} {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(tr) || v > tr {
			tr = v
		}
	}
	return tr
}

// ATR computes Wilder's average true range for one security.
//
// The average is an exponential mean with alpha = 1/length seeded with the
// first observed true range, and is reported only once length observations
// have been seen. A missing true range carries the average forward; the next
// observation is blended against the decayed weight of the carried value.
func ATR(high, low, close []float64, length int) []float64 {
	n := len(close)
	out := make([]float64, n)
	alpha := 1 / float64(length)
	decay := 1 - alpha

	avg := math.NaN()
	oldWt := 1.0
	nobs := 0
	for t := 0; t < n; t++ {
		pc := math.NaN()
		if t > 0 {
			pc = close[t-1]
		}
		tr := TrueRange(high[t], low[t], pc)
		observed := !math.IsNaN(tr)
		if observed {
			nobs++
		}

		switch {
		case math.IsNaN(avg):
			if observed {
				avg = tr
			}
		default:
			oldWt *= decay
			if observed {
				if avg != tr {
					avg = (oldWt*avg + alpha*tr) / (oldWt + alpha)
				}
				oldWt = 1
			}
		}

		if nobs >= length {
			out[t] = avg
		} else {
			out[t] = math.NaN()
		}
	}
	return out
}

// ATRPanel runs ATR for every security of prices in parallel. Securities
// with unusable input get an all-NaN column and an entry in the report; those
// with fewer than length priced weeks are listed as short instead.
func ATRPanel(ctx context.Context, prices models.PricePanel, length, workers int) (models.Panel, Report, error) {
	out := models.NewPanel(prices.Dates(), prices.Symbols())
	report, err := fanOut(ctx, prices.Symbols(), workers, func(j int) error {
		sym := prices.Close.Symbols[j]
		h, l, c := prices.High.Col(j), prices.Low.Col(j), prices.Close.Col(j)
		if err := checkColumns(sym, len(out.Dates), c, h, l); err != nil {
			return err
		}
		col := ATR(h, l, c, length)
		out.Cols[j] = col
		if len(col) > 0 && allNaN(col) {
			if n := countDefined(c); n < length {
				return &ShortHistoryError{Symbol: sym, Weeks: n}
			}
			return &MissingInputError{Symbol: sym, Reason: "no true range"}
		}
		return nil
	})
	if err != nil {
		return models.Panel{}, Report{}, err
	}
	return out, report, nil
}
