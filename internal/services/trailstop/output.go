package trailstop

import (
	"math"

	"TrendScan/internal/domain/models"
)

// Rows flattens the result to long format. Cells with no close and no stop
// are skipped.
func (r *Result) Rows(runID string) []models.ResultRow {
	dates, symbols := r.Dates(), r.Symbols()
	out := make([]models.ResultRow, 0, len(dates)*len(symbols))
	for j, sym := range symbols {
		c, f, s := r.Prices.Close.Col(j), r.FastTrail.Col(j), r.SlowTrail.Col(j)
		for t, d := range dates {
			if math.IsNaN(c[t]) && math.IsNaN(f[t]) && math.IsNaN(s[t]) {
				continue
			}
			out = append(out, models.ResultRow{
				RunID:     runID,
				Week:      d,
				Symbol:    sym,
				Close:     models.OptFloat(c[t]),
				FastTrail: models.OptFloat(f[t]),
				SlowTrail: models.OptFloat(s[t]),
				Trend:     r.Trend.At(t, j),
				Signal:    r.Signals.At(t, j),
			})
		}
	}
	return out
}

// Snapshot returns the last trimmed date across the universe. A result with
// no dates yields a snapshot with no rows.
func (r *Result) Snapshot(meta models.RunMeta) *models.Snapshot {
	snap := &models.Snapshot{Meta: meta}
	last := len(r.Dates()) - 1
	if last < 0 {
		return snap
	}
	snap.Date = r.Dates()[last]
	snap.Rows = make([]models.SnapshotRow, 0, len(r.Symbols()))
	for j, sym := range r.Symbols() {
		snap.Rows = append(snap.Rows, models.SnapshotRow{
			Symbol: sym,
			Trend:  r.Trend.At(last, j).String(),
			Signal: r.Signals.At(last, j).String(),
			Fast:   models.OptFloat(r.FastTrail.At(last, j)),
			Slow:   models.OptFloat(r.SlowTrail.At(last, j)),
			Close:  models.OptFloat(r.Prices.Close.At(last, j)),
		})
	}
	return snap
}

// Events returns the Buy and Sell crossovers on the last date.
func (r *Result) Events(runID string) []models.SignalEvent {
	last := len(r.Dates()) - 1
	if last < 0 {
		return nil
	}
	var out []models.SignalEvent
	for j, sym := range r.Symbols() {
		sig := r.Signals.At(last, j)
		if sig != models.SignalBuy && sig != models.SignalSell {
			continue
		}
		out = append(out, models.SignalEvent{
			RunID:  runID,
			Symbol: sym,
			Week:   r.Dates()[last],
			Signal: sig.String(),
			Trend:  r.Trend.At(last, j).String(),
			Fast:   r.FastTrail.At(last, j),
			Slow:   r.SlowTrail.At(last, j),
			Close:  r.Prices.Close.At(last, j),
		})
	}
	return out
}
