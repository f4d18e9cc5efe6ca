package models

import (
	"math"
	"time"
)

// Params are the two trailing-stop configurations of one run.
type Params struct {
	FastLength     int     `json:"fast_length"`
	FastMultiplier float64 `json:"fast_multiplier"`
	SlowLength     int     `json:"slow_length"`
	SlowMultiplier float64 `json:"slow_multiplier"`
}

// WarmUp is the number of leading dates trimmed from every output panel.
func (p Params) WarmUp() int {
	if p.FastLength > p.SlowLength {
		return p.FastLength + 1
	}
	return p.SlowLength + 1
}

// RunMeta describes one persisted batch.
type RunMeta struct {
	RunID      string          `json:"run_id"`
	Timeframe  string          `json:"timeframe"`
	Params     Params          `json:"params"`
	TrendMap   map[int8]string `json:"trend_map"`
	Dates      int             `json:"dates"`
	Symbols    int             `json:"symbols"`
	Failures   int             `json:"failures"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// SnapshotRow is the latest-date view of one security. Stops are nil when
// the engine produced no value.
type SnapshotRow struct {
	Symbol string   `json:"symbol"`
	Trend  string   `json:"trend"`
	Signal string   `json:"signal"`
	Fast   *float64 `json:"fast,omitempty"`
	Slow   *float64 `json:"slow,omitempty"`
	Close  *float64 `json:"close,omitempty"`
}

// Snapshot is the last trimmed date of a run across the universe.
type Snapshot struct {
	Meta RunMeta       `json:"meta"`
	Date time.Time     `json:"date"`
	Rows []SnapshotRow `json:"rows"`
}

// Row returns the row for symbol.
func (s *Snapshot) Row(symbol string) (SnapshotRow, bool) {
	for _, r := range s.Rows {
		if r.Symbol == symbol {
			return r, true
		}
	}
	return SnapshotRow{}, false
}

// Filter returns rows matching the optional trend and signal names.
func (s *Snapshot) Filter(trend, signal string) []SnapshotRow {
	out := make([]SnapshotRow, 0, len(s.Rows))
	for _, r := range s.Rows {
		if trend != "" && r.Trend != trend {
			continue
		}
		if signal != "" && r.Signal != signal {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Symbols returns up to limit symbols matching the filters, limit <= 0 meaning all.
func (s *Snapshot) Symbols(trend, signal string, limit int) []string {
	rows := s.Filter(trend, signal)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Symbol
	}
	return out
}

// ResultRow is one (week, symbol) cell of a run in long format.
type ResultRow struct {
	RunID     string
	Week      time.Time
	Symbol    string
	Close     *float64
	FastTrail *float64
	SlowTrail *float64
	Trend     TrendState
	Signal    Signal
}

// SignalEvent is a Buy or Sell crossover published for the latest date.
type SignalEvent struct {
	RunID  string    `json:"run_id"`
	Symbol string    `json:"symbol"`
	Week   time.Time `json:"week"`
	Signal string    `json:"signal"`
	Trend  string    `json:"trend"`
	Fast   float64   `json:"fast"`
	Slow   float64   `json:"slow"`
	Close  float64   `json:"close"`
}

// RunRequest asks for a batch outside the weekly schedule.
type RunRequest struct {
	RequestedBy string    `json:"requested_by"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// OptFloat converts NaN to nil for transport.
func OptFloat(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
