package models

import (
	"math"
	"sort"
	"time"
)

// Frame is a rectangular date × security table stored column-major:
// Cols[j][t] is the value of security Symbols[j] at Dates[t].
type Frame[T any] struct {
	Dates   []time.Time
	Symbols []string
	Cols    [][]T
}

// Panel holds numeric values; math.NaN() means "no value".
type Panel = Frame[float64]

// TrendPanel holds one TrendState per (date, security).
type TrendPanel = Frame[TrendState]

// SignalPanel holds one Signal per (date, security).
type SignalPanel = Frame[Signal]

// NewFrame allocates a frame over the given index with every cell set to fill.
func NewFrame[T any](dates []time.Time, symbols []string, fill T) Frame[T] {
	cols := make([][]T, len(symbols))
	for j := range cols {
		col := make([]T, len(dates))
		for t := range col {
			col[t] = fill
		}
		cols[j] = col
	}
	return Frame[T]{Dates: dates, Symbols: symbols, Cols: cols}
}

// NewPanel allocates a NaN-filled numeric panel.
func NewPanel(dates []time.Time, symbols []string) Panel {
	return NewFrame(dates, symbols, math.NaN())
}

// Len returns the number of dates.
func (f Frame[T]) Len() int { return len(f.Dates) }

// Width returns the number of securities.
func (f Frame[T]) Width() int { return len(f.Symbols) }

// At returns the value at date index t for security index j.
func (f Frame[T]) At(t, j int) T { return f.Cols[j][t] }

// Col returns the column of security j.
func (f Frame[T]) Col(j int) []T { return f.Cols[j] }

// Index returns the column index of symbol, or -1.
func (f Frame[T]) Index(symbol string) int {
	for j, s := range f.Symbols {
		if s == symbol {
			return j
		}
	}
	return -1
}

// Trim drops the leading n dates. The returned frame shares no column storage
// with the receiver's prefix but does share the remaining backing arrays.
func (f Frame[T]) Trim(n int) Frame[T] {
	if n <= 0 {
		return f
	}
	if n > len(f.Dates) {
		n = len(f.Dates)
	}
	cols := make([][]T, len(f.Cols))
	for j, c := range f.Cols {
		cols[j] = c[n:]
	}
	return Frame[T]{Dates: f.Dates[n:], Symbols: f.Symbols, Cols: cols}
}

// SameIndex reports whether two frames share dates and symbols exactly.
func SameIndex[A, B any](a Frame[A], b Frame[B]) bool {
	if len(a.Dates) != len(b.Dates) || len(a.Symbols) != len(b.Symbols) {
		return false
	}
	for i := range a.Dates {
		if !a.Dates[i].Equal(b.Dates[i]) {
			return false
		}
	}
	for i := range a.Symbols {
		if a.Symbols[i] != b.Symbols[i] {
			return false
		}
	}
	return true
}

// PricePanel is the weekly OHLC input; all four panels share one index.
type PricePanel struct {
	Open  Panel
	High  Panel
	Low   Panel
	Close Panel
}

// Dates returns the shared date index.
func (p PricePanel) Dates() []time.Time { return p.Close.Dates }

// Symbols returns the shared security columns.
func (p PricePanel) Symbols() []string { return p.Close.Symbols }

// Trim drops the leading n dates from every price column.
func (p PricePanel) Trim(n int) PricePanel {
	return PricePanel{Open: p.Open.Trim(n), High: p.High.Trim(n), Low: p.Low.Trim(n), Close: p.Close.Trim(n)}
}

// Bar is one weekly OHLCV record in long format.
type Bar struct {
	Week   time.Time
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// NewPricePanel pivots long-format bars into a price panel. Dates are the
// ascending union of all weeks, symbols are sorted, absent cells are NaN.
func NewPricePanel(bars []Bar) PricePanel {
	weekSet := make(map[int64]time.Time)
	symSet := make(map[string]struct{})
	for _, b := range bars {
		weekSet[b.Week.Unix()] = b.Week
		symSet[b.Symbol] = struct{}{}
	}

	dates := make([]time.Time, 0, len(weekSet))
	for _, w := range weekSet {
		dates = append(dates, w)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	symbols := make([]string, 0, len(symSet))
	for s := range symSet {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	row := make(map[int64]int, len(dates))
	for i, d := range dates {
		row[d.Unix()] = i
	}
	col := make(map[string]int, len(symbols))
	for j, s := range symbols {
		col[s] = j
	}

	p := PricePanel{
		Open:  NewPanel(dates, symbols),
		High:  NewPanel(dates, symbols),
		Low:   NewPanel(dates, symbols),
		Close: NewPanel(dates, symbols),
	}
	for _, b := range bars {
		t, j := row[b.Week.Unix()], col[b.Symbol]
		p.Open.Cols[j][t] = b.Open
		p.High.Cols[j][t] = b.High
		p.Low.Cols[j][t] = b.Low
		p.Close.Cols[j][t] = b.Close
	}
	return p
}
