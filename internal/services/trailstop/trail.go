package trailstop

import "math"

// Machine is the per-security trailing-stop recursion. The zero value is
// unset: the next usable bar re-initializes the stop below price.
type Machine struct {
	Multiplier float64

	stop      float64
	prevClose float64
	set       bool
}

// NewMachine returns an unset machine for the given ATR multiplier.
func NewMachine(multiplier float64) *Machine {
	return &Machine{Multiplier: multiplier}
}

// Stop returns the last emitted stop and whether it is set.
func (m *Machine) Stop() (float64, bool) { return m.stop, m.set }

// Reset returns the machine to the unset state.
func (m *Machine) Reset() {
	m.stop, m.prevClose, m.set = 0, 0, false
}

// Step consumes one bar and returns the new stop, or ok=false when close or
// atr is missing. A missing bar leaves the machine unset.
func (m *Machine) Step(close, atr float64) (stop float64, ok bool) {
	if math.IsNaN(close) || math.IsNaN(atr) {
		m.Reset()
		return math.NaN(), false
	}
	sl := m.Multiplier * atr

	if !m.set {
		m.stop, m.prevClose, m.set = close-sl, close, true
		return m.stop, true
	}

	prev, pc := m.stop, m.prevClose
	switch {
	case close > prev && pc > prev:
		stop = math.Max(prev, close-sl)
	case close < prev && pc < prev:
		stop = math.Min(prev, close+sl)
	case close > prev:
		stop = close - sl
	default:
		stop = close + sl
	}
	m.stop, m.prevClose = stop, close
	return stop, true
}

// Trail runs the recursion over one security's close and ATR series. Bar 0
// carries no value: the stop needs a previous bar to compare against.
func Trail(close, atr []float64, multiplier float64) []float64 {
	n := len(close)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	out[0] = math.NaN()

	m := NewMachine(multiplier)
	for t := 1; t < n; t++ {
		v, ok := m.Step(close[t], atr[t])
		if !ok {
			out[t] = math.NaN()
			continue
		}
		out[t] = v
	}
	return out
}
