package trailstop

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"TrendScan/internal/domain/models"
)

var nan = math.NaN()

var week0 = time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC)

func weeks(n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = week0.AddDate(0, 0, 7*i)
	}
	return out
}

// panelOf builds an OHLC panel from close columns; high and low sit spread
// above and below close.
func panelOf(symbols []string, closes [][]float64, spread float64) models.PricePanel {
	dates := weeks(len(closes[0]))
	p := models.PricePanel{
		Open:  models.NewPanel(dates, symbols),
		High:  models.NewPanel(dates, symbols),
		Low:   models.NewPanel(dates, symbols),
		Close: models.NewPanel(dates, symbols),
	}
	for j, col := range closes {
		for t, c := range col {
			p.Open.Cols[j][t] = c
			p.High.Cols[j][t] = c + spread
			p.Low.Cols[j][t] = c - spread
			p.Close.Cols[j][t] = c
		}
	}
	return p
}

func randomWalk(r *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	v := 100.0
	for i := range out {
		v += r.NormFloat64() * 3
		if v < 1 {
			v = 1
		}
		out[i] = v
	}
	return out
}

func randomPanel(seed int64, symbols, n int) models.PricePanel {
	r := rand.New(rand.NewSource(seed))
	names := make([]string, symbols)
	closes := make([][]float64, symbols)
	for j := range names {
		names[j] = string(rune('A'+j%26)) + string(rune('A'+j/26))
		closes[j] = randomWalk(r, n)
	}
	p := panelOf(names, closes, 1.5)
	for j := range names {
		for t := 0; t < n; t++ {
			p.High.Cols[j][t] += r.Float64() * 2
			p.Low.Cols[j][t] -= r.Float64() * 2
		}
	}
	return p
}

// requireSameFloats compares two series treating NaN == NaN.
func requireSameFloats(t *testing.T, want, got []float64, msgAndArgs ...interface{}) {
	t.Helper()
	require.Len(t, got, len(want), msgAndArgs...)
	for i := range want {
		if math.IsNaN(want[i]) {
			require.True(t, math.IsNaN(got[i]), "index %d: want NaN, got %v", i, got[i])
			continue
		}
		require.InDelta(t, want[i], got[i], 1e-9, "index %d", i)
	}
}

// requireIdenticalFloats compares two series bit for bit.
func requireIdenticalFloats(t *testing.T, want, got []float64, msgAndArgs ...interface{}) {
	t.Helper()
	require.Len(t, got, len(want), msgAndArgs...)
	for i := range want {
		require.Equal(t, math.Float64bits(want[i]), math.Float64bits(got[i]),
			"index %d: want %v, got %v", i, want[i], got[i])
	}
}

func filled(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
