package trailstop

import (
	"math"

	"TrendScan/internal/domain/models"
)

// Zone classifies one cell. Any missing input, or a tie against the slow
// stop, yields TrendInvalid.
func Zone(fast, slow, high, low, close float64) models.TrendState {
	switch {
	case fast > slow && close > slow && low > slow:
		return models.TrendGreen
	case fast > slow && close > slow && low < slow:
		return models.TrendBlue
	case slow > fast && close < slow && high < slow:
		return models.TrendRed
	case slow > fast && close < slow && high > slow:
		return models.TrendYellow
	default:
		return models.TrendInvalid
	}
}

// Cross is the edge-triggered crossover of fast over slow between two bars.
// prevAbove is false when the previous bar is missing.
func Cross(prevAbove, above bool) models.Signal {
	switch {
	case above && !prevAbove:
		return models.SignalBuy
	case !above && prevAbove:
		return models.SignalSell
	default:
		return models.SignalNone
	}
}

// Classify derives the trend-state and signal panels from the fast and slow
// trailing-stop panels and the OHLC they were computed from. There is no
// recursion: every cell depends only on its own date and the previous one.
func Classify(fast, slow models.Panel, prices models.PricePanel) (models.TrendPanel, models.SignalPanel) {
	trend := models.NewFrame(fast.Dates, fast.Symbols, models.TrendInvalid)
	signals := models.NewFrame(fast.Dates, fast.Symbols, models.SignalInvalid)

	for j := range fast.Symbols {
		f, s := fast.Col(j), slow.Col(j)
		h, l, c := prices.High.Col(j), prices.Low.Col(j), prices.Close.Col(j)
		tc, sc := trend.Cols[j], signals.Cols[j]

		prevAbove := false
		for t := range f {
			above := f[t] > s[t]
			if !math.IsNaN(f[t]) && !math.IsNaN(s[t]) {
				tc[t] = Zone(f[t], s[t], h[t], l[t], c[t])
				sc[t] = Cross(prevAbove, above)
			}
			prevAbove = above
		}
	}
	return trend, signals
}
