package models

// TrendState is the 4-zone classification of a security on one date.
type TrendState int8

const (
	TrendInvalid TrendState = -1
	TrendRed     TrendState = 0
	TrendYellow  TrendState = 1
	TrendBlue    TrendState = 2
	TrendGreen   TrendState = 3
)

// Valid reports whether s is one of the four zones.
func (s TrendState) Valid() bool { return s >= TrendRed && s <= TrendGreen }

func (s TrendState) String() string {
	switch s {
	case TrendRed:
		return "red"
	case TrendYellow:
		return "yellow"
	case TrendBlue:
		return "blue"
	case TrendGreen:
		return "green"
	default:
		return "invalid"
	}
}

// Label is the human-readable zone name used in run metadata.
func (s TrendState) Label() string {
	switch s {
	case TrendRed:
		return "Red (Bear)"
	case TrendYellow:
		return "Yellow (Bear Rally)"
	case TrendBlue:
		return "Blue (Bull Dip)"
	case TrendGreen:
		return "Green (Bull)"
	default:
		return "Invalid"
	}
}

// TrendMap returns the encoding → label map persisted with each run.
func TrendMap() map[int8]string {
	return map[int8]string{
		int8(TrendRed):    TrendRed.Label(),
		int8(TrendYellow): TrendYellow.Label(),
		int8(TrendBlue):   TrendBlue.Label(),
		int8(TrendGreen):  TrendGreen.Label(),
	}
}

// ParseTrendState maps a lowercase zone name back to its state.
func ParseTrendState(s string) (TrendState, bool) {
	for _, st := range []TrendState{TrendRed, TrendYellow, TrendBlue, TrendGreen} {
		if st.String() == s {
			return st, true
		}
	}
	return TrendInvalid, false
}

// Signal is the fast/slow crossover event on one date.
type Signal int8

const (
	SignalInvalid Signal = -128
	SignalSell    Signal = -1
	SignalNone    Signal = 0
	SignalBuy     Signal = 1
)

// Valid reports whether the signal was computed from two valid stops.
func (s Signal) Valid() bool { return s == SignalSell || s == SignalNone || s == SignalBuy }

func (s Signal) String() string {
	switch s {
	case SignalBuy:
		return "buy"
	case SignalSell:
		return "sell"
	case SignalNone:
		return "none"
	default:
		return "invalid"
	}
}

// ParseSignal maps a lowercase signal name back to its value.
func ParseSignal(s string) (Signal, bool) {
	for _, sg := range []Signal{SignalSell, SignalNone, SignalBuy} {
		if sg.String() == s {
			return sg, true
		}
	}
	return SignalInvalid, false
}
