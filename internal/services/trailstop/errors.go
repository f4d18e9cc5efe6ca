package trailstop

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalidConfig is wrapped by every ConfigError.
	ErrInvalidConfig = errors.New("trailstop: invalid configuration")
	// ErrMalformedPanel reports a problem with the shared panel index.
	ErrMalformedPanel = errors.New("trailstop: malformed price panel")
	// ErrMissingInput is wrapped by every MissingInputError.
	ErrMissingInput = errors.New("trailstop: missing input")
)

// ConfigError rejects a whole batch before any per-security work starts.
type ConfigError struct {
	Field string
	Value any
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s must be positive, got %v", ErrInvalidConfig, e.Field, e.Value)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// MissingInputError is contained to one security.
type MissingInputError struct {
	Symbol string
	Reason string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrMissingInput, e.Symbol, e.Reason)
}

func (e *MissingInputError) Unwrap() error { return ErrMissingInput }

// ShortHistoryError marks a security with fewer priced weeks than the ATR
// length. Its outputs stay undefined; it is not a failure.
type ShortHistoryError struct {
	Symbol string
	Weeks  int
}

func (e *ShortHistoryError) Error() string {
	return fmt.Sprintf("trailstop: %s: short history (%d weeks)", e.Symbol, e.Weeks)
}

// Report maps a failed security to its reason. A run with failures is still
// a successful run. Short lists securities too young for an ATR, with their
// count of priced weeks.
type Report struct {
	Failures map[string]string `json:"failures"`
	Short    map[string]int    `json:"short_history,omitempty"`
}

// NewReport returns an empty report.
func NewReport() Report {
	return Report{Failures: make(map[string]string), Short: make(map[string]int)}
}

// Add records err for its security; the first reason per symbol wins.
func (r *Report) Add(err *MissingInputError) {
	if r.Failures == nil {
		r.Failures = make(map[string]string)
	}
	if _, ok := r.Failures[err.Symbol]; ok {
		return
	}
	r.Failures[err.Symbol] = err.Reason
	delete(r.Short, err.Symbol)
}

// AddShort records a short-history security unless it already failed.
func (r *Report) AddShort(err *ShortHistoryError) {
	if r.Failed(err.Symbol) {
		return
	}
	if r.Short == nil {
		r.Short = make(map[string]int)
	}
	r.Short[err.Symbol] = err.Weeks
}

// Merge folds other into r, tagging reasons with stage.
func (r *Report) Merge(stage string, other Report) {
	for _, s := range other.Symbols() {
		r.Add(&MissingInputError{Symbol: s, Reason: stage + ": " + other.Failures[s]})
	}
	for s, n := range other.Short {
		r.AddShort(&ShortHistoryError{Symbol: s, Weeks: n})
	}
}

// Len returns the number of failed securities.
func (r Report) Len() int { return len(r.Failures) }

// Failed reports whether symbol failed.
func (r Report) Failed(symbol string) bool {
	_, ok := r.Failures[symbol]
	return ok
}

// Symbols returns failed symbols in sorted order.
func (r Report) Symbols() []string {
	out := make([]string, 0, len(r.Failures))
	for s := range r.Failures {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ShortSymbols returns short-history symbols in sorted order.
func (r Report) ShortSymbols() []string {
	out := make([]string, 0, len(r.Short))
	for s := range r.Short {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (r Report) String() string {
	parts := make([]string, 0, len(r.Failures))
	for _, s := range r.Symbols() {
		parts = append(parts, s+"="+r.Failures[s])
	}
	return strings.Join(parts, "; ")
}
