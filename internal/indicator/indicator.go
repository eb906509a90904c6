// Package indicator computes technical indicators over an ordered price series.
//
// Every function is pure: it reads the input slice, never mutates it, and keeps
// no state between calls. Results are lazy iter.Seq values, so callers decide
// whether to stream or collect them. All outputs are rounded to Precision
// decimal places using round-half-away-from-zero (decimal.Decimal.Round).
package indicator

import (
	"iter"
	"strings"

	"github.com/shopspring/decimal"
)

// Precision is the number of decimal places of every indicator value.
const Precision = 2

// Kind names an indicator exposed over the API.
type Kind string

const (
	KindSMA Kind = "sma"
	KindEMA Kind = "ema"
	KindRSI Kind = "rsi"
)

// DefaultPeriod is the period used when the caller does not provide one.
func (k Kind) DefaultPeriod() int {
	if k == KindRSI {
		return 14
	}
	return 20
}

// Label is the upper-case name used in messages, e.g. "RSI".
func (k Kind) Label() string { return strings.ToUpper(string(k)) }

// ParseKind maps a case-insensitive name to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindSMA:
		return KindSMA, true
	case KindEMA:
		return KindEMA, true
	case KindRSI:
		return KindRSI, true
	}
	return "", false
}

// Compute dispatches to the indicator named by kind.
// An unknown kind yields an empty sequence.
func Compute(kind Kind, prices []decimal.Decimal, period int) iter.Seq[decimal.Decimal] {
	switch kind {
	case KindSMA:
		return SMA(prices, period)
	case KindEMA:
		return EMA(prices, period)
	case KindRSI:
		return RSI(prices, period)
	}
	return func(func(decimal.Decimal) bool) {}
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Precision)
}
