package indicator

import (
	"iter"

	"github.com/shopspring/decimal"
)

// EMA yields the exponential moving average of prices.
//
// The first element is the SMA of the first period prices. Each following
// element is (price - prev) * 2/(period+1) + prev, rounded to Precision, and
// the rounded value becomes prev for the next step. Consumers diff these
// outputs against historical responses, so the per-step rounding is part of
// the contract. Empty when len(prices) < period or period is not positive.
func EMA(prices []decimal.Decimal, period int) iter.Seq[decimal.Decimal] {
	return func(yield func(decimal.Decimal) bool) {
		if period <= 0 || len(prices) < period {
			return
		}
		multiplier := decimal.NewFromInt(2).Div(decimal.NewFromInt(int64(period + 1)))

		sum := decimal.Zero
		for _, p := range prices[:period] {
			sum = sum.Add(p)
		}
		prev := sum.DivRound(decimal.NewFromInt(int64(period)), Precision)
		if !yield(prev) {
			return
		}

		for _, price := range prices[period:] {
			cur := round(price.Sub(prev).Mul(multiplier).Add(prev))
			if !yield(cur) {
				return
			}
			prev = cur
		}
	}
}
