package indicator

import (
	"iter"

	"github.com/shopspring/decimal"
)

// SMA yields the simple moving average of every full window of period prices.
//
// The sequence has len(prices)-period+1 elements and is empty when period is
// not positive or exceeds len(prices). A rolling sum keeps each step O(1);
// decimal addition is exact so the rolling sum never drifts.
func SMA(prices []decimal.Decimal, period int) iter.Seq[decimal.Decimal] {
	return func(yield func(decimal.Decimal) bool) {
		if period <= 0 || period > len(prices) {
			return
		}
		divisor := decimal.NewFromInt(int64(period))

		sum := decimal.Zero
		for _, p := range prices[:period] {
			sum = sum.Add(p)
		}
		if !yield(sum.DivRound(divisor, Precision)) {
			return
		}

		for i := period; i < len(prices); i++ {
			sum = sum.Add(prices[i]).Sub(prices[i-period])
			if !yield(sum.DivRound(divisor, Precision)) {
				return
			}
		}
	}
}
