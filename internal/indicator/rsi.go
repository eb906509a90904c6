package indicator

import (
	"iter"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// RSI yields the Relative Strength Index using Wilder's smoothing.
//
// The first value averages the gains and losses of the first period deltas;
// later values smooth with avg = (avg*(period-1) + current) / period.
// Averages are carried unrounded, only emitted values are rounded.
// When the average loss is zero the value is 100. Empty when
// len(prices) < period+1 or period is not positive.
func RSI(prices []decimal.Decimal, period int) iter.Seq[decimal.Decimal] {
	return func(yield func(decimal.Decimal) bool) {
		if period <= 0 || len(prices)-1 < period {
			return
		}
		p := decimal.NewFromInt(int64(period))
		pm1 := decimal.NewFromInt(int64(period - 1))

		gains, losses := decimal.Zero, decimal.Zero
		for i := 1; i <= period; i++ {
			gain, loss := split(prices[i].Sub(prices[i-1]))
			gains = gains.Add(gain)
			losses = losses.Add(loss)
		}
		avgGain := gains.Div(p)
		avgLoss := losses.Div(p)
		if !yield(rsiValue(avgGain, avgLoss)) {
			return
		}

		for i := period + 1; i < len(prices); i++ {
			gain, loss := split(prices[i].Sub(prices[i-1]))
			avgGain = avgGain.Mul(pm1).Add(gain).Div(p)
			avgLoss = avgLoss.Mul(pm1).Add(loss).Div(p)
			if !yield(rsiValue(avgGain, avgLoss)) {
				return
			}
		}
	}
}

// split returns the gain and the loss magnitude of a price change.
func split(change decimal.Decimal) (gain, loss decimal.Decimal) {
	if change.IsPositive() {
		return change, decimal.Zero
	}
	return decimal.Zero, change.Neg()
}

func rsiValue(avgGain, avgLoss decimal.Decimal) decimal.Decimal {
	if avgLoss.IsZero() {
		return round(hundred)
	}
	rs := avgGain.Div(avgLoss)
	return round(hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs))))
}
