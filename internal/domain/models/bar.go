package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar represents one daily OHLCV row of the "daily" table.
//
// Prices are NUMERIC(10,2) in Postgres and are kept as exact decimals so the
// indicator engine can honour its 2-decimal contract without float drift.
// Any price column may be NULL in storage; NullDecimal preserves that.
type Bar struct {
	Date   time.Time           `json:"date"`
	Open   decimal.NullDecimal `json:"open"`
	High   decimal.NullDecimal `json:"high"`
	Low    decimal.NullDecimal `json:"low"`
	Close  decimal.NullDecimal `json:"close"`
	Volume decimal.NullDecimal `json:"volume"`
}

// Performance is a single day's open→close move for a stock.
type Performance struct {
	Date             time.Time           `json:"date"`
	Open             decimal.NullDecimal `json:"open"`
	Close            decimal.NullDecimal `json:"close"`
	PercentageChange decimal.NullDecimal `json:"percentage_change"`
}

// DateRange is an inclusive query window. Producers guarantee Start <= End.
type DateRange struct {
	Start time.Time `json:"startDate"`
	End   time.Time `json:"endDate"`
}

// Closes extracts the non-NULL close prices of bars, preserving order.
// Rows with a NULL close are skipped rather than interpolated.
func Closes(bars []Bar) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(bars))
	for _, b := range bars {
		if b.Close.Valid {
			out = append(out, b.Close.Decimal)
		}
	}
	return out
}
