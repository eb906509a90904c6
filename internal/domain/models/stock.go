package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stock is a listed instrument from the "stocks" table.
//
// swagger:model Stock
type Stock struct {
	ID           string    `json:"id"`
	Name         string    `json:"name" example:"Reliance Industries"`
	Symbol       string    `json:"symbol" example:"RELIANCE"`
	CustomSymbol *string   `json:"customSymbol,omitempty"`
	ScriptType   *string   `json:"scriptType,omitempty"`
	Industry     *string   `json:"industry,omitempty"`
	ISIN         *string   `json:"isin,omitempty"`
	FnO          bool      `json:"fno"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// StockQuote is a search hit: the stock plus its latest bar and day / 52-week ranges.
type StockQuote struct {
	Stock
	LatestDate *time.Time          `json:"latestDate,omitempty"`
	Open       decimal.NullDecimal `json:"open"`
	High       decimal.NullDecimal `json:"high"`
	Low        decimal.NullDecimal `json:"low"`
	Close      decimal.NullDecimal `json:"close"`
	Volume     decimal.NullDecimal `json:"volume"`
	DayLow     decimal.NullDecimal `json:"dayLow"`
	DayHigh    decimal.NullDecimal `json:"dayHigh"`
	Week52Low  decimal.NullDecimal `json:"week52Low"`
	Week52High decimal.NullDecimal `json:"week52High"`
}
