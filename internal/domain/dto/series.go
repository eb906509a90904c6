package dto

import (
	"time"

	"github.com/guttosm/stockmeter/internal/domain/models"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Number renders a decimal as an unquoted JSON number with a fixed number of
// decimal places. An invalid Number renders as null.
type Number struct {
	value  decimal.Decimal
	places int32
	valid  bool
}

// Price is a Number with two decimal places.
func Price(d decimal.Decimal) Number { return Number{value: d, places: 2, valid: true} }

// NullPrice is Price for nullable columns.
func NullPrice(d decimal.NullDecimal) Number {
	if !d.Valid {
		return Number{}
	}
	return Price(d.Decimal)
}

// NullInteger renders a nullable whole number such as a volume.
func NullInteger(d decimal.NullDecimal) Number {
	if !d.Valid {
		return Number{}
	}
	return Number{value: d.Decimal, places: 0, valid: true}
}

// Prices converts a series, keeping an empty (non-nil) slice empty.
func Prices(ds []decimal.Decimal) []Number {
	out := make([]Number, len(ds))
	for i, d := range ds {
		out[i] = Price(d)
	}
	return out
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.valid {
		return []byte("null"), nil
	}
	return []byte(n.value.StringFixed(n.places)), nil
}

// String is the same fixed-point text without JSON null handling.
func (n Number) String() string {
	if !n.valid {
		return ""
	}
	return n.value.StringFixed(n.places)
}

// DateRange is the effective window a series was computed over.
type DateRange struct {
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

func NewDateRange(r models.DateRange) DateRange {
	return DateRange{StartDate: r.Start, EndDate: r.End}
}

// IndicatorResponse is returned by the SMA, EMA and RSI endpoints.
type IndicatorResponse struct {
	Values    []Number  `json:"values" swaggertype:"array,number"`
	Period    int       `json:"period" example:"14"`
	DateRange DateRange `json:"dateRange"`
}

// MovingAveragesResponse is returned by the moving-averages endpoint.
type MovingAveragesResponse struct {
	SMA       []Number  `json:"sma" swaggertype:"array,number"`
	EMA       []Number  `json:"ema" swaggertype:"array,number"`
	Period    int       `json:"period" example:"20"`
	DateRange DateRange `json:"dateRange"`
}

// BarResponse is one daily OHLCV row.
type BarResponse struct {
	Date   string `json:"date" example:"2025-03-03"`
	Open   Number `json:"open" swaggertype:"number"`
	High   Number `json:"high" swaggertype:"number"`
	Low    Number `json:"low" swaggertype:"number"`
	Close  Number `json:"close" swaggertype:"number"`
	Volume Number `json:"volume" swaggertype:"integer"`
}

func NewBars(bars []models.Bar) []BarResponse {
	out := make([]BarResponse, len(bars))
	for i, b := range bars {
		out[i] = BarResponse{
			Date:   b.Date.Format(dateLayout),
			Open:   NullPrice(b.Open),
			High:   NullPrice(b.High),
			Low:    NullPrice(b.Low),
			Close:  NullPrice(b.Close),
			Volume: NullInteger(b.Volume),
		}
	}
	return out
}

// PerformanceResponse is one day's open to close move.
type PerformanceResponse struct {
	Date             string `json:"date" example:"2025-03-03"`
	Open             Number `json:"open" swaggertype:"number"`
	Close            Number `json:"close" swaggertype:"number"`
	PercentageChange Number `json:"percentage_change" swaggertype:"number"`
}

func NewPerformance(rows []models.Performance) []PerformanceResponse {
	out := make([]PerformanceResponse, len(rows))
	for i, p := range rows {
		out[i] = PerformanceResponse{
			Date:             p.Date.Format(dateLayout),
			Open:             NullPrice(p.Open),
			Close:            NullPrice(p.Close),
			PercentageChange: NullPrice(p.PercentageChange),
		}
	}
	return out
}

// SearchResponse wraps search hits.
type SearchResponse struct {
	Stocks     []models.StockQuote `json:"stocks"`
	Pagination *PageInfo           `json:"pagination,omitempty"`
}
