package dto

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/guttosm/stockmeter/internal/domain/models"
	"github.com/shopspring/decimal"
)

func TestNumber_MarshalJSON(t *testing.T) {
	cases := []struct {
		name string
		in   Number
		want string
	}{
		{"whole", Price(decimal.NewFromInt(100)), "100.00"},
		{"one place", Price(decimal.RequireFromString("12.5")), "12.50"},
		{"negative", Price(decimal.RequireFromString("-0.1")), "-0.10"},
		{"null", NullPrice(decimal.NullDecimal{}), "null"},
		{"volume", NullInteger(decimal.NewNullDecimal(decimal.NewFromInt(1200))), "1200"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := json.Marshal(tc.in)
			if err != nil || string(b) != tc.want {
				t.Fatalf("got %s err=%v, want %s", b, err, tc.want)
			}
		})
	}
}

func TestIndicatorResponse_JSON(t *testing.T) {
	start := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	resp := IndicatorResponse{
		Values:    Prices([]decimal.Decimal{decimal.NewFromInt(50), decimal.RequireFromString("37.5")}),
		Period:    2,
		DateRange: NewDateRange(models.DateRange{Start: start, End: end}),
	}
	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"values":[50.00,37.50],"period":2,"dateRange":{"startDate":"2024-06-10T00:00:00Z","endDate":"2025-06-10T00:00:00Z"}}`
	if string(b) != want {
		t.Fatalf("got  %s\nwant %s", b, want)
	}

	empty, _ := json.Marshal(IndicatorResponse{Values: Prices(nil)})
	if string(empty)[:12] != `{"values":[]` {
		t.Fatalf("empty series should encode as [], got %s", empty)
	}
}

func TestNewBars(t *testing.T) {
	bars := []models.Bar{{
		Date:   time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		Close:  decimal.NewNullDecimal(decimal.RequireFromString("10.5")),
		Volume: decimal.NewNullDecimal(decimal.NewFromInt(99)),
	}}
	b, err := json.Marshal(NewBars(bars))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `[{"date":"2025-03-03","open":null,"high":null,"low":null,"close":10.50,"volume":99}]`
	if string(b) != want {
		t.Fatalf("got  %s\nwant %s", b, want)
	}
}

func TestEnvelope(t *testing.T) {
	total := 3
	env := OK("Stocks retrieved successfully", []string{"ACME"}).WithPage(PageInfo{Page: 1, Limit: 20, Total: &total})
	b, _ := json.Marshal(env)
	want := `{"success":true,"message":"Stocks retrieved successfully","data":["ACME"],"pagination":{"page":1,"limit":20,"total":3}}`
	if string(b) != want {
		t.Fatalf("got  %s\nwant %s", b, want)
	}
}
