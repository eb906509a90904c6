// Package validation parses and bounds-checks request parameters shared by all
// read endpoints. Every failure is an apperr BAD_REQUEST so handlers can
// reject before touching storage, quota or the indicator engine.
package validation

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/guttosm/stockmeter/internal/domain/apperr"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20

	// MaxListLimit caps catalogue listings (stocks, search).
	MaxListLimit = 100
	// MaxSeriesLimit caps time-series listings (daily bars, performance).
	MaxSeriesLimit = 500
	// MaxPeriod caps indicator look-back periods.
	MaxPeriod = 500

	maxSymbolLen = 200
)

// ErrBlankQuery rejects a search query that is present but empty.
var ErrBlankQuery = apperr.BadRequest("Query parameter must be a non-empty string")

// Pagination is a validated page request.
type Pagination struct {
	Page   int `json:"page"`
	Limit  int `json:"limit"`
	Offset int `json:"-"`
}

// ParsePagination validates raw page/limit values. Empty values take the
// defaults; anything non-numeric or non-positive is rejected, as is a limit
// above maxLimit.
func ParsePagination(pageRaw, limitRaw string, maxLimit int) (Pagination, error) {
	page, err := positiveOr(pageRaw, DefaultPage)
	if err != nil {
		return Pagination{}, apperr.BadRequest("Invalid pagination parameters")
	}
	limit, err := positiveOr(limitRaw, DefaultLimit)
	if err != nil {
		return Pagination{}, apperr.BadRequest("Invalid pagination parameters")
	}
	if limit > maxLimit {
		return Pagination{}, apperr.BadRequest(fmt.Sprintf("Limit cannot exceed %d", maxLimit))
	}
	if page-1 > math.MaxInt/limit {
		return Pagination{}, apperr.BadRequest("Invalid pagination parameters")
	}
	return Pagination{Page: page, Limit: limit, Offset: (page - 1) * limit}, nil
}

// ParseSymbol normalises a ticker symbol to upper case.
func ParseSymbol(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" || len(s) > maxSymbolLen {
		return "", apperr.BadRequest("A valid symbol parameter is required")
	}
	return strings.ToUpper(s), nil
}

// ParsePeriod parses an indicator period, falling back to def when empty.
// Periods above MaxPeriod are rejected.
func ParsePeriod(raw string, def int) (int, error) {
	p, err := positiveOr(raw, def)
	if err != nil {
		return 0, apperr.BadRequest("Period must be a positive number")
	}
	if p > MaxPeriod {
		return 0, apperr.BadRequest(fmt.Sprintf("Period cannot exceed %d", MaxPeriod))
	}
	return p, nil
}

// ParseOptionalBool accepts "true"/"false"; anything else means "not set".
func ParseOptionalBool(raw string) *bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true":
		v := true
		return &v
	case "false":
		v := false
		return &v
	}
	return nil
}

// IsBlank reports whether s holds nothing but whitespace.
func IsBlank(s string) bool { return strings.TrimSpace(s) == "" }

func positiveOr(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}
