// Package daterange clamps user-requested query windows to what the caller's
// subscription entitles them to see.
package daterange

import (
	"strings"
	"time"

	"github.com/guttosm/stockmeter/internal/domain/apperr"
	"github.com/guttosm/stockmeter/internal/domain/models"
)

// accepted input layouts, tried in order.
var layouts = []string{"2006-01-02", time.RFC3339Nano, time.RFC3339}

// Resolver computes effective date ranges against a clock.
type Resolver struct {
	now func() time.Time
}

// NewResolver returns a Resolver. A nil clock defaults to time.Now in UTC.
func NewResolver(now func() time.Time) *Resolver {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Resolver{now: now}
}

// Floor returns the earliest date the entitlement grants access to.
func (r *Resolver) Floor(ent models.Entitlement) time.Time {
	return SubtractYears(r.now(), ent.DataRangeYears)
}

// Resolve clamps the optional requested bounds to the entitlement window.
//
// Rules:
//   - start = max(requested start or floor, floor), never after now
//   - end   = min(requested end or now, now), never before start
//
// Out-of-window values are clamped silently; Resolve never fails.
func (r *Resolver) Resolve(start, end *time.Time, ent models.Entitlement) models.DateRange {
	now := r.now()
	floor := SubtractYears(now, ent.DataRangeYears)

	s := floor
	if start != nil && start.After(floor) {
		s = *start
	}
	if s.After(now) {
		s = now
	}

	e := now
	if end != nil && end.Before(now) {
		e = *end
	}
	if e.Before(s) {
		e = s
	}

	return models.DateRange{Start: s, End: e}
}

// SubtractYears moves t back by years calendar years, keeping month, day and
// clock. A Feb 29 that does not exist in the target year becomes Feb 28
// (time.AddDate would normalise it to Mar 1 instead).
func SubtractYears(t time.Time, years int) time.Time {
	y, m, d := t.Date()
	ty := y - years
	if last := daysIn(ty, m); d > last {
		d = last
	}
	return time.Date(ty, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, m time.Month) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ParseBounds parses optional start/end query values. Empty strings mean "not
// provided" and yield nil.
func ParseBounds(startRaw, endRaw string) (start, end *time.Time, err error) {
	if start, err = parseDate(startRaw); err != nil {
		return nil, nil, apperr.BadRequest("Invalid start date format")
	}
	if end, err = parseDate(endRaw); err != nil {
		return nil, nil, apperr.BadRequest("Invalid end date format")
	}
	return start, end, nil
}

func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			t = t.UTC()
			return &t, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
