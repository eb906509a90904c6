// Package quota counts requests per identity over a daily and a per-minute
// window on top of an atomic increment-with-expiry key-value store.
package quota

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Window is one counting window.
type Window struct {
	Name string
	TTL  time.Duration
}

var (
	// Daily is a rolling 24h window that starts at the first request.
	Daily = Window{Name: "daily", TTL: 24 * time.Hour}
	// Minute is a 60s window that starts at the first request.
	Minute = Window{Name: "minute", TTL: time.Minute}
)

// Key returns the store key of this window for identity, e.g. "daily:42".
func (w Window) Key(identity string) string {
	return w.Name + ":" + identity
}

// Counter is the store primitive the quota logic needs. Incr must be atomic
// and return the post-increment value, creating the key at 1 when missing,
// along with the key's remaining TTL. A negative TTL means the key has no
// expiry.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, time.Duration, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Counts are the post-increment values of both windows.
type Counts struct {
	Daily  int64
	Minute int64
}

// Limits are the per-window thresholds of an entitlement.
type Limits struct {
	PerDay    int
	PerMinute int
}

// Exceeded returns the first window whose count is above its limit.
// A count equal to the limit is still within quota. Daily is checked first.
func (c Counts) Exceeded(l Limits) (Window, bool) {
	if c.Daily > int64(l.PerDay) {
		return Daily, true
	}
	if c.Minute > int64(l.PerMinute) {
		return Minute, true
	}
	return Window{}, false
}

// Store increments quota counters.
type Store struct {
	counter Counter
	timeout time.Duration
}

// NewStore returns a Store over counter. A positive timeout bounds every
// CheckAndIncrement call.
func NewStore(counter Counter, timeout time.Duration) *Store {
	return &Store{counter: counter, timeout: timeout}
}

// CheckAndIncrement unconditionally increments both windows of identity and
// returns the new values. Callers compare them against the limits afterwards,
// so a rejected request is still counted. Any store failure is returned; the
// caller must treat it as a rejection.
func (s *Store) CheckAndIncrement(ctx context.Context, identity string) (Counts, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var counts Counts
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.bump(gctx, Daily, identity)
		counts.Daily = n
		return err
	})
	g.Go(func() error {
		n, err := s.bump(gctx, Minute, identity)
		counts.Minute = n
		return err
	})
	if err := g.Wait(); err != nil {
		return Counts{}, err
	}
	return counts, nil
}

// bump increments one window and attaches its TTL whenever the key has
// none. That covers a freshly created key as well as one left without an
// expiry by an earlier failed EXPIRE, which would otherwise never reset.
// Concurrent callers may both set the same TTL, which is harmless.
func (s *Store) bump(ctx context.Context, w Window, identity string) (int64, error) {
	key := w.Key(identity)
	n, ttl, err := s.counter.Incr(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	if ttl < 0 {
		if err := s.counter.Expire(ctx, key, w.TTL); err != nil {
			return 0, fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return n, nil
}
