// Package gateway decides whether an API request may proceed.
//
// Admission runs in a fixed order: API key, active subscription, quota.
// The first failing step produces the rejection. Admitted requests are
// audited after the handler completes through Record.
package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/guttosm/stockmeter/internal/domain/apperr"
	"github.com/guttosm/stockmeter/internal/domain/models"
	"github.com/guttosm/stockmeter/internal/logger"
	"github.com/guttosm/stockmeter/internal/quota"
)

const (
	MsgMissingKey     = "API key is required"
	MsgInvalidKey     = "Invalid API key"
	MsgNoSubscription = "No active subscription found"
	MsgDailyExceeded  = "Daily API call limit exceeded"
	MsgMinuteExceeded = "Per-minute API call limit exceeded"
)

// AccountStore resolves API keys and subscriptions.
// Both methods return (nil, nil) when nothing matches.
type AccountStore interface {
	LookupByAPIKey(ctx context.Context, apiKey string) (*models.Identity, error)
	ActiveSubscription(ctx context.Context, userID string, now time.Time) (*models.Subscription, error)
}

// QuotaChecker increments and returns the quota counters of an identity.
type QuotaChecker interface {
	CheckAndIncrement(ctx context.Context, identity string) (quota.Counts, error)
}

// AuditSink persists request log entries.
type AuditSink interface {
	Append(ctx context.Context, entry models.RequestLog) error
}

// Observer receives admission telemetry. internal/metrics implements it.
type Observer interface {
	ObserveAdmission(outcome string)
	ObserveQuotaLatency(d time.Duration)
	AuditFailed()
}

type nopObserver struct{}

func (nopObserver) ObserveAdmission(string)           {}
func (nopObserver) ObserveQuotaLatency(time.Duration) {}
func (nopObserver) AuditFailed()                      {}

// RequestMeta describes the request being admitted.
type RequestMeta struct {
	Endpoint  string
	Method    string
	RequestID string
}

// Decision is the outcome of Admit. Exactly one of Identity or Err is set.
type Decision struct {
	Identity    *models.Identity
	Entitlement models.Entitlement
	Err         *apperr.Error
}

// Admitted reports whether the request may proceed.
func (d Decision) Admitted() bool { return d.Err == nil }

// Outcome is the label used for metrics and logs.
func (d Decision) Outcome() string {
	if d.Err == nil {
		return "admitted"
	}
	switch d.Err.Message {
	case MsgDailyExceeded:
		return "daily_exceeded"
	case MsgMinuteExceeded:
		return "minute_exceeded"
	}
	switch d.Err.Kind {
	case apperr.KindUnauthenticated:
		return "unauthenticated"
	case apperr.KindForbidden:
		return "forbidden"
	default:
		return "error"
	}
}

// Options tunes a Gateway. Zero values disable the corresponding timeout.
type Options struct {
	LookupTimeout time.Duration
	AuditTimeout  time.Duration
	Now           func() time.Time
	Observer      Observer
}

// Gateway admits requests and records audits.
type Gateway struct {
	accounts AccountStore
	quotas   QuotaChecker
	audit    AuditSink
	opts     Options

	inflight sync.WaitGroup
}

// New builds a Gateway.
func New(accounts AccountStore, quotas QuotaChecker, audit AuditSink, opts Options) *Gateway {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Gateway{accounts: accounts, quotas: quotas, audit: audit, opts: opts}
}

// Admit runs the admission pipeline for apiKey. Quota consumed here is never
// returned, even when the request is later cancelled or fails downstream.
func (g *Gateway) Admit(ctx context.Context, apiKey string, meta RequestMeta) Decision {
	d := g.admit(ctx, apiKey)
	g.opts.Observer.ObserveAdmission(d.Outcome())
	if d.Err != nil && d.Err.Kind == apperr.KindInternal {
		logger.Ctx(ctx).Error().
			Err(d.Err.Err).
			Str("endpoint", meta.Endpoint).
			Msg("admission failed")
	}
	return d
}

func (g *Gateway) admit(ctx context.Context, apiKey string) Decision {
	if apiKey == "" {
		return reject(apperr.New(apperr.KindUnauthenticated, MsgMissingKey))
	}

	lctx, cancel := g.withTimeout(ctx, g.opts.LookupTimeout)
	defer cancel()

	identity, err := g.accounts.LookupByAPIKey(lctx, apiKey)
	if err != nil {
		return reject(apperr.Wrap(apperr.KindInternal, "Internal server error", err))
	}
	if identity == nil {
		return reject(apperr.New(apperr.KindUnauthenticated, MsgInvalidKey))
	}

	now := g.opts.Now()
	sub, err := g.accounts.ActiveSubscription(lctx, identity.UserID, now)
	if err != nil {
		return reject(apperr.Wrap(apperr.KindInternal, "Internal server error", err))
	}
	// end_date is a calendar date and stays valid through its last day.
	if sub == nil || !now.Before(sub.EndDate.AddDate(0, 0, 1)) {
		return reject(apperr.New(apperr.KindForbidden, MsgNoSubscription))
	}
	ent := sub.Entitlement()

	start := time.Now()
	counts, err := g.quotas.CheckAndIncrement(ctx, identity.UserID)
	g.opts.Observer.ObserveQuotaLatency(time.Since(start))
	if err != nil {
		return reject(apperr.Unavailable("Service temporarily unavailable", err))
	}

	if w, over := counts.Exceeded(quota.Limits{PerDay: ent.APICallsPerDay, PerMinute: ent.APIRequestsPerMinute}); over {
		if w == quota.Daily {
			return reject(apperr.RateLimited(MsgDailyExceeded, quota.Daily.TTL))
		}
		return reject(apperr.RateLimited(MsgMinuteExceeded, quota.Minute.TTL))
	}

	return Decision{Identity: identity, Entitlement: ent}
}

func reject(err *apperr.Error) Decision { return Decision{Err: err} }

// Record appends an audit entry for an admitted request in the background.
// It never blocks the caller and never reports failures to it.
func (g *Gateway) Record(identity models.Identity, meta RequestMeta, status int) {
	entry := models.RequestLog{
		UserID:     identity.UserID,
		Endpoint:   meta.Endpoint,
		Method:     meta.Method,
		StatusCode: status,
		Timestamp:  g.opts.Now(),
	}

	g.inflight.Add(1)
	go func() {
		defer g.inflight.Done()
		ctx, cancel := g.withTimeout(context.Background(), g.opts.AuditTimeout)
		defer cancel()

		if err := g.audit.Append(ctx, entry); err != nil {
			g.opts.Observer.AuditFailed()
			logger.L().Warn().
				Err(err).
				Str("request_id", meta.RequestID).
				Str("user_id", entry.UserID).
				Str("endpoint", entry.Endpoint).
				Msg("audit append failed")
		}
	}()
}

// Wait blocks until all pending audit writes have finished.
func (g *Gateway) Wait() {
	g.inflight.Wait()
}

func (g *Gateway) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
