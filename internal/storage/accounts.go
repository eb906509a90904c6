package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/guttosm/stockmeter/internal/domain/models"
)

// AccountsRepository resolves API keys and active subscriptions.
type AccountsRepository interface {
	LookupByAPIKey(ctx context.Context, apiKey string) (*models.Identity, error)
	ActiveSubscription(ctx context.Context, userID string, now time.Time) (*models.Subscription, error)
}

type accountsRepository struct {
	db *sql.DB
}

func NewAccountsRepository(db *sql.DB) AccountsRepository {
	return &accountsRepository{db: db}
}

// LookupByAPIKey returns the owner of apiKey, or nil when no user holds it.
func (r *accountsRepository) LookupByAPIKey(ctx context.Context, apiKey string) (*models.Identity, error) {
	var id models.Identity
	var role sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT id, role FROM users WHERE api_key = $1`, apiKey).Scan(&id.UserID, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	id.Role = role.String
	return &id, nil
}

// ActiveSubscription returns the user's active subscription joined with its
// plan limits, or nil when none is active at now. When several rows qualify
// the one ending last wins.
func (r *accountsRepository) ActiveSubscription(ctx context.Context, userID string, now time.Time) (*models.Subscription, error) {
	var s models.Subscription
	err := r.db.QueryRowContext(ctx, `
		SELECT s.id, p.name, s.start_date, s.end_date,
		       p.api_calls_per_day, p.api_requests_per_minute, p.data_range_years
		FROM subscriptions s
		INNER JOIN plans p ON s.plan_id = p.id
		WHERE s.user_id = $1 AND s.is_active = true AND s.end_date >= $2::date
		ORDER BY s.end_date DESC
		LIMIT 1
	`, userID, now).Scan(
		&s.ID, &s.PlanName, &s.StartDate, &s.EndDate,
		&s.APICallsPerDay, &s.APIRequestsPerMinute, &s.DataRangeYears,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
