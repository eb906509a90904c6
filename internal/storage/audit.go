package storage

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/guttosm/stockmeter/internal/domain/models"
)

// AuditRepository persists request log entries.
type AuditRepository interface {
	Append(ctx context.Context, entry models.RequestLog) error
}

type auditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) AuditRepository {
	return &auditRepository{db: db}
}

// Append inserts one request_logs row.
func (r *auditRepository) Append(ctx context.Context, e models.RequestLog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO request_logs (id, user_id, endpoint, method, status_code, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.NewString(), e.UserID, e.Endpoint, e.Method, e.StatusCode, e.Timestamp)
	return err
}
