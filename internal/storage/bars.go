package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"

	"github.com/google/uuid"
	"github.com/guttosm/stockmeter/internal/domain/models"
	pq "github.com/lib/pq"
)

// BarsRepository defines the write side used by the bar ingestion job.
type BarsRepository interface {
	UpsertStock(ctx context.Context, symbol, name string) (string, error)
	HasIngestion(ctx context.Context, filename string) (bool, error)
	BeginLoad(ctx context.Context, stockID string, replace bool) (BarsLoad, error)
}

// BarsLoad is the load of one file, held in a single transaction. Bars and
// the ingestion_log entry become visible together on Commit; anything else
// leaves the table as it was.
type BarsLoad interface {
	Insert(ctx context.Context, bars []models.Bar) error
	Commit(ctx context.Context, filename, symbol string, rowCount int) error
	// Rollback discards the load. It is a no-op after Commit.
	Rollback() error
}

type barsRepository struct {
	db *sql.DB
}

func NewBarsRepository(db *sql.DB) BarsRepository {
	return &barsRepository{db: db}
}

// UpsertStock returns the id of symbol, creating the stock when missing.
// An existing stock keeps its name.
func (r *barsRepository) UpsertStock(ctx context.Context, symbol, name string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM stocks WHERE symbol = $1`, symbol).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	err = r.db.QueryRowContext(ctx, `
		INSERT INTO stocks (id, name, symbol)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol) DO UPDATE SET updated_at = NOW()
		RETURNING id
	`, uuid.NewString(), name, symbol).Scan(&id)
	return id, err
}

// HasIngestion reports whether filename was already loaded.
func (r *barsRepository) HasIngestion(ctx context.Context, filename string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM ingestion_log WHERE filename = $1)`, filename).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// BeginLoad opens the transaction of one file. With replace set, the stock's
// existing bars are deleted inside it, so a failed reload keeps the old ones.
func (r *barsRepository) BeginLoad(ctx context.Context, stockID string, replace bool) (BarsLoad, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `SET LOCAL synchronous_commit = OFF`); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if replace {
		if _, err := tx.ExecContext(ctx, `DELETE FROM daily WHERE stockid = $1`, stockID); err != nil {
			_ = tx.Rollback()
			return nil, err
		}
	}
	return &barsLoad{tx: tx, stockID: stockID}, nil
}

type barsLoad struct {
	tx      *sql.Tx
	stockID string
}

// Insert copies one batch of bars with pq.CopyIn. A duplicate (stock, date)
// fails the statement and, with it, the whole load.
func (l *barsLoad) Insert(ctx context.Context, bars []models.Bar) error {
	stmt, err := l.tx.PrepareContext(ctx, pq.CopyIn("daily", "id", "stockid", "date", "open", "high", "low", "close", "volume"))
	if err != nil {
		return err
	}

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx,
			uuid.NewString(), l.stockID, b.Date,
			nullable(b.Open), nullable(b.High), nullable(b.Low), nullable(b.Close), nullable(b.Volume),
		); err != nil {
			_ = stmt.Close()
			return err
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return err
	}
	return stmt.Close()
}

// Commit records filename in ingestion_log and commits the load.
func (l *barsLoad) Commit(ctx context.Context, filename, symbol string, rowCount int) error {
	if _, err := l.tx.ExecContext(ctx, `
		INSERT INTO ingestion_log (filename, symbol, row_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (filename)
		DO UPDATE SET symbol = EXCLUDED.symbol,
		              row_count = EXCLUDED.row_count,
		              ingested_at = NOW()
	`, filename, symbol, rowCount); err != nil {
		return err
	}
	return l.tx.Commit()
}

func (l *barsLoad) Rollback() error {
	if err := l.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// nullable maps an invalid NullDecimal to SQL NULL and a valid one to its
// canonical string form.
func nullable(d driver.Valuer) any {
	v, _ := d.Value()
	return v
}
