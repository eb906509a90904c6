package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/guttosm/stockmeter/internal/domain/models"
)

// likeEscaper escapes LIKE wildcards so user text matches literally under
// ESCAPE '\'.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

const stockColumns = `id, name, symbol, customsymbol, scripttype, industry, isin, fno, created_at, updated_at`

// SearchFilter narrows a stock search. Empty Query and nil FnO match everything.
// Limit <= 0 disables pagination.
type SearchFilter struct {
	Query  string
	FnO    *bool
	Limit  int
	Offset int
}

// StocksRepository defines read access to stocks and their daily bars.
type StocksRepository interface {
	ListStocks(ctx context.Context, limit, offset int) ([]models.Stock, error)
	CountStocks(ctx context.Context) (int, error)
	GetBySymbol(ctx context.Context, symbol string) (*models.Stock, error)
	StockID(ctx context.Context, symbol string) (string, error)
	Search(ctx context.Context, f SearchFilter) ([]models.StockQuote, error)
	DailyBars(ctx context.Context, stockID string, rng models.DateRange, limit, offset int) ([]models.Bar, error)
	CountDaily(ctx context.Context, stockID string, rng models.DateRange) (int, error)
	Performance(ctx context.Context, stockID string, rng models.DateRange, limit, offset int) ([]models.Performance, error)
	FetchBars(ctx context.Context, stockID string, rng models.DateRange) ([]models.Bar, error)
}

type stocksRepository struct {
	db *sql.DB
}

func NewStocksRepository(db *sql.DB) StocksRepository {
	return &stocksRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStock(row rowScanner, extra ...any) (models.Stock, error) {
	var s models.Stock
	var customSymbol, scriptType, industry, isin sql.NullString
	var fno sql.NullBool
	var createdAt, updatedAt sql.NullTime
	dest := append([]any{
		&s.ID, &s.Name, &s.Symbol, &customSymbol, &scriptType, &industry, &isin, &fno, &createdAt, &updatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return s, err
	}
	s.CustomSymbol = nullString(customSymbol)
	s.ScriptType = nullString(scriptType)
	s.Industry = nullString(industry)
	s.ISIN = nullString(isin)
	s.FnO = fno.Bool
	s.CreatedAt = createdAt.Time
	s.UpdatedAt = updatedAt.Time
	return s, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// ListStocks returns one page of stocks ordered by symbol.
func (r *stocksRepository) ListStocks(ctx context.Context, limit, offset int) ([]models.Stock, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+stockColumns+` FROM stocks ORDER BY symbol LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Stock{}
	for rows.Next() {
		s, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *stocksRepository) CountStocks(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stocks`).Scan(&n)
	return n, err
}

// GetBySymbol returns the stock with the given symbol, or nil when unknown.
func (r *stocksRepository) GetBySymbol(ctx context.Context, symbol string) (*models.Stock, error) {
	s, err := scanStock(r.db.QueryRowContext(ctx, `SELECT `+stockColumns+` FROM stocks WHERE symbol = $1`, symbol))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// StockID returns the id of symbol, or "" when unknown.
func (r *stocksRepository) StockID(ctx context.Context, symbol string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM stocks WHERE symbol = $1`, symbol).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

// Search matches Query against name, symbol, industry and ISIN (case
// insensitive) and returns each hit with its latest bar and price ranges.
func (r *stocksRepository) Search(ctx context.Context, f SearchFilter) ([]models.StockQuote, error) {
	var conditions []string
	var args []any

	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+likeEscaper.Replace(q)+"%")
		p := len(args)
		conditions = append(conditions, fmt.Sprintf(
			`(s.name ILIKE $%[1]d ESCAPE '\' OR s.symbol ILIKE $%[1]d ESCAPE '\' OR s.industry ILIKE $%[1]d ESCAPE '\' OR s.isin ILIKE $%[1]d ESCAPE '\')`, p))
	}
	if f.FnO != nil {
		args = append(args, *f.FnO)
		conditions = append(conditions, fmt.Sprintf("s.fno = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	page := ""
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		page = fmt.Sprintf("LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	query := fmt.Sprintf(`
		SELECT
			s.id, s.name, s.symbol, s.customsymbol, s.scripttype,
			s.industry, s.isin, s.fno, s.created_at, s.updated_at,
			d.date, d.open, d.high, d.low, d.close, d.volume,
			(SELECT MIN(low) FROM daily WHERE date = CURRENT_DATE AND stockid = s.id) AS day_low,
			(SELECT MAX(high) FROM daily WHERE date = CURRENT_DATE AND stockid = s.id) AS day_high,
			(SELECT MIN(low) FROM daily WHERE date >= CURRENT_DATE - INTERVAL '1 year' AND stockid = s.id) AS week_52_low,
			(SELECT MAX(high) FROM daily WHERE date >= CURRENT_DATE - INTERVAL '1 year' AND stockid = s.id) AS week_52_high
		FROM stocks s
		LEFT JOIN LATERAL (
			SELECT date, open, high, low, close, volume
			FROM daily
			WHERE stockid = s.id
			ORDER BY date DESC
			LIMIT 1
		) d ON true
		%s
		ORDER BY s.name ASC
		%s
	`, where, page)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.StockQuote{}
	for rows.Next() {
		var q models.StockQuote
		var latest sql.NullTime
		s, err := scanStock(rows,
			&latest, &q.Open, &q.High, &q.Low, &q.Close, &q.Volume,
			&q.DayLow, &q.DayHigh, &q.Week52Low, &q.Week52High,
		)
		if err != nil {
			return nil, err
		}
		q.Stock = s
		if latest.Valid {
			t := latest.Time
			q.LatestDate = &t
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// DailyBars returns one page of bars in the range, newest first.
func (r *stocksRepository) DailyBars(ctx context.Context, stockID string, rng models.DateRange, limit, offset int) ([]models.Bar, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT date, open, high, low, close, volume
		FROM daily
		WHERE stockid = $1 AND date >= $2 AND date <= $3
		ORDER BY date DESC
		LIMIT $4 OFFSET $5
	`, stockID, rng.Start, rng.End, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanBars(rows)
}

func (r *stocksRepository) CountDaily(ctx context.Context, stockID string, rng models.DateRange) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM daily
		WHERE stockid = $1 AND date >= $2 AND date <= $3
	`, stockID, rng.Start, rng.End).Scan(&n)
	return n, err
}

// Performance returns each day's open to close change in percent, newest first.
func (r *stocksRepository) Performance(ctx context.Context, stockID string, rng models.DateRange, limit, offset int) ([]models.Performance, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT date, open, close,
			ROUND(((close - open) / NULLIF(open, 0)) * 100, 2) AS percentage_change
		FROM daily
		WHERE stockid = $1 AND date >= $2 AND date <= $3
		ORDER BY date DESC
		LIMIT $4 OFFSET $5
	`, stockID, rng.Start, rng.End, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Performance{}
	for rows.Next() {
		var p models.Performance
		if err := rows.Scan(&p.Date, &p.Open, &p.Close, &p.PercentageChange); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FetchBars returns every bar in the range, oldest first. This is the price
// series the indicator engine consumes.
func (r *stocksRepository) FetchBars(ctx context.Context, stockID string, rng models.DateRange) ([]models.Bar, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT date, open, high, low, close, volume
		FROM daily
		WHERE stockid = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC
	`, stockID, rng.Start, rng.End)
	if err != nil {
		return nil, err
	}
	return scanBars(rows)
}

func scanBars(rows *sql.Rows) ([]models.Bar, error) {
	defer rows.Close()
	out := []models.Bar{}
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
