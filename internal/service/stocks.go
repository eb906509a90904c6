// Package service holds the read-side business logic behind the stock endpoints.
package service

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/guttosm/stockmeter/internal/daterange"
	"github.com/guttosm/stockmeter/internal/domain/apperr"
	"github.com/guttosm/stockmeter/internal/domain/models"
	"github.com/guttosm/stockmeter/internal/indicator"
	"github.com/guttosm/stockmeter/internal/storage"
	"github.com/guttosm/stockmeter/internal/validation"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	MsgStockNotFound = "Stock not found"
	MsgNoHistory     = "No historical data found for the specified range"
	MsgNoMatches     = "No stocks found matching the criteria"
)

// SeriesQuery selects a date-bounded slice of one stock's history for the
// caller's entitlement. Start and End are optional; both get clamped.
type SeriesQuery struct {
	Symbol      string
	Start       *time.Time
	End         *time.Time
	Entitlement models.Entitlement
	Pagination  validation.Pagination
}

// SearchQuery filters the stock catalogue. A nil Pagination returns every hit.
type SearchQuery struct {
	Query      string
	FnO        *bool
	Pagination *validation.Pagination
}

// Page is one page of results with the total row count.
type Page[T any] struct {
	Items      []T
	Pagination validation.Pagination
	Total      int
	Range      *models.DateRange
}

// SearchResult holds search hits. HasMore is only meaningful when paginated.
type SearchResult struct {
	Stocks     []models.StockQuote
	Pagination *validation.Pagination
	HasMore    bool
}

// IndicatorResult is one computed indicator series.
type IndicatorResult struct {
	Kind   indicator.Kind
	Values []decimal.Decimal
	Period int
	Range  models.DateRange
}

// MovingAverages pairs SMA and EMA computed over the same closes and period.
type MovingAverages struct {
	SMA    []decimal.Decimal
	EMA    []decimal.Decimal
	Period int
	Range  models.DateRange
}

// StockService defines the stock read operations.
type StockService interface {
	ListStocks(ctx context.Context, p validation.Pagination) (*Page[models.Stock], error)
	GetStock(ctx context.Context, symbol string) (*models.Stock, error)
	SearchStocks(ctx context.Context, q SearchQuery) (*SearchResult, error)
	DailyBars(ctx context.Context, q SeriesQuery) (*Page[models.Bar], error)
	Performance(ctx context.Context, q SeriesQuery) (*Page[models.Performance], error)
	Indicator(ctx context.Context, kind indicator.Kind, period int, q SeriesQuery) (*IndicatorResult, error)
	MovingAverages(ctx context.Context, period int, q SeriesQuery) (*MovingAverages, error)
	HistoricalBars(ctx context.Context, q SeriesQuery) ([]models.Bar, models.DateRange, error)
}

type stockService struct {
	repo     storage.StocksRepository
	resolver *daterange.Resolver
}

func NewStockService(repo storage.StocksRepository, resolver *daterange.Resolver) StockService {
	return &stockService{repo: repo, resolver: resolver}
}

func (s *stockService) ListStocks(ctx context.Context, p validation.Pagination) (*Page[models.Stock], error) {
	var out Page[models.Stock]
	out.Pagination = p

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.Items, err = s.repo.ListStocks(gctx, p.Limit, p.Offset)
		return err
	})
	g.Go(func() (err error) {
		out.Total, err = s.repo.CountStocks(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("list stocks: %w", err)
	}
	return &out, nil
}

func (s *stockService) GetStock(ctx context.Context, symbol string) (*models.Stock, error) {
	st, err := s.repo.GetBySymbol(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("get stock %s: %w", symbol, err)
	}
	if st == nil {
		return nil, apperr.NotFound(MsgStockNotFound)
	}
	return st, nil
}

func (s *stockService) SearchStocks(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	f := storage.SearchFilter{Query: q.Query, FnO: q.FnO}
	if q.Pagination != nil {
		f.Limit, f.Offset = q.Pagination.Limit, q.Pagination.Offset
	}
	hits, err := s.repo.Search(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("search stocks: %w", err)
	}
	if len(hits) == 0 {
		return nil, apperr.NotFound(MsgNoMatches)
	}
	res := &SearchResult{Stocks: hits, Pagination: q.Pagination}
	if q.Pagination != nil {
		res.HasMore = len(hits) == q.Pagination.Limit
	}
	return res, nil
}

// scope resolves the stock id and the effective range of q.
func (s *stockService) scope(ctx context.Context, q SeriesQuery) (string, models.DateRange, error) {
	id, err := s.repo.StockID(ctx, q.Symbol)
	if err != nil {
		return "", models.DateRange{}, fmt.Errorf("stock id %s: %w", q.Symbol, err)
	}
	if id == "" {
		return "", models.DateRange{}, apperr.NotFound(MsgStockNotFound)
	}
	return id, s.resolver.Resolve(q.Start, q.End, q.Entitlement), nil
}

func (s *stockService) DailyBars(ctx context.Context, q SeriesQuery) (*Page[models.Bar], error) {
	id, rng, err := s.scope(ctx, q)
	if err != nil {
		return nil, err
	}
	out := Page[models.Bar]{Pagination: q.Pagination, Range: &rng}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.Items, err = s.repo.DailyBars(gctx, id, rng, q.Pagination.Limit, q.Pagination.Offset)
		return err
	})
	g.Go(func() (err error) {
		out.Total, err = s.repo.CountDaily(gctx, id, rng)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("daily bars %s: %w", q.Symbol, err)
	}
	return &out, nil
}

func (s *stockService) Performance(ctx context.Context, q SeriesQuery) (*Page[models.Performance], error) {
	id, rng, err := s.scope(ctx, q)
	if err != nil {
		return nil, err
	}
	out := Page[models.Performance]{Pagination: q.Pagination, Range: &rng}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.Items, err = s.repo.Performance(gctx, id, rng, q.Pagination.Limit, q.Pagination.Offset)
		return err
	})
	g.Go(func() (err error) {
		out.Total, err = s.repo.CountDaily(gctx, id, rng)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("performance %s: %w", q.Symbol, err)
	}
	return &out, nil
}

// closes loads the ascending close series of q, rejecting an empty range.
func (s *stockService) closes(ctx context.Context, q SeriesQuery) ([]decimal.Decimal, models.DateRange, error) {
	bars, rng, err := s.HistoricalBars(ctx, q)
	if err != nil {
		return nil, rng, err
	}
	return models.Closes(bars), rng, nil
}

func (s *stockService) Indicator(ctx context.Context, kind indicator.Kind, period int, q SeriesQuery) (*IndicatorResult, error) {
	prices, rng, err := s.closes(ctx, q)
	if err != nil {
		return nil, err
	}
	return &IndicatorResult{
		Kind:   kind,
		Values: collect(indicator.Compute(kind, prices, period)),
		Period: period,
		Range:  rng,
	}, nil
}

func (s *stockService) MovingAverages(ctx context.Context, period int, q SeriesQuery) (*MovingAverages, error) {
	prices, rng, err := s.closes(ctx, q)
	if err != nil {
		return nil, err
	}
	return &MovingAverages{
		SMA:    collect(indicator.SMA(prices, period)),
		EMA:    collect(indicator.EMA(prices, period)),
		Period: period,
		Range:  rng,
	}, nil
}

// HistoricalBars returns every bar of q's range, oldest first.
func (s *stockService) HistoricalBars(ctx context.Context, q SeriesQuery) ([]models.Bar, models.DateRange, error) {
	id, rng, err := s.scope(ctx, q)
	if err != nil {
		return nil, rng, err
	}
	bars, err := s.repo.FetchBars(ctx, id, rng)
	if err != nil {
		return nil, rng, fmt.Errorf("fetch bars %s: %w", q.Symbol, err)
	}
	if len(bars) == 0 {
		return nil, rng, apperr.NotFound(MsgNoHistory)
	}
	return bars, rng, nil
}

// collect materialises seq, never returning nil so it encodes as [].
func collect(seq iter.Seq[decimal.Decimal]) []decimal.Decimal {
	out := slices.Collect(seq)
	if out == nil {
		out = []decimal.Decimal{}
	}
	return out
}
