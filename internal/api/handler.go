package api

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/guttosm/stockmeter/internal/domain/apperr"
	"github.com/guttosm/stockmeter/internal/domain/dto"
	"github.com/guttosm/stockmeter/internal/domain/models"
	"github.com/guttosm/stockmeter/internal/indicator"
	"github.com/guttosm/stockmeter/internal/middleware"
	"github.com/guttosm/stockmeter/internal/service"
	"github.com/guttosm/stockmeter/internal/validation"
)

const csvHeader = "Date,Open,High,Low,Close,Volume"

// errNoEntitlement means a date-bounded route was mounted without Admission.
var errNoEntitlement = errors.New("entitlement missing from request context")

// Handler provides the HTTP handlers behind /api/v1/stocks.
//
// Responsibilities:
//   - Validate path and query parameters before any store or engine call
//   - Delegate to the stock service with the caller's entitlement
//   - Translate results into response DTOs
//
// Every failure is rendered by middleware.WriteError.
type Handler struct {
	svc service.StockService
}

// NewHandler constructs a Handler around the stock service.
func NewHandler(svc service.StockService) *Handler {
	return &Handler{svc: svc}
}

// ListStocks godoc
// @Summary      List stocks
// @Description  Returns the stock catalogue ordered by name
// @Tags         stocks
// @Produce      json
// @Security     ApiKeyAuth
// @Param        page   query     int  false  "Page number"  default(1)
// @Param        limit  query     int  false  "Page size (max 100)"  default(20)
// @Success      200    {object}  dto.Envelope[[]models.Stock]
// @Failure      400    {object}  dto.ErrorResponse
// @Failure      401    {object}  dto.ErrorResponse
// @Failure      429    {object}  dto.ErrorResponse
// @Router       /api/v1/stocks [get]
func (h *Handler) ListStocks(c *gin.Context) {
	p, err := pageParams(c, validation.MaxListLimit)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}

	page, err := h.svc.ListStocks(c.Request.Context(), p)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.OK("Stocks retrieved successfully", page.Items).WithPage(pageInfo(page.Pagination, page.Total)))
}

// GetStock godoc
// @Summary      Get a stock
// @Tags         stocks
// @Produce      json
// @Security     ApiKeyAuth
// @Param        symbol  path      string  true  "Ticker symbol"  example(RELIANCE)
// @Success      200     {object}  dto.Envelope[models.Stock]
// @Failure      400     {object}  dto.ErrorResponse
// @Failure      404     {object}  dto.ErrorResponse
// @Router       /api/v1/stocks/{symbol} [get]
func (h *Handler) GetStock(c *gin.Context) {
	symbol, err := symbolParam(c)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}

	st, err := h.svc.GetStock(c.Request.Context(), symbol)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.OK("Stock retrieved successfully", st))
}

// SearchStocks godoc
// @Summary      Search stocks
// @Description  Matches name, symbol, industry or ISIN. Pagination applies only when page or limit is given.
// @Tags         stocks
// @Produce      json
// @Security     ApiKeyAuth
// @Param        query         query     string  false  "Search text"
// @Param        isFoEligible  query     bool    false  "Only F&O eligible (true) or ineligible (false) stocks"
// @Param        page          query     int     false  "Page number"
// @Param        limit         query     int     false  "Page size (max 100)"
// @Success      200           {object}  dto.Envelope[dto.SearchResponse]
// @Failure      400           {object}  dto.ErrorResponse
// @Failure      404           {object}  dto.ErrorResponse
// @Router       /api/v1/stocks/search [get]
func (h *Handler) SearchStocks(c *gin.Context) {
	q, err := searchParams(c)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}

	res, err := h.svc.SearchStocks(c.Request.Context(), q)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}

	body := dto.SearchResponse{Stocks: res.Stocks}
	if res.Pagination != nil {
		hasMore := res.HasMore
		body.Pagination = &dto.PageInfo{Page: res.Pagination.Page, Limit: res.Pagination.Limit, HasMore: &hasMore}
	}
	c.JSON(http.StatusOK, dto.OK(fmt.Sprintf("Found %d stocks matching your criteria", len(res.Stocks)), body))
}

// DailyBars godoc
// @Summary      Daily bars
// @Description  Newest first, clamped to the plan's data range
// @Tags         stocks
// @Produce      json
// @Security     ApiKeyAuth
// @Param        symbol     path      string  true   "Ticker symbol"
// @Param        startDate  query     string  false  "YYYY-MM-DD or RFC 3339"
// @Param        endDate    query     string  false  "YYYY-MM-DD or RFC 3339"
// @Param        page       query     int     false  "Page number"
// @Param        limit      query     int     false  "Page size (max 500)"
// @Success      200        {object}  dto.Envelope[[]dto.BarResponse]
// @Failure      400        {object}  dto.ErrorResponse
// @Failure      403        {object}  dto.ErrorResponse
// @Failure      404        {object}  dto.ErrorResponse
// @Router       /api/v1/stocks/{symbol}/daily [get]
func (h *Handler) DailyBars(c *gin.Context) {
	q, err := seriesQuery(c, true)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}

	page, err := h.svc.DailyBars(c.Request.Context(), q)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.OK("Daily data retrieved successfully", dto.NewBars(page.Items)).WithPage(pageInfo(page.Pagination, page.Total)))
}

// Performance godoc
// @Summary      Daily performance
// @Description  Open to close percentage change per day, newest first
// @Tags         stocks
// @Produce      json
// @Security     ApiKeyAuth
// @Param        symbol     path      string  true   "Ticker symbol"
// @Param        startDate  query     string  false  "YYYY-MM-DD or RFC 3339"
// @Param        endDate    query     string  false  "YYYY-MM-DD or RFC 3339"
// @Param        page       query     int     false  "Page number"
// @Param        limit      query     int     false  "Page size (max 500)"
// @Success      200        {object}  dto.Envelope[[]dto.PerformanceResponse]
// @Failure      400        {object}  dto.ErrorResponse
// @Failure      404        {object}  dto.ErrorResponse
// @Router       /api/v1/stocks/performance/{symbol} [get]
func (h *Handler) Performance(c *gin.Context) {
	q, err := seriesQuery(c, true)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}

	page, err := h.svc.Performance(c.Request.Context(), q)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.OK("Stock performance retrieved successfully", dto.NewPerformance(page.Items)).WithPage(pageInfo(page.Pagination, page.Total)))
}

// Indicator returns the handler for one indicator kind.
//
// @Summary      Technical indicator
// @Description  SMA, EMA or RSI over daily closes. Period defaults to 14 for RSI and 20 otherwise.
// @Tags         indicators
// @Produce      json
// @Security     ApiKeyAuth
// @Param        symbol     path      string  true   "Ticker symbol"
// @Param        period     query     int     false  "Look-back period"
// @Param        startDate  query     string  false  "YYYY-MM-DD or RFC 3339"
// @Param        endDate    query     string  false  "YYYY-MM-DD or RFC 3339"
// @Success      200        {object}  dto.Envelope[dto.IndicatorResponse]
// @Failure      400        {object}  dto.ErrorResponse
// @Failure      404        {object}  dto.ErrorResponse
// @Router       /api/v1/stocks/sma/{symbol} [get]
// @Router       /api/v1/stocks/ema/{symbol} [get]
// @Router       /api/v1/stocks/rsi/{symbol} [get]
func (h *Handler) Indicator(kind indicator.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		period, err := periodParam(c, kind)
		if err != nil {
			middleware.WriteError(c, err)
			return
		}
		q, err := seriesQuery(c, false)
		if err != nil {
			middleware.WriteError(c, err)
			return
		}

		res, err := h.svc.Indicator(c.Request.Context(), kind, period, q)
		if err != nil {
			middleware.WriteError(c, err)
			return
		}

		c.JSON(http.StatusOK, dto.OK(
			fmt.Sprintf("%s for %s calculated successfully", kind.Label(), q.Symbol),
			dto.IndicatorResponse{
				Values:    dto.Prices(res.Values),
				Period:    res.Period,
				DateRange: dto.NewDateRange(res.Range),
			},
		))
	}
}

// MovingAverages godoc
// @Summary      SMA and EMA
// @Tags         indicators
// @Produce      json
// @Security     ApiKeyAuth
// @Param        symbol     path      string  true   "Ticker symbol"
// @Param        period     query     int     false  "Look-back period"  default(20)
// @Param        startDate  query     string  false  "YYYY-MM-DD or RFC 3339"
// @Param        endDate    query     string  false  "YYYY-MM-DD or RFC 3339"
// @Success      200        {object}  dto.Envelope[dto.MovingAveragesResponse]
// @Failure      400        {object}  dto.ErrorResponse
// @Failure      404        {object}  dto.ErrorResponse
// @Router       /api/v1/stocks/moving-averages/{symbol} [get]
func (h *Handler) MovingAverages(c *gin.Context) {
	period, err := periodParam(c, indicator.KindSMA)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	q, err := seriesQuery(c, false)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}

	res, err := h.svc.MovingAverages(c.Request.Context(), period, q)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(
		fmt.Sprintf("Moving averages for %s calculated successfully", q.Symbol),
		dto.MovingAveragesResponse{
			SMA:       dto.Prices(res.SMA),
			EMA:       dto.Prices(res.EMA),
			Period:    res.Period,
			DateRange: dto.NewDateRange(res.Range),
		},
	))
}

// DownloadHistory godoc
// @Summary      Download daily bars as CSV
// @Description  Oldest first, clamped to the plan's data range
// @Tags         stocks
// @Produce      text/csv
// @Security     ApiKeyAuth
// @Param        symbol     path      string  true   "Ticker symbol"
// @Param        startDate  query     string  false  "YYYY-MM-DD or RFC 3339"
// @Param        endDate    query     string  false  "YYYY-MM-DD or RFC 3339"
// @Success      200        {file}    file
// @Failure      404        {object}  dto.ErrorResponse
// @Router       /api/v1/stocks/download/{symbol} [get]
func (h *Handler) DownloadHistory(c *gin.Context) {
	q, err := seriesQuery(c, false)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}

	bars, _, err := h.svc.HistoricalBars(c.Request.Context(), q)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_historical_data.csv"`, q.Symbol))
	c.Status(http.StatusOK)
	if err := writeCSV(c.Writer, bars); err != nil {
		// headers are gone; the truncated body is all the client gets
		_ = c.Error(err)
	}
}

func writeCSV(w http.ResponseWriter, bars []models.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(strings.Split(csvHeader, ",")); err != nil {
		return err
	}
	for _, b := range dto.NewBars(bars) {
		rec := []string{b.Date, b.Open.String(), b.High.String(), b.Low.String(), b.Close.String(), b.Volume.String()}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// seriesQuery parses the series parameters and attaches the entitlement
// stored by Admission.
func seriesQuery(c *gin.Context, paged bool) (service.SeriesQuery, error) {
	ent, ok := middleware.EntitlementFrom(c)
	if !ok {
		return service.SeriesQuery{}, apperr.Wrap(apperr.KindInternal, "Internal server error", errNoEntitlement)
	}
	q, err := seriesParams(c, paged)
	if err != nil {
		return service.SeriesQuery{}, err
	}
	q.Entitlement = ent
	return q, nil
}

func pageInfo(p validation.Pagination, total int) dto.PageInfo {
	return dto.PageInfo{Page: p.Page, Limit: p.Limit, Total: &total}
}
