package api

import (
	"github.com/gin-gonic/gin"
	"github.com/guttosm/stockmeter/internal/daterange"
	"github.com/guttosm/stockmeter/internal/indicator"
	"github.com/guttosm/stockmeter/internal/middleware"
	"github.com/guttosm/stockmeter/internal/service"
	"github.com/guttosm/stockmeter/internal/validation"
)

// Request parsers shared by the handlers and the pre-admission checks.
// They read only the request, never a store, so running them twice is safe.

func pageParams(c *gin.Context, maxLimit int) (validation.Pagination, error) {
	return validation.ParsePagination(c.Query("page"), c.Query("limit"), maxLimit)
}

func symbolParam(c *gin.Context) (string, error) {
	return validation.ParseSymbol(c.Param("symbol"))
}

func periodParam(c *gin.Context, kind indicator.Kind) (int, error) {
	return validation.ParsePeriod(c.Query("period"), kind.DefaultPeriod())
}

// searchParams pages the search only when page or limit is given.
func searchParams(c *gin.Context) (service.SearchQuery, error) {
	query, present := c.GetQuery("query")
	if present && validation.IsBlank(query) {
		return service.SearchQuery{}, validation.ErrBlankQuery
	}

	q := service.SearchQuery{Query: query, FnO: validation.ParseOptionalBool(c.Query("isFoEligible"))}
	if c.Query("page") != "" || c.Query("limit") != "" {
		p, err := pageParams(c, validation.MaxListLimit)
		if err != nil {
			return service.SearchQuery{}, err
		}
		q.Pagination = &p
	}
	return q, nil
}

// seriesParams parses the symbol and date bounds shared by every
// date-bounded endpoint. Pagination is parsed only for paged listings.
// The entitlement is left for the handler to attach.
func seriesParams(c *gin.Context, paged bool) (service.SeriesQuery, error) {
	symbol, err := symbolParam(c)
	if err != nil {
		return service.SeriesQuery{}, err
	}
	start, end, err := daterange.ParseBounds(c.Query("startDate"), c.Query("endDate"))
	if err != nil {
		return service.SeriesQuery{}, err
	}

	q := service.SeriesQuery{Symbol: symbol, Start: start, End: end}
	if paged {
		if q.Pagination, err = pageParams(c, validation.MaxSeriesLimit); err != nil {
			return service.SeriesQuery{}, err
		}
	}
	return q, nil
}

// check rejects the request with the first parse error. It is mounted ahead
// of Admission so a malformed request never consumes quota and is not
// audited.
func check(parse func(*gin.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := parse(c); err != nil {
			middleware.WriteError(c, err)
			return
		}
		c.Next()
	}
}

var (
	checkList = check(func(c *gin.Context) error {
		_, err := pageParams(c, validation.MaxListLimit)
		return err
	})
	checkSearch = check(func(c *gin.Context) error {
		_, err := searchParams(c)
		return err
	})
	checkSymbol = check(func(c *gin.Context) error {
		_, err := symbolParam(c)
		return err
	})
	checkPagedSeries = check(func(c *gin.Context) error {
		_, err := seriesParams(c, true)
		return err
	})
	checkSeries = check(func(c *gin.Context) error {
		_, err := seriesParams(c, false)
		return err
	})
)

// checkIndicator validates the period of kind, then the series bounds.
func checkIndicator(kind indicator.Kind) gin.HandlerFunc {
	return check(func(c *gin.Context) error {
		if _, err := periodParam(c, kind); err != nil {
			return err
		}
		_, err := seriesParams(c, false)
		return err
	})
}
