// Package metrics exposes Prometheus metrics for admissions, audits, HTTP
// responses and bar ingestion.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const barsIngestedName = "stockmeter_bars_ingested_total"

// Collector holds the stockmeter metrics. It satisfies gateway.Observer.
type Collector struct {
	admissions    *prometheus.CounterVec
	auditFailures prometheus.Counter
	quotaLatency  prometheus.Histogram
	httpStatus    *prometheus.CounterVec
	barsIngested  *prometheus.CounterVec
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockmeter_admissions_total",
			Help: "Admission decisions by outcome.",
		}, []string{"outcome"}),
		auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockmeter_audit_failures_total",
			Help: "Request log writes that failed.",
		}),
		quotaLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stockmeter_quota_latency_seconds",
			Help:    "Latency of quota check-and-increment calls.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockmeter_http_responses_total",
			Help: "HTTP responses by status code.",
		}, []string{"status_code"}),
		barsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: barsIngestedName,
			Help: "Daily bars loaded by the ingestion job, by symbol.",
		}, []string{"symbol"}),
	}

	reg.MustRegister(
		c.admissions,
		c.auditFailures,
		c.quotaLatency,
		c.httpStatus,
		c.barsIngested,
	)
	return c
}

func (c *Collector) ObserveAdmission(outcome string) {
	c.admissions.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObserveQuotaLatency(d time.Duration) {
	c.quotaLatency.Observe(d.Seconds())
}

func (c *Collector) AuditFailed() {
	c.auditFailures.Inc()
}

// RecordHTTPStatus counts one response with the given status code.
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordBarsIngested adds n loaded bars for symbol.
func (c *Collector) RecordBarsIngested(symbol string, n int) {
	c.barsIngested.WithLabelValues(symbol).Add(float64(n))
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// BarsIngested reads the per-symbol totals of the bars-ingested counter from
// gatherer. Symbols that loaded nothing are absent.
func BarsIngested(gatherer prometheus.Gatherer) (map[string]int, error) {
	families, err := gatherer.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather: %w", err)
	}
	totals := map[string]int{}
	for _, mf := range families {
		if mf.GetName() != barsIngestedName {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "symbol" {
					totals[lp.GetValue()] = int(m.GetCounter().GetValue())
				}
			}
		}
	}
	return totals, nil
}
