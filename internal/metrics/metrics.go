// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var queryBuckets = []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 20000}

var (
	QueriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geocover_region_queries_total",
		Help: "Region queries by source and result (ok, error)",
	}, []string{"source", "result"})
	QueryDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geocover_region_query_duration_ms",
		Help:    "Region query duration in milliseconds",
		Buckets: queryBuckets,
	}, []string{"source"})
	SummariesReturned = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geocover_region_query_summaries",
		Help:    "Station summaries returned per region query",
		Buckets: []float64{0, 1, 5, 10, 25, 49, 50, 75, 100},
	}, []string{"source"})
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geocover_cache_hits_total",
		Help: "Region responses served from redis",
	})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geocover_cache_misses_total",
		Help: "Region responses not found in redis",
	})
	BreakerState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "geocover_breaker_state",
		Help: "Region query circuit breaker state (0 closed, 1 open, 2 half-open)",
	})
	RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geocover_runs_total",
		Help: "Scrape runs by status (complete, failed, skipped)",
	}, []string{"status"})
	RunDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "geocover_run_duration_seconds",
		Help:    "Wall time of a full scrape run",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
	RunPoints = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "geocover_run_points",
		Help: "Points exported by the last run",
	})
	RunWarnings = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "geocover_run_warnings",
		Help: "Failed, malformed and forced regions in the last run",
	})
	SinkWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geocover_sink_writes_total",
		Help: "Sink writes by sink and result (ok, error)",
	}, []string{"sink", "result"})
)

func init() {
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(QueryDurationMs)
	prometheus.MustRegister(SummariesReturned)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(BreakerState)
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(RunDurationSeconds)
	prometheus.MustRegister(RunPoints)
	prometheus.MustRegister(RunWarnings)
	prometheus.MustRegister(SinkWritesTotal)
}

// Handler exposes the default registry.
func Handler() http.Handler { return promhttp.Handler() }

// Result maps an error to the "result" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
