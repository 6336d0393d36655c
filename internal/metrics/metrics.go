// Package metrics holds the prometheus collectors of the ingestion,
// settlement and alerting paths plus the HTTP middleware of the ops API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "affiliates"
	httpNS    = "service"
	upstream  = "upstream"
)

var (
	IngestRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_runs_total",
			Help:      "Ingestion runs by campaign and outcome.",
		},
		[]string{"campaign", "outcome"},
	)

	IngestRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_rows_total",
			Help:      "Normalised rows handed to the reconciler.",
		},
		[]string{"campaign"},
	)

	IngestWarnings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_warnings_total",
			Help:      "Per-row warnings raised during ingestion.",
		},
		[]string{"campaign"},
	)

	IngestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Wall time of one ingestion run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"campaign"},
	)

	JobErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_errors_total",
			Help:      "Job-level failures by job and error kind.",
		},
		[]string{"job", "kind"},
	)

	FxSnapshots = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fx_snapshots_total",
			Help:      "FX updater outcomes (written, skipped, failed).",
		},
		[]string{"outcome"},
	)

	SettlementBills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_bills_total",
			Help:      "Bills written by the settlement engine by status.",
		},
		[]string{"status"},
	)

	ClickRows = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "click_backfill_rows_total",
			Help:      "Daily rows whose click count was filled.",
		},
	)

	AlertPosts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_posts_total",
			Help:      "Chat webhook posts by channel and outcome.",
		},
		[]string{"channel", "outcome"},
	)

	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: upstream,
			Name:      "request_duration_seconds",
			Help:      "Outbound HTTP latencies to bookmakers and the FX provider.",
		},
		[]string{"source", "status"},
	)

	reqCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: httpNS,
			Name:      "http_request_count_total",
			Help:      "Total number of HTTP requests made.",
		},
		[]string{"status", "endpoint", "method"},
	)

	reqDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: httpNS,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds.",
		},
		[]string{"status", "endpoint", "method"},
	)
)

func init() {
	prometheus.MustRegister(IngestRuns, IngestRows, IngestWarnings, IngestDuration, JobErrors,
		FxSnapshots, SettlementBills, ClickRows, AlertPosts, UpstreamDuration, reqCount, reqDuration)
}

// ObserveUpstream records one outbound request. status 0 means a transport
// failure.
func ObserveUpstream(source string, status int, start time.Time) {
	UpstreamDuration.WithLabelValues(source, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
}

// Middleware counts requests per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			endpoint = rc.RoutePattern()
		}
		status := strconv.Itoa(ww.Status())
		reqCount.WithLabelValues(status, endpoint, r.Method).Inc()
		reqDuration.WithLabelValues(status, endpoint, r.Method).Observe(time.Since(start).Seconds())
	})
}
