// Package metrics holds the Prometheus collectors of the service.
//
// HTTP collectors are labelled by method, registered gin route and status.
// Reconciliation collectors are labelled by chain id and strategy name; both
// label sets stay small.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solvere_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solvere_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// PaymentsRecorded counts subscription payments appended to the activity log.
	PaymentsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solvere_payments_recorded_total",
			Help: "Subscription payments appended to the activity log.",
		},
		[]string{"chain_id", "strategy"},
	)

	// PaymentsDuplicate counts payments skipped because they were already stored.
	PaymentsDuplicate = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solvere_payments_duplicate_total",
			Help: "Subscription payments skipped as duplicates.",
		},
		[]string{"chain_id", "strategy"},
	)

	// ReconcileErrors counts subscriptions whose reconciliation failed in a pass.
	ReconcileErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solvere_reconcile_errors_total",
			Help: "Subscriptions that failed to reconcile.",
		},
		[]string{"chain_id", "strategy"},
	)

	// ReconcileDuration observes the duration of whole reconciliation passes.
	ReconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solvere_reconcile_duration_seconds",
			Help:    "Duration of reconciliation passes in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain_id", "strategy"},
	)

	// BundlerRequests counts bundler JSON-RPC calls by method and outcome.
	BundlerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solvere_bundler_requests_total",
			Help: "Bundler JSON-RPC requests.",
		},
		[]string{"method", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, PaymentsRecorded, PaymentsDuplicate, ReconcileErrors, ReconcileDuration, BundlerRequests)
}

// ChainLabel renders a chain id as a label value.
func ChainLabel(chainID int64) string {
	return strconv.FormatInt(chainID, 10)
}

// Middleware instruments gin requests. The path label is the registered route,
// or the raw path when nothing matched.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method
		httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
