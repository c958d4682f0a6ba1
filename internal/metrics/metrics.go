// Package metrics provides Prometheus instrumentation for the market ledger.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts committed trades, partitioned by type.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_trades_total",
		Help: "Total number of trades committed",
	}, []string{"type"})

	// TradeLatency tracks end-to-end trade execution latency.
	TradeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_trade_latency_seconds",
		Help:    "Trade execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	// TradeRejections counts rejected trades by reason.
	TradeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_trade_rejections_total",
		Help: "Trades rejected before commit",
	}, []string{"reason"})

	// CommitConflicts counts version-guard failures during commit.
	CommitConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_commit_conflicts_total",
		Help: "Commits that lost a version race and were retried",
	})

	// ContentionAborts counts executions that exhausted their retries.
	ContentionAborts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_contention_aborts_total",
		Help: "Trades abandoned after exhausting commit retries",
	})

	// IdempotentReplays counts requests answered from an idempotency record.
	IdempotentReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_idempotent_replays_total",
		Help: "Requests replayed from a committed or rejected idempotency record",
	})

	// IdempotencyPurged counts expired idempotency records swept.
	IdempotencyPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_idempotency_purged_total",
		Help: "Expired idempotency records removed by the sweeper",
	})

	// EventsDropped counts bus events dropped on slow subscribers.
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_events_dropped_total",
		Help: "Post-commit events dropped because a subscriber fell behind",
	})

	// ActiveMarkets tracks the number of markets in the ledger.
	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_active_markets",
		Help: "Number of markets",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
