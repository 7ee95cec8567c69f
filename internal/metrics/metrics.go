// Package metrics holds the Prometheus collectors for the chat gateway and
// the HTTP surface.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions is the number of users with a live connection on this instance.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ridematch_ws_active_sessions",
		Help: "Users with a live websocket session on this instance",
	})

	// FramesTotal counts inbound gateway frames by type.
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ridematch_ws_frames_total",
			Help: "Inbound websocket frames by message type",
		},
		[]string{"type"},
	)

	// ProtocolErrorsTotal counts error frames sent back to clients.
	ProtocolErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ridematch_ws_protocol_errors_total",
			Help: "Error frames sent to clients by reason",
		},
		[]string{"reason"},
	)

	BroadcastsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ridematch_ws_broadcasts_total",
		Help: "Room broadcasts performed",
	})

	// SendFailuresTotal counts per-connection send failures, each of which
	// tears the session down.
	SendFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ridematch_ws_send_failures_total",
		Help: "Per-connection send failures including timeouts",
	})

	SessionsReplacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ridematch_ws_sessions_replaced_total",
		Help: "Sessions evicted by a newer registration for the same user",
	})

	// StatusSyncTotal counts presence writes by status and result
	// (ok, skipped, error).
	StatusSyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ridematch_status_sync_total",
			Help: "Presence status writes by status and result",
		},
		[]string{"status", "result"},
	)

	StatusQueueDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ridematch_status_queue_dropped_total",
		Help: "Presence status jobs dropped because the queue was full",
	})

	PresenceRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ridematch_presence_refresh_total",
			Help: "Shared presence TTL refresh rounds by result",
		},
		[]string{"result"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ridematch_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and status code",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// ObserveHTTP records one finished HTTP request.
func ObserveHTTP(method, route, status string, elapsed time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, status).Observe(elapsed.Seconds())
}
