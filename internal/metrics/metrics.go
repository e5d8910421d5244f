package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics（開發伺服器）
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "udg_chat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "udg_chat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "udg_chat_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	// Push hub metrics（開發伺服器）
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "udg_chat_ws_connections",
			Help: "Currently open push websocket connections",
		},
	)

	WSBroadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "udg_chat_ws_broadcasts_total",
			Help: "Total push events broadcast to rooms",
		},
		[]string{"kind"},
	)

	// Chat client metrics
	ClientSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "udg_chat_client_sends_total",
			Help: "Total optimistic sends by result",
		},
		[]string{"result"}, // "sent", "failed", "upload_failed"
	)

	PushEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "udg_chat_push_events_total",
			Help: "Total push events received by the client",
		},
		[]string{"kind", "outcome"}, // outcome: "applied", "duplicate", "ignored", "malformed"
	)

	PushReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "udg_chat_push_reconnect_attempts_total",
			Help: "Total push reconnect attempts",
		},
	)
)
