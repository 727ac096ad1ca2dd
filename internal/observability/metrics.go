package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgelink",
			Subsystem: "admin",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edgelink",
			Subsystem: "admin",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	nodeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgelink",
			Subsystem: "node",
			Name:      "requests_total",
			Help:      "REST requests sent to audio nodes.",
		},
		[]string{"node", "method", "status"},
	)
	nodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edgelink",
			Subsystem: "node",
			Name:      "request_duration_seconds",
			Help:      "Node REST request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "status"},
	)
	nodeFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgelink",
			Subsystem: "node",
			Name:      "frames_total",
			Help:      "Inbound websocket frames by op; malformed frames use op=\"malformed\".",
		},
		[]string{"node", "op"},
	)
	nodeConnected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "edgelink",
			Subsystem: "node",
			Name:      "connected",
			Help:      "1 while the node websocket is open.",
		},
		[]string{"node"},
	)
	nodeReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgelink",
			Subsystem: "node",
			Name:      "reconnects_total",
			Help:      "Reconnect attempts scheduled by the node manager.",
		},
		[]string{"node"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			nodeRequests, nodeDuration,
			nodeFrames, nodeConnected, nodeReconnects,
		)
	})
}

// StatusTransportError labels requests that never got a status line.
const StatusTransportError = 0

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordNodeRequest(node, method string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	nodeRequests.WithLabelValues(node, method, statusLabel).Inc()
	nodeDuration.WithLabelValues(node, method, statusLabel).Observe(duration.Seconds())
}

func RecordFrame(node, op string) {
	RegisterMetrics()
	if op == "" {
		op = "unknown"
	}
	nodeFrames.WithLabelValues(node, op).Inc()
}

func SetNodeConnected(node string, connected bool) {
	RegisterMetrics()
	v := 0.0
	if connected {
		v = 1
	}
	nodeConnected.WithLabelValues(node).Set(v)
}

func RecordReconnect(node string) {
	RegisterMetrics()
	nodeReconnects.WithLabelValues(node).Inc()
}
