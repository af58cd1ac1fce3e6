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
			Namespace: "adbtp",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "adbtp",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	protocolMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adbtp",
			Subsystem: "protocol",
			Name:      "messages_total",
			Help:      "Messages read or written by a protocol.",
		},
		[]string{"variant", "direction"},
	)
	protocolBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adbtp",
			Subsystem: "protocol",
			Name:      "bytes_total",
			Help:      "Header and payload bytes moved by a protocol.",
		},
		[]string{"variant", "direction"},
	)
	protocolErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adbtp",
			Subsystem: "protocol",
			Name:      "errors_total",
			Help:      "Failed protocol operations by error kind.",
		},
		[]string{"variant", "direction", "kind"},
	)
	protocolGraceOverage = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adbtp",
			Subsystem: "protocol",
			Name:      "grace_overage_total",
			Help:      "Payload steps that ran on the grace overage after the budget was spent.",
		},
		[]string{"direction"},
	)
	protocolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "adbtp",
			Subsystem: "protocol",
			Name:      "operation_duration_seconds",
			Help:      "Duration of successful protocol reads and writes in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"variant", "direction"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			protocolMessages,
			protocolBytes,
			protocolErrors,
			protocolGraceOverage,
			protocolDuration,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordProtocolMessage(variant, direction string, bytes int, duration time.Duration) {
	RegisterMetrics()
	protocolMessages.WithLabelValues(variant, direction).Inc()
	protocolBytes.WithLabelValues(variant, direction).Add(float64(bytes))
	protocolDuration.WithLabelValues(variant, direction).Observe(duration.Seconds())
}

func RecordProtocolError(variant, direction, kind string) {
	RegisterMetrics()
	protocolErrors.WithLabelValues(variant, direction, kind).Inc()
}

func RecordGraceOverage(direction string) {
	RegisterMetrics()
	protocolGraceOverage.WithLabelValues(direction).Inc()
}
