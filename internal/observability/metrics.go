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
			Namespace: "supctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "supctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)
	ctlRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supctl",
			Subsystem: "ctl_client",
			Name:      "requests_total",
			Help:      "Control gateway requests issued, by command kind and outcome.",
		},
		[]string{"kind", "result"},
	)
	ctlHandshake = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "supctl",
			Subsystem: "ctl_client",
			Name:      "handshake_duration_seconds",
			Help:      "Time from connect to handshake reply.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	gatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supctl",
			Subsystem: "ctl_gateway",
			Name:      "requests_total",
			Help:      "Control gateway requests served, by command kind and outcome.",
		},
		[]string{"kind", "result"},
	)
	selfUpdateChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supctl",
			Subsystem: "self_update",
			Name:      "checks_total",
			Help:      "Self-update checks, by outcome.",
		},
		[]string{"outcome"},
	)
	selfUpdateRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "supctl",
			Subsystem: "self_update",
			Name:      "restarts_total",
			Help:      "Self-update loops restarted after dying without a result.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			ctlRequests, ctlHandshake, gatewayRequests,
			selfUpdateChecks, selfUpdateRestarts,
		)
	})
}

func RecordHTTPRequest(service, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(service, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(service, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordCtlRequest(kind, result string) {
	RegisterMetrics()
	ctlRequests.WithLabelValues(kind, result).Inc()
}

func RecordCtlHandshake(duration time.Duration) {
	RegisterMetrics()
	ctlHandshake.Observe(duration.Seconds())
}

func RecordGatewayRequest(kind, result string) {
	RegisterMetrics()
	gatewayRequests.WithLabelValues(kind, result).Inc()
}

func RecordSelfUpdateCheck(outcome string) {
	RegisterMetrics()
	selfUpdateChecks.WithLabelValues(outcome).Inc()
}

func RecordSelfUpdateRestart() {
	RegisterMetrics()
	selfUpdateRestarts.Inc()
}
