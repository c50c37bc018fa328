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
			Namespace: "lastping",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lastping",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	engineOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lastping",
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Liveness engine operations by outcome.",
		},
		[]string{"node", "op", "outcome"},
	)
	accountsRegistered = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "lastping",
			Subsystem: "registry",
			Name:      "accounts",
			Help:      "Registered accounts.",
		},
		[]string{"node"},
	)
	accountsExpired = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "lastping",
			Subsystem: "registry",
			Name:      "accounts_expired",
			Help:      "Accounts currently past their liveness window.",
		},
		[]string{"node"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			engineOperations,
			accountsRegistered,
			accountsExpired,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordEngineOperation counts one engine call; outcome is "ok" or the
// short rejection name ("not_owner", "not_expired", ...).
func RecordEngineOperation(node, op, outcome string) {
	RegisterMetrics()
	engineOperations.WithLabelValues(node, op, outcome).Inc()
}

// SetRegistryGauges publishes the heartbeat registry counts.
func SetRegistryGauges(node string, accounts, expired int) {
	RegisterMetrics()
	accountsRegistered.WithLabelValues(node).Set(float64(accounts))
	accountsExpired.WithLabelValues(node).Set(float64(expired))
}
