package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "faultline"

// DeliveryMetrics holds the Prometheus metrics of the reporting client.
type DeliveryMetrics struct {
	ReportsTotal  *prometheus.CounterVec
	ReplayedTotal prometheus.Counter
	SpoolDepth    prometheus.Gauge
}

// NewDeliveryMetrics creates the client metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewDeliveryMetrics(reg prometheus.Registerer) *DeliveryMetrics {
	factory := promauto.With(reg)
	return &DeliveryMetrics{
		ReportsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "reports_total",
			Help:      "Total number of reports handled by the delivery manager by outcome.",
		}, []string{"outcome"}), // outcome: sent, spilled, dropped
		ReplayedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "replayed_total",
			Help:      "Total number of spooled reports taken out of the spool for replay.",
		}),
		SpoolDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "spool",
			Name:      "items",
			Help:      "Number of reports currently waiting in the spool.",
		}),
	}
}

// CollectorMetrics holds the Prometheus metrics of the collector service.
type CollectorMetrics struct {
	ReportsTotal      *prometheus.CounterVec
	BytesTotal        prometheus.Counter
	APIKeyCacheHits   prometheus.Counter
	APIKeyCacheMisses prometheus.Counter
	ConsumedTotal     *prometheus.CounterVec
}

// NewCollectorMetrics creates the collector metrics and registers them with reg.
func NewCollectorMetrics(reg prometheus.Registerer) *CollectorMetrics {
	factory := promauto.With(reg)
	return &CollectorMetrics{
		ReportsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "reports_total",
			Help:      "Total number of received reports by status.",
		}, []string{"status"}), // status: accepted, error_parse, error_size, error_buffer, error_media_type
		BytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "bytes_total",
			Help:      "Total number of report bytes accepted.",
		}),
		APIKeyCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "api_key_cache_hits_total",
			Help:      "Total number of API key cache hits.",
		}),
		APIKeyCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "api_key_cache_misses_total",
			Help:      "Total number of API key cache misses.",
		}),
		ConsumedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "reports_total",
			Help:      "Total number of reports drained from the buffer by result.",
		}, []string{"result"}), // result: stored, dead_lettered
	}
}
