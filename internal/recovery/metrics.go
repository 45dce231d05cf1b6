package recovery

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsSink exports controller events as Prometheus metrics.
type MetricsSink struct {
	// EventsTotal counts events per operation, event and failure kind.
	EventsTotal *prometheus.CounterVec
	// Attempt tracks the retries consumed by each operation's controller.
	Attempt *prometheus.GaugeVec
	// Delay observes scheduled automatic retry delays.
	Delay *prometheus.HistogramVec
}

// NewMetricsSink registers recovery metrics on reg under namespace.
func NewMetricsSink(reg prometheus.Registerer, namespace string) *MetricsSink {
	f := promauto.With(reg)
	return &MetricsSink{
		EventsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recovery_events_total",
				Help:      "Total number of recovery controller events",
			},
			[]string{"operation", "event", "kind"},
		),
		Attempt: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "recovery_attempt",
				Help:      "Retries consumed by the operation's recovery controller",
			},
			[]string{"operation"},
		),
		Delay: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "recovery_delay_seconds",
				Help:      "Scheduled automatic retry delay in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
			},
			[]string{"operation", "kind"},
		),
	}
}

// Record updates the metrics for e.
func (m *MetricsSink) Record(e Event) {
	m.EventsTotal.WithLabelValues(e.Operation, string(e.Name), string(e.Kind)).Inc()

	switch e.Name {
	case EventDisposed:
		m.Attempt.DeleteLabelValues(e.Operation)
	case EventMisuse:
	default:
		m.Attempt.WithLabelValues(e.Operation).Set(float64(e.Attempt))
	}

	if e.Name == EventRetryScheduled {
		delay := time.Duration(e.DelayMs) * time.Millisecond
		m.Delay.WithLabelValues(e.Operation, string(e.Kind)).Observe(delay.Seconds())
	}
}
