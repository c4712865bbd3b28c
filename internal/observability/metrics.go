package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dunapp_alert"

// Metrics holds the Prometheus counters, histograms, and gauges for the alert service.
type Metrics struct {
	AlertRuns            *prometheus.CounterVec // labels: outcome={below_threshold,cooldown,dispatched,no_subscribers,failed}
	AlertRunDuration     prometheus.Histogram
	CurrentLevel         *prometheus.GaugeVec   // labels: station
	Notifications        *prometheus.CounterVec // labels: status={sent,failed,skipped}
	SubscriptionsExpired prometheus.Counter
	DispatchDuration     prometheus.Histogram
	EventsPublished      *prometheus.CounterVec // labels: result={success,error}
}

func newMetrics() *Metrics {
	return &Metrics{
		AlertRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Alert runs by outcome.",
		}, []string{"outcome"}),
		AlertRunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete evaluate-gate-dispatch run.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		CurrentLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "water_level_cm",
			Help:      "Most recent water level evaluated per station.",
		}, []string{"station"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Push deliveries by status.",
		}, []string{"status"}),
		SubscriptionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriptions_expired_total",
			Help:      "Subscriptions disabled after the push service answered 410 Gone.",
		}),
		DispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of a full fan-out to all eligible subscriptions.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Alert events written to Kafka by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.AlertRuns,
		m.AlertRunDuration,
		m.CurrentLevel,
		m.Notifications,
		m.SubscriptionsExpired,
		m.DispatchDuration,
		m.EventsPublished,
	}
}

// NewMetrics creates and registers all alert metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}
