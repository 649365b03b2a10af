package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "remo"

// Metrics holds the voting collectors. A nil *Metrics is valid and records
// nothing, which keeps services usable in tests without a registry.
type Metrics struct {
	registry *prometheus.Registry

	VotesCast      prometheus.Counter
	VoteRejections *prometheus.CounterVec
	CastDuration   prometheus.Histogram
	LifecycleHooks *prometheus.CounterVec
	SchedulerJobs  *prometheus.CounterVec
}

// New registers every collector on a private registry so repeated
// construction in tests never panics on duplicate registration.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		VotesCast: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_cast_total",
			Help:      "Total number of accepted votes",
		}),
		VoteRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "vote_rejections_total",
				Help:      "Votes rejected before any counter changed, by reason",
			},
			[]string{"reason"},
		),
		CastDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vote_cast_duration_seconds",
			Help:      "Histogram of vote cast latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
		}),
		LifecycleHooks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lifecycle_hooks_total",
				Help:      "Lifecycle hook invocations by hook and outcome",
			},
			[]string{"hook", "outcome"},
		),
		SchedulerJobs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduler_jobs_total",
				Help:      "Scheduled jobs processed by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
	}
}

// Registry exposes the underlying registry, mostly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) VoteAccepted(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.VotesCast.Inc()
	m.CastDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) VoteRejected(reason string) {
	if m == nil {
		return
	}
	m.VoteRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) Hook(hook, outcome string) {
	if m == nil {
		return
	}
	m.LifecycleHooks.WithLabelValues(hook, outcome).Inc()
}

func (m *Metrics) Job(kind, outcome string) {
	if m == nil {
		return
	}
	m.SchedulerJobs.WithLabelValues(kind, outcome).Inc()
}
