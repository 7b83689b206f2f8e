package observability

import (
	"context"

	"github.com/aretw0/journey/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values of the invocations counter.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeDropped = "dropped"
)

// Metrics holds the collectors for one engine.
type Metrics struct {
	Firings     *prometheus.CounterVec
	Invocations *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
	InFlight    *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Firings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "journey_source_firings_total",
				Help: "Total number of trigger source firings",
			},
			[]string{"source"},
		),
		Invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "journey_activity_invocations_total",
				Help: "Activity invocations by outcome (ok, failed, dropped)",
			},
			[]string{"activity", "outcome"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "journey_activity_duration_seconds",
				Help:    "Duration of activity handler executions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"activity"},
		),
		InFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "journey_activity_in_flight",
				Help: "Activity invocations currently holding their lock",
			},
			[]string{"activity"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Firings, m.Invocations, m.Duration, m.InFlight)
	}
	return m
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnFire: func(_ context.Context, e *domain.FireEvent) {
			m.Firings.WithLabelValues(e.Source).Inc()
		},
		OnActivityStart: func(_ context.Context, e *domain.ActivityEvent) {
			m.InFlight.WithLabelValues(e.Activity).Inc()
		},
		OnActivityDone: func(_ context.Context, e *domain.ActivityEvent) {
			m.finish(e, OutcomeOK)
		},
		OnHandlerFailure: func(_ context.Context, e *domain.ActivityEvent) {
			m.finish(e, OutcomeFailed)
		},
		OnDrop: func(_ context.Context, e *domain.ActivityEvent) {
			m.Invocations.WithLabelValues(e.Activity, OutcomeDropped).Inc()
		},
	}
}

func (m *Metrics) finish(e *domain.ActivityEvent, outcome string) {
	m.InFlight.WithLabelValues(e.Activity).Dec()
	m.Invocations.WithLabelValues(e.Activity, outcome).Inc()
	m.Duration.WithLabelValues(e.Activity).Observe(e.Duration.Seconds())
}
