// Package metrics provides observability for the evaluation workflow.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks review workflow activity.
type Metrics struct {
	// Review outcomes by final status ("approved", "rejected")
	Finalizations *prometheus.CounterVec

	// Lock events by kind ("acquired", "stolen", "released", "transferred", "denied")
	LockEvents *prometheus.CounterVec

	// Links created by criterion association runs
	LinksCreated prometheus.Counter

	// Duration of association runs
	AssociateDuration prometheus.Histogram

	// Evaluations flipped by threshold reclassification, by direction
	Reclassifications *prometheus.CounterVec
}

// New creates a Metrics instance with all evaluation metrics registered.
func New() *Metrics {
	return &Metrics{
		Finalizations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "amparo_evaluation_finalizations_total",
			Help: "Total evaluation finalizations by outcome",
		}, []string{"status"}),

		LockEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "amparo_evaluation_lock_events_total",
			Help: "Total review lock events by kind",
		}, []string{"kind"}),

		LinksCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "amparo_evaluation_links_created_total",
			Help: "Total criterion links created by association runs",
		}),

		AssociateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "amparo_evaluation_associate_duration_seconds",
			Help:    "Duration of criterion association runs",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),

		Reclassifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "amparo_evaluation_reclassifications_total",
			Help: "Total evaluations flipped by threshold reclassification",
		}, []string{"direction"}), // direction: "approved_to_rejected", "rejected_to_approved"
	}
}

// IncrementFinalization records a finalization outcome.
func (m *Metrics) IncrementFinalization(status string) {
	if m != nil {
		m.Finalizations.WithLabelValues(status).Inc()
	}
}

// IncrementLockEvent records a lock event.
func (m *Metrics) IncrementLockEvent(kind string) {
	if m != nil {
		m.LockEvents.WithLabelValues(kind).Inc()
	}
}

// AddLinksCreated records links created by an association run.
func (m *Metrics) AddLinksCreated(count int) {
	if m != nil && count > 0 {
		m.LinksCreated.Add(float64(count))
	}
}

// ObserveAssociateDuration records the duration of an association run.
func (m *Metrics) ObserveAssociateDuration(d time.Duration) {
	if m != nil {
		m.AssociateDuration.Observe(d.Seconds())
	}
}

// AddReclassifications records evaluations flipped by a threshold change.
func (m *Metrics) AddReclassifications(direction string, count int) {
	if m != nil && count > 0 {
		m.Reclassifications.WithLabelValues(direction).Add(float64(count))
	}
}
