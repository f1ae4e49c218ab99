// Package metrics provides observability for the criteria registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks criterion definition changes and their cascades.
type Metrics struct {
	// Criterion saves by operation ("create", "update")
	CriterionSaves *prometheus.CounterVec

	// Duration of the rule-change cascade across evaluations
	CascadeDuration prometheus.Histogram
}

// New creates a Metrics instance with all criteria metrics registered.
func New() *Metrics {
	return &Metrics{
		CriterionSaves: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "amparo_criteria_saves_total",
			Help: "Total criterion definition saves by operation",
		}, []string{"operation"}),

		CascadeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "amparo_criteria_cascade_duration_seconds",
			Help:    "Duration of rule-change cascades across all evaluations",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
	}
}

// IncrementSave records a criterion save.
func (m *Metrics) IncrementSave(operation string) {
	if m != nil {
		m.CriterionSaves.WithLabelValues(operation).Inc()
	}
}

// ObserveCascadeDuration records how long a rule-change cascade took.
func (m *Metrics) ObserveCascadeDuration(d time.Duration) {
	if m != nil {
		m.CascadeDuration.Observe(d.Seconds())
	}
}
