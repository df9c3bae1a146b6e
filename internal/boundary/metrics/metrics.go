package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the boundary filters. Counts only:
// dropped and stripped *content* is never recorded, only how much of it
// there was, so compliance dashboards work without creating a new leak path.
type Metrics struct {
	// Terms stripped or substituted by the abstraction filter.
	TermsFiltered *prometheus.CounterVec

	// Labels dropped by allow-list intersection, per isolation category.
	LabelsDropped *prometheus.CounterVec

	// Outputs that failed a safety check, per filter and reason.
	UnsafeOutputs *prometheus.CounterVec

	// Queries rejected by the anonymizer, per detected category.
	QueriesRejected *prometheus.CounterVec
}

// New creates a Metrics instance with all boundary metrics registered.
func New() *Metrics {
	return &Metrics{
		TermsFiltered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attune_boundary_terms_filtered_total",
			Help: "Clinical terms removed or substituted by the abstraction filter",
		}, []string{"action"}), // action: "removed", "substituted"

		LabelsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attune_boundary_labels_dropped_total",
			Help: "Labels dropped by allow-list intersection during isolation",
		}, []string{"category"}),

		UnsafeOutputs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attune_boundary_unsafe_outputs_total",
			Help: "Filter outputs that failed a safety check and were withheld",
		}, []string{"filter", "reason"}),

		QueriesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attune_boundary_queries_rejected_total",
			Help: "Research queries rejected by the anonymizer",
		}, []string{"category"}),
	}
}

// IncTermsFiltered records removed or substituted terms.
func (m *Metrics) IncTermsFiltered(action string, n int) {
	if m != nil && n > 0 {
		m.TermsFiltered.WithLabelValues(action).Add(float64(n))
	}
}

// IncLabelsDropped records allow-list drops for one isolation category.
func (m *Metrics) IncLabelsDropped(category string, n int) {
	if m != nil && n > 0 {
		m.LabelsDropped.WithLabelValues(category).Add(float64(n))
	}
}

// IncUnsafeOutput records a withheld filter output.
func (m *Metrics) IncUnsafeOutput(filter, reason string) {
	if m != nil {
		m.UnsafeOutputs.WithLabelValues(filter, reason).Inc()
	}
}

// IncQueryRejected records an anonymizer rejection.
func (m *Metrics) IncQueryRejected(category string) {
	if m != nil {
		m.QueriesRejected.WithLabelValues(category).Inc()
	}
}
