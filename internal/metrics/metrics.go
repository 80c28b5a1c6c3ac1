package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the profile workflow.
type Metrics struct {
	ProfilesCreated  prometheus.Counter
	Transitions      *prometheus.CounterVec
	DocumentChanges  *prometheus.CounterVec
	RejectedRequests *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ProfilesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "intake_profiles_created_total",
			Help: "Total number of profiles created",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_profile_transitions_total",
			Help: "Profile status transitions by source and target status",
		}, []string{"from", "to"}),
		DocumentChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_document_changes_total",
			Help: "Document commit steps by operation and outcome",
		}, []string{"op", "result"}),
		RejectedRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_rejected_requests_total",
			Help: "Operations refused by the core, by error kind",
		}, []string{"kind"}),
	}
}

// IncProfilesCreated counts one new profile.
func (m *Metrics) IncProfilesCreated() {
	if m == nil {
		return
	}
	m.ProfilesCreated.Inc()
}

// ObserveTransition counts a status change.
func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

// ObserveDocumentChanges counts commit steps.
func (m *Metrics) ObserveDocumentChanges(op, result string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.DocumentChanges.WithLabelValues(op, result).Add(float64(n))
}

// ObserveRejection counts an operation refused with the given error kind.
func (m *Metrics) ObserveRejection(kind string) {
	if m == nil {
		return
	}
	m.RejectedRequests.WithLabelValues(kind).Inc()
}
