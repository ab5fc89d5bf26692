package metrics

import "github.com/prometheus/client_golang/prometheus"

// Transition outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// LoanMetrics counts lifecycle transitions and sweep results.
type LoanMetrics struct {
	transitions *prometheus.CounterVec
	swept       *prometheus.CounterVec
}

func NewLoanMetrics(reg prometheus.Registerer) *LoanMetrics {
	if reg == nil {
		return &LoanMetrics{}
	}
	m := &LoanMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loans",
			Name:      "transitions_total",
			Help:      "Loan lifecycle operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		swept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loans",
			Name:      "sweep_records_total",
			Help:      "Loans changed by the maintenance sweep.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.transitions, m.swept)
	return m
}

// ObserveTransition records one operation with the given outcome.
func (m *LoanMetrics) ObserveTransition(operation, outcome string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

// ObserveSweep adds the records promoted to overdue and reservations expired.
func (m *LoanMetrics) ObserveSweep(overduePromoted, reservationsExpired int) {
	if m == nil || m.swept == nil {
		return
	}
	m.swept.WithLabelValues("overdue_promoted").Add(float64(overduePromoted))
	m.swept.WithLabelValues("reservations_expired").Add(float64(reservationsExpired))
}
