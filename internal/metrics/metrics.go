// Package metrics exposes Prometheus counters for the verification flow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Challenge kinds.
const (
	KindInitial  = "initial"
	KindRecovery = "recovery"
)

// Verification results.
const (
	ResultVerified     = "verified"
	ResultUnauthorized = "unauthorized"
	ResultInvalidState = "invalid_state"
	ResultError        = "error"
)

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	ClientsCreated      prometheus.Counter
	DevicesCreated      prometheus.Counter
	ChallengesRequested *prometheus.CounterVec
	Verifications       *prometheus.CounterVec
	DeliveryFailures    prometheus.Counter
	InvariantViolations prometheus.Counter
}

// New registers the metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ClientsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "etiktak_clients_created_total",
			Help: "Anonymous client identities created",
		}),
		DevicesCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "etiktak_client_devices_created_total",
			Help: "Client devices registered",
		}),
		ChallengesRequested: f.NewCounterVec(prometheus.CounterOpts{
			Name: "etiktak_challenges_requested_total",
			Help: "Verification challenges issued by kind",
		}, []string{"kind"}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "etiktak_verifications_total",
			Help: "Verification attempts by result",
		}, []string{"result"}),
		DeliveryFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "etiktak_sms_delivery_failures_total",
			Help: "SMS hand-offs or deliveries reported as failed",
		}),
		InvariantViolations: f.NewCounter(prometheus.CounterOpts{
			Name: "etiktak_invariant_violations_total",
			Help: "Credential record invariants found broken",
		}),
	}
}

func (m *Metrics) IncClientCreated() {
	if m != nil {
		m.ClientsCreated.Inc()
	}
}

func (m *Metrics) IncDeviceCreated() {
	if m != nil {
		m.DevicesCreated.Inc()
	}
}

func (m *Metrics) IncChallengeRequested(kind string) {
	if m != nil {
		m.ChallengesRequested.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) IncVerification(result string) {
	if m != nil {
		m.Verifications.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncDeliveryFailure() {
	if m != nil {
		m.DeliveryFailures.Inc()
	}
}

func (m *Metrics) IncInvariantViolation() {
	if m != nil {
		m.InvariantViolations.Inc()
	}
}
