package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncClientCreated()
	m.IncClientCreated()
	m.IncChallengeRequested(KindRecovery)
	m.IncVerification(ResultVerified)
	m.IncVerification(ResultUnauthorized)
	m.IncVerification(ResultUnauthorized)
	m.IncDeliveryFailure()
	m.IncInvariantViolation()
	m.IncDeviceCreated()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ClientsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChallengesRequested.WithLabelValues(KindRecovery)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ChallengesRequested.WithLabelValues(KindInitial)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Verifications.WithLabelValues(ResultUnauthorized)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveryFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InvariantViolations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DevicesCreated))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncClientCreated()
		m.IncDeviceCreated()
		m.IncChallengeRequested(KindInitial)
		m.IncVerification(ResultError)
		m.IncDeliveryFailure()
		m.IncInvariantViolation()
	})
}

func TestNewRegistersOnProvidedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
