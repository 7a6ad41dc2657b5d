package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etiktak/etiktak_backend/internal/apperr"
)

func TestStatusTransitionTable(t *testing.T) {
	all := []Status{StatusUnknown, StatusPending, StatusSent, StatusFailed, StatusVerified}
	legal := map[[2]Status]bool{
		{StatusUnknown, StatusPending}:  true,
		{StatusPending, StatusPending}:  true,
		{StatusPending, StatusSent}:     true,
		{StatusSent, StatusPending}:     true,
		{StatusSent, StatusVerified}:    true,
		{StatusSent, StatusFailed}:      true,
		{StatusFailed, StatusPending}:   true,
		{StatusVerified, StatusPending}: true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, legal[[2]Status{from, to}], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestTransitionRejectsIllegalMove(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := VerificationAttempt{Status: StatusPending}

	err := a.Transition(StatusVerified, at)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))
	assert.Contains(t, err.Error(), "PENDING")
	assert.Contains(t, err.Error(), "VERIFIED")
	assert.Equal(t, StatusPending, a.Status, "status must not change on rejected move")

	assert.ErrorIs(t, a.Transition(StatusFailed, at), apperr.ErrInvalidState)
	assert.Equal(t, StatusPending, a.Status)
}

func TestRestartFromZeroValue(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var a VerificationAttempt

	require.NoError(t, a.Restart("sms-hash", "client-challenge", "handle", at))
	assert.Equal(t, StatusPending, a.Status)
	assert.Equal(t, at, a.CreatedAt)
	assert.Equal(t, at, a.ModifiedAt)

	later := at.Add(time.Minute)
	require.NoError(t, a.Transition(StatusSent, later))
	require.NoError(t, a.Transition(StatusVerified, later))
	require.NoError(t, a.Restart("sms-hash-2", "client-challenge-2", "handle-2", later))
	assert.Equal(t, at, a.CreatedAt, "restart keeps the original creation time")
	assert.Equal(t, "client-challenge-2", a.ClientChallenge)
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("SENT")
	require.NoError(t, err)
	assert.Equal(t, StatusSent, s)

	_, err = ParseStatus("sent")
	assert.Error(t, err)
}

func TestParseDeviceType(t *testing.T) {
	assert.Equal(t, DeviceAndroid, ParseDeviceType("android"))
	assert.Equal(t, DeviceIOS, ParseDeviceType("ios"))
	assert.Equal(t, DeviceUnknown, ParseDeviceType("windows-phone"))
	assert.Equal(t, DeviceUnknown, ParseDeviceType(""))
}
