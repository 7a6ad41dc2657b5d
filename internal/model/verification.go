// Package model holds the records kept by the credential store.
package model

import (
	"fmt"
	"time"

	"github.com/etiktak/etiktak_backend/internal/apperr"
)

// MobileNumber marks a mobile number as claimed by exactly one verification
// lineage. It is keyed by the fingerprint of the number and never updated.
type MobileNumber struct {
	Hash      string
	CreatedAt time.Time
}

// Status is the lifecycle stage of a VerificationAttempt.
type Status string

const (
	StatusUnknown  Status = "UNKNOWN"
	StatusPending  Status = "PENDING"
	StatusSent     Status = "SENT"
	StatusFailed   Status = "FAILED"
	StatusVerified Status = "VERIFIED"
)

// transitions lists the legal next states. Every state may restart at
// PENDING because a fresh request overwrites the attempt in place.
var transitions = map[Status][]Status{
	StatusUnknown:  {StatusPending},
	StatusPending:  {StatusPending, StatusSent},
	StatusSent:     {StatusPending, StatusVerified, StatusFailed},
	StatusFailed:   {StatusPending},
	StatusVerified: {StatusPending},
}

// ParseStatus converts a stored value back into a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if _, ok := transitions[s]; !ok {
		return StatusUnknown, fmt.Errorf("unknown verification status %q", v)
	}
	return s, nil
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	if s == "" {
		return string(StatusUnknown)
	}
	return string(s)
}

// VerificationAttempt is the single outstanding verification for a mobile
// number. It is overwritten by every new request for the same number.
type VerificationAttempt struct {
	MobileNumberHash string
	SmsChallengeHash string
	ClientChallenge  string
	Status           Status
	SmsHandle        string
	CreatedAt        time.Time
	ModifiedAt       time.Time
}

// Transition moves the attempt to next, rejecting moves outside the
// transition table with apperr.ErrInvalidState.
func (a *VerificationAttempt) Transition(next Status, at time.Time) error {
	current := a.Status
	if current == "" {
		current = StatusUnknown
	}
	if !current.CanTransitionTo(next) {
		return fmt.Errorf("%w: cannot move verification from %s to %s", apperr.ErrInvalidState, current, next)
	}
	a.Status = next
	a.ModifiedAt = at
	return nil
}

// Restart arms the attempt with fresh challenges and puts it back to PENDING.
// Any previously issued challenge becomes unusable.
func (a *VerificationAttempt) Restart(smsChallengeHash, clientChallenge, smsHandle string, at time.Time) error {
	if err := a.Transition(StatusPending, at); err != nil {
		return err
	}
	a.SmsChallengeHash = smsChallengeHash
	a.ClientChallenge = clientChallenge
	a.SmsHandle = smsHandle
	if a.CreatedAt.IsZero() {
		a.CreatedAt = at
	}
	return nil
}
