// Package store persists the credential records: client identities, client
// devices, claimed mobile numbers and verification attempts.
package store

import (
	"context"
	"errors"

	"github.com/etiktak/etiktak_backend/internal/model"
)

var (
	// ErrNotFound is returned by lookups that match no record.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a write violates a unique key.
	ErrConflict = errors.New("unique constraint violated")
)

// ClientRepository stores client identities. The id and the credential
// fingerprint are both unique.
type ClientRepository interface {
	Save(ctx context.Context, client model.Client) error
	FindByID(ctx context.Context, id string) (model.Client, error)
	FindByCredentialFingerprint(ctx context.Context, fingerprint string) (model.Client, error)
}

// MobileNumberRepository stores claimed mobile numbers. Create never
// overwrites; a second Create for the same hash fails with ErrConflict.
type MobileNumberRepository interface {
	Create(ctx context.Context, number model.MobileNumber) error
	FindByHash(ctx context.Context, hash string) (model.MobileNumber, error)
}

// AttemptRepository stores verification attempts, upserted by mobile number
// hash. SMS handles are unique.
type AttemptRepository interface {
	Save(ctx context.Context, attempt model.VerificationAttempt) error
	FindByMobileNumberHash(ctx context.Context, hash string) (model.VerificationAttempt, error)
	FindBySmsHandle(ctx context.Context, handle string) (model.VerificationAttempt, error)
}

// DeviceRepository stores client devices.
type DeviceRepository interface {
	Save(ctx context.Context, device model.Device) error
	FindByID(ctx context.Context, id string) (model.Device, error)
}

// Repositories groups the record sets so one transaction can span them.
type Repositories interface {
	Clients() ClientRepository
	MobileNumbers() MobileNumberRepository
	Attempts() AttemptRepository
	Devices() DeviceRepository
}

// Store exposes the repositories for single-statement access and a
// transactional boundary for multi-step operations. If fn returns an error
// nothing it wrote is kept.
type Store interface {
	Repositories
	RunInTx(ctx context.Context, fn func(tx Repositories) error) error
}
