package store

import (
	"context"
	"maps"
	"sync"

	"github.com/etiktak/etiktak_backend/internal/model"
)

type memoryData struct {
	clients       map[string]model.Client
	clientsByCred map[string]string
	mobiles       map[string]model.MobileNumber
	attempts      map[string]model.VerificationAttempt
	attemptsByHdl map[string]string
	devices       map[string]model.Device
}

func newMemoryData() *memoryData {
	return &memoryData{
		clients:       make(map[string]model.Client),
		clientsByCred: make(map[string]string),
		mobiles:       make(map[string]model.MobileNumber),
		attempts:      make(map[string]model.VerificationAttempt),
		attemptsByHdl: make(map[string]string),
		devices:       make(map[string]model.Device),
	}
}

func (d *memoryData) clone() *memoryData {
	return &memoryData{
		clients:       maps.Clone(d.clients),
		clientsByCred: maps.Clone(d.clientsByCred),
		mobiles:       maps.Clone(d.mobiles),
		attempts:      maps.Clone(d.attempts),
		attemptsByHdl: maps.Clone(d.attemptsByHdl),
		devices:       maps.Clone(d.devices),
	}
}

// MemoryStore is a concurrency-safe in-memory Store. Transactions are
// serialised by one lock and work on a copy that replaces the live data only
// when fn succeeds.
type MemoryStore struct {
	mu   sync.Mutex
	data *memoryData
}

// NewMemoryStore builds an empty in-memory store for tests and development.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemoryData()}
}

// RunInTx runs fn against a private copy of the data and commits it if fn
// returns nil.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(tx Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.data.clone()
	if err := fn(memoryRepos{tx: working}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = working
	return nil
}

func (s *MemoryStore) Clients() ClientRepository             { return memoryRepos{store: s} }
func (s *MemoryStore) MobileNumbers() MobileNumberRepository { return mobileRepo{store: s} }
func (s *MemoryStore) Attempts() AttemptRepository           { return attemptRepo{store: s} }
func (s *MemoryStore) Devices() DeviceRepository             { return deviceRepo{store: s} }

// Counts reports how many records of each kind are stored.
func (s *MemoryStore) Counts() (clients, mobiles, attempts, devices int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.clients), len(s.data.mobiles), len(s.data.attempts), len(s.data.devices)
}

// memoryRepos either works inside a transaction (tx set, lock already held)
// or against the live data under the store lock.
type memoryRepos struct {
	store *MemoryStore
	tx    *memoryData
}

func (r memoryRepos) with(fn func(d *memoryData) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return fn(r.store.data)
}

func (r memoryRepos) Clients() ClientRepository             { return r }
func (r memoryRepos) MobileNumbers() MobileNumberRepository { return mobileRepo(r) }
func (r memoryRepos) Attempts() AttemptRepository           { return attemptRepo(r) }
func (r memoryRepos) Devices() DeviceRepository             { return deviceRepo(r) }

func (r memoryRepos) Save(_ context.Context, client model.Client) error {
	return r.with(func(d *memoryData) error {
		if client.CredentialFingerprint != "" {
			if owner, ok := d.clientsByCred[client.CredentialFingerprint]; ok && owner != client.ID {
				return ErrConflict
			}
		}
		if prev, ok := d.clients[client.ID]; ok && prev.CredentialFingerprint != "" {
			delete(d.clientsByCred, prev.CredentialFingerprint)
		}
		d.clients[client.ID] = client
		if client.CredentialFingerprint != "" {
			d.clientsByCred[client.CredentialFingerprint] = client.ID
		}
		return nil
	})
}

func (r memoryRepos) FindByID(_ context.Context, id string) (model.Client, error) {
	var out model.Client
	err := r.with(func(d *memoryData) error {
		c, ok := d.clients[id]
		if !ok {
			return ErrNotFound
		}
		out = c
		return nil
	})
	return out, err
}

func (r memoryRepos) FindByCredentialFingerprint(_ context.Context, fingerprint string) (model.Client, error) {
	var out model.Client
	err := r.with(func(d *memoryData) error {
		id, ok := d.clientsByCred[fingerprint]
		if !ok {
			return ErrNotFound
		}
		out = d.clients[id]
		return nil
	})
	return out, err
}

type mobileRepo memoryRepos

func (r mobileRepo) Create(_ context.Context, number model.MobileNumber) error {
	return memoryRepos(r).with(func(d *memoryData) error {
		if _, exists := d.mobiles[number.Hash]; exists {
			return ErrConflict
		}
		d.mobiles[number.Hash] = number
		return nil
	})
}

func (r mobileRepo) FindByHash(_ context.Context, hash string) (model.MobileNumber, error) {
	var out model.MobileNumber
	err := memoryRepos(r).with(func(d *memoryData) error {
		m, ok := d.mobiles[hash]
		if !ok {
			return ErrNotFound
		}
		out = m
		return nil
	})
	return out, err
}

type attemptRepo memoryRepos

func (r attemptRepo) Save(_ context.Context, attempt model.VerificationAttempt) error {
	return memoryRepos(r).with(func(d *memoryData) error {
		if _, claimed := d.mobiles[attempt.MobileNumberHash]; !claimed {
			// mirrors the foreign key on verification_attempts
			return ErrConflict
		}
		if attempt.SmsHandle != "" {
			if owner, ok := d.attemptsByHdl[attempt.SmsHandle]; ok && owner != attempt.MobileNumberHash {
				return ErrConflict
			}
		}
		if prev, ok := d.attempts[attempt.MobileNumberHash]; ok && prev.SmsHandle != "" {
			delete(d.attemptsByHdl, prev.SmsHandle)
		}
		d.attempts[attempt.MobileNumberHash] = attempt
		if attempt.SmsHandle != "" {
			d.attemptsByHdl[attempt.SmsHandle] = attempt.MobileNumberHash
		}
		return nil
	})
}

func (r attemptRepo) FindByMobileNumberHash(_ context.Context, hash string) (model.VerificationAttempt, error) {
	var out model.VerificationAttempt
	err := memoryRepos(r).with(func(d *memoryData) error {
		a, ok := d.attempts[hash]
		if !ok {
			return ErrNotFound
		}
		out = a
		return nil
	})
	return out, err
}

func (r attemptRepo) FindBySmsHandle(_ context.Context, handle string) (model.VerificationAttempt, error) {
	var out model.VerificationAttempt
	err := memoryRepos(r).with(func(d *memoryData) error {
		hash, ok := d.attemptsByHdl[handle]
		if !ok {
			return ErrNotFound
		}
		out = d.attempts[hash]
		return nil
	})
	return out, err
}

type deviceRepo memoryRepos

func (r deviceRepo) Save(_ context.Context, device model.Device) error {
	return memoryRepos(r).with(func(d *memoryData) error {
		if _, ok := d.clients[device.ClientID]; !ok {
			return ErrConflict
		}
		d.devices[device.ID] = device
		return nil
	})
}

func (r deviceRepo) FindByID(_ context.Context, id string) (model.Device, error) {
	var out model.Device
	err := memoryRepos(r).with(func(d *memoryData) error {
		dev, ok := d.devices[id]
		if !ok {
			return ErrNotFound
		}
		out = dev
		return nil
	})
	return out, err
}
