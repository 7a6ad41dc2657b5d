// Package client manages anonymous client identities and the devices they
// authenticate with.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/etiktak/etiktak_backend/internal/apperr"
	"github.com/etiktak/etiktak_backend/internal/hashing"
	"github.com/etiktak/etiktak_backend/internal/metrics"
	"github.com/etiktak/etiktak_backend/internal/model"
	"github.com/etiktak/etiktak_backend/internal/store"
)

const tokenSeparator = "."

// DeviceCredentials is returned once, when a device is created. The token is
// never stored in plaintext.
type DeviceCredentials struct {
	DeviceID string
	Token    string
}

// Service manages client identities.
type Service struct {
	store     store.Store
	passwords hashing.PasswordHasher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics attaches counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a client service.
func NewService(st store.Store, passwords hashing.PasswordHasher, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:     st,
		passwords: passwords,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a new anonymous, unbound client.
func (s *Service) Create(ctx context.Context) (model.Client, error) {
	c := s.newClient()
	if err := s.store.Clients().Save(ctx, c); err != nil {
		return model.Client{}, fmt.Errorf("save client: %w", err)
	}
	s.metrics.IncClientCreated()
	s.logger.InfoContext(ctx, "client created", slog.String("client_id", c.ID))
	return c, nil
}

// CreateWithDevice registers a new client and its first device. Either both
// are stored or neither is.
func (s *Service) CreateWithDevice(ctx context.Context, deviceType model.DeviceType) (model.Client, DeviceCredentials, error) {
	c := s.newClient()
	dev, creds, err := s.newDevice(c.ID, deviceType)
	if err != nil {
		return model.Client{}, DeviceCredentials{}, err
	}
	err = s.store.RunInTx(ctx, func(tx store.Repositories) error {
		if err := tx.Clients().Save(ctx, c); err != nil {
			return fmt.Errorf("save client: %w", err)
		}
		if err := tx.Devices().Save(ctx, dev); err != nil {
			return fmt.Errorf("save device: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Client{}, DeviceCredentials{}, err
	}
	s.metrics.IncClientCreated()
	s.metrics.IncDeviceCreated()
	s.logger.InfoContext(ctx, "client created",
		slog.String("client_id", c.ID), slog.String("device_id", dev.ID), slog.String("type", string(deviceType)))
	return c, creds, nil
}

func (s *Service) newClient() model.Client {
	now := s.now()
	return model.Client{
		ID:         hashing.RandomOpaqueToken(),
		CreatedAt:  now,
		ModifiedAt: now,
	}
}

// Get returns the client with the given id.
func (s *Service) Get(ctx context.Context, id string) (model.Client, error) {
	if strings.TrimSpace(id) == "" {
		return model.Client{}, fmt.Errorf("%w: client id is required", apperr.ErrInvalidInput)
	}
	c, err := s.store.Clients().FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.Client{}, fmt.Errorf("%w: client %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		return model.Client{}, fmt.Errorf("find client: %w", err)
	}
	return c, nil
}

// CreateDevice registers a device for clientID and returns its bearer token.
// The token has the form "<deviceId>.<secret>".
func (s *Service) CreateDevice(ctx context.Context, clientID string, deviceType model.DeviceType) (DeviceCredentials, error) {
	if _, err := s.Get(ctx, clientID); err != nil {
		return DeviceCredentials{}, err
	}
	dev, creds, err := s.newDevice(clientID, deviceType)
	if err != nil {
		return DeviceCredentials{}, err
	}
	if err := s.store.Devices().Save(ctx, dev); err != nil {
		return DeviceCredentials{}, fmt.Errorf("save device: %w", err)
	}
	s.metrics.IncDeviceCreated()
	s.logger.InfoContext(ctx, "device created",
		slog.String("client_id", clientID), slog.String("device_id", dev.ID), slog.String("type", string(deviceType)))
	return creds, nil
}

func (s *Service) newDevice(clientID string, deviceType model.DeviceType) (model.Device, DeviceCredentials, error) {
	secret := hashing.RandomOpaqueToken()
	secretHash, err := s.passwords.Hash(secret)
	if err != nil {
		return model.Device{}, DeviceCredentials{}, fmt.Errorf("hash device secret: %w", err)
	}
	now := s.now()
	dev := model.Device{
		ID:         hashing.RandomOpaqueToken(),
		ClientID:   clientID,
		Type:       deviceType,
		SecretHash: secretHash,
		Enabled:    true,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	return dev, DeviceCredentials{DeviceID: dev.ID, Token: dev.ID + tokenSeparator + secret}, nil
}

// AuthenticateDevice resolves a device token to its client. Every failure
// is reported as apperr.ErrUnauthorized.
func (s *Service) AuthenticateDevice(ctx context.Context, token string) (model.Client, error) {
	deviceID, secret, ok := strings.Cut(strings.TrimSpace(token), tokenSeparator)
	if !ok || deviceID == "" || secret == "" {
		return model.Client{}, fmt.Errorf("%w: malformed device token", apperr.ErrUnauthorized)
	}
	dev, err := s.store.Devices().FindByID(ctx, deviceID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Client{}, fmt.Errorf("%w: unknown device", apperr.ErrUnauthorized)
	}
	if err != nil {
		return model.Client{}, fmt.Errorf("find device: %w", err)
	}
	if !dev.Enabled || !s.passwords.Verify(dev.SecretHash, secret) {
		return model.Client{}, fmt.Errorf("%w: device rejected", apperr.ErrUnauthorized)
	}
	c, err := s.store.Clients().FindByID(ctx, dev.ClientID)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.ErrorContext(ctx, "device references missing client",
			slog.String("device_id", dev.ID), slog.String("client_id", dev.ClientID))
		return model.Client{}, fmt.Errorf("%w: device without client", apperr.ErrUnauthorized)
	}
	if err != nil {
		return model.Client{}, fmt.Errorf("find client: %w", err)
	}
	return c, nil
}
