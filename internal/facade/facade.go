// Package facade is the entry point the transport layer calls. It returns
// plain result values and errors from the apperr taxonomy.
package facade

import (
	"context"
	"errors"
	"fmt"

	"github.com/etiktak/etiktak_backend/internal/apperr"
	"github.com/etiktak/etiktak_backend/internal/client"
	"github.com/etiktak/etiktak_backend/internal/model"
	"github.com/etiktak/etiktak_backend/internal/verification"
)

// ClientResult describes a client identity.
type ClientResult struct {
	ID       string `json:"id"`
	Verified bool   `json:"verified"`
}

// DeviceResult carries a freshly issued device token. The token is only
// ever returned here.
type DeviceResult struct {
	DeviceID string `json:"device_id"`
	Token    string `json:"device_token"`
}

// ChallengeResult carries the client challenge to echo back on verify.
type ChallengeResult struct {
	ClientChallenge string `json:"client_challenge"`
}

// Facade combines the client and verification services.
type Facade struct {
	clients       *client.Service
	verifications *verification.Service
}

// New builds a Facade.
func New(clients *client.Service, verifications *verification.Service) *Facade {
	return &Facade{clients: clients, verifications: verifications}
}

// CreateClient registers a new anonymous client.
func (f *Facade) CreateClient(ctx context.Context) (ClientResult, error) {
	c, err := f.clients.Create(ctx)
	if err != nil {
		return ClientResult{}, err
	}
	return toClientResult(c), nil
}

// CreateClientWithDevice registers a new client together with its first
// device.
func (f *Facade) CreateClientWithDevice(ctx context.Context, deviceType model.DeviceType) (ClientResult, DeviceResult, error) {
	c, creds, err := f.clients.CreateWithDevice(ctx, deviceType)
	if err != nil {
		return ClientResult{}, DeviceResult{}, err
	}
	return toClientResult(c), DeviceResult{DeviceID: creds.DeviceID, Token: creds.Token}, nil
}

// GetClient returns the client with the given id.
func (f *Facade) GetClient(ctx context.Context, id string) (ClientResult, error) {
	c, err := f.clients.Get(ctx, id)
	if err != nil {
		return ClientResult{}, err
	}
	return toClientResult(c), nil
}

// CreateDevice registers a device for the client and returns its token.
func (f *Facade) CreateDevice(ctx context.Context, clientID string, deviceType model.DeviceType) (DeviceResult, error) {
	creds, err := f.clients.CreateDevice(ctx, clientID, deviceType)
	if err != nil {
		return DeviceResult{}, err
	}
	return DeviceResult{DeviceID: creds.DeviceID, Token: creds.Token}, nil
}

// AuthenticateDevice resolves a device token to its client.
func (f *Facade) AuthenticateDevice(ctx context.Context, token string) (model.Client, error) {
	return f.clients.AuthenticateDevice(ctx, token)
}

// RequestChallenge sends a verification SMS for the client's number.
func (f *Facade) RequestChallenge(ctx context.Context, clientID, mobileNumber, password string) (ChallengeResult, error) {
	a, err := f.verifications.RequestChallenge(ctx, clientID, mobileNumber, password)
	if err != nil {
		return ChallengeResult{}, mapConflict(err)
	}
	return ChallengeResult{ClientChallenge: a.ClientChallenge}, nil
}

// RequestRecoveryChallenge sends a verification SMS to regain a client
// located by mobile number and password.
func (f *Facade) RequestRecoveryChallenge(ctx context.Context, mobileNumber, password string) (ChallengeResult, error) {
	a, err := f.verifications.RequestRecoveryChallenge(ctx, mobileNumber, password)
	if err != nil {
		return ChallengeResult{}, mapConflict(err)
	}
	return ChallengeResult{ClientChallenge: a.ClientChallenge}, nil
}

// VerifyChallenge completes verification and returns the verified client.
func (f *Facade) VerifyChallenge(ctx context.Context, mobileNumber, password, smsChallenge, clientChallenge string) (ClientResult, error) {
	c, err := f.verifications.VerifyChallenge(ctx, mobileNumber, password, smsChallenge, clientChallenge)
	if err != nil {
		return ClientResult{}, mapConflict(err)
	}
	return toClientResult(c), nil
}

// ReportDeliveryFailure records a failed SMS delivery by handle.
func (f *Facade) ReportDeliveryFailure(ctx context.Context, smsHandle string) error {
	return f.verifications.MarkDeliveryFailed(ctx, smsHandle)
}

// mapConflict turns a lost creation race into a CredentialMismatch: the
// winner has bound the number first.
func mapConflict(err error) error {
	if errors.Is(err, apperr.ErrConflict) && !errors.Is(err, apperr.ErrCredentialMismatch) {
		return fmt.Errorf("%w: %w", apperr.ErrCredentialMismatch, err)
	}
	return err
}

func toClientResult(c model.Client) ClientResult {
	return ClientResult{ID: c.ID, Verified: c.Verified}
}
