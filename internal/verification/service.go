// Package verification runs the SMS challenge protocol that binds a mobile
// number and password to an anonymous client.
//
// A request claims the number (or re-confirms an existing claim), binds the
// combined credential fingerprint to the client, arms the number's single
// verification attempt with a fresh SMS challenge and client challenge, and
// hands the SMS to the gateway. A verify call succeeds only when the attempt
// is SENT and both challenges match.
package verification

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/etiktak/etiktak_backend/internal/apperr"
	"github.com/etiktak/etiktak_backend/internal/hashing"
	"github.com/etiktak/etiktak_backend/internal/logging"
	"github.com/etiktak/etiktak_backend/internal/metrics"
	"github.com/etiktak/etiktak_backend/internal/model"
	"github.com/etiktak/etiktak_backend/internal/notification"
	"github.com/etiktak/etiktak_backend/internal/store"
)

// DefaultMessageTemplate formats the SMS text around the challenge digits.
const DefaultMessageTemplate = "Your etiktak verification code is %s"

// Config tunes challenge generation.
type Config struct {
	ChallengeDigits int
	MessageTemplate string
}

func (c Config) withDefaults() Config {
	if c.ChallengeDigits < 1 || c.ChallengeDigits > hashing.MaxChallengeDigits {
		c.ChallengeDigits = hashing.DefaultChallengeDigits
	}
	if !validTemplate(c.MessageTemplate) {
		c.MessageTemplate = DefaultMessageTemplate
	}
	return c
}

// validTemplate reports whether tpl places the challenge exactly once and
// has no other verbs.
func validTemplate(tpl string) bool {
	const sample = "0123456789"
	out := fmt.Sprintf(tpl, sample)
	return strings.Count(out, sample) == 1 && !strings.Contains(out, "%!")
}

// Service implements request, recovery, verify and delivery-failure handling.
type Service struct {
	store   store.Store
	sender  notification.Sender
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
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

// NewService wires the verification service.
func NewService(st store.Store, sender notification.Sender, cfg Config, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:  st,
		sender: sender,
		cfg:    cfg.withDefaults(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestChallenge binds mobileNumber and password to the client and sends a
// fresh SMS challenge. The returned attempt carries the client challenge the
// caller must echo back on verify.
func (s *Service) RequestChallenge(ctx context.Context, clientID, mobileNumber, password string) (model.VerificationAttempt, error) {
	if clientID == "" || mobileNumber == "" || password == "" {
		return model.VerificationAttempt{}, fmt.Errorf("%w: client id, mobile number and password are required", apperr.ErrInvalidInput)
	}
	return s.issue(ctx, metrics.KindInitial, mobileNumber, password, func(ctx context.Context, tx store.Repositories) (model.Client, error) {
		c, err := tx.Clients().FindByID(ctx, clientID)
		if errors.Is(err, store.ErrNotFound) {
			return model.Client{}, fmt.Errorf("%w: client %s", apperr.ErrNotFound, clientID)
		}
		if err != nil {
			return model.Client{}, fmt.Errorf("find client: %w", err)
		}
		return c, nil
	})
}

// RequestRecoveryChallenge is RequestChallenge for a caller that lost its
// client id: the client is located by its credential fingerprint instead.
func (s *Service) RequestRecoveryChallenge(ctx context.Context, mobileNumber, password string) (model.VerificationAttempt, error) {
	if mobileNumber == "" || password == "" {
		return model.VerificationAttempt{}, fmt.Errorf("%w: mobile number and password are required", apperr.ErrInvalidInput)
	}
	credential := hashing.CombinedFingerprint(mobileNumber, password)
	return s.issue(ctx, metrics.KindRecovery, mobileNumber, password, func(ctx context.Context, tx store.Repositories) (model.Client, error) {
		c, err := tx.Clients().FindByCredentialFingerprint(ctx, credential)
		if errors.Is(err, store.ErrNotFound) {
			return model.Client{}, fmt.Errorf("%w: no client for these credentials", apperr.ErrNotFound)
		}
		if err != nil {
			return model.Client{}, fmt.Errorf("find client: %w", err)
		}
		return c, nil
	})
}

type clientLookup func(ctx context.Context, tx store.Repositories) (model.Client, error)

func (s *Service) issue(ctx context.Context, kind, mobileNumber, password string, lookup clientLookup) (model.VerificationAttempt, error) {
	var (
		attempt model.VerificationAttempt
		sms     notification.SMS
	)
	err := s.store.RunInTx(ctx, func(tx store.Repositories) error {
		c, err := lookup(ctx, tx)
		if err != nil {
			return err
		}
		attempt, err = s.claim(ctx, tx, &c, mobileNumber, password)
		if err != nil {
			return err
		}
		sms, err = s.arm(ctx, tx, &attempt, mobileNumber)
		return err
	})
	if err != nil {
		return model.VerificationAttempt{}, err
	}
	s.metrics.IncChallengeRequested(kind)
	if !s.handOff(ctx, attempt.MobileNumberHash, sms) {
		attempt.Status = model.StatusFailed
	}
	return attempt, nil
}

// claim resolves the number's claim for c, binds the credential to c and
// returns the attempt to re-arm.
func (s *Service) claim(ctx context.Context, tx store.Repositories, c *model.Client, mobileNumber, password string) (model.VerificationAttempt, error) {
	now := s.now()
	mobileHash := hashing.Fingerprint(mobileNumber)
	credential := hashing.CombinedFingerprint(mobileNumber, password)

	var attempt model.VerificationAttempt
	_, err := tx.MobileNumbers().FindByHash(ctx, mobileHash)
	switch {
	case err == nil:
		if subtle.ConstantTimeCompare([]byte(c.CredentialFingerprint), []byte(credential)) != 1 {
			return attempt, fmt.Errorf("%w: number already verified with a different password", apperr.ErrCredentialMismatch)
		}
		attempt, err = tx.Attempts().FindByMobileNumberHash(ctx, mobileHash)
		if errors.Is(err, store.ErrNotFound) {
			return attempt, s.inconsistent(ctx, "claimed number has no verification attempt", c.ID, mobileHash)
		}
		if err != nil {
			return attempt, fmt.Errorf("find attempt: %w", err)
		}
	case errors.Is(err, store.ErrNotFound):
		if c.Bound() {
			return attempt, s.inconsistent(ctx, "client already bound while number is unclaimed", c.ID, mobileHash)
		}
		if _, err := tx.Attempts().FindByMobileNumberHash(ctx, mobileHash); err == nil {
			return attempt, s.inconsistent(ctx, "unclaimed number has a verification attempt", c.ID, mobileHash)
		} else if !errors.Is(err, store.ErrNotFound) {
			return attempt, fmt.Errorf("find attempt: %w", err)
		}
		if err := tx.MobileNumbers().Create(ctx, model.MobileNumber{Hash: mobileHash, CreatedAt: now}); err != nil {
			return attempt, storeError("claim mobile number", err)
		}
		attempt = model.VerificationAttempt{MobileNumberHash: mobileHash, Status: model.StatusUnknown}
	default:
		return attempt, fmt.Errorf("find mobile number: %w", err)
	}

	c.CredentialFingerprint = credential
	c.Verified = false
	c.ModifiedAt = now
	if err := tx.Clients().Save(ctx, *c); err != nil {
		return attempt, storeError("bind client credential", err)
	}
	return attempt, nil
}

// arm overwrites attempt with fresh challenges, marks it SENT and returns the
// SMS to hand off once the transaction commits.
func (s *Service) arm(ctx context.Context, tx store.Repositories, attempt *model.VerificationAttempt, mobileNumber string) (notification.SMS, error) {
	smsChallenge, err := hashing.RandomChallengeDigits(s.cfg.ChallengeDigits)
	if err != nil {
		return notification.SMS{}, err
	}
	handle, err := hashing.RandomHandle()
	if err != nil {
		return notification.SMS{}, err
	}
	if err := attempt.Restart(hashing.Fingerprint(smsChallenge), hashing.RandomOpaqueToken(), handle, s.now()); err != nil {
		return notification.SMS{}, err
	}
	if err := attempt.Transition(model.StatusSent, s.now()); err != nil {
		return notification.SMS{}, err
	}
	if err := tx.Attempts().Save(ctx, *attempt); err != nil {
		return notification.SMS{}, storeError("save attempt", err)
	}
	return notification.SMS{
		Handle:      handle,
		Destination: mobileNumber,
		Text:        fmt.Sprintf(s.cfg.MessageTemplate, smsChallenge),
	}, nil
}

// handOff gives the SMS to the gateway after the attempt is committed, so a
// delivery report always finds its handle. A rejected hand-off is recorded
// the same way as a failure report from the gateway.
func (s *Service) handOff(ctx context.Context, mobileHash string, sms notification.SMS) bool {
	sendErr := s.sender.Send(ctx, sms)
	if sendErr == nil {
		return true
	}
	s.logger.WarnContext(ctx, "sms hand-off failed",
		slog.String("handle", sms.Handle),
		logging.Fingerprint("mobile_hash", mobileHash),
		slog.Any("error", sendErr))
	if err := s.MarkDeliveryFailed(context.WithoutCancel(ctx), sms.Handle); err != nil {
		s.logger.ErrorContext(ctx, "failed to record sms hand-off failure",
			slog.String("handle", sms.Handle),
			slog.Any("error", err))
	}
	return false
}

// VerifyChallenge checks both challenges against the outstanding attempt for
// mobileNumber and marks the client verified.
func (s *Service) VerifyChallenge(ctx context.Context, mobileNumber, password, smsChallenge, clientChallenge string) (model.Client, error) {
	if mobileNumber == "" || password == "" || smsChallenge == "" || clientChallenge == "" {
		return model.Client{}, fmt.Errorf("%w: mobile number, password, sms challenge and client challenge are required", apperr.ErrInvalidInput)
	}
	mobileHash := hashing.Fingerprint(mobileNumber)
	credential := hashing.CombinedFingerprint(mobileNumber, password)

	var verified model.Client
	err := s.store.RunInTx(ctx, func(tx store.Repositories) error {
		c, err := tx.Clients().FindByCredentialFingerprint(ctx, credential)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: wrong mobile number or password", apperr.ErrUnauthorized)
		}
		if err != nil {
			return fmt.Errorf("find client: %w", err)
		}
		attempt, err := tx.Attempts().FindByMobileNumberHash(ctx, mobileHash)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: wrong mobile number or password", apperr.ErrUnauthorized)
		}
		if err != nil {
			return fmt.Errorf("find attempt: %w", err)
		}
		if attempt.Status != model.StatusSent {
			return fmt.Errorf("%w: expected verification status %s, got %s", apperr.ErrInvalidState, model.StatusSent, attempt.Status)
		}
		smsOK := subtle.ConstantTimeCompare([]byte(hashing.Fingerprint(smsChallenge)), []byte(attempt.SmsChallengeHash)) == 1
		clientOK := subtle.ConstantTimeCompare([]byte(clientChallenge), []byte(attempt.ClientChallenge)) == 1
		if !smsOK || !clientOK {
			return fmt.Errorf("%w: challenge mismatch", apperr.ErrUnauthorized)
		}

		now := s.now()
		if err := attempt.Transition(model.StatusVerified, now); err != nil {
			return err
		}
		if err := tx.Attempts().Save(ctx, attempt); err != nil {
			return storeError("save attempt", err)
		}
		c.Verified = true
		c.ModifiedAt = now
		if err := tx.Clients().Save(ctx, c); err != nil {
			return storeError("save client", err)
		}
		verified = c
		return nil
	})
	s.metrics.IncVerification(verificationResult(err))
	if err != nil {
		return model.Client{}, err
	}
	s.logger.InfoContext(ctx, "client verified", slog.String("client_id", verified.ID))
	return verified, nil
}

// MarkDeliveryFailed records a delivery failure reported by the SMS gateway.
// Repeated reports for a FAILED attempt are no-ops; a VERIFIED attempt
// cannot fail.
func (s *Service) MarkDeliveryFailed(ctx context.Context, smsHandle string) error {
	if smsHandle == "" {
		return fmt.Errorf("%w: sms handle is required", apperr.ErrInvalidInput)
	}
	changed := false
	err := s.store.RunInTx(ctx, func(tx store.Repositories) error {
		attempt, err := tx.Attempts().FindBySmsHandle(ctx, smsHandle)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: sms handle %s", apperr.ErrNotFound, smsHandle)
		}
		if err != nil {
			return fmt.Errorf("find attempt: %w", err)
		}
		if attempt.Status == model.StatusFailed {
			return nil
		}
		if err := attempt.Transition(model.StatusFailed, s.now()); err != nil {
			return err
		}
		if err := tx.Attempts().Save(ctx, attempt); err != nil {
			return storeError("save attempt", err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return err
	}
	if changed {
		s.metrics.IncDeliveryFailure()
		s.logger.InfoContext(ctx, "sms delivery failed", slog.String("handle", smsHandle))
	}
	return nil
}

func (s *Service) inconsistent(ctx context.Context, msg, clientID, mobileHash string) error {
	s.metrics.IncInvariantViolation()
	s.logger.ErrorContext(ctx, "credential store invariant violated: "+msg,
		slog.String("client_id", clientID),
		logging.Fingerprint("mobile_hash", mobileHash))
	return fmt.Errorf("%w: %s", apperr.ErrInternalInconsistency, msg)
}

func storeError(op string, err error) error {
	if errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("%s: %w: %w", op, apperr.ErrConflict, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func verificationResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultVerified
	case errors.Is(err, apperr.ErrUnauthorized):
		return metrics.ResultUnauthorized
	case errors.Is(err, apperr.ErrInvalidState):
		return metrics.ResultInvalidState
	default:
		return metrics.ResultError
	}
}
