package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/etiktak/etiktak_backend/internal/model"
)

//go:embed schema.sql
var schema string

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	defaultTxTimeout    = 5 * time.Second
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on PostgreSQL. Uniqueness is enforced by the
// table constraints and surfaces as ErrConflict.
type PostgresStore struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

// NewPostgresStore builds a Postgres-backed credential store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db, timeout: defaultTxTimeout}
}

// EnsureSchema creates the credential tables if they are missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// RunInTx runs fn inside a database transaction, committing only if fn
// succeeds.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(tx Repositories) error) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(pgRepos{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return translate(err)
	}
	return nil
}

func (s *PostgresStore) Clients() ClientRepository             { return pgClients{q: s.db} }
func (s *PostgresStore) MobileNumbers() MobileNumberRepository { return pgRepos{q: s.db} }
func (s *PostgresStore) Attempts() AttemptRepository           { return pgAttempts{q: s.db} }
func (s *PostgresStore) Devices() DeviceRepository             { return pgDevices{q: s.db} }

type pgRepos struct {
	q querier
}

func (r pgRepos) Clients() ClientRepository             { return pgClients(r) }
func (r pgRepos) MobileNumbers() MobileNumberRepository { return r }
func (r pgRepos) Attempts() AttemptRepository           { return pgAttempts(r) }
func (r pgRepos) Devices() DeviceRepository             { return pgDevices(r) }

// Create inserts a claimed mobile number.
func (r pgRepos) Create(ctx context.Context, number model.MobileNumber) error {
	_, err := r.q.Exec(ctx, `INSERT INTO mobile_numbers (mobile_number_hash, created_at) VALUES ($1, $2)`,
		number.Hash, number.CreatedAt.UTC())
	return translate(err)
}

// FindByHash fetches a claimed mobile number.
func (r pgRepos) FindByHash(ctx context.Context, hash string) (model.MobileNumber, error) {
	var (
		m         model.MobileNumber
		createdAt time.Time
	)
	err := r.q.QueryRow(ctx, `SELECT mobile_number_hash, created_at FROM mobile_numbers WHERE mobile_number_hash = $1`, hash).
		Scan(&m.Hash, &createdAt)
	if err != nil {
		return model.MobileNumber{}, translate(err)
	}
	m.CreatedAt = createdAt.UTC()
	return m, nil
}

type pgClients pgRepos

// Save upserts a client by id.
func (r pgClients) Save(ctx context.Context, client model.Client) error {
	id, err := uuid.Parse(client.ID)
	if err != nil {
		return fmt.Errorf("parse client id: %w", err)
	}
	_, err = r.q.Exec(ctx, `INSERT INTO clients (id, credential_fingerprint, verified, created_at, modified_at)
        VALUES ($1, NULLIF($2, ''), $3, $4, $5)
        ON CONFLICT (id) DO UPDATE SET
            credential_fingerprint = EXCLUDED.credential_fingerprint,
            verified = EXCLUDED.verified,
            modified_at = EXCLUDED.modified_at`,
		id, client.CredentialFingerprint, client.Verified, client.CreatedAt.UTC(), client.ModifiedAt.UTC())
	return translate(err)
}

// FindByID fetches a client and locks its row when called inside a transaction.
func (r pgClients) FindByID(ctx context.Context, id string) (model.Client, error) {
	clientID, err := uuid.Parse(id)
	if err != nil {
		// not a UUID, so no such client
		return model.Client{}, ErrNotFound
	}
	return r.scan(r.q.QueryRow(ctx, `SELECT id, COALESCE(credential_fingerprint, ''), verified, created_at, modified_at
        FROM clients WHERE id = $1 FOR UPDATE`, clientID))
}

// FindByCredentialFingerprint fetches the client bound to a credential.
func (r pgClients) FindByCredentialFingerprint(ctx context.Context, fingerprint string) (model.Client, error) {
	return r.scan(r.q.QueryRow(ctx, `SELECT id, COALESCE(credential_fingerprint, ''), verified, created_at, modified_at
        FROM clients WHERE credential_fingerprint = $1 FOR UPDATE`, fingerprint))
}

func (pgClients) scan(row pgx.Row) (model.Client, error) {
	var (
		c                     model.Client
		id                    uuid.UUID
		createdAt, modifiedAt time.Time
	)
	if err := row.Scan(&id, &c.CredentialFingerprint, &c.Verified, &createdAt, &modifiedAt); err != nil {
		return model.Client{}, translate(err)
	}
	c.ID = id.String()
	c.CreatedAt = createdAt.UTC()
	c.ModifiedAt = modifiedAt.UTC()
	return c, nil
}

type pgAttempts pgRepos

// Save upserts an attempt keyed by its mobile number hash.
func (r pgAttempts) Save(ctx context.Context, a model.VerificationAttempt) error {
	_, err := r.q.Exec(ctx, `INSERT INTO verification_attempts
            (mobile_number_hash, sms_challenge_hash, client_challenge, status, sms_handle, created_at, modified_at)
        VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
        ON CONFLICT (mobile_number_hash) DO UPDATE SET
            sms_challenge_hash = EXCLUDED.sms_challenge_hash,
            client_challenge = EXCLUDED.client_challenge,
            status = EXCLUDED.status,
            sms_handle = EXCLUDED.sms_handle,
            modified_at = EXCLUDED.modified_at`,
		a.MobileNumberHash, a.SmsChallengeHash, a.ClientChallenge, a.Status.String(), a.SmsHandle,
		a.CreatedAt.UTC(), a.ModifiedAt.UTC())
	return translate(err)
}

const attemptColumns = `mobile_number_hash, sms_challenge_hash, client_challenge, status,
        COALESCE(sms_handle, ''), created_at, modified_at`

// FindByMobileNumberHash fetches the attempt for a mobile number.
func (r pgAttempts) FindByMobileNumberHash(ctx context.Context, hash string) (model.VerificationAttempt, error) {
	return r.scan(r.q.QueryRow(ctx, `SELECT `+attemptColumns+`
        FROM verification_attempts WHERE mobile_number_hash = $1 FOR UPDATE`, hash))
}

// FindBySmsHandle fetches the attempt an SMS dispatch belongs to.
func (r pgAttempts) FindBySmsHandle(ctx context.Context, handle string) (model.VerificationAttempt, error) {
	return r.scan(r.q.QueryRow(ctx, `SELECT `+attemptColumns+`
        FROM verification_attempts WHERE sms_handle = $1 FOR UPDATE`, handle))
}

func (pgAttempts) scan(row pgx.Row) (model.VerificationAttempt, error) {
	var (
		a                     model.VerificationAttempt
		status                string
		createdAt, modifiedAt time.Time
	)
	if err := row.Scan(&a.MobileNumberHash, &a.SmsChallengeHash, &a.ClientChallenge, &status, &a.SmsHandle,
		&createdAt, &modifiedAt); err != nil {
		return model.VerificationAttempt{}, translate(err)
	}
	parsed, err := model.ParseStatus(status)
	if err != nil {
		return model.VerificationAttempt{}, err
	}
	a.Status = parsed
	a.CreatedAt = createdAt.UTC()
	a.ModifiedAt = modifiedAt.UTC()
	return a, nil
}

type pgDevices pgRepos

// Save upserts a device by id.
func (r pgDevices) Save(ctx context.Context, d model.Device) error {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return fmt.Errorf("parse device id: %w", err)
	}
	clientID, err := uuid.Parse(d.ClientID)
	if err != nil {
		return fmt.Errorf("parse client id: %w", err)
	}
	_, err = r.q.Exec(ctx, `INSERT INTO client_devices (id, client_id, type, secret_hash, enabled, created_at, modified_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (id) DO UPDATE SET
            type = EXCLUDED.type,
            secret_hash = EXCLUDED.secret_hash,
            enabled = EXCLUDED.enabled,
            modified_at = EXCLUDED.modified_at`,
		id, clientID, string(d.Type), d.SecretHash, d.Enabled, d.CreatedAt.UTC(), d.ModifiedAt.UTC())
	return translate(err)
}

// FindByID fetches a device.
func (r pgDevices) FindByID(ctx context.Context, id string) (model.Device, error) {
	deviceID, err := uuid.Parse(id)
	if err != nil {
		return model.Device{}, ErrNotFound
	}
	var (
		d                     model.Device
		idVal, clientID       uuid.UUID
		deviceType            string
		createdAt, modifiedAt time.Time
	)
	err = r.q.QueryRow(ctx, `SELECT id, client_id, type, secret_hash, enabled, created_at, modified_at
        FROM client_devices WHERE id = $1`, deviceID).
		Scan(&idVal, &clientID, &deviceType, &d.SecretHash, &d.Enabled, &createdAt, &modifiedAt)
	if err != nil {
		return model.Device{}, translate(err)
	}
	d.ID = idVal.String()
	d.ClientID = clientID.String()
	d.Type = model.ParseDeviceType(deviceType)
	d.CreatedAt = createdAt.UTC()
	d.ModifiedAt = modifiedAt.UTC()
	return d, nil
}

// translate maps driver errors onto the store sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation, foreignKeyViolation:
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		}
	}
	return err
}
