package facade

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/etiktak/etiktak_backend/internal/apperr"
	"github.com/etiktak/etiktak_backend/internal/client"
	"github.com/etiktak/etiktak_backend/internal/hashing"
	"github.com/etiktak/etiktak_backend/internal/logging"
	"github.com/etiktak/etiktak_backend/internal/model"
	"github.com/etiktak/etiktak_backend/internal/notification"
	"github.com/etiktak/etiktak_backend/internal/store"
	"github.com/etiktak/etiktak_backend/internal/verification"
)

type codeBook struct {
	mu    sync.Mutex
	codes map[string]string
}

func (b *codeBook) Send(_ context.Context, sms notification.SMS) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.codes[sms.Destination] = sms.Text
	return nil
}

func (b *codeBook) code(number string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.codes[number]
}

// lostRaceStore behaves as if another request claimed every mobile number
// between this request's lookup and its insert.
type lostRaceStore struct {
	*store.MemoryStore
}

func (s lostRaceStore) RunInTx(ctx context.Context, fn func(tx store.Repositories) error) error {
	return s.MemoryStore.RunInTx(ctx, func(tx store.Repositories) error {
		return fn(lostRaceRepos{tx})
	})
}

type lostRaceRepos struct {
	store.Repositories
}

func (r lostRaceRepos) MobileNumbers() store.MobileNumberRepository {
	return lostRaceNumbers{r.Repositories.MobileNumbers()}
}

type lostRaceNumbers struct {
	store.MobileNumberRepository
}

func (lostRaceNumbers) Create(context.Context, model.MobileNumber) error {
	return fmt.Errorf("%w: mobile_numbers_pkey", store.ErrConflict)
}

func newFacade(t *testing.T) (*Facade, *codeBook) {
	t.Helper()
	return newFacadeWithStore(t, store.NewMemoryStore())
}

func newFacadeWithStore(t *testing.T, st store.Store) (*Facade, *codeBook) {
	t.Helper()
	book := &codeBook{codes: map[string]string{}}
	logger := logging.Discard()
	clients := client.NewService(st, hashing.NewBcrypt(4), logger)
	verifications := verification.NewService(st, book, verification.Config{MessageTemplate: "%s"}, logger)
	return New(clients, verifications), book
}

func TestVerificationScenario(t *testing.T) {
	f, book := newFacade(t)
	ctx := context.Background()

	c, err := f.CreateClient(ctx)
	require.NoError(t, err)
	assert.False(t, c.Verified)

	challenge, err := f.RequestChallenge(ctx, c.ID, "12345678", "pw1")
	require.NoError(t, err)
	require.NotEmpty(t, challenge.ClientChallenge)

	got, err := f.VerifyChallenge(ctx, "12345678", "pw1", book.code("12345678"), challenge.ClientChallenge)
	require.NoError(t, err)
	assert.Equal(t, ClientResult{ID: c.ID, Verified: true}, got)

	me, err := f.GetClient(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, me.Verified)
}

func TestSecondClientOnClaimedNumber(t *testing.T) {
	f, _ := newFacade(t)
	ctx := context.Background()

	c1, err := f.CreateClient(ctx)
	require.NoError(t, err)
	c2, err := f.CreateClient(ctx)
	require.NoError(t, err)

	_, err = f.RequestChallenge(ctx, c1.ID, "12345678", "pw1")
	require.NoError(t, err)
	_, err = f.RequestChallenge(ctx, c2.ID, "12345678", "pw2")
	assert.ErrorIs(t, err, apperr.ErrCredentialMismatch)
}

func TestWrongSmsChallengeKeepsClientUnverified(t *testing.T) {
	f, book := newFacade(t)
	ctx := context.Background()

	c, err := f.CreateClient(ctx)
	require.NoError(t, err)
	challenge, err := f.RequestChallenge(ctx, c.ID, "12345678", "pw1")
	require.NoError(t, err)

	wrong := "00000"
	require.NotEqual(t, wrong, book.code("12345678"))
	_, err = f.VerifyChallenge(ctx, "12345678", "pw1", wrong, challenge.ClientChallenge)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	me, err := f.GetClient(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, me.Verified)
}

func TestRecoveryScenario(t *testing.T) {
	f, book := newFacade(t)
	ctx := context.Background()

	c, err := f.CreateClient(ctx)
	require.NoError(t, err)
	_, err = f.RequestChallenge(ctx, c.ID, "12345678", "pw1")
	require.NoError(t, err)

	challenge, err := f.RequestRecoveryChallenge(ctx, "12345678", "pw1")
	require.NoError(t, err)
	got, err := f.VerifyChallenge(ctx, "12345678", "pw1", book.code("12345678"), challenge.ClientChallenge)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
}

func TestConcurrentRequestsOneWins(t *testing.T) {
	f, _ := newFacade(t)
	ctx := context.Background()

	const n = 8
	ids := make([]string, n)
	for i := range ids {
		c, err := f.CreateClient(ctx)
		require.NoError(t, err)
		ids[i] = c.ID
	}

	errs := make([]error, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := range ids {
		g.Go(func() error {
			_, errs[i] = f.RequestChallenge(gctx, ids[i], "12345678", fmt.Sprintf("pw%d", i))
			return nil
		})
	}
	require.NoError(t, g.Wait())

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrCredentialMismatch)
	}
	assert.Equal(t, 1, wins)
}

func TestMapConflict(t *testing.T) {
	raced := fmt.Errorf("claim mobile number: %w: %w", apperr.ErrConflict, store.ErrConflict)
	mapped := mapConflict(raced)
	assert.ErrorIs(t, mapped, apperr.ErrCredentialMismatch)
	assert.ErrorIs(t, mapped, store.ErrConflict)

	other := errors.New("boom")
	assert.Equal(t, other, mapConflict(other))
	assert.NoError(t, mapConflict(nil))
}

func TestReportDeliveryFailure(t *testing.T) {
	f, _ := newFacade(t)
	assert.ErrorIs(t, f.ReportDeliveryFailure(context.Background(), "unknown"), apperr.ErrNotFound)
}

func TestDeviceTokens(t *testing.T) {
	f, _ := newFacade(t)
	ctx := context.Background()

	c, err := f.CreateClient(ctx)
	require.NoError(t, err)
	dev, err := f.CreateDevice(ctx, c.ID, model.DeviceIOS)
	require.NoError(t, err)

	got, err := f.AuthenticateDevice(ctx, dev.Token)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	_, err = f.AuthenticateDevice(ctx, dev.DeviceID+".forged")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestLostClaimRaceIsCredentialMismatch(t *testing.T) {
	st := store.NewMemoryStore()
	f, book := newFacadeWithStore(t, lostRaceStore{st})
	ctx := context.Background()

	c, err := f.CreateClient(ctx)
	require.NoError(t, err)

	_, err = f.RequestChallenge(ctx, c.ID, "12345678", "pw1")
	assert.ErrorIs(t, err, apperr.ErrCredentialMismatch)
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.Empty(t, book.code("12345678"))

	me, err := f.GetClient(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, me.Verified)
	_, mobiles, attempts, _ := st.Counts()
	assert.Zero(t, mobiles+attempts)
}

func TestCreateClientWithDevice(t *testing.T) {
	f, _ := newFacade(t)
	ctx := context.Background()

	c, dev, err := f.CreateClientWithDevice(ctx, model.DeviceAndroid)
	require.NoError(t, err)
	assert.False(t, c.Verified)

	got, err := f.AuthenticateDevice(ctx, dev.Token)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
}
