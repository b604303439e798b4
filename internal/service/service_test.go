package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tinouy/kegtracker-backend/internal/domain"
	"github.com/tinouy/kegtracker-backend/internal/repository/memory"
	"github.com/tinouy/kegtracker-backend/pkg/blacklist"
	"github.com/tinouy/kegtracker-backend/pkg/hash"
	"github.com/tinouy/kegtracker-backend/pkg/jwt"
)

var testParams = hash.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

const testPassword = "correct horse battery"

// fakeNotifier records outgoing mail. Links are the bare token so tests can
// replay them.
type fakeNotifier struct {
	mu      sync.Mutex
	invites []string
	resets  []string
}

func (n *fakeNotifier) InviteLink(token string) string { return token }
func (n *fakeNotifier) ResetLink(token string) string  { return token }

func (n *fakeNotifier) SendInvite(_, link string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.invites = append(n.invites, link)
}

func (n *fakeNotifier) SendPasswordReset(_, link string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets = append(n.resets, link)
}

type transition struct{ from, to domain.KegState }

type recordingObserver struct {
	mu   sync.Mutex
	seen []transition
}

func (o *recordingObserver) KegTransition(from, to domain.KegState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, transition{from, to})
}

type fixture struct {
	ctx      context.Context
	store    *memory.Store
	clock    *clock.Mock
	tokens   *jwt.TokenService
	hasher   *hash.Argon2
	notifier *fakeNotifier
	observer *recordingObserver

	auth      *AuthService
	invites   *InviteService
	users     *UserService
	breweries *BreweryService
	kegs      *KegService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := clock.NewMock()
	clk.Set(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))

	store := memory.NewStore()
	tokens := jwt.NewTokenService("test-secret").WithClock(clk.Now)
	consumed := blacklist.NewMemoryStore(clk.Now)
	hasher := hash.NewArgon2(testParams)
	notifier := &fakeNotifier{}
	observer := &recordingObserver{}
	logger := zap.NewNop()

	return &fixture{
		ctx:      context.Background(),
		store:    store,
		clock:    clk,
		tokens:   tokens,
		hasher:   hasher,
		notifier: notifier,
		observer: observer,

		auth:      NewAuthService(store.Users(), store.Breweries(), tokens, consumed, hasher, notifier, time.Hour, logger),
		invites:   NewInviteService(store.Users(), store.Breweries(), tokens, consumed, hasher, notifier, clk, logger),
		users:     NewUserService(store.Users(), store.Breweries(), hasher, clk, logger),
		breweries: NewBreweryService(store.Breweries(), store.Users(), store.Kegs(), clk, logger),
		kegs: NewKegService(store.Kegs(), store.KegHistory(), store.Users(), store.Breweries(),
			store.TxManager(), observer, clk, logger),
	}
}

func (f *fixture) brewery(t *testing.T, name string) uuid.UUID {
	t.Helper()
	b := &domain.Brewery{ID: uuid.New(), Name: name, Active: true, CreatedAt: f.clock.Now(), UpdatedAt: f.clock.Now()}
	require.NoError(t, f.store.Breweries().Create(f.ctx, b))
	return b.ID
}

func (f *fixture) user(t *testing.T, email string, role domain.Role, breweryID *uuid.UUID) domain.Actor {
	t.Helper()
	hashed, err := f.hasher.Hash(testPassword)
	require.NoError(t, err)
	// distinct creation times keep list ordering deterministic
	f.clock.Add(time.Second)
	u := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hashed,
		Role:         role,
		Active:       true,
		BreweryID:    breweryID,
		CreatedAt:    f.clock.Now(),
		UpdatedAt:    f.clock.Now(),
	}
	require.NoError(t, f.store.Users().Create(f.ctx, u))
	return domain.ActorFromUser(u)
}

func (f *fixture) keg(t *testing.T, actor domain.Actor, breweryID uuid.UUID) *domain.Keg {
	t.Helper()
	keg, err := f.kegs.Create(f.ctx, actor, kegRequest(breweryID))
	require.NoError(t, err)
	return keg
}

func kegRequest(breweryID uuid.UUID) KegRequest {
	return KegRequest{
		Name:           "K-01",
		Type:           domain.KegTypeKeg,
		Connector:      domain.KegConnectorS,
		Capacity:       50,
		CurrentContent: 50,
		BeerType:       "IPA",
		BreweryID:      breweryID.String(),
	}
}

func requireKind(t *testing.T, err error, kind domain.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, domain.KindOf(err), "error: %v", err)
}

func requireRule(t *testing.T, err error, rule domain.Rule) {
	t.Helper()
	requireKind(t, err, domain.KindForbidden)
	require.Equal(t, rule, domain.RuleOf(err))
}
