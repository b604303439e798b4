package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tinouy/kegtracker-backend/internal/domain"
	"github.com/tinouy/kegtracker-backend/internal/metrics"
	"github.com/tinouy/kegtracker-backend/internal/repository/memory"
	"github.com/tinouy/kegtracker-backend/internal/service"
	"github.com/tinouy/kegtracker-backend/pkg/blacklist"
	"github.com/tinouy/kegtracker-backend/pkg/hash"
	"github.com/tinouy/kegtracker-backend/pkg/jwt"
	"github.com/tinouy/kegtracker-backend/pkg/validator"
)

const testPassword = "correct horse battery"

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

type testServer struct {
	app      *fiber.App
	store    *memory.Store
	tokens   *jwt.TokenService
	hasher   *hash.Argon2
	notifier *fakeNotifier
	clock    *clock.Mock
}

func newTestServer(t *testing.T, checks ...Check) *testServer {
	t.Helper()

	clk := clock.NewMock()
	clk.Set(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))

	store := memory.NewStore()
	tokens := jwt.NewTokenService("test-secret").WithClock(clk.Now)
	consumed := blacklist.NewMemoryStore(clk.Now)
	hasher := hash.NewArgon2(hash.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	notifier := &fakeNotifier{}
	m := metrics.New()
	log := zap.NewNop()
	v := validator.NewValidator()

	authService := service.NewAuthService(store.Users(), store.Breweries(), tokens, consumed, hasher, notifier, time.Hour, log)
	inviteService := service.NewInviteService(store.Users(), store.Breweries(), tokens, consumed, hasher, notifier, clk, log)
	userService := service.NewUserService(store.Users(), store.Breweries(), hasher, clk, log)
	breweryService := service.NewBreweryService(store.Breweries(), store.Users(), store.Kegs(), clk, log)
	kegService := service.NewKegService(store.Kegs(), store.KegHistory(), store.Users(), store.Breweries(),
		store.TxManager(), m, clk, log)

	app := NewApp(AppConfig{Name: "test"}, log, m)
	SetupRoutes(app, Routes{
		Auth:     NewAuthHandler(authService, v, m),
		Invite:   NewInviteHandler(inviteService, v),
		User:     NewUserHandler(userService, v),
		Brewery:  NewBreweryHandler(breweryService, v),
		Keg:      NewKegHandler(kegService, v),
		Health:   NewHealthHandler(time.Second, checks...),
		Metrics:  promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
		Sessions: authService,
	})

	return &testServer{app: app, store: store, tokens: tokens, hasher: hasher, notifier: notifier, clock: clk}
}

func (s *testServer) brewery(t *testing.T, name string) uuid.UUID {
	t.Helper()
	b := &domain.Brewery{ID: uuid.New(), Name: name, Active: true, CreatedAt: s.clock.Now(), UpdatedAt: s.clock.Now()}
	require.NoError(t, s.store.Breweries().Create(context.Background(), b))
	return b.ID
}

// user stores an active user and returns it with a session token.
func (s *testServer) user(t *testing.T, email string, role domain.Role, breweryID *uuid.UUID) (*domain.User, string) {
	t.Helper()
	hashed, err := s.hasher.Hash(testPassword)
	require.NoError(t, err)
	s.clock.Add(time.Second)
	u := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hashed,
		Role:         role,
		Active:       true,
		BreweryID:    breweryID,
		CreatedAt:    s.clock.Now(),
		UpdatedAt:    s.clock.Now(),
	}
	require.NoError(t, s.store.Users().Create(context.Background(), u))

	token, err := s.tokens.GenerateSessionToken(u, nil)
	require.NoError(t, err)
	return u, token
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func requireError(t *testing.T, resp *http.Response, status int, kind domain.ErrorKind) ErrorResponse {
	t.Helper()
	require.Equal(t, status, resp.StatusCode)
	body := decode[ErrorResponse](t, resp)
	require.Equal(t, string(kind), body.Code)
	return body
}

func TestLoginAndMe(t *testing.T) {
	s := newTestServer(t)
	acme := s.brewery(t, "Acme Brewing")
	s.user(t, "brewer@acme.test", domain.RoleUser, &acme)

	resp := s.do(t, http.MethodPost, "/api/auth/login", "", service.LoginRequest{Email: "Brewer@Acme.test", Password: testPassword})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	session := decode[domain.SessionToken](t, resp)
	assert.Equal(t, "bearer", session.TokenType)
	require.NotEmpty(t, session.AccessToken)

	resp = s.do(t, http.MethodGet, "/api/users/me", session.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decode[map[string]interface{}](t, resp)
	assert.Equal(t, "brewer@acme.test", me["email"])
	assert.NotContains(t, me, "password_hash")

	resp = s.do(t, http.MethodGet, "/api/users/me", "", nil)
	requireError(t, resp, http.StatusUnauthorized, domain.KindUnauthenticated)

	resp = s.do(t, http.MethodGet, "/api/users/me", "not-a-token", nil)
	requireError(t, resp, http.StatusUnauthorized, domain.KindUnauthenticated)
}

func TestLoginFailuresLookAlike(t *testing.T) {
	s := newTestServer(t)
	acme := s.brewery(t, "Acme Brewing")
	inactive, _ := s.user(t, "gone@acme.test", domain.RoleUser, &acme)
	inactive.Active = false
	require.NoError(t, s.store.Users().Update(context.Background(), inactive))
	s.user(t, "brewer@acme.test", domain.RoleUser, &acme)

	attempts := []service.LoginRequest{
		{Email: "brewer@acme.test", Password: "wrong password"},
		{Email: "nobody@acme.test", Password: testPassword},
		{Email: "gone@acme.test", Password: testPassword},
	}
	var messages []string
	for _, req := range attempts {
		resp := s.do(t, http.MethodPost, "/api/auth/login", "", req)
		body := requireError(t, resp, http.StatusUnauthorized, domain.KindUnauthenticated)
		messages = append(messages, body.Error)
	}
	assert.Equal(t, messages[0], messages[1])
	assert.Equal(t, messages[0], messages[2])
}

func TestDeactivatedSessionIsRejected(t *testing.T) {
	s := newTestServer(t)
	acme := s.brewery(t, "Acme Brewing")
	_, adminToken := s.user(t, "admin@acme.test", domain.RoleAdmin, &acme)
	brewer, brewerToken := s.user(t, "brewer@acme.test", domain.RoleUser, &acme)

	resp := s.do(t, http.MethodPatch, "/api/users/"+brewer.ID.String()+"/deactivate", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decode[domain.User](t, resp).Active)

	resp = s.do(t, http.MethodGet, "/api/kegs", brewerToken, nil)
	requireError(t, resp, http.StatusUnauthorized, domain.KindUnauthenticated)
}

func TestForbiddenCarriesRule(t *testing.T) {
	s := newTestServer(t)
	acme := s.brewery(t, "Acme Brewing")
	ga, gaToken := s.user(t, "root@kegtracker.test", domain.RoleGlobalAdmin, nil)
	_, adminToken := s.user(t, "admin@acme.test", domain.RoleAdmin, &acme)
	_, brewerToken := s.user(t, "brewer@acme.test", domain.RoleUser, &acme)

	resp := s.do(t, http.MethodGet, "/api/users", brewerToken, nil)
	body := requireError(t, resp, http.StatusForbidden, domain.KindForbidden)
	assert.Equal(t, string(domain.RuleRoleCapability), body.Rule)

	resp = s.do(t, http.MethodDelete, "/api/users/"+ga.ID.String(), gaToken, nil)
	body = requireError(t, resp, http.StatusForbidden, domain.KindForbidden)
	assert.Equal(t, string(domain.RuleSelfProtection), body.Rule)

	resp = s.do(t, http.MethodDelete, "/api/users/"+ga.ID.String(), adminToken, nil)
	body = requireError(t, resp, http.StatusForbidden, domain.KindForbidden)
	assert.Equal(t, string(domain.RuleGlobalAdminTarget), body.Rule)

	resp = s.do(t, http.MethodDelete, "/api/users/"+uuid.NewString(), brewerToken, nil)
	requireError(t, resp, http.StatusNotFound, domain.KindNotFound)
}

func TestKegLifecycle(t *testing.T) {
	s := newTestServer(t)
	acme := s.brewery(t, "Acme Brewing")
	_, modToken := s.user(t, "mod@acme.test", domain.RoleModerator, &acme)
	_, brewerToken := s.user(t, "brewer@acme.test", domain.RoleUser, &acme)

	create := service.KegRequest{
		Name:           "K-01",
		Type:           domain.KegTypeKeg,
		Connector:      domain.KegConnectorS,
		Capacity:       50,
		CurrentContent: 50,
		BeerType:       "IPA",
		BreweryID:      acme.String(),
	}
	resp := s.do(t, http.MethodPost, "/api/kegs", modToken, create)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	keg := decode[domain.Keg](t, resp)
	assert.Equal(t, domain.KegStateReady, keg.State)

	update := create
	update.State = domain.KegStateInUse
	update.CurrentContent = 20
	resp = s.do(t, http.MethodPut, "/api/kegs/"+keg.ID.String(), brewerToken, update)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.KegStateInUse, decode[domain.Keg](t, resp).State)

	resp = s.do(t, http.MethodGet, "/api/kegs/"+keg.ID.String()+"/history", brewerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := decode[[]domain.KegHistoryEntry](t, resp)
	require.Len(t, history, 1)
	assert.Equal(t, domain.KegStateReady, history[0].OldState)
	assert.Equal(t, domain.KegStateInUse, history[0].NewState)

	resp = s.do(t, http.MethodGet, "/api/kegs?state=in_use", brewerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]domain.Keg](t, resp), 1)

	resp = s.do(t, http.MethodGet, "/api/kegs?limit=500", brewerToken, nil)
	requireError(t, resp, http.StatusBadRequest, domain.KindValidation)

	resp = s.do(t, http.MethodDelete, "/api/kegs/"+keg.ID.String(), brewerToken, nil)
	body := requireError(t, resp, http.StatusForbidden, domain.KindForbidden)
	assert.Equal(t, string(domain.RuleRoleCapability), body.Rule)

	resp = s.do(t, http.MethodDelete, "/api/kegs/"+keg.ID.String(), modToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[SuccessResponse](t, resp).Success)
}

func TestKegUpdateVersionConflict(t *testing.T) {
	s := newTestServer(t)
	acme := s.brewery(t, "Acme Brewing")
	_, adminToken := s.user(t, "admin@acme.test", domain.RoleAdmin, &acme)

	req := service.KegRequest{
		Name:      "K-02",
		Type:      domain.KegTypeCorni,
		Connector: domain.KegConnectorBallLock,
		Capacity:  19,
		BreweryID: acme.String(),
	}
	resp := s.do(t, http.MethodPost, "/api/kegs", adminToken, req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	keg := decode[domain.Keg](t, resp)

	stale := keg.Version - 1
	req.State = domain.KegStateDirty
	req.Version = &stale
	resp = s.do(t, http.MethodPatch, "/api/kegs/"+keg.ID.String(), adminToken, req)
	requireError(t, resp, http.StatusConflict, domain.KindConflict)
}

func TestRequestValidation(t *testing.T) {
	s := newTestServer(t)
	acme := s.brewery(t, "Acme Brewing")
	_, adminToken := s.user(t, "admin@acme.test", domain.RoleAdmin, &acme)

	resp := s.do(t, http.MethodPost, "/api/kegs", adminToken, map[string]interface{}{
		"name":      "K-03",
		"type":      "barrel",
		"connector": "S",
		"capacity":  50,
	})
	requireError(t, resp, http.StatusBadRequest, domain.KindValidation)

	resp = s.do(t, http.MethodGet, "/api/kegs/not-a-uuid", adminToken, nil)
	requireError(t, resp, http.StatusBadRequest, domain.KindValidation)

	resp = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "nope"})
	requireError(t, resp, http.StatusBadRequest, domain.KindValidation)
}

func TestPasswordResetIsSingleUse(t *testing.T) {
	s := newTestServer(t)
	acme := s.brewery(t, "Acme Brewing")
	s.user(t, "brewer@acme.test", domain.RoleUser, &acme)

	resp := s.do(t, http.MethodPost, "/api/auth/forgot-password", "", service.ForgotPasswordRequest{Email: "brewer@acme.test"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = s.do(t, http.MethodPost, "/api/auth/forgot-password", "", service.ForgotPasswordRequest{Email: "nobody@acme.test"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, s.notifier.resets, 1)
	token := s.notifier.resets[0]

	resp = s.do(t, http.MethodGet, "/api/auth/reset-password/validate?token="+token, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reset := service.ResetPasswordRequest{Token: token, Password: "a brand new secret"}
	resp = s.do(t, http.MethodPost, "/api/auth/reset-password", "", reset)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/auth/reset-password", "", reset)
	requireError(t, resp, http.StatusBadRequest, domain.KindTokenAlreadyUsed)

	resp = s.do(t, http.MethodGet, "/api/auth/reset-password/validate?token="+token, "", nil)
	requireError(t, resp, http.StatusBadRequest, domain.KindTokenAlreadyUsed)

	resp = s.do(t, http.MethodPost, "/api/auth/login", "", service.LoginRequest{Email: "brewer@acme.test", Password: "a brand new secret"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestExpiredResetToken(t *testing.T) {
	s := newTestServer(t)
	acme := s.brewery(t, "Acme Brewing")
	s.user(t, "brewer@acme.test", domain.RoleUser, &acme)

	resp := s.do(t, http.MethodPost, "/api/auth/forgot-password", "", service.ForgotPasswordRequest{Email: "brewer@acme.test"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, s.notifier.resets, 1)

	s.clock.Add(2 * time.Hour)
	resp = s.do(t, http.MethodPost, "/api/auth/reset-password", "", service.ResetPasswordRequest{
		Token:    s.notifier.resets[0],
		Password: "a brand new secret",
	})
	requireError(t, resp, http.StatusBadRequest, domain.KindTokenExpired)
}

func TestInviteRegistration(t *testing.T) {
	s := newTestServer(t)
	acme := s.brewery(t, "Acme Brewing")
	_, adminToken := s.user(t, "admin@acme.test", domain.RoleAdmin, &acme)

	resp := s.do(t, http.MethodPost, "/api/invite/generate", "", service.InviteRequest{Email: "new@acme.test", BreweryID: acme.String()})
	requireError(t, resp, http.StatusUnauthorized, domain.KindUnauthenticated)

	resp = s.do(t, http.MethodPost, "/api/invite/generate", adminToken, service.InviteRequest{
		Email:     "new@acme.test",
		BreweryID: acme.String(),
		Role:      domain.RoleGlobalAdmin,
	})
	body := requireError(t, resp, http.StatusForbidden, domain.KindForbidden)
	assert.Equal(t, string(domain.RuleGlobalAdminAssignment), body.Rule)

	resp = s.do(t, http.MethodPost, "/api/invite/generate", adminToken, service.InviteRequest{
		Email:     "new@acme.test",
		BreweryID: acme.String(),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	invite := decode[service.InviteResponse](t, resp)

	resp = s.do(t, http.MethodGet, "/api/invite/validate?token="+invite.InviteLink, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	details := decode[service.InviteDetails](t, resp)
	assert.True(t, details.Valid)
	assert.Equal(t, "new@acme.test", details.Email)
	assert.Equal(t, domain.RoleUser, details.Role)

	register := service.RegisterRequest{Token: invite.InviteLink, Password: testPassword}
	resp = s.do(t, http.MethodPost, "/api/invite/register", "", register)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[domain.User](t, resp)
	require.NotNil(t, created.BreweryID)
	assert.Equal(t, acme, *created.BreweryID)

	resp = s.do(t, http.MethodPost, "/api/invite/register", "", register)
	requireError(t, resp, http.StatusBadRequest, domain.KindTokenAlreadyUsed)
}

func TestBreweryDeleteWithDependents(t *testing.T) {
	s := newTestServer(t)
	acme := s.brewery(t, "Acme Brewing")
	_, gaToken := s.user(t, "root@kegtracker.test", domain.RoleGlobalAdmin, nil)
	s.user(t, "brewer@acme.test", domain.RoleUser, &acme)

	resp := s.do(t, http.MethodPost, "/api/breweries", gaToken, service.CreateBreweryRequest{Name: "Empty Barn"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	empty := decode[domain.Brewery](t, resp)

	resp = s.do(t, http.MethodPost, "/api/breweries", gaToken, service.CreateBreweryRequest{Name: "Acme Brewing"})
	requireError(t, resp, http.StatusConflict, domain.KindConflict)

	resp = s.do(t, http.MethodDelete, "/api/breweries/"+acme.String(), gaToken, nil)
	requireError(t, resp, http.StatusConflict, domain.KindConflict)

	resp = s.do(t, http.MethodDelete, "/api/breweries/"+empty.ID.String(), gaToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/breweries", gaToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]domain.Brewery](t, resp), 1)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/api/nothing-here", "", nil)
	requireError(t, resp, http.StatusNotFound, domain.KindNotFound)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestHealthEndpoints(t *testing.T) {
	up := Check{Name: "postgres", Ping: func(context.Context) error { return nil }}
	down := Check{Name: "redis", Ping: func(context.Context) error { return errors.New("connection refused") }}

	s := newTestServer(t, up)
	resp := s.do(t, http.MethodGet, "/ping", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/ready", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	s = newTestServer(t, up, down)
	resp = s.do(t, http.MethodGet, "/ready", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body := decode[map[string]interface{}](t, resp)
	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "ok", checks["postgres"])
	assert.Equal(t, "connection refused", checks["redis"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	acme := s.brewery(t, "Acme Brewing")
	s.user(t, "brewer@acme.test", domain.RoleUser, &acme)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/ping", "", nil).StatusCode)
	s.do(t, http.MethodPost, "/api/auth/login", "", service.LoginRequest{Email: "brewer@acme.test", Password: "wrong password"})

	resp := s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := string(raw)

	assert.Contains(t, out, `kegtracker_http_requests_total{method="GET",route="/ping",status="200"} 1`)
	assert.Contains(t, out, `kegtracker_http_requests_total{method="POST",route="/api/auth/login",status="401"} 1`)
	assert.Contains(t, out, `kegtracker_auth_login_attempts_total{outcome="failure"} 1`)
}
