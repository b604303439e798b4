package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/tinouy/kegtracker-backend/internal/domain"
)

// newTestApp renders domain errors with a minimal status mapping.
func newTestApp() *fiber.App {
	return fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).SendString(fe.Message)
			}
			status := fiber.StatusInternalServerError
			switch domain.KindOf(err) {
			case domain.KindUnauthenticated:
				status = fiber.StatusUnauthorized
			case domain.KindNotFound:
				status = fiber.StatusNotFound
			}
			return c.Status(status).SendString(err.Error())
		},
	})
}

type authFunc func(ctx context.Context, token string) (domain.Actor, error)

func (f authFunc) Authenticate(ctx context.Context, token string) (domain.Actor, error) {
	return f(ctx, token)
}

func TestAuthMiddleware(t *testing.T) {
	want := domain.Actor{ID: uuid.New(), Email: "brewer@acme.test", Role: domain.RoleUser}
	auth := authFunc(func(_ context.Context, token string) (domain.Actor, error) {
		if token != "good" {
			return domain.Actor{}, domain.ErrNotAuthenticated
		}
		return want, nil
	})

	app := newTestApp()
	app.Get("/me", AuthMiddleware(auth), func(c *fiber.Ctx) error {
		actor, ok := ActorFrom(c)
		require.True(t, ok)
		return c.SendString(actor.Email)
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Token good", http.StatusUnauthorized},
		{"empty token", "Bearer   ", http.StatusUnauthorized},
		{"rejected token", "Bearer bad", http.StatusUnauthorized},
		{"valid token", "Bearer good", http.StatusOK},
		{"scheme is case insensitive", "bearer good", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tt.header)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			if tt.status == http.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				assert.Equal(t, want.Email, string(body))
			}
		})
	}
}

func TestActorFrom_Missing(t *testing.T) {
	app := newTestApp()
	app.Get("/", func(c *fiber.Ctx) error {
		_, ok := ActorFrom(c)
		assert.False(t, ok)
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestIPRateLimiter_Handler(t *testing.T) {
	limiter := NewIPRateLimiter(rate.Every(time.Minute), 2)
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	app := newTestApp()
	app.Post("/login", limiter.Handler(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/login", nil), -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/login", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get(fiber.HeaderRetryAfter))

	now = now.Add(time.Minute)
	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/login", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIPRateLimiter_PerIPAndPruning(t *testing.T) {
	limiter := NewIPRateLimiter(rate.Every(time.Minute), 1)
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.allow("10.0.0.1"))
	assert.False(t, limiter.allow("10.0.0.1"))
	assert.True(t, limiter.allow("10.0.0.2"))
	assert.Len(t, limiter.visitors, 2)

	now = now.Add(limiter.idleTTL + time.Second)
	assert.True(t, limiter.allow("10.0.0.3"))
	assert.Len(t, limiter.visitors, 1)
}

func TestLoggerMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	app := newTestApp()
	app.Use(LoggerMiddleware(zap.New(core)))
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/missing", func(c *fiber.Ctx) error { return domain.ErrKegNotFound })

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "req-123", resp.Header.Get(HeaderRequestID))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/missing", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(HeaderRequestID))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "req-123", entries[0].ContextMap()["request_id"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.EqualValues(t, http.StatusNotFound, entries[1].ContextMap()["status"])
}

func TestRecoveryMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)

	app := newTestApp()
	app.Use(RecoveryMiddleware(zap.New(core)))
	app.Get("/boom", func(c *fiber.Ctx) error { panic("keg exploded") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

type observation struct {
	route, method string
	status        int
}

type fakeObserver struct {
	mu   sync.Mutex
	seen []observation
}

func (o *fakeObserver) ObserveRequest(route, method string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, observation{route, method, status})
}

func TestMetricsMiddleware(t *testing.T) {
	obs := &fakeObserver{}

	app := newTestApp()
	app.Use(MetricsMiddleware(obs))
	app.Use(LoggerMiddleware(zap.NewNop()))
	app.Get("/kegs/:id", func(c *fiber.Ctx) error { return domain.ErrKegNotFound })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/kegs/"+uuid.NewString(), nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.Len(t, obs.seen, 1)
	assert.Equal(t, observation{"/kegs/:id", http.MethodGet, http.StatusNotFound}, obs.seen[0])
}
