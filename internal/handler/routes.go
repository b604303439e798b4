package handler

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"

	"github.com/tinouy/kegtracker-backend/internal/handler/middleware"
)

// AppConfig carries the server options the router needs.
type AppConfig struct {
	Name         string
	AllowOrigins string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewApp builds a fiber app with the shared error handler and the global
// middleware chain. Metrics wraps the logger so it sees rendered statuses.
func NewApp(cfg AppConfig, log *zap.Logger, requests middleware.RequestObserver) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               cfg.Name,
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler(log),
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
	})

	if requests != nil {
		app.Use(middleware.MetricsMiddleware(requests))
	}
	app.Use(middleware.LoggerMiddleware(log))
	app.Use(middleware.RecoveryMiddleware(log))
	app.Use(middleware.CORSMiddleware(cfg.AllowOrigins))
	return app
}

// Routes groups everything SetupRoutes mounts.
type Routes struct {
	Auth     *AuthHandler
	Invite   *InviteHandler
	User     *UserHandler
	Brewery  *BreweryHandler
	Keg      *KegHandler
	Health   *HealthHandler
	Metrics  http.Handler
	Sessions middleware.Authenticator

	// LoginLimiter throttles login attempts per client IP; nil disables it.
	LoginLimiter *middleware.IPRateLimiter
}

func SetupRoutes(app *fiber.App, r Routes) {
	// Health checks (public)
	app.Get("/ping", r.Health.Ping)
	app.Get("/health", r.Health.Health)
	app.Get("/ready", r.Health.Ready)
	if r.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(r.Metrics))
	}

	api := app.Group("/api")
	requireAuth := middleware.AuthMiddleware(r.Sessions)

	auth := api.Group("/auth")
	if r.LoginLimiter != nil {
		auth.Post("/login", r.LoginLimiter.Handler(), r.Auth.Login)
	} else {
		auth.Post("/login", r.Auth.Login)
	}
	auth.Post("/forgot-password", r.Auth.ForgotPassword)
	auth.Post("/reset-password", r.Auth.ResetPassword)
	auth.Get("/reset-password/validate", r.Auth.ValidateResetToken)
	auth.Post("/change-password", requireAuth, r.Auth.ChangePassword)

	invite := api.Group("/invite")
	invite.Post("/generate", requireAuth, r.Invite.Generate)
	invite.Get("/validate", r.Invite.Validate)
	invite.Post("/register", r.Invite.Register)

	users := api.Group("/users", requireAuth)
	users.Get("/me", r.User.GetMe)
	users.Get("/", r.User.List)
	users.Post("/", r.User.Create)
	users.Patch("/:id", r.User.Update)
	users.Patch("/:id/activate", r.User.Activate)
	users.Patch("/:id/deactivate", r.User.Deactivate)
	users.Delete("/:id", r.User.Delete)

	breweries := api.Group("/breweries", requireAuth)
	breweries.Get("/", r.Brewery.List)
	breweries.Post("/", r.Brewery.Create)
	breweries.Patch("/:id/activate", r.Brewery.Activate)
	breweries.Patch("/:id/deactivate", r.Brewery.Deactivate)
	breweries.Delete("/:id", r.Brewery.Delete)

	kegs := api.Group("/kegs", requireAuth)
	kegs.Get("/", r.Keg.List)
	kegs.Post("/", r.Keg.Create)
	kegs.Get("/:id", r.Keg.Get)
	kegs.Put("/:id", r.Keg.Update)
	kegs.Patch("/:id", r.Keg.Update)
	kegs.Get("/:id/history", r.Keg.History)
	kegs.Delete("/:id", r.Keg.Delete)
}
