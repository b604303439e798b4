package main

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tinouy/kegtracker-backend/internal/config"
	"github.com/tinouy/kegtracker-backend/internal/handler"
	"github.com/tinouy/kegtracker-backend/internal/handler/middleware"
	"github.com/tinouy/kegtracker-backend/internal/metrics"
	"github.com/tinouy/kegtracker-backend/internal/repository/postgres"
	"github.com/tinouy/kegtracker-backend/internal/service"
	"github.com/tinouy/kegtracker-backend/pkg/blacklist"
	"github.com/tinouy/kegtracker-backend/pkg/email"
	"github.com/tinouy/kegtracker-backend/pkg/hash"
	"github.com/tinouy/kegtracker-backend/pkg/jwt"
	"github.com/tinouy/kegtracker-backend/pkg/validator"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return serve(cmd.Context(), cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	db, err := postgres.Connect(ctx, cfg.Database.DSN(), cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnRetries, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn("error closing database connection", zap.Error(err))
		}
	}()
	log.Info("database connection established")

	if cfg.Database.AutoMigrate {
		if err := postgres.MigrateUp(cfg.Database.DSN(), log); err != nil {
			return err
		}
	}

	clk := clock.New()
	checks := []handler.Check{{Name: "postgres", Ping: db.PingContext}}

	var consumed blacklist.Store
	if cfg.Redis.Enabled {
		client, err := initRedis(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := client.Close(); err != nil {
				log.Warn("error closing redis connection", zap.Error(err))
			}
		}()
		consumed = blacklist.NewRedisStore(client).WithRetention(cfg.JWT.ConsumedRetention)
		checks = append(checks, handler.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
		log.Info("redis connection established")
	} else {
		consumed = blacklist.NewMemoryStore(clk.Now).WithRetention(cfg.JWT.ConsumedRetention)
		log.Warn("redis disabled, consumed tokens are kept in memory")
	}

	sender, err := email.NewSender(&email.EmailConfig{
		Provider:  cfg.Email.Provider,
		APIKey:    cfg.Email.APIKey,
		Domain:    cfg.Email.Domain,
		FromEmail: cfg.Email.FromEmail,
		FromName:  cfg.Email.FromName,
		BaseURL:   cfg.Email.BaseURL,
		Timeout:   cfg.Email.SendTimeout,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to initialize email sender: %w", err)
	}
	notifier := email.NewNotifier(sender, cfg.Server.FrontendFQDN, cfg.Email.SendTimeout, log)
	log.Info("email sender initialized", zap.String("provider", cfg.Email.Provider))

	m := metrics.New()
	tokens := jwt.NewTokenService(cfg.JWT.Secret).WithClock(clk.Now)
	hasher := hash.NewArgon2(hash.DefaultParams)
	validate := validator.NewValidator()

	userRepo := postgres.NewUserRepository(db)
	breweryRepo := postgres.NewBreweryRepository(db)
	kegRepo := postgres.NewKegRepository(db)
	historyRepo := postgres.NewKegHistoryRepository(db)
	tx := postgres.NewTxManager(db)

	authService := service.NewAuthService(userRepo, breweryRepo, tokens, consumed, hasher, notifier, cfg.JWT.ResetTTL, log)
	inviteService := service.NewInviteService(userRepo, breweryRepo, tokens, consumed, hasher, notifier, clk, log)
	userService := service.NewUserService(userRepo, breweryRepo, hasher, clk, log)
	breweryService := service.NewBreweryService(breweryRepo, userRepo, kegRepo, clk, log)
	kegService := service.NewKegService(kegRepo, historyRepo, userRepo, breweryRepo, tx, m, clk, log)

	app := handler.NewApp(handler.AppConfig{
		Name:         "KegTracker",
		AllowOrigins: cfg.Server.AllowOrigins,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, log, m)

	handler.SetupRoutes(app, handler.Routes{
		Auth:         handler.NewAuthHandler(authService, validate, m),
		Invite:       handler.NewInviteHandler(inviteService, validate),
		User:         handler.NewUserHandler(userService, validate),
		Brewery:      handler.NewBreweryHandler(breweryService, validate),
		Keg:          handler.NewKegHandler(kegService, validate),
		Health:       handler.NewHealthHandler(2*time.Second, checks...),
		Metrics:      promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry}),
		Sessions:     authService,
		LoginLimiter: loginLimiter(cfg.RateLimit),
	})

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		log.Info("server starting", zap.String("addr", addr))
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}
	log.Info("shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

// loginLimiter returns nil, disabling throttling, when no rate is configured.
func loginLimiter(cfg config.RateLimitConfig) *middleware.IPRateLimiter {
	if cfg.LoginPerMinute <= 0 {
		return nil
	}
	return middleware.NewIPRateLimiter(rate.Limit(float64(cfg.LoginPerMinute)/60), cfg.LoginBurst)
}

func initRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return client, nil
}
