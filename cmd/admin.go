package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tinouy/kegtracker-backend/internal/repository/postgres"
	"github.com/tinouy/kegtracker-backend/internal/service"
	"github.com/tinouy/kegtracker-backend/pkg/hash"
	"github.com/tinouy/kegtracker-backend/pkg/validator"
)

// newCreateAdminCommand seeds the first GLOBAL_ADMIN. The password is read
// from KEGTRACKER_ADMIN_PASSWORD so it stays out of shell history.
func newCreateAdminCommand() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create the first global admin account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password := os.Getenv("KEGTRACKER_ADMIN_PASSWORD")
			if password == "" {
				return errors.New("KEGTRACKER_ADMIN_PASSWORD must be set")
			}
			req := service.CreateUserRequest{Email: email, Password: password}
			if err := validator.NewValidator().Validate(&req); err != nil {
				return err
			}

			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx := cmd.Context()
			db, err := postgres.Connect(ctx, cfg.Database.DSN(), 2, 1, cfg.Database.ConnRetries, log)
			if err != nil {
				return err
			}
			defer db.Close()

			users := service.NewUserService(
				postgres.NewUserRepository(db),
				postgres.NewBreweryRepository(db),
				hash.NewArgon2(hash.DefaultParams),
				nil,
				log,
			)
			admin, err := users.BootstrapGlobalAdmin(ctx, req.Email, req.Password)
			if err != nil {
				return err
			}

			log.Info("global admin created", zap.String("user_id", admin.ID.String()))
			fmt.Fprintf(cmd.OutOrStdout(), "created global admin %s\n", admin.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email address")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
