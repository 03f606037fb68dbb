package main

import (
	"fmt"
	"strings"

	"idportal/internal/apperr"
	"idportal/internal/database"
	"idportal/internal/model"
	"idportal/internal/repository"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		db, err := connect(cfg)
		if err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		return database.Migrate(db, log)
	},
}

var (
	adminName  string
	adminEmail string

	// createAdminCmd seeds the first administrator; everyone else is invited
	// through the API.
	createAdminCmd = &cobra.Command{
		Use:   "create-admin",
		Short: "Create an ADMIN account that can sign in with a magic link",
		RunE: func(cmd *cobra.Command, _ []string) error {
			email := strings.ToLower(strings.TrimSpace(adminEmail))
			if email == "" {
				return fmt.Errorf("--email is required")
			}

			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			db, err := connect(cfg)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			if err := database.Migrate(db, log); err != nil {
				return err
			}

			user := &model.User{Name: strings.TrimSpace(adminName), Email: email, Role: model.RoleAdmin}
			if user.Name == "" {
				user.Name = email
			}
			err = repository.NewUserRepository(db).Create(cmd.Context(), user)
			if apperr.Is(err, apperr.KindConflict) {
				log.Info("admin already exists", zap.String("email", email))
				return nil
			}
			if err != nil {
				return fmt.Errorf("create admin: %w", err)
			}
			log.Info("admin created", zap.String("id", user.ID.String()), zap.String("email", email))
			return nil
		},
	}
)

func init() {
	createAdminCmd.Flags().StringVar(&adminName, "name", "", "display name")
	createAdminCmd.Flags().StringVar(&adminEmail, "email", "", "sign-in email")
}
