package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/mentor-ticket-service/internal/persistence"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply SQL migrations to POSTGRES_DSN",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Postgres.DSN == "" {
			return errors.New("POSTGRES_DSN is required")
		}
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = cfg.Postgres.MigrationsDir
		}
		pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pg.Close()
		return persistence.RunMigrations(cmd.Context(), pg.PoolHandle(), dir, logger)
	},
}

func init() {
	migrateCmd.Flags().String("dir", "", "migrations directory (default POSTGRES_MIGRATIONS_DIR)")
}
