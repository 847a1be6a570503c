package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/psds-microservice/cityfix-service/internal/config"
	"github.com/psds-microservice/cityfix-service/internal/database"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run PostgreSQL schema migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE:  runMigrate(database.MigrateUp),
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE:  runMigrate(database.MigrateDown),
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the state of every migration",
	RunE:  runMigrate(database.MigrateStatus),
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
}

func runMigrate(step func(ctx context.Context, databaseURL string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()
		if cfg.StoreDriver != config.StoreDriverPostgres {
			return errors.New("migrate: STORE_DRIVER must be postgres")
		}
		if err := step(cmd.Context(), cfg.DatabaseURL()); err != nil {
			return fmt.Errorf("migrate %s: %w", cmd.Name(), err)
		}
		log.Info("migrate: ok", zap.String("step", cmd.Name()))
		return nil
	}
}
