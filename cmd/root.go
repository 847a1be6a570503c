package cmd

import (
	"fmt"

	"github.com/psds-microservice/cityfix-service/internal/application"
	"github.com/psds-microservice/cityfix-service/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:          "cityfix-service",
	Short:        "Municipal ticket intake: tenant resolution by location and ticket lifecycle",
	SilenceUsage: true,
	RunE:         runAPI,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(municipalityCmd)
}

// setup loads and validates the configuration and installs the process logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	log, err := application.NewLogger(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, log, nil
}
