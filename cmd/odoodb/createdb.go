package main

import (
	"fmt"

	"github.com/fgeck/odoodb/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var createDBCmd = &cobra.Command{
	Use:   "create_db",
	Short: "Create an empty database and filestore directory",
	RunE:  runCreateDB,
}

func runCreateDB(cmd *cobra.Command, args []string) error {
	if flagDBName == "" {
		log.Error().Msg("--db-name is required for create_db")
		return fmt.Errorf("--db-name is required")
	}

	cfg, logger, err := resolveConfig()
	if err != nil {
		log.Error().Err(err).Msg("failed to resolve configuration")
		return err
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	if err := runner.New(logger).Create(ctx, *cfg, flagDBName); err != nil {
		logger.Error().Err(err).Msg("create_db failed")
		return err
	}

	logger.Info().Str("database", flagDBName).Msg("database and filestore directory created")
	return nil
}
