package main

import (
	"fmt"

	"github.com/fgeck/odoodb/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var dropDBCmd = &cobra.Command{
	Use:   "drop_db",
	Short: "Drop a database and delete its filestore",
	Long: `Terminate all connections to the database named with --db-name, drop it
and delete its filestore directory. Dropping a nonexistent database is
not an error.`,
	RunE: runDropDB,
}

func runDropDB(cmd *cobra.Command, args []string) error {
	if flagDBName == "" {
		log.Error().Msg("--db-name is required for drop_db")
		return fmt.Errorf("--db-name is required")
	}

	cfg, logger, err := resolveConfig()
	if err != nil {
		log.Error().Err(err).Msg("failed to resolve configuration")
		return err
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	if err := runner.New(logger).Drop(ctx, *cfg, flagDBName); err != nil {
		logger.Error().Err(err).Msg("drop_db failed")
		return err
	}

	logger.Info().Str("database", flagDBName).Msg("database and filestore dropped")
	return nil
}
