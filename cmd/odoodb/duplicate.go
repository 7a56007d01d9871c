package main

import (
	"fmt"

	"github.com/fgeck/odoodb/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var duplicateCmd = &cobra.Command{
	Use:   "duplicate",
	Short: "Duplicate a database and its filestore",
	Long: `Copy the database named with --source-db into a new database named with
--db-name, piping the dump directly into the target without writing an
intermediate archive, then copy the filestore under the target name. Pass
--drop-existing to replace an existing target database.`,
	RunE: runDuplicate,
}

func init() {
	duplicateCmd.Flags().StringVar(&flagSourceDB, "source-db", "", "name of the source database (required)")
}

func runDuplicate(cmd *cobra.Command, args []string) error {
	if flagSourceDB == "" {
		log.Error().Msg("--source-db is required for duplicate")
		return fmt.Errorf("--source-db is required")
	}
	if flagDBName == "" {
		log.Error().Msg("--db-name is required for duplicate")
		return fmt.Errorf("--db-name is required")
	}

	cfg, logger, err := resolveConfig()
	if err != nil {
		log.Error().Err(err).Msg("failed to resolve configuration")
		return err
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	if err := runner.New(logger).Duplicate(ctx, *cfg, flagSourceDB, flagDBName); err != nil {
		logger.Error().Err(err).Msg("duplicate failed")
		return err
	}

	logger.Info().Str("source", flagSourceDB).Str("target", flagDBName).Msg("database duplicated with filestore")
	return nil
}
