package main

import (
	"fmt"

	"github.com/fgeck/odoodb/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore a database and filestore from a backup archive",
	Long: `Restore the archive given with --backup-file into the database named
with --db-name. The archive is integrity-checked before anything is
touched. The restored filestore is always placed under the target
database name, even when the archive was taken from a differently named
database. Pass --drop-existing to replace an existing target database.`,
	RunE: runRestore,
}

func init() {
	restoreCmd.Flags().StringVar(&flagBackupFile, "backup-file", "", "path to the backup ZIP file (required)")
}

func runRestore(cmd *cobra.Command, args []string) error {
	if flagBackupFile == "" {
		log.Error().Msg("--backup-file is required for restore")
		return fmt.Errorf("--backup-file is required")
	}
	if flagDBName == "" {
		log.Error().Msg("--db-name is required for restore")
		return fmt.Errorf("--db-name is required")
	}

	cfg, logger, err := resolveConfig()
	if err != nil {
		log.Error().Err(err).Msg("failed to resolve configuration")
		return err
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	if err := runner.New(logger).Restore(ctx, *cfg, flagBackupFile, flagDBName); err != nil {
		logger.Error().Err(err).Msg("restore failed")
		return err
	}

	logger.Info().Str("database", flagDBName).Msg("database and filestore restored")
	return nil
}
