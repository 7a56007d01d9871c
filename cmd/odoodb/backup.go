package main

import (
	"github.com/fgeck/odoodb/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up databases and filestores into ZIP archives",
	Long: `Back up every configured database (backup_db_names, db_name or
--db-name) into backup_<db>_<timestamp>.zip in the backup directory, each
archive pairing the database dump with the database's filestore tree.
Archives older than the retention window are deleted afterwards.`,
	RunE: runBackup,
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, logger, err := resolveConfig()
	if err != nil {
		log.Error().Err(err).Msg("failed to resolve configuration")
		return err
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	if err := runner.New(logger).Backup(ctx, *cfg); err != nil {
		logger.Error().Err(err).Msg("backup failed")
		return err
	}

	logger.Info().Msg("backup completed successfully")
	return nil
}
