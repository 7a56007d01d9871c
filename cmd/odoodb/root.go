package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fgeck/odoodb/internal/config"
	"github.com/fgeck/odoodb/internal/logging"
	"github.com/fgeck/odoodb/internal/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "dev"

	// Configuration flags.
	odooConfigFile   string
	backupConfigFile string
	verbose          bool
	quiet            bool
	jsonOutput       bool

	// Override flags, applied on top of both config files.
	flagDBName        string
	flagSourceDB      string
	flagBackupFile    string
	flagFilestorePath string
	flagBackupDir     string
	flagDBUser        string
	flagDBHost        string
	flagDBPort        string
	flagDBPassword    string
	flagFormat        string
	flagDropExisting  bool
	flagNoFilestore   bool
	flagRetentionDays int
)

var rootCmd = &cobra.Command{
	Use:   "odoodb",
	Short: "Backup, restore, duplicate, drop and create Odoo databases",
	Long: `odoodb manages the lifecycle of self-hosted Odoo databases and their
filestore directories:
  - backup:    pg_dump + filestore into a ZIP archive, with retention
  - restore:   recreate a database and filestore from a backup archive
  - duplicate: copy a database and filestore without an intermediate file
  - drop_db:   drop a database and delete its filestore
  - create_db: create an empty database and filestore directory

Settings are merged from the Odoo server config, the backup tool config
and command-line flags, with flags taking the highest precedence. Stop the
Odoo service before restore, duplicate and drop_db actions (or configure
the [service] section to let odoodb do it over SSH).`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Console-only logger until the config files are resolved.
		log.Logger = logging.Setup(models.LoggingConfig{}, logging.Options{
			Verbose: verbose,
			Quiet:   quiet,
			JSON:    jsonOutput,
		})
	},
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&odooConfigFile, "odoo-config", "", "path to the Odoo configuration file")
	rootCmd.PersistentFlags().StringVar(&backupConfigFile, "backup-config", "", "path to the backup configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose (debug) output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "enable quiet mode (errors only)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output logs in JSON format")

	rootCmd.PersistentFlags().StringVar(&flagDBName, "db-name", "", "target database name(s), comma-separated for backup")
	rootCmd.PersistentFlags().StringVar(&flagFilestorePath, "filestore-path", "", "path to the Odoo filestore root (overrides config files)")
	rootCmd.PersistentFlags().StringVar(&flagBackupDir, "backup-dir", "", "directory for backup archives (overrides config files)")
	rootCmd.PersistentFlags().StringVar(&flagDBUser, "db-user", "", "PostgreSQL user (overrides config files)")
	rootCmd.PersistentFlags().StringVar(&flagDBHost, "db-host", "", "PostgreSQL host (overrides config files)")
	rootCmd.PersistentFlags().StringVar(&flagDBPort, "db-port", "", "PostgreSQL port (overrides config files)")
	rootCmd.PersistentFlags().StringVar(&flagDBPassword, "db-password", "", "PostgreSQL password (overrides config files)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "", "dump format: custom or plain")
	rootCmd.PersistentFlags().BoolVar(&flagDropExisting, "drop-existing", false, "drop an existing target database before restoring or duplicating")
	rootCmd.PersistentFlags().BoolVar(&flagNoFilestore, "no-filestore", false, "skip filestore handling")
	rootCmd.PersistentFlags().IntVar(&flagRetentionDays, "retention-days", -1, "days to retain backup archives (overrides backup config)")

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(duplicateCmd)
	rootCmd.AddCommand(dropDBCmd)
	rootCmd.AddCommand(createDBCmd)
	rootCmd.AddCommand(validateCmd)
}

// overrides collects the command-line flag values for the resolver.
func overrides() config.Overrides {
	return config.Overrides{
		DBNames:       flagDBName,
		FilestorePath: flagFilestorePath,
		BackupDir:     flagBackupDir,
		DBUser:        flagDBUser,
		DBHost:        flagDBHost,
		DBPort:        flagDBPort,
		DBPassword:    flagDBPassword,
		Format:        flagFormat,
		NoFilestore:   flagNoFilestore,
		DropExisting:  flagDropExisting,
		RetentionDays: flagRetentionDays,
	}
}

// resolveConfig merges the config files and flags and builds the logger
// from the resolved logging settings.
func resolveConfig() (*models.ResolvedConfig, zerolog.Logger, error) {
	cfg, err := config.NewResolver().Resolve(odooConfigFile, backupConfigFile, overrides())
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	logger := logging.Setup(cfg.Logging, logging.Options{
		Verbose: verbose,
		Quiet:   quiet,
		JSON:    jsonOutput,
	})
	log.Logger = logger

	return cfg, logger, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(logger zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
		cancel()
	}()

	return ctx, cancel
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
