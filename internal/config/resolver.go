// Package config merges the Odoo server config, the backup tool config
// and the command-line overrides into one resolved settings value.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/fgeck/odoodb/internal/models"
	"github.com/spf13/viper"
)

// ErrMissingSetting is wrapped by all errors reported for settings that
// are required by the requested action but resolvable from no source.
var ErrMissingSetting = errors.New("missing required setting")

// Built-in defaults, lowest precedence.
const (
	DefaultDBUser              = "odoo"
	DefaultDBHost              = "localhost"
	DefaultDBPort              = 5432
	DefaultBackupRetentionDays = 7
	DefaultLogRetentionDays    = 30
	DefaultLogMaxSizeMB        = 10
	DefaultLogMaxBackups       = 5
)

// dbNamePattern restricts database names to identifiers that are safe to
// hand to the PostgreSQL client utilities and to embed in the
// pg_terminate_backend query.
var dbNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Overrides carries the command-line flag values. Empty strings and the
// -1 retention sentinel mean "not set on the command line".
type Overrides struct {
	DBNames       string // comma-separated list
	FilestorePath string
	BackupDir     string
	DBUser        string
	DBHost        string
	DBPort        string
	DBPassword    string
	Format        string
	NoFilestore   bool
	DropExisting  bool
	RetentionDays int // -1 when not set
}

// Resolver builds a ResolvedConfig from the two optional config files and
// the command-line overrides.
type Resolver struct{}

// NewResolver creates a new configuration resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve reads the Odoo config (section [options]) and the backup config
// (sections [backup], [logging], [service], [telegram]) and merges them
// with the overrides. Precedence per key, highest first: CLI flag, backup
// config, Odoo config, built-in default. An empty path means the file was
// not given; a given but unreadable path is a fatal configuration error.
func (r *Resolver) Resolve(odooPath, backupPath string, o Overrides) (*models.ResolvedConfig, error) {
	odoo, err := loadINI(odooPath)
	if err != nil {
		return nil, fmt.Errorf("reading odoo config %s: %w", odooPath, err)
	}
	backup, err := loadINI(backupPath)
	if err != nil {
		return nil, fmt.Errorf("reading backup config %s: %w", backupPath, err)
	}

	cfg := &models.ResolvedConfig{}

	cfg.Connection.Host = pick(o.DBHost, backup.GetString("backup.db_host"), odoo.GetString("options.db_host"), DefaultDBHost)
	cfg.Connection.User = pick(o.DBUser, backup.GetString("backup.db_user"), odoo.GetString("options.db_user"), DefaultDBUser)
	cfg.Connection.Password = pick(o.DBPassword, expand(backup.GetString("backup.db_password")), expand(odoo.GetString("options.db_password")), "")

	port := pick(o.DBPort, backup.GetString("backup.db_port"), odoo.GetString("options.db_port"), strconv.Itoa(DefaultDBPort))
	cfg.Connection.Port, err = strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid db_port %q: %w", port, err)
	}

	// Database list: CLI > backup_db_names > odoo db_name.
	names := pick(o.DBNames, backup.GetString("backup.backup_db_names"), odoo.GetString("options.db_name"), "")
	cfg.Databases = splitNames(names)
	for _, db := range cfg.Databases {
		if err := ValidateDBName(db); err != nil {
			return nil, err
		}
	}

	// Filestore root: the Odoo config stores data_dir; the filestore
	// lives at <data_dir>/filestore.
	dataDir := odoo.GetString("options.data_dir")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dataDir = filepath.Join(home, ".local", "share", "Odoo")
	}
	cfg.FilestoreRoot = pick(o.FilestorePath, backup.GetString("backup.filestore_path"), "", filepath.Join(dataDir, "filestore"))

	cfg.BackupDir = pick(o.BackupDir, backup.GetString("backup.backup_dir"), "", "")

	cfg.DumpFormat = pick(o.Format, backup.GetString("backup.backup_format"), "", models.FormatCustom)
	if cfg.DumpFormat != models.FormatCustom && cfg.DumpFormat != models.FormatPlain {
		return nil, fmt.Errorf("backup_format must be one of: custom, plain (got %q)", cfg.DumpFormat)
	}

	cfg.IncludeFilestore = true
	if backup.IsSet("backup.backup_filestore") {
		cfg.IncludeFilestore = backup.GetBool("backup.backup_filestore")
	}
	if o.NoFilestore {
		cfg.IncludeFilestore = false
	}
	cfg.DropExisting = o.DropExisting

	cfg.BackupRetentionDays = DefaultBackupRetentionDays
	if backup.IsSet("backup.backup_retention_days") {
		cfg.BackupRetentionDays = backup.GetInt("backup.backup_retention_days")
	}
	if o.RetentionDays >= 0 {
		cfg.BackupRetentionDays = o.RetentionDays
	}

	cfg.Logging = models.LoggingConfig{
		FilePath:   pick("", expand(backup.GetString("logging.log_file")), expand(odoo.GetString("options.logfile")), ""),
		MaxSizeMB:  DefaultLogMaxSizeMB,
		MaxBackups: DefaultLogMaxBackups,
	}
	if backup.IsSet("logging.log_max_size_mb") {
		cfg.Logging.MaxSizeMB = backup.GetInt("logging.log_max_size_mb")
	}
	if backup.IsSet("logging.log_max_backups") {
		cfg.Logging.MaxBackups = backup.GetInt("logging.log_max_backups")
	}
	cfg.LogRetentionDays = DefaultLogRetentionDays
	if backup.IsSet("logging.log_retention_days") {
		cfg.LogRetentionDays = backup.GetInt("logging.log_retention_days")
	}

	if backup.IsSet("service.host") {
		cfg.Service = &models.ServiceControlConfig{
			Host:     backup.GetString("service.host"),
			Port:     backup.GetInt("service.port"),
			Username: backup.GetString("service.username"),
			KeyPath:  expand(backup.GetString("service.key_path")),
			Unit:     backup.GetString("service.unit"),
		}
		if cfg.Service.Port == 0 {
			cfg.Service.Port = 22
		}
		if cfg.Service.Username == "" {
			cfg.Service.Username = "root"
		}
		if cfg.Service.Unit == "" {
			cfg.Service.Unit = "odoo"
		}
		if cfg.Service.KeyPath == "" {
			return nil, fmt.Errorf("service.key_path is required when service is configured")
		}
	}

	if backup.IsSet("telegram.bot_token") {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: expand(backup.GetString("telegram.bot_token")),
			ChatID:   expand(backup.GetString("telegram.chat_id")),
		}
		if cfg.Telegram.BotToken == "" || cfg.Telegram.ChatID == "" {
			return nil, fmt.Errorf("telegram.bot_token and telegram.chat_id are required when telegram is configured")
		}
	}

	return cfg, nil
}

// loadINI returns a viper instance for the given INI file, or an empty
// one when no path was given.
func loadINI(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("ini")
	if path == "" {
		return v, nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return v, nil
}

// pick returns the first non-empty value in precedence order.
func pick(cli, backup, odoo, def string) string {
	for _, s := range []string{cli, backup, odoo} {
		if s != "" {
			return s
		}
	}
	return def
}

// expand expands environment variables in the format ${VAR} or $VAR.
func expand(s string) string {
	return os.ExpandEnv(s)
}

// splitNames splits a comma-separated database list, trimming whitespace
// and dropping duplicates while preserving order.
func splitNames(s string) []string {
	if s == "" {
		return nil
	}
	seen := make(map[string]bool)
	var names []string
	for _, part := range strings.Split(s, ",") {
		name := strings.TrimSpace(part)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// ValidateDBName rejects database names that are unsafe to pass to the
// PostgreSQL client utilities.
func ValidateDBName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: database name", ErrMissingSetting)
	}
	if !dbNamePattern.MatchString(name) {
		return fmt.Errorf("invalid database name %q: only letters, digits, '_' and '-' are allowed", name)
	}
	return nil
}

// ValidateForBackup checks the settings the backup action cannot run
// without, before any destructive operation begins.
func ValidateForBackup(cfg *models.ResolvedConfig) error {
	if len(cfg.Databases) == 0 {
		return fmt.Errorf("%w: no database names in config files or --db-name", ErrMissingSetting)
	}
	if cfg.BackupDir == "" {
		return fmt.Errorf("%w: backup_dir (set it in the backup config or pass --backup-dir)", ErrMissingSetting)
	}
	return nil
}
