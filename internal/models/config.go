// Package models contains the data structures used throughout odoodb.
package models

// ResolvedConfig is the merged view of the Odoo server config, the backup
// tool config and the command-line overrides. It is built once per
// invocation and never modified afterwards.
type ResolvedConfig struct {
	Connection    ConnectionConfig
	Databases     []string // databases the backup action operates on
	FilestoreRoot string
	BackupDir     string
	DumpFormat    string // "custom" (default) or "plain"

	IncludeFilestore bool
	DropExisting     bool

	BackupRetentionDays int
	LogRetentionDays    int

	Logging  LoggingConfig
	Service  *ServiceControlConfig // nil if not configured
	Telegram *TelegramConfig       // nil if not configured
}

// ConnectionConfig holds PostgreSQL connection parameters.
type ConnectionConfig struct {
	Host     string
	Port     int
	User     string
	Password string
}

// LoggingConfig holds log file settings. An empty FilePath disables
// file logging entirely.
type LoggingConfig struct {
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
}

// ServiceControlConfig holds SSH settings for stopping and starting the
// Odoo service around destructive operations.
type ServiceControlConfig struct {
	Host       string
	Port       int
	Username   string
	KeyPath    string
	PrivateKey []byte // loaded from KeyPath
	Unit       string // systemd unit name, e.g. "odoo"
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}
