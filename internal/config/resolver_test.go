package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fgeck/odoodb/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const odooINI = `
[options]
db_name = prod_db,staging_db
data_dir = /var/lib/odoo
db_user = odoo
db_host = odoo-pg
db_port = 5433
db_password = odoopass
admin_passwd = admin
logfile = /var/log/odoo/odoo.log
`

const backupINI = `
[backup]
backup_dir = /srv/backups
backup_db_names = sales_db,crm_db
backup_retention_days = 14

[logging]
log_file = /var/log/odoodb/odoodb.log
log_max_size_mb = 20
log_max_backups = 3
log_retention_days = 10
`

func TestResolve_Defaults(t *testing.T) {
	r := NewResolver()
	cfg, err := r.Resolve("", "", Overrides{RetentionDays: -1})

	require.NoError(t, err)
	assert.Equal(t, DefaultDBHost, cfg.Connection.Host)
	assert.Equal(t, DefaultDBPort, cfg.Connection.Port)
	assert.Equal(t, DefaultDBUser, cfg.Connection.User)
	assert.Empty(t, cfg.Connection.Password)
	assert.Empty(t, cfg.Databases)
	assert.Equal(t, models.FormatCustom, cfg.DumpFormat)
	assert.True(t, cfg.IncludeFilestore)
	assert.Equal(t, DefaultBackupRetentionDays, cfg.BackupRetentionDays)
	assert.Equal(t, DefaultLogRetentionDays, cfg.LogRetentionDays)
	assert.Contains(t, cfg.FilestoreRoot, "filestore")
	assert.Nil(t, cfg.Service)
	assert.Nil(t, cfg.Telegram)
}

func TestResolve_OdooConfigOnly(t *testing.T) {
	odoo := writeConfig(t, "odoo.conf", odooINI)

	r := NewResolver()
	cfg, err := r.Resolve(odoo, "", Overrides{RetentionDays: -1})

	require.NoError(t, err)
	assert.Equal(t, "odoo-pg", cfg.Connection.Host)
	assert.Equal(t, 5433, cfg.Connection.Port)
	assert.Equal(t, "odoopass", cfg.Connection.Password)
	assert.Equal(t, []string{"prod_db", "staging_db"}, cfg.Databases)
	assert.Equal(t, filepath.Join("/var/lib/odoo", "filestore"), cfg.FilestoreRoot)
	assert.Equal(t, "/var/log/odoo/odoo.log", cfg.Logging.FilePath)
}

func TestResolve_BackupConfigOverridesOdoo(t *testing.T) {
	odoo := writeConfig(t, "odoo.conf", odooINI)
	backup := writeConfig(t, "backup.conf", backupINI)

	r := NewResolver()
	cfg, err := r.Resolve(odoo, backup, Overrides{RetentionDays: -1})

	require.NoError(t, err)
	// backup_db_names wins over db_name.
	assert.Equal(t, []string{"sales_db", "crm_db"}, cfg.Databases)
	assert.Equal(t, "/srv/backups", cfg.BackupDir)
	assert.Equal(t, 14, cfg.BackupRetentionDays)
	// [logging] wins over the odoo logfile key.
	assert.Equal(t, "/var/log/odoodb/odoodb.log", cfg.Logging.FilePath)
	assert.Equal(t, 20, cfg.Logging.MaxSizeMB)
	assert.Equal(t, 3, cfg.Logging.MaxBackups)
	assert.Equal(t, 10, cfg.LogRetentionDays)
	// Connection keys still come from the odoo config.
	assert.Equal(t, "odoo-pg", cfg.Connection.Host)
}

func TestResolve_CLIOverridesEverything(t *testing.T) {
	odoo := writeConfig(t, "odoo.conf", odooINI)
	backup := writeConfig(t, "backup.conf", backupINI)

	r := NewResolver()
	cfg, err := r.Resolve(odoo, backup, Overrides{
		DBNames:       "cli_db",
		FilestorePath: "/mnt/filestore",
		BackupDir:     "/mnt/backups",
		DBUser:        "admin",
		DBHost:        "cli-host",
		DBPort:        "6543",
		DBPassword:    "clipass",
		Format:        models.FormatPlain,
		NoFilestore:   true,
		DropExisting:  true,
		RetentionDays: 30,
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"cli_db"}, cfg.Databases)
	assert.Equal(t, "/mnt/filestore", cfg.FilestoreRoot)
	assert.Equal(t, "/mnt/backups", cfg.BackupDir)
	assert.Equal(t, "admin", cfg.Connection.User)
	assert.Equal(t, "cli-host", cfg.Connection.Host)
	assert.Equal(t, 6543, cfg.Connection.Port)
	assert.Equal(t, "clipass", cfg.Connection.Password)
	assert.Equal(t, models.FormatPlain, cfg.DumpFormat)
	assert.False(t, cfg.IncludeFilestore)
	assert.True(t, cfg.DropExisting)
	assert.Equal(t, 30, cfg.BackupRetentionDays)
}

func TestResolve_RetentionZeroFromCLI(t *testing.T) {
	backup := writeConfig(t, "backup.conf", backupINI)

	r := NewResolver()
	cfg, err := r.Resolve("", backup, Overrides{RetentionDays: 0})

	require.NoError(t, err)
	assert.Equal(t, 0, cfg.BackupRetentionDays)
}

func TestResolve_SplitsAndDeduplicatesDBNames(t *testing.T) {
	r := NewResolver()
	cfg, err := r.Resolve("", "", Overrides{
		DBNames:       " sales_db , crm_db,sales_db, ,crm_db ",
		RetentionDays: -1,
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"sales_db", "crm_db"}, cfg.Databases)
}

func TestResolve_RejectsUnsafeDBName(t *testing.T) {
	r := NewResolver()
	_, err := r.Resolve("", "", Overrides{
		DBNames:       "sales'; DROP TABLE users--",
		RetentionDays: -1,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid database name")
}

func TestResolve_MissingConfigFileIsFatal(t *testing.T) {
	r := NewResolver()
	_, err := r.Resolve(filepath.Join(t.TempDir(), "nope.conf"), "", Overrides{RetentionDays: -1})
	require.Error(t, err)
}

func TestResolve_EnvExpansion(t *testing.T) {
	t.Setenv("ODOODB_TEST_PW", "supersecret")
	odoo := writeConfig(t, "odoo.conf", `
[options]
db_password = ${ODOODB_TEST_PW}
`)

	r := NewResolver()
	cfg, err := r.Resolve(odoo, "", Overrides{RetentionDays: -1})

	require.NoError(t, err)
	assert.Equal(t, "supersecret", cfg.Connection.Password)
}

func TestResolve_ServiceSection(t *testing.T) {
	backup := writeConfig(t, "backup.conf", `
[backup]
backup_dir = /srv/backups

[service]
host = odoo-app
key_path = /etc/odoodb/id_ed25519
`)

	r := NewResolver()
	cfg, err := r.Resolve("", backup, Overrides{RetentionDays: -1})

	require.NoError(t, err)
	require.NotNil(t, cfg.Service)
	assert.Equal(t, "odoo-app", cfg.Service.Host)
	assert.Equal(t, 22, cfg.Service.Port)
	assert.Equal(t, "root", cfg.Service.Username)
	assert.Equal(t, "odoo", cfg.Service.Unit)
}

func TestResolve_ServiceSectionRequiresKeyPath(t *testing.T) {
	backup := writeConfig(t, "backup.conf", `
[service]
host = odoo-app
`)

	r := NewResolver()
	_, err := r.Resolve("", backup, Overrides{RetentionDays: -1})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "service.key_path")
}

func TestResolve_TelegramSection(t *testing.T) {
	backup := writeConfig(t, "backup.conf", `
[telegram]
bot_token = 123:abc
chat_id = 42
`)

	r := NewResolver()
	cfg, err := r.Resolve("", backup, Overrides{RetentionDays: -1})

	require.NoError(t, err)
	require.NotNil(t, cfg.Telegram)
	assert.Equal(t, "123:abc", cfg.Telegram.BotToken)
	assert.Equal(t, "42", cfg.Telegram.ChatID)
}

func TestResolve_InvalidFormat(t *testing.T) {
	r := NewResolver()
	_, err := r.Resolve("", "", Overrides{Format: "tarball", RetentionDays: -1})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "backup_format")
}

func TestResolve_FilestoreDisabledInConfig(t *testing.T) {
	backup := writeConfig(t, "backup.conf", `
[backup]
backup_filestore = false
`)

	r := NewResolver()
	cfg, err := r.Resolve("", backup, Overrides{RetentionDays: -1})

	require.NoError(t, err)
	assert.False(t, cfg.IncludeFilestore)
}

func TestValidateForBackup(t *testing.T) {
	err := ValidateForBackup(&models.ResolvedConfig{})
	require.ErrorIs(t, err, ErrMissingSetting)

	err = ValidateForBackup(&models.ResolvedConfig{Databases: []string{"db"}})
	require.ErrorIs(t, err, ErrMissingSetting)

	err = ValidateForBackup(&models.ResolvedConfig{Databases: []string{"db"}, BackupDir: "/b"})
	require.NoError(t, err)
}

func TestValidateDBName(t *testing.T) {
	assert.NoError(t, ValidateDBName("sales_db"))
	assert.NoError(t, ValidateDBName("sales-db-2024"))
	assert.Error(t, ValidateDBName(""))
	assert.Error(t, ValidateDBName("sales db"))
	assert.Error(t, ValidateDBName("sales;db"))
	assert.Error(t, ValidateDBName("sales'db"))
}
