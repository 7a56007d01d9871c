package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fgeck/odoodb/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_WritesToLogFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "odoodb.log")

	logger := Setup(models.LoggingConfig{
		FilePath:   logPath,
		MaxSizeMB:  10,
		MaxBackups: 5,
	}, Options{JSON: true})

	logger.Info().Str("database", "sales_db").Msg("backup created")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"backup created"`)
	assert.Contains(t, string(data), `"database":"sales_db"`)
}

func TestSetup_NoFileWithoutPath(t *testing.T) {
	dir := t.TempDir()

	logger := Setup(models.LoggingConfig{}, Options{JSON: true})
	logger.Info().Msg("console only")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSetup_Levels(t *testing.T) {
	assert.Equal(t, zerolog.ErrorLevel, Setup(models.LoggingConfig{}, Options{Quiet: true}).GetLevel())
	assert.Equal(t, zerolog.DebugLevel, Setup(models.LoggingConfig{}, Options{Verbose: true}).GetLevel())
	assert.Equal(t, zerolog.InfoLevel, Setup(models.LoggingConfig{}, Options{}).GetLevel())
}

func TestSetup_QuietWinsOverVerbose(t *testing.T) {
	logger := Setup(models.LoggingConfig{}, Options{Quiet: true, Verbose: true})
	assert.Equal(t, zerolog.ErrorLevel, logger.GetLevel())
}
