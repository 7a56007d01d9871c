// Package retention deletes backup archives and rotated log files that
// have aged past their configured windows.
package retention

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fgeck/odoodb/internal/models"
	"github.com/fgeck/odoodb/internal/services/archive"
	"github.com/rs/zerolog"
)

// Service defines the interface for retention sweeps.
type Service interface {
	SweepBackups(dir string, retentionDays int) *models.SweepResult
	SweepLogs(logPath string, retentionDays int) *models.SweepResult
}

// Impl implements the retention Service interface.
type Impl struct {
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a new retention service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		logger: logger,
		now:    time.Now,
	}
}

// NewWithClock creates a retention service with a fixed clock (for testing).
func NewWithClock(logger zerolog.Logger, now func() time.Time) *Impl {
	return &Impl{
		logger: logger,
		now:    now,
	}
}

// SweepBackups deletes backup archives in dir strictly older than the
// retention window. Individual deletion failures are logged and skipped.
func (s *Impl) SweepBackups(dir string, retentionDays int) *models.SweepResult {
	matches, err := filepath.Glob(filepath.Join(dir, archive.Pattern))
	if err != nil {
		s.logger.Warn().Err(err).Str("dir", dir).Msg("backup sweep skipped")
		return &models.SweepResult{}
	}
	return s.sweep(matches, retentionDays, "backup")
}

// SweepLogs deletes rotated siblings of the active log file strictly
// older than the retention window. The active file is never deleted.
func (s *Impl) SweepLogs(logPath string, retentionDays int) *models.SweepResult {
	if logPath == "" {
		return &models.SweepResult{}
	}

	dir := filepath.Dir(logPath)
	base := filepath.Base(logPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	entries, err := os.ReadDir(dir)
	if err != nil {
		s.logger.Warn().Err(err).Str("dir", dir).Msg("log sweep skipped")
		return &models.SweepResult{}
	}

	var rotated []string
	for _, e := range entries {
		name := e.Name()
		if name == base || e.IsDir() {
			continue
		}
		// lumberjack rotates to <stem>-<timestamp><ext>, optionally .gz.
		if strings.HasPrefix(name, stem+"-") && (strings.HasSuffix(name, ext) || strings.HasSuffix(name, ext+".gz")) {
			rotated = append(rotated, filepath.Join(dir, name))
		}
	}

	return s.sweep(rotated, retentionDays, "log")
}

func (s *Impl) sweep(paths []string, retentionDays int, kind string) *models.SweepResult {
	cutoff := s.now().AddDate(0, 0, -retentionDays)
	result := &models.SweepResult{}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", p).Msgf("cannot stat %s file, skipping", kind)
			result.Skipped = append(result.Skipped, p)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(p); err != nil {
			s.logger.Warn().Err(err).Str("file", p).Msgf("cannot delete old %s file, skipping", kind)
			result.Skipped = append(result.Skipped, p)
			continue
		}
		s.logger.Info().Str("file", p).Time("mtime", info.ModTime()).Msgf("deleted old %s file", kind)
		result.Deleted = append(result.Deleted, p)
	}

	return result
}
