// Package runner orchestrates the lifecycle actions, wiring the database,
// filestore, archive, retention, service-control and notification
// services into one linear pipeline per action.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fgeck/odoodb/internal/config"
	"github.com/fgeck/odoodb/internal/models"
	"github.com/fgeck/odoodb/internal/services/archive"
	"github.com/fgeck/odoodb/internal/services/filestore"
	"github.com/fgeck/odoodb/internal/services/postgres"
	"github.com/fgeck/odoodb/internal/services/retention"
	"github.com/fgeck/odoodb/internal/services/sshctl"
	"github.com/fgeck/odoodb/internal/services/telegram"
	"github.com/rs/zerolog"
)

// Service defines the interface for the action runner.
type Service interface {
	Backup(ctx context.Context, cfg models.ResolvedConfig) error
	Restore(ctx context.Context, cfg models.ResolvedConfig, backupFile, target string) error
	Duplicate(ctx context.Context, cfg models.ResolvedConfig, source, target string) error
	Drop(ctx context.Context, cfg models.ResolvedConfig, db string) error
	Create(ctx context.Context, cfg models.ResolvedConfig, db string) error
}

// Impl implements the runner Service interface.
type Impl struct {
	dbSvc        postgres.Service
	archiveSvc   archive.Service
	retentionSvc retention.Service
	sshSvc       sshctl.Service
	telegramSvc  telegram.Service
	newFilestore func(root string) filestore.Service
	logger       zerolog.Logger
	tempDir      string
	now          func() time.Time
}

// New creates a new runner service with the default service wiring.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		dbSvc:        postgres.New(logger),
		archiveSvc:   archive.New(logger),
		retentionSvc: retention.New(logger),
		sshSvc:       sshctl.New(logger),
		telegramSvc:  telegram.New(logger),
		newFilestore: func(root string) filestore.Service { return filestore.New(logger, root) },
		logger:       logger,
		tempDir:      os.TempDir(),
		now:          time.Now,
	}
}

// NewWithServices creates a runner with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	dbSvc postgres.Service,
	archiveSvc archive.Service,
	retentionSvc retention.Service,
	sshSvc sshctl.Service,
	telegramSvc telegram.Service,
	newFilestore func(root string) filestore.Service,
	tempDir string,
) *Impl {
	return &Impl{
		dbSvc:        dbSvc,
		archiveSvc:   archiveSvc,
		retentionSvc: retentionSvc,
		sshSvc:       sshSvc,
		telegramSvc:  telegramSvc,
		newFilestore: newFilestore,
		logger:       logger,
		tempDir:      tempDir,
		now:          time.Now,
	}
}

// Backup dumps and packs every configured database, then sweeps the
// backup directory.
func (s *Impl) Backup(ctx context.Context, cfg models.ResolvedConfig) error {
	start := s.now()
	archives, err := s.backup(ctx, cfg)
	s.notify(ctx, cfg, models.TelegramMessage{
		Action:    "backup",
		Databases: cfg.Databases,
		Archives:  archives,
		StartTime: start,
	}, err)
	return err
}

func (s *Impl) backup(ctx context.Context, cfg models.ResolvedConfig) ([]string, error) {
	if err := config.ValidateForBackup(&cfg); err != nil {
		return nil, err
	}
	s.sweepLogs(cfg)

	scratch, err := os.MkdirTemp(s.tempDir, "odoodb-backup-")
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	fs := s.newFilestore(cfg.FilestoreRoot)

	var archives []string
	for _, db := range cfg.Databases {
		ext := ".dump"
		if cfg.DumpFormat == models.FormatPlain {
			ext = ".sql"
		}
		dumpPath := filepath.Join(scratch, db+ext)

		dump, err := s.dbSvc.Dump(ctx, cfg.Connection, db, cfg.DumpFormat, dumpPath)
		if err != nil {
			return archives, err
		}

		filestoreDir := ""
		if cfg.IncludeFilestore {
			if fs.Exists(db) {
				filestoreDir = fs.Path(db)
			} else {
				s.logger.Warn().Str("database", db).Msg("no filestore for database, packing dump only")
			}
		}

		outPath := filepath.Join(cfg.BackupDir, archive.BackupFilename(db, s.now()))
		if err := s.archiveSvc.Pack(dumpPath, filestoreDir, db, outPath); err != nil {
			return archives, err
		}
		// Keep scratch space bounded when backing up many databases.
		_ = os.Remove(dumpPath)

		archives = append(archives, outPath)
		s.logger.Info().
			Str("database", db).
			Str("archive", outPath).
			Int64("dump_bytes", dump.SizeBytes).
			Msg("backup created")
	}

	s.retentionSvc.SweepBackups(cfg.BackupDir, cfg.BackupRetentionDays)
	return archives, nil
}

// Restore validates the archive, then recreates the target database and
// installs the archived filestore under the target name. There is no
// rollback: a failure after the drop leaves the target absent.
func (s *Impl) Restore(ctx context.Context, cfg models.ResolvedConfig, backupFile, target string) error {
	start := s.now()
	err := s.restore(ctx, cfg, backupFile, target)
	s.notify(ctx, cfg, models.TelegramMessage{
		Action:    "restore",
		Databases: []string{target},
		StartTime: start,
	}, err)
	return err
}

func (s *Impl) restore(ctx context.Context, cfg models.ResolvedConfig, backupFile, target string) error {
	if backupFile == "" {
		return fmt.Errorf("%w: --backup-file is required for restore", config.ErrMissingSetting)
	}
	if err := config.ValidateDBName(target); err != nil {
		return err
	}
	s.sweepLogs(cfg)

	// Integrity check before anything is mutated.
	if err := s.archiveSvc.Validate(backupFile); err != nil {
		return err
	}

	scratch, err := os.MkdirTemp(s.tempDir, "odoodb-restore-")
	if err != nil {
		return fmt.Errorf("creating scratch directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	unpacked, err := s.archiveSvc.Unpack(backupFile, scratch)
	if err != nil {
		return err
	}

	stop, err := s.stopService(ctx, cfg)
	if err != nil {
		return err
	}
	defer stop()

	if cfg.DropExisting {
		if err := s.dbSvc.Drop(ctx, cfg.Connection, target); err != nil {
			return err
		}
	}
	if err := s.dbSvc.Create(ctx, cfg.Connection, target); err != nil {
		return err
	}
	if _, err := s.dbSvc.Restore(ctx, cfg.Connection, target, unpacked.DumpPath); err != nil {
		return err
	}

	if unpacked.FilestoreDir != "" && cfg.IncludeFilestore {
		fs := s.newFilestore(cfg.FilestoreRoot)
		if unpacked.FilestoreName != target {
			s.logger.Info().
				Str("archived_as", unpacked.FilestoreName).
				Str("target", target).
				Msg("relocating filestore to target database name")
		}
		if err := fs.Replace(unpacked.FilestoreDir, target); err != nil {
			return err
		}
	} else if cfg.IncludeFilestore {
		s.logger.Warn().Str("archive", backupFile).Msg("no filestore found in backup archive")
	}

	return nil
}

// Duplicate copies source into target without persisting an intermediate
// archive, then copies the filestore under the target name.
func (s *Impl) Duplicate(ctx context.Context, cfg models.ResolvedConfig, source, target string) error {
	start := s.now()
	err := s.duplicate(ctx, cfg, source, target)
	s.notify(ctx, cfg, models.TelegramMessage{
		Action:    "duplicate",
		Databases: []string{source, target},
		StartTime: start,
	}, err)
	return err
}

func (s *Impl) duplicate(ctx context.Context, cfg models.ResolvedConfig, source, target string) error {
	if err := config.ValidateDBName(source); err != nil {
		return err
	}
	if err := config.ValidateDBName(target); err != nil {
		return err
	}
	s.sweepLogs(cfg)

	stop, err := s.stopService(ctx, cfg)
	if err != nil {
		return err
	}
	defer stop()

	if cfg.DropExisting {
		if err := s.dbSvc.Drop(ctx, cfg.Connection, target); err != nil {
			return err
		}
	}
	if err := s.dbSvc.Create(ctx, cfg.Connection, target); err != nil {
		return err
	}
	if _, err := s.dbSvc.Duplicate(ctx, cfg.Connection, source, target); err != nil {
		return err
	}

	fs := s.newFilestore(cfg.FilestoreRoot)
	if fs.Exists(source) {
		if err := fs.Replace(fs.Path(source), target); err != nil {
			return err
		}
	} else {
		s.logger.Warn().Str("database", source).Msg("no filestore for source database")
	}

	return nil
}

// Drop terminates connections, drops the database and deletes its
// filestore. Dropping a nonexistent database succeeds.
func (s *Impl) Drop(ctx context.Context, cfg models.ResolvedConfig, db string) error {
	start := s.now()
	err := s.drop(ctx, cfg, db)
	s.notify(ctx, cfg, models.TelegramMessage{
		Action:    "drop_db",
		Databases: []string{db},
		StartTime: start,
	}, err)
	return err
}

func (s *Impl) drop(ctx context.Context, cfg models.ResolvedConfig, db string) error {
	if err := config.ValidateDBName(db); err != nil {
		return err
	}
	s.sweepLogs(cfg)

	stop, err := s.stopService(ctx, cfg)
	if err != nil {
		return err
	}
	defer stop()

	if err := s.dbSvc.Drop(ctx, cfg.Connection, db); err != nil {
		return err
	}
	return s.newFilestore(cfg.FilestoreRoot).Delete(db)
}

// Create creates an empty database and its filestore directory.
func (s *Impl) Create(ctx context.Context, cfg models.ResolvedConfig, db string) error {
	start := s.now()
	err := s.create(ctx, cfg, db)
	s.notify(ctx, cfg, models.TelegramMessage{
		Action:    "create_db",
		Databases: []string{db},
		StartTime: start,
	}, err)
	return err
}

func (s *Impl) create(ctx context.Context, cfg models.ResolvedConfig, db string) error {
	if err := config.ValidateDBName(db); err != nil {
		return err
	}
	s.sweepLogs(cfg)

	if err := s.dbSvc.Create(ctx, cfg.Connection, db); err != nil {
		return err
	}
	return s.newFilestore(cfg.FilestoreRoot).CreateDir(db)
}

// sweepLogs removes rotated log files past the retention window. Runs at
// the start of every action; the tool is one-shot, so startup is the only
// point where periodic cleanup can happen.
func (s *Impl) sweepLogs(cfg models.ResolvedConfig) {
	if cfg.Logging.FilePath == "" {
		return
	}
	s.retentionSvc.SweepLogs(cfg.Logging.FilePath, cfg.LogRetentionDays)
}

// stopService stops the Odoo unit when service control is configured and
// returns a function that starts it again. A failed stop aborts the
// action; a failed start after the action is logged, not fatal.
func (s *Impl) stopService(ctx context.Context, cfg models.ResolvedConfig) (func(), error) {
	if cfg.Service == nil {
		return func() {}, nil
	}

	if err := s.sshSvc.Stop(ctx, *cfg.Service); err != nil {
		return nil, fmt.Errorf("stopping odoo service: %w", err)
	}

	return func() {
		if err := s.sshSvc.Start(ctx, *cfg.Service); err != nil {
			s.logger.Warn().Err(err).Msg("failed to start odoo service again")
		}
	}, nil
}

// notify sends the optional Telegram notification for a finished action.
func (s *Impl) notify(ctx context.Context, cfg models.ResolvedConfig, msg models.TelegramMessage, runErr error) {
	if cfg.Telegram == nil {
		return
	}

	msg.Success = runErr == nil
	msg.Duration = s.now().Sub(msg.StartTime)
	if runErr != nil {
		msg.ErrorMessage = runErr.Error()
		msg.FailedStep = failedStep(runErr)
	}

	result, err := s.telegramSvc.SendNotification(ctx, *cfg.Telegram, msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to send Telegram notification")
		return
	}
	if result.Error != nil {
		s.logger.Error().Err(result.Error).Msg("failed to send Telegram notification")
	}
}

// failedStep classifies an action error by its sentinel for the
// notification body.
func failedStep(err error) string {
	switch {
	case errors.Is(err, config.ErrMissingSetting):
		return "config"
	case errors.Is(err, archive.ErrCorruptArchive):
		return "validate"
	case errors.Is(err, postgres.ErrDump):
		return "dump"
	case errors.Is(err, postgres.ErrRestore):
		return "restore"
	case errors.Is(err, postgres.ErrCreate):
		return "create"
	case errors.Is(err, postgres.ErrDrop):
		return "drop"
	case errors.Is(err, postgres.ErrDuplicate):
		return "duplicate"
	default:
		return "filesystem"
	}
}
