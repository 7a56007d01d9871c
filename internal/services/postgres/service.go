// Package postgres invokes the PostgreSQL client utilities for dump,
// restore, create, drop and duplicate operations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/fgeck/odoodb/internal/models"
	"github.com/rs/zerolog"
)

// Sentinel errors for the supported operations. Callers check them with
// errors.Is; the wrapped message carries the captured subprocess output.
var (
	ErrDump      = errors.New("database dump failed")
	ErrRestore   = errors.New("database restore failed")
	ErrCreate    = errors.New("database creation failed")
	ErrDrop      = errors.New("database drop failed")
	ErrDuplicate = errors.New("database duplication failed")
)

// Service defines the interface for database operations.
type Service interface {
	Dump(ctx context.Context, conn models.ConnectionConfig, db, format, outputPath string) (*models.DumpResult, error)
	Restore(ctx context.Context, conn models.ConnectionConfig, db, dumpPath string) (*models.RestoreResult, error)
	Create(ctx context.Context, conn models.ConnectionConfig, db string) error
	Drop(ctx context.Context, conn models.ConnectionConfig, db string) error
	Duplicate(ctx context.Context, conn models.ConnectionConfig, source, target string) (*models.DuplicateResult, error)
}

// Command names an external utility and its arguments.
type Command struct {
	Name string
	Args []string
}

// CommandExecutor allows mocking exec.Command in tests. On failure the
// captured subprocess output is returned for inclusion in the error; on
// success it is discarded.
type CommandExecutor interface {
	ExecuteWithEnv(ctx context.Context, env []string, name string, args ...string) ([]byte, error)
	ExecutePiped(ctx context.Context, env []string, src, dst Command) ([]byte, error)
}

// DefaultExecutor runs commands with os/exec, redirecting their output to
// a private temporary file per invocation. The file is removed on
// success (its path logged at debug level only); on failure its contents
// are returned so they end up in the main log alongside the error.
type DefaultExecutor struct {
	logger zerolog.Logger
}

// NewExecutor creates the default command executor.
func NewExecutor(logger zerolog.Logger) *DefaultExecutor {
	return &DefaultExecutor{logger: logger}
}

// ExecuteWithEnv runs a command with additional environment variables.
func (e *DefaultExecutor) ExecuteWithEnv(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	capture, err := os.CreateTemp("", "odoodb-"+name+"-*.log")
	if err != nil {
		return nil, fmt.Errorf("creating capture file: %w", err)
	}
	capturePath := capture.Name()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = capture
	cmd.Stderr = capture

	runErr := cmd.Run()
	_ = capture.Close()

	if runErr != nil {
		output, _ := os.ReadFile(capturePath)
		_ = os.Remove(capturePath)
		return output, runErr
	}

	e.logger.Debug().Str("command", name).Str("capture", capturePath).Msg("subprocess succeeded, discarding captured output")
	_ = os.Remove(capturePath)
	return nil, nil
}

// ExecutePiped runs src and feeds its stdout directly into dst's stdin.
// Both stderr streams go to the shared capture file.
func (e *DefaultExecutor) ExecutePiped(ctx context.Context, env []string, src, dst Command) ([]byte, error) {
	capture, err := os.CreateTemp("", "odoodb-pipe-*.log")
	if err != nil {
		return nil, fmt.Errorf("creating capture file: %w", err)
	}
	capturePath := capture.Name()

	srcCmd := exec.CommandContext(ctx, src.Name, src.Args...)
	srcCmd.Env = append(os.Environ(), env...)
	srcCmd.Stderr = capture

	dstCmd := exec.CommandContext(ctx, dst.Name, dst.Args...)
	dstCmd.Env = append(os.Environ(), env...)
	dstCmd.Stdout = capture
	dstCmd.Stderr = capture

	pipe, err := srcCmd.StdoutPipe()
	if err != nil {
		_ = capture.Close()
		_ = os.Remove(capturePath)
		return nil, fmt.Errorf("creating pipe: %w", err)
	}
	dstCmd.Stdin = pipe

	if err := srcCmd.Start(); err != nil {
		_ = capture.Close()
		_ = os.Remove(capturePath)
		return nil, fmt.Errorf("starting %s: %w", src.Name, err)
	}
	if err := dstCmd.Start(); err != nil {
		_ = srcCmd.Process.Kill()
		_ = srcCmd.Wait()
		_ = capture.Close()
		_ = os.Remove(capturePath)
		return nil, fmt.Errorf("starting %s: %w", dst.Name, err)
	}

	srcErr := srcCmd.Wait()
	dstErr := dstCmd.Wait()
	_ = capture.Close()

	if srcErr != nil || dstErr != nil {
		output, _ := os.ReadFile(capturePath)
		_ = os.Remove(capturePath)
		if srcErr != nil {
			return output, fmt.Errorf("%s: %w", src.Name, srcErr)
		}
		return output, fmt.Errorf("%s: %w", dst.Name, dstErr)
	}

	e.logger.Debug().Str("capture", capturePath).Msg("piped subprocesses succeeded, discarding captured output")
	_ = os.Remove(capturePath)
	return nil, nil
}

// Impl implements the database Service interface.
type Impl struct {
	executor CommandExecutor
	logger   zerolog.Logger
}

// New creates a new database service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		executor: NewExecutor(logger),
		logger:   logger,
	}
}

// NewWithExecutor creates a new database service with a custom executor (for testing).
func NewWithExecutor(logger zerolog.Logger, executor CommandExecutor) *Impl {
	return &Impl{
		executor: executor,
		logger:   logger,
	}
}

// connArgs builds the connection flags shared by all client utilities.
func connArgs(conn models.ConnectionConfig) []string {
	return []string{
		"-h", conn.Host,
		"-p", fmt.Sprintf("%d", conn.Port),
		"-U", conn.User,
	}
}

// buildEnv passes the password via the environment, never via argv.
func buildEnv(conn models.ConnectionConfig) []string {
	if conn.Password == "" {
		return nil
	}
	return []string{fmt.Sprintf("PGPASSWORD=%s", conn.Password)}
}

// Dump writes a dump of db to outputPath using pg_dump.
func (s *Impl) Dump(ctx context.Context, conn models.ConnectionConfig, db, format, outputPath string) (*models.DumpResult, error) {
	s.logger.Info().
		Str("host", conn.Host).
		Int("port", conn.Port).
		Str("database", db).
		Str("format", format).
		Str("output", outputPath).
		Msg("starting database dump")

	start := time.Now()

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o750); err != nil {
		return nil, fmt.Errorf("%w: creating output directory: %v", ErrDump, err)
	}

	args := append(connArgs(conn), "-d", db)
	switch format {
	case models.FormatPlain:
		args = append(args, "-Fp")
	default:
		args = append(args, "-Fc")
	}
	args = append(args, "-f", outputPath)

	if output, err := s.executor.ExecuteWithEnv(ctx, buildEnv(conn), "pg_dump", args...); err != nil {
		_ = os.Remove(outputPath)
		return nil, fmt.Errorf("%w: %s: %v: %s", ErrDump, db, err, output)
	}

	result := &models.DumpResult{
		Database:   db,
		OutputPath: outputPath,
		Duration:   time.Since(start),
	}
	if info, err := os.Stat(outputPath); err == nil {
		result.SizeBytes = info.Size()
	}

	s.logger.Info().
		Str("database", db).
		Int64("size_bytes", result.SizeBytes).
		Dur("duration", result.Duration).
		Msg("database dump completed")

	return result, nil
}

// Restore loads dumpPath into db. Custom-format dumps (.dump) go through
// pg_restore, plain SQL dumps (.sql) through psql.
func (s *Impl) Restore(ctx context.Context, conn models.ConnectionConfig, db, dumpPath string) (*models.RestoreResult, error) {
	s.logger.Info().
		Str("database", db).
		Str("dump", dumpPath).
		Msg("starting database restore")

	start := time.Now()

	var name string
	var args []string
	if filepath.Ext(dumpPath) == ".sql" {
		name = "psql"
		args = append(connArgs(conn), "-d", db, "-v", "ON_ERROR_STOP=1", "-f", dumpPath)
	} else {
		name = "pg_restore"
		args = append(connArgs(conn), "-d", db, "--no-owner", dumpPath)
	}

	if output, err := s.executor.ExecuteWithEnv(ctx, buildEnv(conn), name, args...); err != nil {
		return nil, fmt.Errorf("%w: %s: %v: %s", ErrRestore, db, err, output)
	}

	result := &models.RestoreResult{
		Database: db,
		DumpPath: dumpPath,
		Duration: time.Since(start),
	}

	s.logger.Info().
		Str("database", db).
		Dur("duration", result.Duration).
		Msg("database restore completed")

	return result, nil
}

// Create creates a new empty database with createdb. Creating a database
// that already exists fails unless the caller dropped it first.
func (s *Impl) Create(ctx context.Context, conn models.ConnectionConfig, db string) error {
	s.logger.Info().Str("database", db).Msg("creating database")

	args := append(connArgs(conn), db)
	if output, err := s.executor.ExecuteWithEnv(ctx, buildEnv(conn), "createdb", args...); err != nil {
		return fmt.Errorf("%w: %s: %v: %s", ErrCreate, db, err, output)
	}

	s.logger.Info().Str("database", db).Msg("database created")
	return nil
}

// Drop terminates all backend connections to db and drops it. Dropping a
// nonexistent database is a no-op.
func (s *Impl) Drop(ctx context.Context, conn models.ConnectionConfig, db string) error {
	s.logger.Info().Str("database", db).Msg("dropping database")

	// Terminate active connections via the maintenance database so the
	// drop cannot fail on busy databases. The name is validated upstream.
	query := fmt.Sprintf(
		"SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = '%s' AND pid <> pg_backend_pid();",
		db,
	)
	termArgs := append(connArgs(conn), "-d", "postgres", "-c", query)
	if output, err := s.executor.ExecuteWithEnv(ctx, buildEnv(conn), "psql", termArgs...); err != nil {
		return fmt.Errorf("%w: terminating connections to %s: %v: %s", ErrDrop, db, err, output)
	}

	dropArgs := append(connArgs(conn), "--if-exists", db)
	if output, err := s.executor.ExecuteWithEnv(ctx, buildEnv(conn), "dropdb", dropArgs...); err != nil {
		return fmt.Errorf("%w: %s: %v: %s", ErrDrop, db, err, output)
	}

	s.logger.Info().Str("database", db).Msg("database dropped")
	return nil
}

// Duplicate copies source into target by piping pg_dump straight into
// psql, without persisting an intermediate dump file. The target must
// already exist and be empty.
func (s *Impl) Duplicate(ctx context.Context, conn models.ConnectionConfig, source, target string) (*models.DuplicateResult, error) {
	s.logger.Info().
		Str("source", source).
		Str("target", target).
		Msg("duplicating database")

	start := time.Now()

	src := Command{Name: "pg_dump", Args: append(connArgs(conn), source)}
	dst := Command{Name: "psql", Args: append(connArgs(conn), "-d", target, "-v", "ON_ERROR_STOP=1")}

	if output, err := s.executor.ExecutePiped(ctx, buildEnv(conn), src, dst); err != nil {
		return nil, fmt.Errorf("%w: %s to %s: %v: %s", ErrDuplicate, source, target, err, output)
	}

	result := &models.DuplicateResult{
		Source:   source,
		Target:   target,
		Duration: time.Since(start),
	}

	s.logger.Info().
		Str("source", source).
		Str("target", target).
		Dur("duration", result.Duration).
		Msg("database duplicated")

	return result, nil
}
