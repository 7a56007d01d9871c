// Package archive packs and unpacks the ZIP backup archives pairing a
// database dump with an optional filestore subtree.
package archive

import (
	"archive/zip"
	"compress/flate"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/fgeck/odoodb/internal/models"
	"github.com/rs/zerolog"
)

// ErrCorruptArchive is wrapped by all validation failures. A corrupt
// archive aborts the restore before any database or filestore mutation.
var ErrCorruptArchive = errors.New("corrupt backup archive")

// Pattern matches the backup archives this tool produces.
const Pattern = "backup_*.zip"

// timestampLayout is the timestamp embedded in backup filenames.
const timestampLayout = "2006-01-02_15-04-05"

// Service defines the interface for archive operations.
type Service interface {
	Pack(dumpPath, filestoreDir, db, outPath string) error
	Validate(path string) error
	Unpack(path, workDir string) (*models.UnpackResult, error)
}

// Impl implements the archive Service interface.
type Impl struct {
	logger zerolog.Logger
}

// New creates a new archive service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{logger: logger}
}

// BackupFilename returns the archive name for db at the given time,
// backup_<db>_<timestamp>.zip.
func BackupFilename(db string, t time.Time) string {
	return fmt.Sprintf("backup_%s_%s.zip", db, t.Format(timestampLayout))
}

// Pack writes a ZIP archive to outPath containing the dump file at the
// archive root (dump.dump or dump.sql, matching the dump's extension)
// and, when filestoreDir is non-empty, its tree under filestore/<db>/.
func (s *Impl) Pack(dumpPath, filestoreDir, db, outPath string) error {
	s.logger.Info().
		Str("dump", dumpPath).
		Str("filestore", filestoreDir).
		Str("output", outPath).
		Msg("packing backup archive")

	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		return fmt.Errorf("creating backup directory: %w", err)
	}

	out, err := os.Create(outPath) //nolint:gosec // outPath is built from validated settings
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer func() { _ = out.Close() }()

	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})

	entry := models.DumpEntryCustom
	if filepath.Ext(dumpPath) == ".sql" {
		entry = models.DumpEntryPlain
	}
	if err := addFile(zw, dumpPath, entry); err != nil {
		_ = zw.Close()
		return fmt.Errorf("packing dump: %w", err)
	}

	if filestoreDir != "" {
		prefix := path.Join("filestore", db)
		if err := addTree(zw, filestoreDir, prefix); err != nil {
			_ = zw.Close()
			return fmt.Errorf("packing filestore: %w", err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalizing archive: %w", err)
	}
	return out.Close()
}

// Validate opens the archive and fully reads every entry, verifying the
// stored checksums before any extraction is attempted.
func (s *Impl) Validate(archivePath string) error {
	s.logger.Debug().Str("archive", archivePath).Msg("validating backup archive")

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptArchive, archivePath, err)
	}
	defer func() { _ = zr.Close() }()

	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("%w: %s: entry %s: %v", ErrCorruptArchive, archivePath, f.Name, err)
		}
		// Reading to EOF triggers the CRC check.
		_, err = io.Copy(io.Discard, rc) //nolint:gosec // full read is the point of validation
		_ = rc.Close()
		if err != nil {
			return fmt.Errorf("%w: %s: entry %s: %v", ErrCorruptArchive, archivePath, f.Name, err)
		}
	}

	return nil
}

// Unpack extracts the archive into workDir and locates the dump entry and
// the filestore subtree for the database and filestore executors.
func (s *Impl) Unpack(archivePath, workDir string) (*models.UnpackResult, error) {
	s.logger.Info().Str("archive", archivePath).Str("work_dir", workDir).Msg("extracting backup archive")

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptArchive, archivePath, err)
	}
	defer func() { _ = zr.Close() }()

	for _, f := range zr.File {
		if err := extractEntry(f, workDir); err != nil {
			return nil, fmt.Errorf("extracting %s: %w", f.Name, err)
		}
	}

	result := &models.UnpackResult{}
	for _, name := range []string{models.DumpEntryCustom, models.DumpEntryPlain} {
		candidate := filepath.Join(workDir, name)
		if _, err := os.Stat(candidate); err == nil {
			result.DumpPath = candidate
			break
		}
	}
	if result.DumpPath == "" {
		return nil, fmt.Errorf("%w: %s: no dump entry found", ErrCorruptArchive, archivePath)
	}

	// The filestore subtree is stored under the name of the database the
	// archive was taken from, which may differ from the restore target.
	filestoreRoot := filepath.Join(workDir, "filestore")
	entries, err := os.ReadDir(filestoreRoot)
	if err == nil {
		for _, e := range entries {
			if e.IsDir() {
				result.FilestoreName = e.Name()
				result.FilestoreDir = filepath.Join(filestoreRoot, e.Name())
				break
			}
		}
	}

	return result, nil
}

// addFile writes a single file into the archive under name.
func addFile(zw *zip.Writer, srcPath, name string) error {
	in, err := os.Open(srcPath) //nolint:gosec // srcPath is produced by this tool
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}

// addTree writes every file under dir into the archive below prefix.
func addTree(zw *zip.Writer, dir, prefix string) error {
	return filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		return addFile(zw, p, path.Join(prefix, filepath.ToSlash(rel)))
	})
}

// extractEntry writes a single archive entry below workDir, rejecting
// paths that would escape it.
func extractEntry(f *zip.File, workDir string) error {
	cleaned := filepath.Clean(f.Name)
	if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return fmt.Errorf("illegal entry path %q", f.Name)
	}
	target := filepath.Join(workDir, cleaned)

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o750)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640) //nolint:gosec // target is confined to workDir
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil { //nolint:gosec // archives are trusted local backups, validated beforehand
		_ = out.Close()
		return err
	}
	return out.Close()
}
