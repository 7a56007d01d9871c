// Package filestore manages the on-disk attachment directories paired
// with Odoo databases.
package filestore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Service defines the interface for filestore operations. All paths are
// resolved against the filestore root the service was created with.
type Service interface {
	Path(db string) string
	Exists(db string) bool
	Copy(db, destRoot string) error
	Replace(srcDir, db string) error
	Delete(db string) error
	CreateDir(db string) error
}

// Impl implements the filestore Service interface.
type Impl struct {
	root   string
	logger zerolog.Logger
}

// New creates a filestore service rooted at root.
func New(logger zerolog.Logger, root string) *Impl {
	return &Impl{
		root:   root,
		logger: logger,
	}
}

// Path returns the filestore directory for db.
func (s *Impl) Path(db string) string {
	return filepath.Join(s.root, db)
}

// Exists reports whether db has a filestore directory.
func (s *Impl) Exists(db string) bool {
	info, err := os.Stat(s.Path(db))
	return err == nil && info.IsDir()
}

// Copy recursively copies the filestore of db under destRoot, keeping the
// database name as the directory name. A missing source tree is a logged
// no-op, not an error.
func (s *Impl) Copy(db, destRoot string) error {
	src := s.Path(db)
	if !s.Exists(db) {
		s.logger.Warn().Str("database", db).Str("path", src).Msg("filestore does not exist, skipping copy")
		return nil
	}

	dest := filepath.Join(destRoot, db)
	s.logger.Info().Str("src", src).Str("dest", dest).Msg("copying filestore")

	if err := copyTree(src, dest); err != nil {
		return fmt.Errorf("copying filestore for %s: %w", db, err)
	}
	return nil
}

// Replace installs srcDir as the filestore of db, removing any existing
// tree first. The source directory may have been extracted under a
// different database name; the result is always named after db.
func (s *Impl) Replace(srcDir, db string) error {
	target := s.Path(db)

	s.logger.Info().Str("src", srcDir).Str("target", target).Msg("replacing filestore")

	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("removing existing filestore %s: %w", target, err)
	}
	if err := copyTree(srcDir, target); err != nil {
		return fmt.Errorf("installing filestore for %s: %w", db, err)
	}
	return nil
}

// Delete removes the filestore of db. Deleting an absent tree is a no-op.
func (s *Impl) Delete(db string) error {
	target := s.Path(db)
	if !s.Exists(db) {
		s.logger.Warn().Str("database", db).Str("path", target).Msg("no filestore to delete")
		return nil
	}

	s.logger.Info().Str("path", target).Msg("deleting filestore")
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("deleting filestore for %s: %w", db, err)
	}
	return nil
}

// CreateDir creates an empty filestore directory for db.
func (s *Impl) CreateDir(db string) error {
	target := s.Path(db)
	if err := os.MkdirAll(target, 0o750); err != nil {
		return fmt.Errorf("creating filestore for %s: %w", db, err)
	}
	s.logger.Info().Str("path", target).Msg("filestore directory created")
	return nil
}

// copyTree recursively copies src to dest, preserving file modes.
func copyTree(src, dest string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)

		if info.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm())
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}

func copyFile(src, dest string, perm os.FileMode) error {
	in, err := os.Open(src) //nolint:gosec // paths come from the filestore walk
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return err
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm) //nolint:gosec // see above
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
