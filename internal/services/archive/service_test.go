package archive

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fgeck/odoodb/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func seedBackupInputs(t *testing.T) (dumpPath, filestoreDir string) {
	t.Helper()
	dir := t.TempDir()

	dumpPath = filepath.Join(dir, "sales_db.dump")
	require.NoError(t, os.WriteFile(dumpPath, []byte("PGDMP fake dump bytes"), 0o640))

	filestoreDir = filepath.Join(dir, "filestore", "sales_db")
	require.NoError(t, os.MkdirAll(filepath.Join(filestoreDir, "a1"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(filestoreDir, "a1", "a1f3"), []byte("attachment one"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(filestoreDir, "root-level"), []byte("attachment two"), 0o640))
	return dumpPath, filestoreDir
}

func TestBackupFilename(t *testing.T) {
	ts := time.Date(2024, 3, 15, 9, 30, 5, 0, time.UTC)
	assert.Equal(t, "backup_sales_db_2024-03-15_09-30-05.zip", BackupFilename("sales_db", ts))
}

func TestPackUnpack_RoundTrip(t *testing.T) {
	dumpPath, filestoreDir := seedBackupInputs(t)
	outPath := filepath.Join(t.TempDir(), "backup_sales_db_2024-03-15_09-30-05.zip")

	svc := New(testLogger())
	require.NoError(t, svc.Pack(dumpPath, filestoreDir, "sales_db", outPath))
	require.NoError(t, svc.Validate(outPath))

	workDir := t.TempDir()
	result, err := svc.Unpack(outPath, workDir)
	require.NoError(t, err)

	// Dump content is byte-identical.
	assert.Equal(t, filepath.Join(workDir, models.DumpEntryCustom), result.DumpPath)
	original, err := os.ReadFile(dumpPath)
	require.NoError(t, err)
	extracted, err := os.ReadFile(result.DumpPath)
	require.NoError(t, err)
	assert.Equal(t, original, extracted)

	// Filestore tree and its internal database name survive.
	assert.Equal(t, "sales_db", result.FilestoreName)
	data, err := os.ReadFile(filepath.Join(result.FilestoreDir, "a1", "a1f3"))
	require.NoError(t, err)
	assert.Equal(t, "attachment one", string(data))
	data, err = os.ReadFile(filepath.Join(result.FilestoreDir, "root-level"))
	require.NoError(t, err)
	assert.Equal(t, "attachment two", string(data))
}

func TestPack_WithoutFilestore(t *testing.T) {
	dumpPath, _ := seedBackupInputs(t)
	outPath := filepath.Join(t.TempDir(), "backup_sales_db_x.zip")

	svc := New(testLogger())
	require.NoError(t, svc.Pack(dumpPath, "", "sales_db", outPath))

	result, err := svc.Unpack(outPath, t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, result.FilestoreDir)
	assert.Empty(t, result.FilestoreName)
}

func TestPack_PlainDumpEntryName(t *testing.T) {
	dir := t.TempDir()
	dumpPath := filepath.Join(dir, "sales_db.sql")
	require.NoError(t, os.WriteFile(dumpPath, []byte("-- SQL dump"), 0o640))
	outPath := filepath.Join(dir, "backup_sales_db_x.zip")

	svc := New(testLogger())
	require.NoError(t, svc.Pack(dumpPath, "", "sales_db", outPath))

	result, err := svc.Unpack(outPath, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, models.DumpEntryPlain, filepath.Base(result.DumpPath))
}

func TestValidate_TruncatedArchive(t *testing.T) {
	dumpPath, filestoreDir := seedBackupInputs(t)
	outPath := filepath.Join(t.TempDir(), "backup_sales_db_x.zip")

	svc := New(testLogger())
	require.NoError(t, svc.Pack(dumpPath, filestoreDir, "sales_db", outPath))

	// Truncate the archive to half its size.
	info, err := os.Stat(outPath)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(outPath, info.Size()/2))

	err = svc.Validate(outPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptArchive)
}

func TestValidate_NotAZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup_sales_db_x.zip")
	require.NoError(t, os.WriteFile(path, []byte("this is not a zip"), 0o640))

	svc := New(testLogger())
	err := svc.Validate(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptArchive)
}

func TestUnpack_MissingDumpEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weird.zip")
	out, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(out)
	w, err := zw.Create("unrelated.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("nothing useful"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())

	svc := New(testLogger())
	_, err = svc.Unpack(path, t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptArchive)
}

func TestUnpack_RejectsPathTraversal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evil.zip")
	out, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(out)
	w, err := zw.Create("../escape.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("outside"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())

	svc := New(testLogger())
	workDir := t.TempDir()
	_, err = svc.Unpack(path, workDir)
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(workDir), "escape.txt"))
}
