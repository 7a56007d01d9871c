package models

import "time"

// Names of the dump entry at the archive root, depending on dump format.
const (
	DumpEntryCustom = "dump.dump"
	DumpEntryPlain  = "dump.sql"
)

// BackupResult holds the result of a single database backup.
type BackupResult struct {
	Database    string
	ArchivePath string
	SizeBytes   int64
	Filestore   bool // whether a filestore subtree was packed
	Duration    time.Duration
}

// UnpackResult describes the contents extracted from a backup archive.
type UnpackResult struct {
	DumpPath      string
	FilestoreDir  string // empty if the archive carried no filestore
	FilestoreName string // database name the filestore was stored under
}

// SweepResult holds the outcome of a retention sweep.
type SweepResult struct {
	Deleted []string
	Skipped []string // files that could not be deleted
}
