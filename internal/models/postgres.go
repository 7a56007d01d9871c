package models

import "time"

// PostgreSQL dump format constants.
const (
	FormatCustom = "custom"
	FormatPlain  = "plain"
)

// DumpResult holds the result of a pg_dump operation.
type DumpResult struct {
	Database   string
	OutputPath string
	SizeBytes  int64
	Duration   time.Duration
}

// RestoreResult holds the result of a database restore.
type RestoreResult struct {
	Database string
	DumpPath string
	Duration time.Duration
}

// DuplicateResult holds the result of a piped database copy.
type DuplicateResult struct {
	Source   string
	Target   string
	Duration time.Duration
}
