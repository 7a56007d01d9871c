// Package logging builds the zerolog logger used by all services.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/fgeck/odoodb/internal/models"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options control console output format and verbosity.
type Options struct {
	Verbose bool
	Quiet   bool
	JSON    bool
}

// Setup constructs a logger writing to the console and, when a log file
// is configured, to a size-rotated file with a bounded backup count. The
// returned logger is passed explicitly into every service constructor.
func Setup(cfg models.LoggingConfig, opts Options) zerolog.Logger {
	writers := []io.Writer{consoleWriter(opts)}

	if cfg.FilePath != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		})
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()

	switch {
	case opts.Quiet:
		logger = logger.Level(zerolog.ErrorLevel)
	case opts.Verbose:
		logger = logger.Level(zerolog.DebugLevel)
	default:
		logger = logger.Level(zerolog.InfoLevel)
	}

	return logger
}

func consoleWriter(opts Options) io.Writer {
	if opts.JSON {
		return os.Stdout
	}
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	output.FormatLevel = func(i interface{}) string {
		if s, ok := i.(string); ok {
			return strings.ToUpper(s)
		}
		return ""
	}
	return output
}
