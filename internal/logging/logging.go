// Package logging builds the application logger: slog text output to
// stderr plus a size-rotated log file.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options control the file sink and verbosity.
type Options struct {
	// Level is one of "debug", "info", "warn", "error". Empty means info.
	Level string

	// Dir is the directory holding the log file. Empty means "logs".
	Dir string

	// MaxSizeMB is the size at which the file rotates.
	MaxSizeMB int

	// BackupCount is how many rotated files to keep.
	BackupCount int
}

// Setup creates the log directory if needed and returns a logger that
// writes to both stderr and a rotating logs/app.log. The returned
// closer stops the file sink.
func Setup(opts Options) (*slog.Logger, io.Closer, error) {
	dir := opts.Dir
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}

	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 1
	}
	backups := opts.BackupCount
	if backups <= 0 {
		backups = 5
	}

	fileSink := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "app.log"),
		MaxSize:    maxSize,
		MaxBackups: backups,
	}

	handler := slog.NewTextHandler(
		io.MultiWriter(os.Stderr, fileSink),
		&slog.HandlerOptions{Level: parseLevel(opts.Level)},
	)

	return slog.New(handler), fileSink, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
