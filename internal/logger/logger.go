// Package logger builds the process logger: JSON records written to a
// rotating log file, optionally copied to stderr.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// Path is the log file. Empty means ~/.config/bastion/bastion.log.
	Path string

	Level slog.Level

	// Stderr also writes records to standard error.
	Stderr bool
}

// Logger is a slog.Logger backed by a rotating file.
type Logger struct {
	*slog.Logger

	// Path is the file being written.
	Path string

	writer *lumberjack.Logger
}

// New creates the logger and makes it the slog default.
func New(opts Options) *Logger {
	path := opts.Path
	if path == "" {
		path = DefaultPath()
	}
	_ = os.MkdirAll(filepath.Dir(path), 0o755)

	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     7, // days
		Compress:   true,
	}

	var out io.Writer = w
	if opts.Stderr {
		out = io.MultiWriter(w, os.Stderr)
	}

	l := &Logger{
		Logger: slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: opts.Level})),
		Path:   path,
		writer: w,
	}
	slog.SetDefault(l.Logger)
	return l
}

// DefaultPath returns the log file used when none is configured.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", "bastion", "bastion.log")
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l == nil || l.writer == nil {
		return nil
	}
	return l.writer.Close()
}
