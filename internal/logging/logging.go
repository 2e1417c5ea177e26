// Package logging builds the process logger from the resolved logging
// config: level, output format, and an optional rotated log file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Output formats.
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// maxLogFileMB is the size at which the log file is rotated.
const maxLogFileMB = 50

const logDirPermissions = 0o755

// Options configures New.
type Options struct {
	Level         slog.Level
	Format        string    // auto, text, or json; empty means auto
	File          string    // optional log file, rotated by size
	RetentionDays int       // rotated files older than this are removed
	Stderr        io.Writer // console output; nil means os.Stderr
}

// ParseLevel maps a config log level to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", s)
	}
}

// New returns a logger writing to the console and, when opts.File is set,
// to a rotated file in the same format. The returned closer releases the
// file and must be called on shutdown.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	console := opts.Stderr
	if console == nil {
		console = os.Stderr
	}

	format, err := resolveFormat(opts.Format, console)
	if err != nil {
		return nil, nil, err
	}

	out := console

	var closer io.Closer = nopCloser{}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), logDirPermissions); err != nil {
			return nil, nil, fmt.Errorf("logging: creating log directory: %w", err)
		}

		rotator := &lumberjack.Logger{
			Filename: opts.File,
			MaxSize:  maxLogFileMB,
			MaxAge:   opts.RetentionDays,
			Compress: true,
		}

		out = io.MultiWriter(console, rotator)
		closer = rotator
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}

	var h slog.Handler
	if format == FormatJSON {
		h = slog.NewJSONHandler(out, handlerOpts)
	} else {
		h = slog.NewTextHandler(out, handlerOpts)
	}

	return slog.New(h), closer, nil
}

// resolveFormat turns auto into text for terminals and json otherwise.
func resolveFormat(format string, w io.Writer) (string, error) {
	switch format {
	case FormatText, FormatJSON:
		return format, nil
	case FormatAuto, "":
		if isTerminal(w) {
			return FormatText, nil
		}

		return FormatJSON, nil
	default:
		return "", fmt.Errorf("logging: unknown format %q", format)
	}
}

type fdWriter interface {
	Fd() uintptr
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(fdWriter)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
