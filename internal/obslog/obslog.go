// Package obslog wires log/slog through a rotating file sink, mirroring
// the sibling reference CLI's pkg/logging.Logger(w, json, level) call
// convention: callers build a Logger from an io.Writer and a level. The
// library packages with an Options or Configuration struct (bitplane,
// codeblock, ratecontrol) accept one there and fall back to slog.Default()
// when none is supplied.
package obslog

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger builds a *slog.Logger writing to w at the given level. When json
// is true records are emitted as JSON (for log aggregation); otherwise
// slog's text handler is used (for interactive CLI use).
func Logger(w io.Writer, json bool, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// FileConfig configures a rotating log file sink via lumberjack.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewFileWriter builds a lumberjack.Logger from config, applying the same
// defaults lumberjack itself uses for any zero field.
func NewFileWriter(config FileConfig) io.Writer {
	return &lumberjack.Logger{
		Filename:   config.Path,
		MaxSize:    config.MaxSizeMB,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAgeDays,
		Compress:   config.Compress,
	}
}

// ParseLevel maps the CLI's --log-level flag value onto a slog level via
// slog.Level's own text unmarshaling (DEBUG, INFO, WARN, ERROR, any case),
// defaulting to Info for anything it rejects.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Discard is a Logger that writes nowhere, for callers that want to pass
// an explicit silent logger via Options.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Stderr is the convenience constructor cmd/j2kcore's main uses for the
// default logger in effect before command-line flags are parsed.
func Stderr(level slog.Level) *slog.Logger {
	return Logger(os.Stderr, false, level)
}
