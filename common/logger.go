package common

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync/atomic"
)

// nopHandler discards every record. Enabled reports false so callers skip formatting.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger installs the logger used by every engine package.
// The engine is silent until SetLogger is called; passing nil restores the silent default.
// Safe for concurrent use.
//
// Parameters:
//   - l: the logger to install, or nil to disable logging
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the logger installed with SetLogger.
//
// Returns:
//   - *slog.Logger: the active logger, never nil
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// NewLogger builds a text or JSON slog.Logger writing to w at the named level.
// Unknown levels fall back to info and unknown formats fall back to text.
//
// Parameters:
//   - level: one of "debug", "info", "warn", "error"
//   - format: "text" or "json"
//   - w: the output writer
//
// Returns:
//   - *slog.Logger: the configured logger
func NewLogger(level, format string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Fatalf logs an authoring error with the caller's location and panics with the formatted message.
// Use it for programming mistakes that must never be recovered silently, such as binding an
// unknown link or recording a node whose required inputs are unbound.
//
// Parameters:
//   - format: the fmt format string; by convention prefixed with the package name ("node: ...")
//   - args: the format arguments
func Fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if _, file, line, ok := runtime.Caller(1); ok {
		Logger().Error(msg, "file", filepath.Base(file), "line", line)
	} else {
		Logger().Error(msg)
	}
	panic(msg)
}
