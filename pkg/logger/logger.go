// Package logger builds the process slog.Logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	// Level is one of debug, info, warn, error. Unknown values mean info.
	Level string
	// JSON selects the JSON handler; otherwise text.
	JSON bool
	// File routes output to a rotated file instead of Stdout.
	File string
	// Stdout defaults to os.Stdout.
	Stdout io.Writer
}

// New returns the logger and a closer that flushes the rotated file, if any.
func New(opts Options) (*slog.Logger, func() error) {
	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}
	closeFn := func() error { return nil }

	if path := strings.TrimSpace(opts.File); path != "" {
		rot := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    100, // MB
			MaxBackups: 10,
			MaxAge:     30, // days
			Compress:   true,
		}
		out = rot
		closeFn = rot.Close
	}

	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	if opts.JSON {
		return slog.New(slog.NewJSONHandler(out, handlerOpts)), closeFn
	}
	return slog.New(slog.NewTextHandler(out, handlerOpts)), closeFn
}

func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
