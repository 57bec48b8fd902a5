// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the level and the optional session log file.
type Options struct {
	Level string
	File  string
}

// ParseLevel maps a config string onto a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Setup installs the default logger: text on stderr and, when a file is
// configured, JSON lines on a rotating log file. The returned closer closes
// the file.
func Setup(opts Options) (io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	hopts := &slog.HandlerOptions{Level: level}
	console := slog.NewTextHandler(os.Stderr, hopts)
	if opts.File == "" {
		slog.SetDefault(slog.New(console))
		return nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	w := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     30, // days
		Compress:   true,
	}
	file := slog.NewJSONHandler(w, hopts)

	slog.SetDefault(slog.New(slogmulti.Fanout(console, file)))
	return w, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
