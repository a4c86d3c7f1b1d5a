// Package logging builds the slog logger described by config.LogConfig:
// text or JSON records to stdout and, optionally, a size-rotated file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/roach88/querykit/internal/config"
)

// ParseLevel accepts debug, info, warn/warning and error in any case.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// Writer returns the destination for cfg. The closer releases the log
// file, if any.
func Writer(cfg config.LogConfig, stdout io.Writer) (io.Writer, io.Closer) {
	var writers []io.Writer
	var closer io.Closer = nopCloser{}

	if !cfg.NoTerminal {
		writers = append(writers, stdout)
	}
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.Rotation.MaxSize,
			MaxBackups: cfg.Rotation.MaxBackups,
			MaxAge:     cfg.Rotation.MaxAge,
			Compress:   cfg.Rotation.Compress,
		}
		writers = append(writers, file)
		closer = file
	}
	if len(writers) == 0 {
		writers = append(writers, stdout)
	}
	return io.MultiWriter(writers...), closer
}

// New builds a logger for cfg writing to stdout (os.Stderr when nil).
// verbose forces debug level.
func New(cfg config.LogConfig, stdout io.Writer, verbose bool) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	if stdout == nil {
		stdout = os.Stderr
	}

	w, closer := Writer(cfg, stdout)
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.JSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
