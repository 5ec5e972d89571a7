// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/opensource-finance/safv/internal/domain"
)

// maxFileSizeMB is the size at which a log file is rotated.
const maxFileSizeMB = 100

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// ParseLevel maps a level name to a slog level. Empty means info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", level)
	}
}

// Output opens the configured destination. Any other value than stdout or
// stderr is a file path, rotated by size and pruned after MaxAge days.
func Output(cfg domain.LoggingConfig) io.WriteCloser {
	switch cfg.Output {
	case "stdout", "":
		return nopCloser{os.Stdout}
	case "stderr":
		return nopCloser{os.Stderr}
	default:
		return &lumberjack.Logger{
			Filename: cfg.Output,
			MaxSize:  maxFileSizeMB,
			MaxAge:   cfg.MaxAge,
			Compress: true,
		}
	}
}

// New builds a logger writing to w.
func New(cfg domain.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	switch cfg.Format {
	case "json", "":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}
}

// Setup installs the configured logger as the slog default.
// The returned closer flushes and closes a file output.
func Setup(cfg domain.LoggingConfig) (io.Closer, error) {
	out := Output(cfg)
	logger, err := New(cfg, out)
	if err != nil {
		out.Close()
		return nil, err
	}
	slog.SetDefault(logger)
	return out, nil
}
