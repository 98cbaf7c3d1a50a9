// Package logging builds the process-wide slog.Logger, mirroring
// cmd/prism/main.go's plain stderr text handler and adding a rotating file
// sink (gopkg.in/natefinch/lumberjack.v2) when the config's logger.target is
// set, per spec.md §6's `logger` block.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/zsiec/reflect/internal/config"
)

// New builds a *slog.Logger tagged with name, writing to stderr and,
// if cfg.Target is set, to a rotating file under cfg.Target as well.
func New(name string, cfg config.LoggerConfig) *slog.Logger {
	var writers []io.Writer
	writers = append(writers, os.Stderr)
	if cfg.Target != "" {
		maxSize := cfg.MaxSize
		if maxSize == 0 {
			maxSize = 100
		}
		maxFiles := cfg.MaxFiles
		if maxFiles == 0 {
			maxFiles = 7
		}
		writers = append(writers, &lumberjack.Logger{
			Filename: cfg.Target + "/" + name + ".log",
			MaxSize:  maxSize,
			MaxBackups: maxFiles,
			Compress: true,
		})
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})
	return slog.New(handler).With("name", name)
}

// parseLevel maps spec.md §6's level vocabulary
// (trace/debug/info/warning/error/fatal) onto slog's four-level scheme;
// "trace" and "fatal" have no slog equivalent and collapse to the nearest
// neighbor.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "trace", "debug":
		return slog.LevelDebug
	case "warning", "warn":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
