// Package logging configures the global zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"carimages/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const logDirPerm os.FileMode = 0o750

// Setup points the global logger at a console writer on out and, when
// cfg.File is set, a rotating JSON file as well. The returned func closes
// the file and is never nil.
func Setup(cfg config.Log, out io.Writer) (func() error, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return noopClose, fmt.Errorf("parse log level: %w", err)
	}
	if cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	console := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	writer := io.Writer(console)
	closeFn := noopClose

	if cfg.File != "" {
		// lumberjack does not create the directory
		if dir := filepath.Dir(cfg.File); dir != "." {
			if err := os.MkdirAll(dir, logDirPerm); err != nil { //nolint:gosec // operator supplied log dir
				return noopClose, fmt.Errorf("create log dir: %w", err)
			}
		}
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		writer = zerolog.MultiLevelWriter(console, rotating)
		closeFn = rotating.Close
	}

	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(writer).With().Timestamp().Logger()
	return closeFn, nil
}

func noopClose() error { return nil }
