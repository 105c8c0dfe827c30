package slogutil

import (
	"io"
	"log/slog"

	"isg/internal/config"
)

// Subsystem names used across the engine.
const (
	SubsystemExtract     = "extract"
	SubsystemStorage     = "storage"
	SubsystemIncremental = "incremental"
	SubsystemWatcher     = "watcher"
	SubsystemQuery       = "query"
)

// LoggerFactory hands out per-subsystem loggers sharing one writer.
// Level precedence: CLI flag > subsystem config > global config > info.
type LoggerFactory struct {
	w        io.Writer
	config   *config.Config
	cliLevel *slog.Level
}

// NewLoggerFactory creates a factory. cliLevel is nil when no CLI override
// was given.
func NewLoggerFactory(w io.Writer, cfg *config.Config, cliLevel *slog.Level) *LoggerFactory {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &LoggerFactory{w: w, config: cfg, cliLevel: cliLevel}
}

// Logger returns a logger tagged with the subsystem name.
func (f *LoggerFactory) Logger(subsystem string) *slog.Logger {
	return NewLogger(f.w, f.EffectiveLevel(subsystem)).With("subsystem", subsystem)
}

// EffectiveLevel resolves the level for a subsystem.
func (f *LoggerFactory) EffectiveLevel(subsystem string) slog.Level {
	if f.cliLevel != nil {
		return *f.cliLevel
	}
	if lvl, ok := f.config.Logging.Subsystems[subsystem]; ok && lvl != "" {
		return LevelFromString(lvl)
	}
	if f.config.Logging.Level != "" {
		return LevelFromString(f.config.Logging.Level)
	}
	return slog.LevelInfo
}
