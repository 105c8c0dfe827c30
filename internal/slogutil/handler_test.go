package slogutil

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"isg/internal/config"
)

func TestHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)

	logger.Info("reindexed file", "path", "a.go", "entities", 3)

	output := buf.String()
	for _, want := range []string{"[info]", "reindexed file", " | ", "path=a.go", "entities=3"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestHandler_Levels(t *testing.T) {
	tests := []struct {
		logFunc  func(*slog.Logger)
		expected string
	}{
		{func(l *slog.Logger) { l.Debug("d") }, "[debug]"},
		{func(l *slog.Logger) { l.Info("i") }, "[info]"},
		{func(l *slog.Logger) { l.Warn("w") }, "[warn]"},
		{func(l *slog.Logger) { l.Error("e") }, "[error]"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			var buf bytes.Buffer
			tt.logFunc(NewLogger(&buf, slog.LevelDebug))
			if !strings.Contains(buf.String(), tt.expected) {
				t.Errorf("expected %s in output, got: %s", tt.expected, buf.String())
			}
		})
	}
}

func TestHandler_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn)
	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn record should pass at warn level")
	}
}

func TestHandler_SubsystemAndGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo).With("subsystem", "watcher").WithGroup("event")
	logger.Info("debounced", "path", "b.go")

	output := buf.String()
	if !strings.Contains(output, "] watcher: debounced") {
		t.Errorf("expected subsystem prefix, got: %s", output)
	}
	if !strings.Contains(output, "event.path=b.go") {
		t.Errorf("expected grouped key, got: %s", output)
	}
	if strings.Contains(output, "subsystem=") {
		t.Errorf("subsystem should not be repeated as an attribute, got: %s", output)
	}
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"off", LevelSilent},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := LevelFromString(tt.in); got != tt.want {
			t.Errorf("LevelFromString(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLevelFromVerbosity(t *testing.T) {
	if got := LevelFromVerbosity(0, true); got != LevelSilent {
		t.Errorf("quiet = %v, want silent", got)
	}
	if got := LevelFromVerbosity(0, false); got != slog.LevelWarn {
		t.Errorf("v0 = %v, want warn", got)
	}
	if got := LevelFromVerbosity(3, false); got != slog.LevelDebug {
		t.Errorf("v3 = %v, want debug", got)
	}
}

func TestLoggerFactory_EffectiveLevel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Logging.Level = "warn"
	cfg.Logging.Subsystems = map[string]string{SubsystemWatcher: "debug"}

	f := NewLoggerFactory(&bytes.Buffer{}, cfg, nil)
	if got := f.EffectiveLevel(SubsystemWatcher); got != slog.LevelDebug {
		t.Errorf("watcher level = %v, want debug", got)
	}
	if got := f.EffectiveLevel(SubsystemStorage); got != slog.LevelWarn {
		t.Errorf("storage level = %v, want warn", got)
	}

	override := slog.LevelError
	f = NewLoggerFactory(&bytes.Buffer{}, cfg, &override)
	if got := f.EffectiveLevel(SubsystemWatcher); got != slog.LevelError {
		t.Errorf("cli override = %v, want error", got)
	}
}
