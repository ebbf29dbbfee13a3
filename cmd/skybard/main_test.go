package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"skybar/internal/types"
)

func TestNewLogger_Levels(t *testing.T) {
	cases := []struct {
		level   string
		enabled slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range cases {
		logger := newLogger(tc.level)
		if logger == nil {
			t.Fatalf("newLogger(%q) returned nil", tc.level)
		}
		if !logger.Enabled(context.Background(), tc.enabled) {
			t.Errorf("newLogger(%q) should enable level %v", tc.level, tc.enabled)
		}
	}
}

func TestStateDir_RespectsXDG(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/xdg-state")
	if got, want := stateDir(), filepath.Join("/tmp/xdg-state", "skybar"); got != want {
		t.Errorf("stateDir() = %q, want %q", got, want)
	}
}

func TestLogPresenter_DoesNotPanic(t *testing.T) {
	p := &logPresenter{logger: slog.Default()}
	p.Present(context.Background(), types.TierSevere, 2500*time.Millisecond, 4)
}
