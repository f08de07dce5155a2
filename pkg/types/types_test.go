package types

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		env  string
		want Mode
	}{
		{"production", ModeProduction},
		{"development", ModeDevelopment},
		{"", ModeDevelopment},
		{"Production", ModeDevelopment},
		{"staging", ModeDevelopment},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			if got := ParseMode(tt.env); got != tt.want {
				t.Errorf("ParseMode(%q) = %s, want %s", tt.env, got, tt.want)
			}
		})
	}
}

func TestOutcome(t *testing.T) {
	if !Succeeded().OK() {
		t.Error("expected success to be OK")
	}
	if (Outcome{}).IsFatal() || !(Outcome{}).OK() {
		t.Error("zero outcome should count as success")
	}

	err := errors.New("unexpected token")
	rec := Recoverable(err)
	if rec.OK() || rec.IsFatal() {
		t.Errorf("recoverable outcome misclassified: %v", rec)
	}
	if !errors.Is(rec.Err, err) {
		t.Error("recoverable outcome should keep the error")
	}

	fatal := Fatal(err)
	if !fatal.IsFatal() {
		t.Error("expected fatal outcome")
	}
	if fatal.String() != "fatal: unexpected token" {
		t.Errorf("unexpected string form: %s", fatal.String())
	}
}

func TestConfigPath(t *testing.T) {
	cfg := Config{ProjectRoot: "/project"}

	if got := cfg.Path("dist/assets"); got != filepath.Join("/project", "dist", "assets") {
		t.Errorf("unexpected relative resolution: %s", got)
	}
	if got := cfg.Path("/abs/dir"); got != "/abs/dir" {
		t.Errorf("absolute paths must pass through, got %s", got)
	}
	if got := cfg.Path(""); got != "" {
		t.Errorf("empty path should stay empty, got %s", got)
	}
}

func TestNotificationsEnabled(t *testing.T) {
	off := false
	if !(Config{}).NotificationsEnabled() {
		t.Error("notifications should default to enabled")
	}
	if (Config{Notifications: &off}).NotificationsEnabled() {
		t.Error("explicit false should disable notifications")
	}
}
