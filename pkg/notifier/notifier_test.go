package notifier_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/poltergeist/wisp/pkg/logger"
	"github.com/poltergeist/wisp/pkg/notifier"
)

type fakeBackend struct {
	beeps    int
	titles   []string
	messages []string
	err      error
}

func (f *fakeBackend) Beep() error {
	f.beeps++
	return f.err
}

func (f *fakeBackend) Notify(title, message string) error {
	f.titles = append(f.titles, title)
	f.messages = append(f.messages, message)
	return f.err
}

func TestNotifier_Notify(t *testing.T) {
	var buf bytes.Buffer
	backend := &fakeBackend{}
	n := notifier.New(notifier.Config{Enabled: true, Backend: backend},
		logger.CreateLoggerWithOutput("", "info", &buf))

	n.Notify("styles", errors.New("unexpected token at common.css:3"))

	if backend.beeps != 1 {
		t.Errorf("expected one beep, got %d", backend.beeps)
	}
	if len(backend.titles) != 1 || backend.titles[0] != notifier.Title {
		t.Errorf("expected one %q notification, got %v", notifier.Title, backend.titles)
	}
	if !strings.Contains(backend.messages[0], "unexpected token") {
		t.Errorf("expected error message in notification, got %q", backend.messages[0])
	}

	output := buf.String()
	if !strings.Contains(output, "ERROR") || !strings.Contains(output, "[styles]") {
		t.Errorf("expected error log line for the task, got %q", output)
	}
}

func TestNotifier_Disabled(t *testing.T) {
	var buf bytes.Buffer
	backend := &fakeBackend{}
	n := notifier.New(notifier.Config{Enabled: false, Backend: backend},
		logger.CreateLoggerWithOutput("", "info", &buf))

	n.Notify("templates", errors.New("bad template"))

	if backend.beeps != 0 || len(backend.titles) != 0 {
		t.Error("disabled notifier must not use the backend")
	}
	if !strings.Contains(buf.String(), "bad template") {
		t.Error("disabled notifier must still log")
	}
}

func TestNotifier_BackendFailureIsSwallowed(t *testing.T) {
	var buf bytes.Buffer
	backend := &fakeBackend{err: errors.New("no dbus session")}
	n := notifier.New(notifier.Config{Enabled: true, Backend: backend},
		logger.CreateLoggerWithOutput("", "debug", &buf))

	n.Notify("scripts", errors.New("cannot resolve ./missing"))

	if !strings.Contains(buf.String(), "no dbus session") {
		t.Errorf("expected backend failure at debug level, got %q", buf.String())
	}
}

func TestNotifier_NilError(t *testing.T) {
	backend := &fakeBackend{}
	n := notifier.New(notifier.Config{Enabled: true, Backend: backend},
		logger.CreateLoggerWithOutput("", "info", nil))

	n.Notify("assets", nil)

	if backend.beeps != 0 {
		t.Error("nil error must not notify")
	}
}

func TestNotifier_BuildSuccess(t *testing.T) {
	var buf bytes.Buffer
	n := notifier.New(notifier.Config{Enabled: true, Backend: &fakeBackend{}},
		logger.CreateLoggerWithOutput("", "info", &buf))

	n.NotifyBuildSuccess(8, 1500*time.Millisecond)

	if !strings.Contains(buf.String(), "Built 8 tasks in 1.5s") {
		t.Errorf("unexpected summary %q", buf.String())
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{2500 * time.Millisecond, "2.5s"},
		{90 * time.Second, "1m30s"},
	}

	for _, tt := range tests {
		if got := notifier.FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
