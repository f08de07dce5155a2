package logger_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	pcontext "github.com/poltergeist/wisp/pkg/context"
	"github.com/poltergeist/wisp/pkg/logger"
)

func TestCreateLogger(t *testing.T) {
	log := logger.CreateLogger("", "info")
	if log == nil {
		t.Fatal("expected logger to be created")
	}
}

func TestCreateLoggerWithOutput_NilOutput(t *testing.T) {
	log := logger.CreateLoggerWithOutput("", "debug", nil)
	// Must not panic when writing to a discarded output
	log.Info("discarded")
	log.Debug("discarded")
}

func TestLogger_WithTarget(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("", "info", &buf)

	log.WithTarget("styles").Info("bundling stylesheet")

	output := buf.String()
	if !strings.Contains(output, "[styles]") {
		t.Errorf("expected task name in log output, got %q", output)
	}
	if !strings.Contains(output, "bundling stylesheet") {
		t.Errorf("expected message in log output, got %q", output)
	}
}

func TestLogger_Success(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("", "info", &buf)

	log.Success("build completed")

	if !strings.Contains(buf.String(), "✅ build completed") {
		t.Errorf("expected success marker, got %q", buf.String())
	}
}

func TestLogger_FieldsAreSorted(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("", "info", &buf)

	log.Info("wrote file",
		logger.WithField("path", "dist/index.html"),
		logger.WithField("bytes", 42),
	)

	output := buf.String()
	if !strings.Contains(output, "{bytes=42, path=dist/index.html}") {
		t.Errorf("expected sorted fields, got %q", output)
	}
}

func TestLogger_ErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("", "error", &buf)

	log.Debug("should not appear")
	log.Info("should not appear")
	log.Warn("should not appear")
	log.Error("should appear")

	output := buf.String()
	if strings.Contains(output, "should not appear") {
		t.Error("lower level logs should not appear with error level")
	}
	if !strings.Contains(output, "should appear") {
		t.Error("error level log should appear")
	}
}

func TestLogger_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("", "loud", &buf)

	log.Debug("hidden")
	log.Info("visible")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("debug should be filtered at the fallback level")
	}
	if !strings.Contains(buf.String(), "visible") {
		t.Error("info should be logged at the fallback level")
	}
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	base := logger.CreateLoggerWithOutput("", "info", &buf)

	ctx := pcontext.WithRunID(context.Background(), "run_abc")
	ctx = pcontext.WithTask(ctx, "scripts")

	logger.WithContext(ctx, base).Info("rebundled")

	output := buf.String()
	if !strings.Contains(output, "[scripts]") {
		t.Errorf("expected task target from context, got %q", output)
	}
	if !strings.Contains(output, "run_id=run_abc") {
		t.Errorf("expected run id field, got %q", output)
	}
}
