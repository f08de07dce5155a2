package builders_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/poltergeist/wisp/pkg/config"
	"github.com/poltergeist/wisp/pkg/logger"
	"github.com/poltergeist/wisp/pkg/types"
)

// newProject creates a project root with the given files and returns the
// default configuration for it
func newProject(t *testing.T, mode types.Mode, files map[string]string) types.Config {
	t.Helper()

	root := t.TempDir()
	for name, content := range files {
		writeFile(t, filepath.Join(root, filepath.FromSlash(name)), content)
	}

	cfg := *config.Default(root)
	cfg.Mode = mode
	return cfg
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

func testLogger() logger.Logger {
	return logger.CreateLoggerWithOutput("", "debug", nil)
}
