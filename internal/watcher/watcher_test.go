package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poltergeist/wisp/pkg/logger"
)

func newTestWatcher(t *testing.T, root string, patterns ...string) *FSNotifyWatcher {
	t.Helper()
	w, err := New(Config{
		Root:          root,
		Patterns:      patterns,
		Exclusions:    []string{"/dist"},
		SettlingDelay: 50 * time.Millisecond,
	}, logger.CreateLoggerWithOutput("", "debug", nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func nextBatch(t *testing.T, w *FSNotifyWatcher) []string {
	t.Helper()
	select {
	case batch := <-w.Changes():
		return batch
	case <-time.After(3 * time.Second):
		t.Fatal("no change batch delivered")
		return nil
	}
}

func TestWatcher_ReportsMatchingChanges(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "app", "styles", "common.css"), "body{}")

	w := newTestWatcher(t, root, "app/styles/**/*.css")

	write(t, filepath.Join(root, "app", "styles", "common.css"), "body{color:red}")
	assert.Equal(t, []string{"app/styles/common.css"}, nextBatch(t, w))
}

func TestWatcher_SettlesBursts(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "app", "js"), 0o755))

	w := newTestWatcher(t, root, "app/js/**/*.{js,jsx}")

	write(t, filepath.Join(root, "app", "js", "a.js"), "a")
	write(t, filepath.Join(root, "app", "js", "b.jsx"), "b")
	write(t, filepath.Join(root, "app", "js", "a.js"), "aa")

	assert.Equal(t, []string{"app/js/a.js", "app/js/b.jsx"}, nextBatch(t, w))
}

func TestWatcher_IgnoresExcludedAndUnmatched(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dist", "assets"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "x"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "app", "styles"), 0o755))

	w := newTestWatcher(t, root)
	for _, dir := range w.List() {
		rel, _ := filepath.Rel(root, dir)
		assert.NotContains(t, []string{"dist", "node_modules"}, filepath.ToSlash(rel))
	}

	write(t, filepath.Join(root, "dist", "assets", "common.css"), "x")
	write(t, filepath.Join(root, "node_modules", "x", "index.js"), "x")
	write(t, filepath.Join(root, "app", "styles", "notes.swp"), "x")
	write(t, filepath.Join(root, "app", "styles", "common.css"), "x")

	assert.Equal(t, []string{"app/styles/common.css"}, nextBatch(t, w))
}

func TestWatcher_WatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "app", "templates"), 0o755))

	w := newTestWatcher(t, root, "app/templates/**/*")

	write(t, filepath.Join(root, "app", "templates", "partials", "nav.tmpl"), "<nav></nav>")
	first := nextBatch(t, w)
	assert.Contains(t, first, "app/templates/partials/nav.tmpl")

	write(t, filepath.Join(root, "app", "templates", "partials", "nav.tmpl"), "<nav>2</nav>")
	assert.Equal(t, []string{"app/templates/partials/nav.tmpl"}, nextBatch(t, w))
}

func TestWatcher_CloseEndsChanges(t *testing.T) {
	root := t.TempDir()
	w := newTestWatcher(t, root)

	require.NoError(t, w.Close())
	_, ok := <-w.Changes()
	assert.False(t, ok)
	assert.NoError(t, w.Close())
}

func TestWatcher_MalformedPattern(t *testing.T) {
	_, err := New(Config{Root: t.TempDir(), Patterns: []string{"app/[styles"}},
		logger.CreateLoggerWithOutput("", "debug", nil))
	assert.Error(t, err)
}
