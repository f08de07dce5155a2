// Package watcher reports settled batches of changed source files
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/poltergeist/wisp/pkg/logger"
	"github.com/poltergeist/wisp/pkg/utils"
)

// Config describes what to watch
type Config struct {
	// Root is the project root; reported paths are relative to it
	Root string
	// Patterns are the watch globs; an empty list reports every file
	Patterns []string
	// Exclusions are skipped at any depth, see utils.NewExclusionMatcher
	Exclusions []string
	// SettlingDelay is how long the tree must stay quiet before a batch
	// is delivered
	SettlingDelay time.Duration
}

// FSNotifyWatcher watches a project tree recursively with fsnotify
type FSNotifyWatcher struct {
	watcher    *fsnotify.Watcher
	logger     logger.Logger
	root       string
	matcher    *utils.PatternMatcher
	exclusions *utils.ExclusionMatcher
	settling   time.Duration

	changes chan []string
	sendMu  sync.Mutex

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a watcher over cfg.Root and starts processing events
func New(cfg Config, log logger.Logger) (*FSNotifyWatcher, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving watch root: %w", err)
	}

	var matcher *utils.PatternMatcher
	if len(cfg.Patterns) > 0 {
		if matcher, err = utils.NewPatternMatcher(cfg.Patterns); err != nil {
			return nil, fmt.Errorf("watch patterns: %w", err)
		}
	}

	exclusions, err := utils.NewExclusionMatcher(append(utils.GetDefaultExclusions(), cfg.Exclusions...))
	if err != nil {
		return nil, fmt.Errorf("watch exclusions: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	settling := cfg.SettlingDelay
	if settling <= 0 {
		settling = 100 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &FSNotifyWatcher{
		watcher:    fw,
		logger:     log.WithTarget("watch"),
		root:       root,
		matcher:    matcher,
		exclusions: exclusions,
		settling:   settling,
		changes:    make(chan []string, 16),
		pending:    make(map[string]struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}

	if err := w.addDirectory(root); err != nil {
		fw.Close()
		cancel()
		return nil, fmt.Errorf("failed to watch %s: %w", root, err)
	}

	w.wg.Add(1)
	go w.processEvents()

	w.logger.Debug(fmt.Sprintf("Watching %d directories under %s", len(fw.WatchList()), root))
	return w, nil
}

// Changes delivers settled batches of slash-separated paths relative to the
// root. The channel is closed by Close.
func (w *FSNotifyWatcher) Changes() <-chan []string {
	return w.changes
}

// Close stops watching and closes the changes channel
func (w *FSNotifyWatcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.cancel()
		err = w.watcher.Close()

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()

		w.wg.Wait()

		w.sendMu.Lock()
		close(w.changes)
		w.sendMu.Unlock()
	})
	return err
}

// List returns all watched directories
func (w *FSNotifyWatcher) List() []string {
	return w.watcher.WatchList()
}

// addDirectory watches dir and every non-excluded directory below it
func (w *FSNotifyWatcher) addDirectory(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			w.logger.Warn(fmt.Sprintf("Failed to read %s: %v", path, err))
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.isExcluded(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn(fmt.Sprintf("Failed to watch directory %s: %v", path, err))
		}
		return nil
	})
}

func (w *FSNotifyWatcher) relative(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || rel == ".." || filepath.IsAbs(rel) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *FSNotifyWatcher) isExcluded(path string) bool {
	rel, ok := w.relative(path)
	return ok && w.exclusions.IsExcluded(rel)
}

func (w *FSNotifyWatcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error(fmt.Sprintf("Watcher error: %v", err))
		}
	}
}

func (w *FSNotifyWatcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	if w.isExcluded(event.Name) {
		return
	}

	// New directories are watched; files already inside are reported too
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addDirectory(event.Name); err != nil {
				w.logger.Warn(fmt.Sprintf("Failed to watch %s: %v", event.Name, err))
			}
			w.reportTree(event.Name)
			return
		}
	}

	w.report(event.Name)
}

func (w *FSNotifyWatcher) reportTree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			w.report(path)
		}
		return nil
	})
}

// report records a change and restarts the settling timer
func (w *FSNotifyWatcher) report(path string) {
	rel, ok := w.relative(path)
	if !ok {
		return
	}
	if w.matcher != nil && !w.matcher.Match(rel) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[rel] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.settling, w.flush)
}

// flush delivers the pending batch once the tree has settled
func (w *FSNotifyWatcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	batch := make([]string, 0, len(w.pending))
	for path := range w.pending {
		batch = append(batch, path)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	sort.Strings(batch)
	w.logger.Debug(fmt.Sprintf("%d file(s) changed", len(batch)))

	w.sendMu.Lock()
	defer w.sendMu.Unlock()
	if w.ctx.Err() != nil {
		return
	}
	select {
	case w.changes <- batch:
	case <-w.ctx.Done():
	}
}
