// Package builders implements the asset pipelines, the revision stage and
// the reference rewriter. Every builder returns a typed outcome; the caller
// decides whether a failure is reported or aborts the run.
package builders

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/poltergeist/wisp/pkg/logger"
	"github.com/poltergeist/wisp/pkg/types"
	"github.com/poltergeist/wisp/pkg/utils"
)

// Builder is a single pipeline stage
type Builder interface {
	Name() string
	Build(ctx context.Context) types.Outcome
}

// Reloader receives live reload pushes in development mode
type Reloader interface {
	// ReloadCSS refreshes stylesheets in place. Paths are relative to the
	// served root.
	ReloadCSS(paths []string)
	// ReloadPage asks every connected browser to reload
	ReloadPage(reason string)
}

// NoopReloader discards reload pushes
type NoopReloader struct{}

func (NoopReloader) ReloadCSS([]string) {}
func (NoopReloader) ReloadPage(string)  {}

// BaseBuilder provides common functionality for all builders
type BaseBuilder struct {
	name     string
	Config   types.Config
	Logger   logger.Logger
	Reloader Reloader
}

// NewBaseBuilder creates a new base builder
func NewBaseBuilder(name string, cfg types.Config, log logger.Logger, reloader Reloader) *BaseBuilder {
	if log == nil {
		log = logger.CreateLoggerWithOutput("", "info", nil)
	}
	if reloader == nil {
		reloader = NoopReloader{}
	}

	return &BaseBuilder{
		name:     name,
		Config:   cfg,
		Logger:   log.WithTarget(name),
		Reloader: reloader,
	}
}

// Name returns the task name
func (b *BaseBuilder) Name() string {
	return b.name
}

// Production reports whether the production branch applies
func (b *BaseBuilder) Production() bool {
	return b.Config.Mode.IsProduction()
}

// record logs how long the stage took and returns the outcome unchanged
func (b *BaseBuilder) record(start time.Time, outcome types.Outcome) types.Outcome {
	b.Logger.Debug("Stage finished",
		logger.WithField("elapsed", time.Since(start).Round(time.Millisecond)),
		logger.WithField("outcome", outcome.Kind))
	return outcome
}

// path resolves a config path against the project root
func (b *BaseBuilder) path(rel string) string {
	return b.Config.Path(rel)
}

// servedPath returns p relative to the server root, slash separated
func (b *BaseBuilder) servedPath(p string) string {
	rel, err := filepath.Rel(b.path(b.Config.Server.Root), p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

// sourceFile is a matched source with its path relative to the glob base
type sourceFile struct {
	// Path is relative to the project root
	Path string
	// Rel is relative to the base of the glob that matched it
	Rel string
}

// expandSources resolves patterns one by one, keeping each file's path
// relative to its own glob base. The first pattern to match a file wins.
func expandSources(root string, patterns []string) ([]sourceFile, error) {
	seen := make(map[string]bool)
	var out []sourceFile

	for _, pattern := range patterns {
		files, err := utils.Expand(root, pattern)
		if err != nil {
			return nil, err
		}

		base := utils.GlobBase(pattern)
		for _, f := range files {
			if seen[f] {
				continue
			}
			seen[f] = true

			rel := f
			if base != "." {
				rel = strings.TrimPrefix(f, base+"/")
			}
			out = append(out, sourceFile{Path: f, Rel: rel})
		}
	}

	return out, nil
}

// replaceExt swaps the extension of a slash path
func replaceExt(p, ext string) string {
	return strings.TrimSuffix(p, filepath.Ext(p)) + ext
}

// fatalf builds a fatal outcome with a wrapped error
func fatalf(format string, args ...interface{}) types.Outcome {
	return types.Fatal(fmt.Errorf(format, args...))
}
