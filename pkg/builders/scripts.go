package builders

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/poltergeist/wisp/pkg/logger"
	"github.com/poltergeist/wisp/pkg/types"
)

// ScriptsBuilder bundles the entry script. In development it keeps an
// incremental esbuild context alive so rebuilds reuse the module cache.
type ScriptsBuilder struct {
	*BaseBuilder

	mu          sync.Mutex
	incremental bool
	buildCtx    api.BuildContext
}

// NewScriptsBuilder creates a new scripts builder. Development mode builds
// incrementally.
func NewScriptsBuilder(cfg types.Config, log logger.Logger, reloader Reloader) *ScriptsBuilder {
	return &ScriptsBuilder{
		BaseBuilder: NewBaseBuilder(types.TaskScripts, cfg, log, reloader),
		incremental: !cfg.Mode.IsProduction(),
	}
}

// Options returns the esbuild options for the current mode
func (b *ScriptsBuilder) Options() api.BuildOptions {
	cfg := b.Config.Scripts

	extensions := []string{".js", ".json"}
	for _, ext := range cfg.Extensions {
		if ext != ".js" && ext != ".json" {
			extensions = append(extensions, ext)
		}
	}

	prod := b.Production()
	opts := api.BuildOptions{
		EntryPoints:       []string{b.path(cfg.Source)},
		Bundle:            true,
		Outfile:           filepath.Join(b.path(cfg.Destination), cfg.Filename),
		Write:             true,
		Format:            api.FormatIIFE,
		Platform:          api.PlatformBrowser,
		ResolveExtensions: extensions,
		MinifyWhitespace:  prod,
		MinifySyntax:      prod,
		MinifyIdentifiers: prod,
		LogLevel:          api.LogLevelSilent,
		AbsWorkingDir:     b.Config.ProjectRoot,
	}
	if !prod {
		opts.Sourcemap = api.SourceMapInline
	}
	return opts
}

// Build bundles the scripts. The first development build creates the
// incremental context; later builds rebuild it and push a page reload.
func (b *ScriptsBuilder) Build(ctx context.Context) types.Outcome {
	start := time.Now()

	if _, err := os.Stat(b.path(b.Config.Scripts.Source)); err != nil {
		return b.record(start, fatalf("scripts source: %w", err))
	}

	var result api.BuildResult
	if b.incremental {
		buildCtx, err := b.context()
		if err != nil {
			return b.record(start, types.Fatal(err))
		}
		result = buildCtx.Rebuild()
	} else {
		result = api.Build(b.Options())
	}

	if err := messagesError(result.Errors); err != nil {
		return b.record(start, types.Recoverable(err))
	}

	duration := time.Since(start).Round(time.Millisecond)
	if b.incremental {
		b.Logger.Info(fmt.Sprintf("Rebundled %s in %s", b.Config.Scripts.Filename, duration))
		b.Reloader.ReloadPage(b.Config.Scripts.Filename)
	} else {
		b.Logger.Info("Bundled scripts",
			logger.WithField("files", len(result.OutputFiles)),
			logger.WithField("duration", duration))
	}

	return b.record(start, types.Succeeded())
}

func (b *ScriptsBuilder) context() (api.BuildContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.buildCtx != nil {
		return b.buildCtx, nil
	}

	buildCtx, ctxErr := api.Context(b.Options())
	if ctxErr != nil {
		if err := messagesError(ctxErr.Errors); err != nil {
			return nil, fmt.Errorf("scripts: %w", err)
		}
		return nil, fmt.Errorf("scripts: invalid build options")
	}
	b.buildCtx = buildCtx
	return buildCtx, nil
}

// Close disposes the incremental context
func (b *ScriptsBuilder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.buildCtx != nil {
		b.buildCtx.Dispose()
		b.buildCtx = nil
	}
	return nil
}
