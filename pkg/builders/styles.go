package builders

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/poltergeist/wisp/pkg/logger"
	"github.com/poltergeist/wisp/pkg/types"
)

// StylesBuilder bundles the entry stylesheet. Imports are inlined and the
// output is lowered for the configured browsers.
type StylesBuilder struct {
	*BaseBuilder
}

// NewStylesBuilder creates a new styles builder
func NewStylesBuilder(cfg types.Config, log logger.Logger, reloader Reloader) *StylesBuilder {
	return &StylesBuilder{BaseBuilder: NewBaseBuilder(types.TaskStyles, cfg, log, reloader)}
}

// Build bundles the stylesheet. Development writes a linked source map and
// pushes a CSS-only reload; production minifies.
func (b *StylesBuilder) Build(ctx context.Context) types.Outcome {
	start := time.Now()
	cfg := b.Config.Styles

	entry := b.path(cfg.Source)
	if _, err := os.Stat(entry); err != nil {
		return b.record(start, fatalf("styles source: %w", err))
	}

	engines, err := ParseEngines(cfg.Browsers)
	if err != nil {
		return b.record(start, fatalf("styles: %w", err))
	}

	prod := b.Production()
	opts := api.BuildOptions{
		EntryPoints:       []string{entry},
		Bundle:            true,
		Outdir:            b.path(cfg.Destination),
		Write:             true,
		Engines:           engines,
		MinifyWhitespace:  prod,
		MinifySyntax:      prod,
		MinifyIdentifiers: prod,
		LogLevel:          api.LogLevelSilent,
		AbsWorkingDir:     b.Config.ProjectRoot,
	}
	if !prod {
		opts.Sourcemap = api.SourceMapLinked
	}

	result := api.Build(opts)
	if err := messagesError(result.Errors); err != nil {
		return b.record(start, types.Recoverable(err))
	}

	var written []string
	for _, out := range result.OutputFiles {
		if strings.HasSuffix(out.Path, ".css") {
			written = append(written, b.servedPath(out.Path))
		}
	}

	b.Logger.Info("Bundled stylesheet",
		logger.WithField("files", len(result.OutputFiles)),
		logger.WithField("duration", time.Since(start).Round(time.Millisecond)))

	if !prod {
		b.Reloader.ReloadCSS(written)
	}

	return b.record(start, types.Succeeded())
}
