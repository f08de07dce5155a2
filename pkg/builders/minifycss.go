package builders

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/poltergeist/wisp/pkg/logger"
	"github.com/poltergeist/wisp/pkg/types"
	"github.com/poltergeist/wisp/pkg/utils"
)

// MinifyCSSBuilder minifies built stylesheets in place
type MinifyCSSBuilder struct {
	*BaseBuilder
}

// NewMinifyCSSBuilder creates a new minify-css builder
func NewMinifyCSSBuilder(cfg types.Config, log logger.Logger, reloader Reloader) *MinifyCSSBuilder {
	return &MinifyCSSBuilder{BaseBuilder: NewBaseBuilder(types.TaskMinifyCSS, cfg, log, reloader)}
}

// Build rewrites every matched stylesheet under the same name
func (b *MinifyCSSBuilder) Build(ctx context.Context) types.Outcome {
	start := time.Now()
	cfg := b.Config.MinifyCSS

	files, err := utils.Expand(b.Config.ProjectRoot, cfg.Source...)
	if err != nil {
		return b.record(start, fatalf("minify-css: %w", err))
	}

	dest := b.path(cfg.Destination)
	var saved int
	for _, f := range files {
		data, err := os.ReadFile(b.path(f))
		if err != nil {
			return b.record(start, fatalf("minify-css: %w", err))
		}

		result := api.Transform(string(data), api.TransformOptions{
			Loader:           api.LoaderCSS,
			Sourcefile:       f,
			MinifyWhitespace: true,
			MinifySyntax:     true,
			LogLevel:         api.LogLevelSilent,
		})
		if err := messagesError(result.Errors); err != nil {
			return b.record(start, types.Recoverable(err))
		}

		if err := utils.WriteFile(filepath.Join(dest, filepath.Base(f)), result.Code); err != nil {
			return b.record(start, fatalf("minify-css: %w", err))
		}
		saved += len(data) - len(result.Code)
	}

	b.Logger.Info(fmt.Sprintf("Minified %d stylesheets", len(files)),
		logger.WithField("saved", utils.FormatBytes(int64(saved))))
	return b.record(start, types.Succeeded())
}
