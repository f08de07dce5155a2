package builders

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/poltergeist/wisp/pkg/logger"
	"github.com/poltergeist/wisp/pkg/types"
	"github.com/poltergeist/wisp/pkg/utils"
)

// AssetsBuilder copies static files verbatim
type AssetsBuilder struct {
	*BaseBuilder
}

// NewAssetsBuilder creates a new assets builder
func NewAssetsBuilder(cfg types.Config, log logger.Logger, reloader Reloader) *AssetsBuilder {
	return &AssetsBuilder{BaseBuilder: NewBaseBuilder(types.TaskAssets, cfg, log, reloader)}
}

// Build copies every matched file, preserving its path below the glob base
func (b *AssetsBuilder) Build(ctx context.Context) types.Outcome {
	start := time.Now()
	cfg := b.Config.Assets

	files, err := expandSources(b.Config.ProjectRoot, cfg.Source)
	if err != nil {
		return b.record(start, fatalf("assets: %w", err))
	}

	dest := b.path(cfg.Destination)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return b.record(start, types.Fatal(err))
		}
		target := filepath.Join(dest, filepath.FromSlash(f.Rel))
		if err := utils.CopyFile(b.path(f.Path), target); err != nil {
			return b.record(start, fatalf("assets: %w", err))
		}
	}

	b.Logger.Info(fmt.Sprintf("Copied %d assets", len(files)))
	return b.record(start, types.Succeeded())
}
