package builders

import (
	"context"
	"time"

	"github.com/poltergeist/wisp/pkg/logger"
	"github.com/poltergeist/wisp/pkg/types"
	"github.com/poltergeist/wisp/pkg/utils"
)

// CleanBuilder removes the destination directory
type CleanBuilder struct {
	*BaseBuilder
}

// NewCleanBuilder creates a new clean builder
func NewCleanBuilder(cfg types.Config, log logger.Logger) *CleanBuilder {
	return &CleanBuilder{BaseBuilder: NewBaseBuilder(types.TaskClean, cfg, log, nil)}
}

// Build removes the destination. Refusing to remove the project root is fatal.
func (b *CleanBuilder) Build(ctx context.Context) types.Outcome {
	start := time.Now()
	dest := b.path(b.Config.Destination)

	if err := utils.CleanDirectory(dest, b.Config.ProjectRoot); err != nil {
		return b.record(start, fatalf("clean: %w", err))
	}

	b.Logger.Info("Removed destination", logger.WithField("path", b.Config.Destination))
	return b.record(start, types.Succeeded())
}
