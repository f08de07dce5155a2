package builders

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/poltergeist/wisp/pkg/logger"
	"github.com/poltergeist/wisp/pkg/types"
	"github.com/poltergeist/wisp/pkg/utils"
)

// CompressBuilder concatenates vendor and application scripts into one file
type CompressBuilder struct {
	*BaseBuilder
}

// NewCompressBuilder creates a new compress builder
func NewCompressBuilder(cfg types.Config, log logger.Logger, reloader Reloader) *CompressBuilder {
	return &CompressBuilder{BaseBuilder: NewBaseBuilder(types.TaskCompress, cfg, log, reloader)}
}

// Build joins the sources with newlines in the configured order. Sources
// that do not exist are skipped with a warning; nothing is written when no
// source exists.
func (b *CompressBuilder) Build(ctx context.Context) types.Outcome {
	start := time.Now()
	cfg := b.Config.Compress

	var parts [][]byte
	for _, pattern := range cfg.Source {
		files, err := utils.Expand(b.Config.ProjectRoot, pattern)
		if errors.Is(err, os.ErrNotExist) {
			b.Logger.Warn("Skipping missing source", logger.WithField("path", pattern))
			continue
		}
		if err != nil {
			return b.record(start, fatalf("compress: %w", err))
		}

		for _, f := range files {
			data, err := os.ReadFile(b.path(f))
			if err != nil {
				return b.record(start, fatalf("compress: %w", err))
			}
			parts = append(parts, data)
		}
	}

	if len(parts) == 0 {
		b.Logger.Warn("No sources to concatenate")
		return b.record(start, types.Succeeded())
	}

	out := bytes.Join(parts, []byte("\n"))
	target := filepath.Join(b.path(cfg.Destination), cfg.Filename)
	if err := utils.WriteFile(target, out); err != nil {
		return b.record(start, fatalf("compress: %w", err))
	}

	b.Logger.Info(fmt.Sprintf("Concatenated %d files into %s", len(parts), cfg.Filename),
		logger.WithField("size", utils.FormatBytes(int64(len(out)))))
	return b.record(start, types.Succeeded())
}
