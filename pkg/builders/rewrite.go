package builders

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/poltergeist/wisp/pkg/logger"
	"github.com/poltergeist/wisp/pkg/types"
	"github.com/poltergeist/wisp/pkg/utils"
)

// RewriteBuilder replaces original asset references in built pages with
// their fingerprinted names
type RewriteBuilder struct {
	*BaseBuilder
}

// NewRewriteBuilder creates a new reference rewriter
func NewRewriteBuilder(cfg types.Config, log logger.Logger) *RewriteBuilder {
	return &RewriteBuilder{BaseBuilder: NewBaseBuilder(types.TaskReplaceRevisions, cfg, log, nil)}
}

// Rewrite applies every manifest entry as a literal replacement in sorted
// key order. A fingerprinted name that contains another entry's original
// name is rewritten again by the later entry.
func Rewrite(content string, m Manifest) string {
	for _, key := range m.Keys() {
		content = strings.ReplaceAll(content, key, m[key])
	}
	return content
}

// Build rewrites every page matched by the templates revision globs in place
func (b *RewriteBuilder) Build(ctx context.Context) types.Outcome {
	start := time.Now()

	manifestPath := b.path(b.Config.Revision.Manifest)
	manifest, err := LoadManifest(manifestPath)
	if err != nil {
		return b.record(start, fatalf("replace-revision-references: %w", err))
	}

	pages, err := expandSources(b.Config.ProjectRoot, b.Config.Templates.Revision)
	if err != nil {
		return b.record(start, fatalf("replace-revision-references: %w", err))
	}

	dest := b.path(b.Config.Templates.Destination)
	var changed int
	for _, page := range pages {
		data, err := os.ReadFile(b.path(page.Path))
		if err != nil {
			return b.record(start, fatalf("replace-revision-references: %w", err))
		}

		rewritten := Rewrite(string(data), manifest)
		if rewritten != string(data) {
			changed++
		}

		target := filepath.Join(dest, filepath.FromSlash(page.Rel))
		if err := utils.WriteFile(target, []byte(rewritten)); err != nil {
			return b.record(start, fatalf("replace-revision-references: %w", err))
		}
	}

	b.Logger.Info(fmt.Sprintf("Rewrote references in %d of %d pages", changed, len(pages)),
		logger.WithField("entries", len(manifest)))
	return b.record(start, types.Succeeded())
}
