package builders

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/poltergeist/wisp/pkg/logger"
	"github.com/poltergeist/wisp/pkg/types"
	"github.com/poltergeist/wisp/pkg/utils"
)

// HashLength is the number of hex digits kept in a fingerprint
const HashLength = 10

// Manifest maps original asset paths to fingerprinted paths. Both sides
// are slash separated and relative to the revision base.
type Manifest map[string]string

// LoadManifest reads a manifest file
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("corrupt manifest %s: %w", path, err)
	}
	if m == nil {
		m = Manifest{}
	}
	return m, nil
}

// Save replaces the manifest file with m. Keys are written sorted.
func (m Manifest) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return utils.WriteFile(path, append(data, '\n'))
}

// Keys returns the original paths in sorted order
func (m Manifest) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Fingerprints returns the set of fingerprinted paths
func (m Manifest) Fingerprints() map[string]bool {
	set := make(map[string]bool, len(m))
	for _, v := range m {
		set[v] = true
	}
	return set
}

// Fingerprint returns the content hash used in revisioned names
func Fingerprint(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))[:HashLength]
}

// RevisionedName inserts the hash before the last extension:
// assets/css/common.css becomes assets/css/common-<hash>.css
func RevisionedName(name, hash string) string {
	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext) + "-" + hash + ext
}

// RevisionBuilder fingerprints built stylesheets and scripts
type RevisionBuilder struct {
	*BaseBuilder
}

// NewRevisionBuilder creates a new revision builder
func NewRevisionBuilder(cfg types.Config, log logger.Logger) *RevisionBuilder {
	return &RevisionBuilder{BaseBuilder: NewBaseBuilder(types.TaskRevision, cfg, log, nil)}
}

// ManifestPath returns the absolute manifest location
func (b *RevisionBuilder) ManifestPath() string {
	return b.path(b.Config.Revision.Manifest)
}

// Build copies each output to its fingerprinted name and overwrites the
// manifest with the complete mapping of this run
func (b *RevisionBuilder) Build(ctx context.Context) types.Outcome {
	start := time.Now()
	cfg := b.Config.Revision

	files, err := utils.Expand(b.Config.ProjectRoot, cfg.Source...)
	if err != nil {
		return b.record(start, fatalf("revision: %w", err))
	}

	// Outputs of an earlier run in the same destination are not revisioned again
	previous := Manifest{}
	if m, err := LoadManifest(b.ManifestPath()); err == nil {
		previous = m
	}
	fingerprinted := previous.Fingerprints()

	base := utils.NormalizePattern(cfg.Base)
	dest := b.path(cfg.Destination)
	manifest := Manifest{}

	for _, f := range files {
		rel := f
		if base != "" && base != "." {
			if !strings.HasPrefix(f, base+"/") {
				b.Logger.Debug("Skipping file outside revision base", logger.WithField("path", f))
				continue
			}
			rel = strings.TrimPrefix(f, base+"/")
		}
		if fingerprinted[rel] {
			continue
		}

		data, err := os.ReadFile(b.path(f))
		if err != nil {
			return b.record(start, fatalf("revision: %w", err))
		}

		revisioned := RevisionedName(rel, Fingerprint(data))
		if err := utils.WriteFile(filepath.Join(dest, filepath.FromSlash(revisioned)), data); err != nil {
			return b.record(start, fatalf("revision: %w", err))
		}
		manifest[rel] = revisioned
	}

	if err := manifest.Save(b.ManifestPath()); err != nil {
		return b.record(start, fatalf("revision: writing manifest: %w", err))
	}

	b.Logger.Info(fmt.Sprintf("Fingerprinted %d files", len(manifest)),
		logger.WithField("manifest", cfg.Manifest))
	return b.record(start, types.Succeeded())
}
