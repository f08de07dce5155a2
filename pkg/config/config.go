// Package config resolves the immutable build configuration
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/poltergeist/wisp/pkg/types"
	"github.com/poltergeist/wisp/pkg/utils"
	"gopkg.in/yaml.v3"
)

// EnvVar selects the build mode
const EnvVar = "NODE_ENV"

// DefaultSettlingDelay is the watch debounce in milliseconds
const DefaultSettlingDelay = 100

// configCandidates are probed in order when no explicit path is given
var configCandidates = []string{"wisp.yaml", "wisp.yml", "wisp.json"}

// Manager handles configuration operations
type Manager struct{}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{}
}

// Default returns the built-in project layout rooted at root
func Default(root string) *types.Config {
	return &types.Config{
		ProjectRoot: root,
		Mode:        types.ModeDevelopment,
		Destination: "dist",
		Templates: types.TemplatesConfig{
			Source:      []string{"app/templates/pages/*.{tmpl,html,md}"},
			Watch:       []string{"app/templates/**/*"},
			Destination: "dist",
			Root:        "app/templates",
			Revision:    []string{"dist/**/*.html"},
		},
		Styles: types.StylesConfig{
			Source:      "app/styles/common.css",
			Watch:       []string{"app/styles/**/*.css"},
			Destination: "dist/assets/css",
			Browsers:    []string{"chrome34", "firefox28", "ios7"},
		},
		Scripts: types.ScriptsConfig{
			Source:      "app/js/common.js",
			Watch:       []string{"app/js/**/*.{js,jsx}"},
			Destination: "dist/assets/js",
			Extensions:  []string{".js", ".jsx"},
			Filename:    "common.js",
		},
		Assets: types.AssetsConfig{
			Source:      []string{"app/assets/**/*.*"},
			Watch:       []string{"app/assets/**/*.*"},
			Destination: "dist",
		},
		Compress: types.CompressConfig{
			Source:      []string{"app/js/libs/jquery/dist/jquery.min.js", "app/js/common.js"},
			Destination: "dist/assets/js",
			Filename:    "common.min.js",
		},
		MinifyCSS: types.MinifyCSSConfig{
			Source:      []string{"dist/assets/css/*.css"},
			Destination: "dist/assets/css",
		},
		Revision: types.RevisionConfig{
			Source:      []string{"dist/**/*.css", "dist/**/*.js"},
			Base:        "dist",
			Destination: "dist",
			Manifest:    "rev-manifest.json",
		},
		Server: types.ServerConfig{
			Port: 9001,
			Root: "dist",
			Open: false,
		},
		SettlingDelay: DefaultSettlingDelay,
	}
}

// FindConfig returns the first config file present in root, or "" when the
// project relies on the defaults
func FindConfig(root string) string {
	for _, name := range configCandidates {
		path := filepath.Join(root, name)
		if utils.FileExists(path) {
			return path
		}
	}
	return ""
}

// LoadConfig overlays the file at path onto base and validates the result.
// YAML and JSON are both accepted; unknown keys are rejected.
func (m *Manager) LoadConfig(path string, base *types.Config) (*types.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := *base
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config %s: %w", filepath.Base(path), err)
	}

	if err := m.ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateConfig validates a configuration
func (m *Manager) ValidateConfig(cfg *types.Config) error {
	if cfg.Destination == "" {
		return fmt.Errorf("destination is required")
	}

	checks := []struct {
		class       string
		sources     []string
		watch       []string
		destination string
	}{
		{"templates", cfg.Templates.Source, cfg.Templates.Watch, cfg.Templates.Destination},
		{"styles", nonEmpty(cfg.Styles.Source), cfg.Styles.Watch, cfg.Styles.Destination},
		{"scripts", nonEmpty(cfg.Scripts.Source), cfg.Scripts.Watch, cfg.Scripts.Destination},
		{"assets", cfg.Assets.Source, cfg.Assets.Watch, cfg.Assets.Destination},
		{"compress", cfg.Compress.Source, nil, cfg.Compress.Destination},
		{"minifyCss", cfg.MinifyCSS.Source, nil, cfg.MinifyCSS.Destination},
		{"revision", cfg.Revision.Source, nil, cfg.Revision.Destination},
	}

	for _, c := range checks {
		if len(c.sources) == 0 {
			return fmt.Errorf("%s: no source defined", c.class)
		}
		if c.destination == "" {
			return fmt.Errorf("%s: destination is required", c.class)
		}
		if err := validateGlobs(c.sources); err != nil {
			return fmt.Errorf("%s: %w", c.class, err)
		}
		if err := validateGlobs(c.watch); err != nil {
			return fmt.Errorf("%s: %w", c.class, err)
		}
	}

	if err := validateGlobs(cfg.Templates.Revision); err != nil {
		return fmt.Errorf("templates: %w", err)
	}

	if cfg.Scripts.Filename == "" {
		return fmt.Errorf("scripts: filename is required")
	}
	for _, ext := range cfg.Scripts.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("scripts: extension %q must start with a dot", ext)
		}
	}

	if cfg.Compress.Filename == "" {
		return fmt.Errorf("compress: filename is required")
	}

	if cfg.Revision.Manifest == "" {
		return fmt.Errorf("revision: manifest path is required")
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server: invalid port %d", cfg.Server.Port)
	}
	if cfg.Server.Root == "" {
		return fmt.Errorf("server: root is required")
	}

	if cfg.SettlingDelay < 0 {
		return fmt.Errorf("settlingDelay must not be negative")
	}

	return nil
}

// Options controls Resolve
type Options struct {
	// Root is the project root; empty means the working directory
	Root string
	// ConfigPath overrides config file discovery
	ConfigPath string
	// Env is the mode selector; empty means read NODE_ENV
	Env string
	// Port overrides the server port when non-zero
	Port int
}

// Resolve builds the configuration once: defaults, then the optional config
// file, then the environment. The result is never mutated afterwards.
func Resolve(opts Options) (types.Config, error) {
	root := opts.Root
	if root == "" {
		root = "."
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return types.Config{}, fmt.Errorf("failed to resolve project root: %w", err)
	}

	if err := LoadDotEnv(root); err != nil {
		return types.Config{}, err
	}

	cfg := Default(root)

	path := opts.ConfigPath
	if path != "" && !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	if path == "" {
		path = FindConfig(root)
	}
	if path != "" {
		cfg, err = NewManager().LoadConfig(path, cfg)
		if err != nil {
			return types.Config{}, err
		}
	}

	env := opts.Env
	if env == "" {
		env = os.Getenv(EnvVar)
	}
	cfg.Mode = types.ParseMode(env)
	cfg.ProjectRoot = root

	if opts.Port != 0 {
		cfg.Server.Port = opts.Port
		if err := NewManager().ValidateConfig(cfg); err != nil {
			return types.Config{}, err
		}
	}

	return *cfg, nil
}

// LoadDotEnv loads root/.env into the process environment when present.
// Variables already set are left untouched.
func LoadDotEnv(root string) error {
	path := filepath.Join(root, ".env")
	if !utils.FileExists(path) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}

func validateGlobs(patterns []string) error {
	if len(patterns) == 0 {
		return nil
	}
	_, err := utils.NewPatternMatcher(patterns)
	return err
}
