// Package types provides core types and configurations for wisp
package types

import (
	"fmt"
	"path/filepath"
)

// Mode represents the build mode selected once at startup
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// ParseMode maps the environment selector to a Mode. Only the exact value
// "production" selects production; anything else is development.
func ParseMode(env string) Mode {
	if env == string(ModeProduction) {
		return ModeProduction
	}
	return ModeDevelopment
}

// IsProduction reports whether minification and fingerprinting apply
func (m Mode) IsProduction() bool { return m == ModeProduction }

// LogLevel represents logging verbosity levels
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// TaskStatus represents the lifecycle state of a task within one run
type TaskStatus string

const (
	TaskStatusNotStarted TaskStatus = "not-started"
	TaskStatusRunning    TaskStatus = "running"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Well-known task names. They double as the CLI surface.
const (
	TaskClean            = "clean"
	TaskTemplates        = "templates"
	TaskStyles           = "styles"
	TaskScripts          = "scripts"
	TaskAssets           = "assets"
	TaskCompress         = "compress"
	TaskMinifyCSS        = "minify-css"
	TaskRevision         = "revision"
	TaskReplaceRevisions = "replace-revision-references"
)

// OutcomeKind classifies how a pipeline stage finished
type OutcomeKind string

const (
	OutcomeSuccess     OutcomeKind = "success"
	OutcomeRecoverable OutcomeKind = "recoverable"
	OutcomeFatal       OutcomeKind = "fatal"
)

// Outcome is the typed result of a pipeline stage. Recoverable outcomes are
// reported and swallowed; fatal outcomes abort the whole run.
type Outcome struct {
	Kind OutcomeKind
	Err  error
}

// Succeeded returns a successful outcome
func Succeeded() Outcome {
	return Outcome{Kind: OutcomeSuccess}
}

// Recoverable wraps a transformation error that must not stop sibling stages
func Recoverable(err error) Outcome {
	return Outcome{Kind: OutcomeRecoverable, Err: err}
}

// Fatal wraps a structural error (filesystem, configuration)
func Fatal(err error) Outcome {
	return Outcome{Kind: OutcomeFatal, Err: err}
}

// OK reports whether the stage succeeded
func (o Outcome) OK() bool { return o.Kind == OutcomeSuccess || o.Kind == "" }

// IsFatal reports whether the outcome should abort the run
func (o Outcome) IsFatal() bool { return o.Kind == OutcomeFatal }

func (o Outcome) String() string {
	if o.Err == nil {
		return string(o.Kind)
	}
	return fmt.Sprintf("%s: %v", o.Kind, o.Err)
}

// TemplatesConfig describes page compilation
type TemplatesConfig struct {
	Source      []string `json:"source" yaml:"source"`
	Watch       []string `json:"watch" yaml:"watch"`
	Destination string   `json:"destination" yaml:"destination"`
	// Root holds layouts and partials shared by every page
	Root     string   `json:"root" yaml:"root"`
	Revision []string `json:"revision" yaml:"revision"`
}

// StylesConfig describes stylesheet bundling
type StylesConfig struct {
	Source      string   `json:"source" yaml:"source"`
	Watch       []string `json:"watch" yaml:"watch"`
	Destination string   `json:"destination" yaml:"destination"`
	Browsers    []string `json:"browsers" yaml:"browsers"`
}

// ScriptsConfig describes script bundling
type ScriptsConfig struct {
	Source      string   `json:"source" yaml:"source"`
	Watch       []string `json:"watch" yaml:"watch"`
	Destination string   `json:"destination" yaml:"destination"`
	Extensions  []string `json:"extensions" yaml:"extensions"`
	Filename    string   `json:"filename" yaml:"filename"`
}

// AssetsConfig describes verbatim asset copying
type AssetsConfig struct {
	Source      []string `json:"source" yaml:"source"`
	Watch       []string `json:"watch" yaml:"watch"`
	Destination string   `json:"destination" yaml:"destination"`
}

// CompressConfig describes script concatenation
type CompressConfig struct {
	Source      []string `json:"source" yaml:"source"`
	Destination string   `json:"destination" yaml:"destination"`
	Filename    string   `json:"filename" yaml:"filename"`
}

// MinifyCSSConfig describes in-place minification of built stylesheets
type MinifyCSSConfig struct {
	Source      []string `json:"source" yaml:"source"`
	Destination string   `json:"destination" yaml:"destination"`
}

// RevisionConfig describes fingerprinting
type RevisionConfig struct {
	Source      []string `json:"source" yaml:"source"`
	Base        string   `json:"base" yaml:"base"`
	Destination string   `json:"destination" yaml:"destination"`
	Manifest    string   `json:"manifest" yaml:"manifest"`
}

// ServerConfig describes the development server
type ServerConfig struct {
	Port int    `json:"port" yaml:"port"`
	Root string `json:"root" yaml:"root"`
	Open bool   `json:"open" yaml:"open"`
}

// Config is the resolved, read-only configuration shared by every pipeline.
// Paths are relative to ProjectRoot unless absolute.
type Config struct {
	ProjectRoot   string          `json:"-" yaml:"-"`
	Mode          Mode            `json:"-" yaml:"-"`
	Destination   string          `json:"destination" yaml:"destination"`
	Templates     TemplatesConfig `json:"templates" yaml:"templates"`
	Styles        StylesConfig    `json:"styles" yaml:"styles"`
	Scripts       ScriptsConfig   `json:"scripts" yaml:"scripts"`
	Assets        AssetsConfig    `json:"assets" yaml:"assets"`
	Compress      CompressConfig  `json:"compress" yaml:"compress"`
	MinifyCSS     MinifyCSSConfig `json:"minifyCss" yaml:"minifyCss"`
	Revision      RevisionConfig  `json:"revision" yaml:"revision"`
	Server        ServerConfig    `json:"server" yaml:"server"`
	Notifications *bool           `json:"notifications,omitempty" yaml:"notifications,omitempty"`
	// SettlingDelay is the watch debounce in milliseconds
	SettlingDelay int `json:"settlingDelay,omitempty" yaml:"settlingDelay,omitempty"`
}

// Path resolves a config-relative path against the project root
func (c Config) Path(rel string) string {
	if rel == "" || filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(c.ProjectRoot, filepath.FromSlash(rel))
}

// NotificationsEnabled reports whether desktop notifications are on
func (c Config) NotificationsEnabled() bool {
	return c.Notifications == nil || *c.Notifications
}
