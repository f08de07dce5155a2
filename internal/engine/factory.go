package engine

import (
	"github.com/poltergeist/wisp/pkg/builders"
	"github.com/poltergeist/wisp/pkg/logger"
	"github.com/poltergeist/wisp/pkg/metrics"
	"github.com/poltergeist/wisp/pkg/notifier"
	"github.com/poltergeist/wisp/pkg/types"
)

// Dependencies are the collaborators of a Wisp instance. Builders is keyed
// by task name.
type Dependencies struct {
	Builders map[string]builders.Builder
	Notifier notifier.Notifier
	Recorder metrics.Recorder
}

// DependencyFactory creates the default pipelines, notifier and recorder for
// a resolved configuration
type DependencyFactory struct {
	config types.Config
	logger logger.Logger
}

// NewDependencyFactory creates a new dependency factory
func NewDependencyFactory(cfg types.Config, log logger.Logger) *DependencyFactory {
	return &DependencyFactory{
		config: cfg,
		logger: log,
	}
}

// CreateDefaults creates every pipeline for the configured mode. Reloader
// receives live reload pushes and may be nil outside development mode.
func (f *DependencyFactory) CreateDefaults(reloader builders.Reloader) Dependencies {
	cfg := f.config

	return Dependencies{
		Builders: map[string]builders.Builder{
			types.TaskClean:            builders.NewCleanBuilder(cfg, f.logger),
			types.TaskTemplates:        builders.NewTemplatesBuilder(cfg, f.logger, reloader),
			types.TaskStyles:           builders.NewStylesBuilder(cfg, f.logger, reloader),
			types.TaskScripts:          builders.NewScriptsBuilder(cfg, f.logger, reloader),
			types.TaskAssets:           builders.NewAssetsBuilder(cfg, f.logger, reloader),
			types.TaskCompress:         builders.NewCompressBuilder(cfg, f.logger, reloader),
			types.TaskMinifyCSS:        builders.NewMinifyCSSBuilder(cfg, f.logger, reloader),
			types.TaskRevision:         builders.NewRevisionBuilder(cfg, f.logger),
			types.TaskReplaceRevisions: builders.NewRewriteBuilder(cfg, f.logger),
		},
		Notifier: f.createNotifier(),
		Recorder: metrics.NoopRecorder{},
	}
}

// CreateWithOverrides creates the defaults and replaces whatever overrides
// sets. Builders are replaced per task name.
func (f *DependencyFactory) CreateWithOverrides(reloader builders.Reloader, overrides Dependencies) Dependencies {
	deps := f.CreateDefaults(reloader)

	for name, b := range overrides.Builders {
		deps.Builders[name] = b
	}
	if overrides.Notifier != nil {
		deps.Notifier = overrides.Notifier
	}
	if overrides.Recorder != nil {
		deps.Recorder = overrides.Recorder
	}

	return deps
}

func (f *DependencyFactory) createNotifier() notifier.Notifier {
	return notifier.New(notifier.Config{
		Enabled: f.config.NotificationsEnabled(),
	}, f.logger)
}
