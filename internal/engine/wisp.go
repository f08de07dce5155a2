package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/poltergeist/wisp/pkg/builders"
	pcontext "github.com/poltergeist/wisp/pkg/context"
	"github.com/poltergeist/wisp/pkg/logger"
	"github.com/poltergeist/wisp/pkg/metrics"
	"github.com/poltergeist/wisp/pkg/notifier"
	"github.com/poltergeist/wisp/pkg/types"
	"github.com/poltergeist/wisp/pkg/utils"
)

// BuildTasks is the production build composition. Clean runs before it.
var BuildTasks = []string{
	types.TaskTemplates,
	types.TaskStyles,
	types.TaskAssets,
	types.TaskMinifyCSS,
	types.TaskCompress,
	types.TaskScripts,
	types.TaskRevision,
	types.TaskReplaceRevisions,
}

// DevTasks run once when development mode starts and are the only tasks
// re-run by the watch loop
var DevTasks = []string{
	types.TaskTemplates,
	types.TaskStyles,
	types.TaskAssets,
	types.TaskScripts,
}

// taskDependencies declares the prerequisite edges of the task graph
var taskDependencies = map[string][]string{
	types.TaskMinifyCSS: {types.TaskStyles},
	types.TaskRevision: {
		types.TaskTemplates,
		types.TaskStyles,
		types.TaskAssets,
		types.TaskMinifyCSS,
		types.TaskCompress,
		types.TaskScripts,
	},
	types.TaskReplaceRevisions: {types.TaskRevision, types.TaskTemplates},
}

var taskDescriptions = map[string]string{
	types.TaskClean:            "Remove the destination directory",
	types.TaskTemplates:        "Compile page templates to HTML",
	types.TaskStyles:           "Bundle and prefix stylesheets",
	types.TaskScripts:          "Bundle scripts",
	types.TaskAssets:           "Copy static assets",
	types.TaskCompress:         "Concatenate vendor and app scripts",
	types.TaskMinifyCSS:        "Minify built stylesheets",
	types.TaskRevision:         "Fingerprint built CSS and JS",
	types.TaskReplaceRevisions: "Rewrite HTML references to fingerprinted assets",
}

// NewTaskGraph builds and validates the task graph for a set of pipelines
func NewTaskGraph(bs map[string]builders.Builder) (*Graph, error) {
	names := make([]string, 0, len(bs))
	for name := range bs {
		names = append(names, name)
	}
	sort.Strings(names)

	g := NewGraph()
	for _, name := range names {
		b := bs[name]
		task := &Task{
			Name:         name,
			Dependencies: taskDependencies[name],
			Description:  taskDescriptions[name],
			Action:       b.Build,
		}
		if err := g.AddTask(task); err != nil {
			return nil, err
		}
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// DevServer serves the destination directory while developing
type DevServer interface {
	// Start binds the listener and serves in the background
	Start() error
	Addr() string
	Shutdown(ctx context.Context) error
}

// ChangeSource delivers batches of changed files, relative to the project
// root, after they have settled
type ChangeSource interface {
	Changes() <-chan []string
	Close() error
}

type watchRoute struct {
	task    string
	matcher *utils.PatternMatcher
}

// Wisp runs the build and development compositions over the task graph
type Wisp struct {
	config    types.Config
	logger    logger.Logger
	builders  map[string]builders.Builder
	notifier  notifier.Notifier
	graph     *Graph
	scheduler *Scheduler
	routes    []watchRoute
}

// New creates a Wisp instance. The task graph is validated here so that a
// broken graph fails before anything is built.
func New(cfg types.Config, log logger.Logger, deps Dependencies) (*Wisp, error) {
	graph, err := NewTaskGraph(deps.Builders)
	if err != nil {
		return nil, fmt.Errorf("task graph: %w", err)
	}

	recorder := deps.Recorder
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}

	w := &Wisp{
		config:    cfg,
		logger:    log,
		builders:  deps.Builders,
		notifier:  deps.Notifier,
		graph:     graph,
		scheduler: NewScheduler(log, deps.Notifier).WithRecorder(recorder),
	}

	for _, task := range DevTasks {
		if _, ok := deps.Builders[task]; !ok {
			continue
		}
		matcher, err := utils.NewPatternMatcher(watchGlobs(cfg, task))
		if err != nil {
			return nil, fmt.Errorf("watch globs for %s: %w", task, err)
		}
		w.routes = append(w.routes, watchRoute{task: task, matcher: matcher})
	}

	return w, nil
}

func watchGlobs(cfg types.Config, task string) []string {
	switch task {
	case types.TaskTemplates:
		return cfg.Templates.Watch
	case types.TaskStyles:
		return cfg.Styles.Watch
	case types.TaskScripts:
		return cfg.Scripts.Watch
	case types.TaskAssets:
		return cfg.Assets.Watch
	}
	return nil
}

// Tasks returns the registered tasks in execution order
func (w *Wisp) Tasks() []*Task {
	order, _ := w.graph.Order()
	tasks := make([]*Task, 0, len(order))
	for _, name := range order {
		task, _ := w.graph.Task(name)
		tasks = append(tasks, task)
	}
	return tasks
}

// Build clears the destination and runs the full build composition.
// Recoverable failures are reported and the build carries on; a fatal
// failure is returned.
func (w *Wisp) Build(ctx context.Context) (*Report, error) {
	start := time.Now()
	ctx = pcontext.WithTrigger(pcontext.WithRunID(ctx, ""), "build")

	w.logger.Info(fmt.Sprintf("Building for %s", w.config.Mode))

	if _, ok := w.builders[types.TaskClean]; ok {
		if _, err := w.scheduler.RunOnly(ctx, w.graph, types.TaskClean); err != nil {
			return nil, err
		}
	}

	report, err := w.scheduler.Run(ctx, w.graph, BuildTasks)
	if err != nil {
		return report, err
	}

	if failed := report.Failed(); len(failed) > 0 {
		w.logger.Warn(fmt.Sprintf("Build finished with %d failed task(s): %s",
			len(failed), strings.Join(failed, ", ")))
		return report, nil
	}

	if sn, ok := w.notifier.(notifier.SuccessNotifier); ok {
		sn.NotifyBuildSuccess(len(report.Results()), time.Since(start))
	}
	return report, nil
}

// RunTask runs the named tasks together with their prerequisites
func (w *Wisp) RunTask(ctx context.Context, names ...string) (*Report, error) {
	ctx = pcontext.WithTrigger(pcontext.WithRunID(ctx, ""), "manual")
	return w.scheduler.Run(ctx, w.graph, names)
}

// Develop binds the server, runs the development tasks once and then
// re-runs the owning task of every changed file until ctx is cancelled.
// Failures after startup are reported and never end the loop.
func (w *Wisp) Develop(ctx context.Context, srv DevServer, changes ChangeSource) error {
	defer w.Close()
	defer changes.Close()

	if err := utils.EnsureDirectory(w.config.Path(w.config.Server.Root)); err != nil {
		return fmt.Errorf("creating server root: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			w.logger.Warn("Server shutdown failed", logger.WithField("error", err))
		}
	}()
	w.logger.Info(fmt.Sprintf("Serving %s at http://%s", w.config.Server.Root, srv.Addr()))

	initCtx := pcontext.WithTrigger(pcontext.WithRunID(ctx, ""), "startup")
	if _, err := w.scheduler.Run(initCtx, w.graph, w.devTasks()); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	queue := NewRebuildQueue(w.logger, w.rebuild)
	queue.Start(ctx)
	defer queue.Stop()

	w.logger.Info("Watching for changes")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping watch loop",
				logger.WithField("pending", queue.Pending()),
				logger.WithField("active", queue.Active()))
			return nil
		case files, ok := <-changes.Changes():
			if !ok {
				return nil
			}
			for task, matched := range w.route(files) {
				queue.Enqueue(task, matched)
			}
		}
	}
}

func (w *Wisp) devTasks() []string {
	tasks := make([]string, 0, len(DevTasks))
	for _, name := range DevTasks {
		if _, ok := w.builders[name]; ok {
			tasks = append(tasks, name)
		}
	}
	return tasks
}

// route maps changed files to the tasks whose watch globs match them
func (w *Wisp) route(files []string) map[string][]string {
	routed := make(map[string][]string)
	for _, file := range files {
		matched := false
		for _, r := range w.routes {
			if r.matcher.Match(file) {
				routed[r.task] = append(routed[r.task], file)
				matched = true
			}
		}
		if !matched {
			w.logger.Debug("Ignoring change", logger.WithField("file", file))
		}
	}
	return routed
}

func (w *Wisp) rebuild(ctx context.Context, req RebuildRequest) {
	ctx = pcontext.WithTrigger(pcontext.WithRunID(ctx, req.ID), "watch")

	log := w.logger.WithTarget(req.Task)
	if len(req.Files) == 1 {
		log.Info(fmt.Sprintf("%s changed", req.Files[0]))
	} else {
		log.Info(fmt.Sprintf("%d files changed", len(req.Files)))
	}

	if _, err := w.scheduler.RunOnly(ctx, w.graph, req.Task); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error("Rebuild failed, still watching", logger.WithField("error", err))
	}
}

// Close releases pipeline resources such as the incremental script context
func (w *Wisp) Close() error {
	var errs []error
	for name, b := range w.builders {
		closer, ok := b.(interface{ Close() error })
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
