package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	pcontext "github.com/poltergeist/wisp/pkg/context"
	"github.com/poltergeist/wisp/pkg/logger"
	"github.com/poltergeist/wisp/pkg/metrics"
	"github.com/poltergeist/wisp/pkg/notifier"
	"github.com/poltergeist/wisp/pkg/types"
)

// TaskResult records one task execution within a run
type TaskResult struct {
	Name       string
	Status     types.TaskStatus
	Outcome    types.Outcome
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the task ran
func (r TaskResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Report is the outcome of a scheduler run
type Report struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration

	mu      sync.RWMutex
	results map[string]*TaskResult
	planned []string
}

func newReport(runID string, planned []string) *Report {
	r := &Report{
		RunID:     runID,
		StartedAt: time.Now(),
		results:   make(map[string]*TaskResult, len(planned)),
		planned:   planned,
	}
	for _, name := range planned {
		r.results[name] = &TaskResult{Name: name, Status: types.TaskStatusNotStarted}
	}
	return r
}

func (r *Report) start(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := r.results[name]
	res.Status = types.TaskStatusRunning
	res.StartedAt = time.Now()
}

func (r *Report) finish(name string, outcome types.Outcome, finishedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := r.results[name]
	res.Outcome = outcome
	res.FinishedAt = finishedAt
	if outcome.OK() {
		res.Status = types.TaskStatusCompleted
	} else {
		res.Status = types.TaskStatusFailed
	}
}

// Result returns the record for one task
func (r *Report) Result(name string) (TaskResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.results[name]
	if !ok {
		return TaskResult{}, false
	}
	return *res, true
}

// Results returns every planned task in execution order
func (r *Report) Results() []TaskResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TaskResult, 0, len(r.planned))
	for _, name := range r.planned {
		out = append(out, *r.results[name])
	}
	return out
}

// Failed returns the names of failed tasks, sorted
func (r *Report) Failed() []string {
	return r.withStatus(types.TaskStatusFailed)
}

// Completed returns the names of completed tasks, sorted
func (r *Report) Completed() []string {
	return r.withStatus(types.TaskStatusCompleted)
}

// Skipped returns the sorted names of planned tasks that never started
func (r *Report) Skipped() []string {
	return r.withStatus(types.TaskStatusNotStarted)
}

func (r *Report) withStatus(status types.TaskStatus) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, res := range r.results {
		if res.Status == status {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Scheduler executes a task graph, starting each task once all of its
// prerequisites have finished and running independent tasks concurrently
type Scheduler struct {
	logger   logger.Logger
	notifier notifier.Notifier
	recorder metrics.Recorder
}

// NewScheduler creates a new scheduler
func NewScheduler(log logger.Logger, n notifier.Notifier) *Scheduler {
	return &Scheduler{
		logger:   log,
		notifier: n,
		recorder: metrics.NoopRecorder{},
	}
}

// WithRecorder sets the metrics recorder
func (s *Scheduler) WithRecorder(r metrics.Recorder) *Scheduler {
	if r != nil {
		s.recorder = r
	}
	return s
}

// Run executes the requested tasks together with their prerequisites.
// Recoverable failures are reported and dependents still run. The first
// fatal failure stops new tasks from starting; tasks already running are
// allowed to finish and the fatal error is returned.
func (s *Scheduler) Run(ctx context.Context, g *Graph, targets []string) (*Report, error) {
	planned, err := g.Closure(targets)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, g, planned)
}

// RunOnly executes exactly the named tasks, ignoring prerequisites outside
// the set. Edges between the named tasks are still honoured.
func (s *Scheduler) RunOnly(ctx context.Context, g *Graph, names ...string) (*Report, error) {
	order, err := g.Order()
	if err != nil {
		return nil, err
	}

	include := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := g.Task(name); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
		}
		include[name] = true
	}

	planned := make([]string, 0, len(include))
	for _, name := range order {
		if include[name] {
			planned = append(planned, name)
		}
	}
	return s.execute(ctx, g, planned)
}

type taskDone struct {
	name       string
	outcome    types.Outcome
	finishedAt time.Time
}

func (s *Scheduler) execute(ctx context.Context, g *Graph, planned []string) (*Report, error) {
	ctx = pcontext.EnrichContext(ctx)
	report := newReport(pcontext.GetRunID(ctx), planned)

	inPlan := make(map[string]bool, len(planned))
	for _, name := range planned {
		inPlan[name] = true
	}

	// Only edges inside the plan gate a task
	pending := make(map[string]int, len(planned))
	dependents := make(map[string][]string)
	var ready []string
	for _, name := range planned {
		task, _ := g.Task(name)
		for _, dep := range task.Dependencies {
			if inPlan[dep] {
				pending[name]++
				dependents[dep] = append(dependents[dep], name)
			}
		}
		if pending[name] == 0 {
			ready = append(ready, name)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := NewSafeGroup(runCtx, s.logger)
	done := make(chan taskDone, len(planned))

	var fatalErr error
	active := 0

	for {
		// Dependency gate: nothing new starts once the run is cancelled
		for len(ready) > 0 && runCtx.Err() == nil {
			name := ready[0]
			ready = ready[1:]

			task, _ := g.Task(name)
			report.start(name)
			active++

			group.Go(func() error {
				outcome := s.runTask(groupCtx, task)
				done <- taskDone{name: name, outcome: outcome, finishedAt: time.Now()}
				return nil
			})
		}

		if active == 0 {
			break
		}

		res := <-done
		active--
		report.finish(res.name, res.outcome, res.finishedAt)
		s.handleOutcome(ctx, report, res, runCtx.Err() != nil)

		if res.outcome.IsFatal() {
			if fatalErr == nil {
				fatalErr = fmt.Errorf("task %s: %w", res.name, res.outcome.Err)
			}
			cancel()
			continue
		}

		for _, dependent := range dependents[res.name] {
			pending[dependent]--
			if pending[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if err := group.Wait(); err != nil && fatalErr == nil {
		fatalErr = err
	}

	report.Duration = time.Since(report.StartedAt)
	s.recorder.ObserveRunDuration(report.Duration)
	for _, name := range report.Skipped() {
		s.recorder.IncTaskResult(name, metrics.ResultSkipped)
	}

	if fatalErr != nil {
		return report, fatalErr
	}
	if err := ctx.Err(); err != nil && len(report.Completed())+len(report.Failed()) < len(planned) {
		return report, err
	}
	return report, nil
}

// runTask executes one action, converting a panic into a fatal outcome
func (s *Scheduler) runTask(ctx context.Context, task *Task) (outcome types.Outcome) {
	ctx = pcontext.WithTask(ctx, task.Name)
	ctx = pcontext.WithStartTime(ctx, time.Now())
	log := logger.WithContext(ctx, s.logger)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Task panic recovered",
				logger.WithField("panic", r),
				logger.WithField("stack_trace", string(debug.Stack())))
			outcome = types.Fatal(fmt.Errorf("panic: %v", r))
		}
	}()

	log.Debug("Starting task")
	if task.Action == nil {
		return types.Succeeded()
	}
	return task.Action(ctx)
}

// handleOutcome records and reports a finished task. A task that only
// stopped because the run was already cancelled is not notified.
func (s *Scheduler) handleOutcome(ctx context.Context, report *Report, res taskDone, cancelled bool) {
	result, _ := report.Result(res.name)
	duration := result.Duration()
	s.recorder.ObserveTaskDuration(res.name, duration)

	log := logger.WithContext(pcontext.WithTask(ctx, res.name), s.logger)

	switch res.outcome.Kind {
	case types.OutcomeRecoverable:
		s.recorder.IncTaskResult(res.name, metrics.ResultRecoverable)
		log.Warn("Task failed, continuing", logger.WithField("duration", duration.Round(time.Millisecond)))
		s.notify(res.name, res.outcome.Err)
	case types.OutcomeFatal:
		s.recorder.IncTaskResult(res.name, metrics.ResultFatal)
		if cancelled && errors.Is(res.outcome.Err, context.Canceled) {
			log.Debug("Task stopped by cancellation")
			return
		}
		log.Error("Task failed, aborting run", logger.WithField("error", res.outcome.Err))
		s.notify(res.name, res.outcome.Err)
	default:
		s.recorder.IncTaskResult(res.name, metrics.ResultSuccess)
		log.Info(fmt.Sprintf("Finished in %s", notifier.FormatDuration(duration)))
	}
}

func (s *Scheduler) notify(task string, err error) {
	if s.notifier != nil && err != nil {
		s.notifier.Notify(task, err)
	}
}
