package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/poltergeist/wisp/pkg/logger"
)

// RebuildRequest asks for one task to be re-run because files changed
type RebuildRequest struct {
	ID        string
	Task      string
	Files     []string
	Timestamp time.Time
}

// RebuildFunc executes a single rebuild request
type RebuildFunc func(ctx context.Context, req RebuildRequest)

// RebuildQueue coalesces rebuild requests per task. A task has at most one
// pending request; changes arriving while it is pending are merged into it.
// A task never runs twice concurrently, different tasks may.
type RebuildQueue struct {
	logger  logger.Logger
	rebuild RebuildFunc

	mu      sync.Mutex
	pending map[string]*RebuildRequest
	order   []string
	active  map[string]bool

	signal chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRebuildQueue creates a queue that hands requests to rebuild
func NewRebuildQueue(log logger.Logger, rebuild RebuildFunc) *RebuildQueue {
	return &RebuildQueue{
		logger:  log,
		rebuild: rebuild,
		pending: make(map[string]*RebuildRequest),
		active:  make(map[string]bool),
		signal:  make(chan struct{}, 1),
	}
}

// Start begins processing requests until ctx is done or Stop is called
func (q *RebuildQueue) Start(ctx context.Context) {
	q.mu.Lock()
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.mu.Unlock()

	q.wg.Add(1)
	go q.process()
}

// Stop cancels processing and waits for running rebuilds to return
func (q *RebuildQueue) Stop() {
	q.mu.Lock()
	cancel := q.cancel
	q.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	q.wg.Wait()
}

// Enqueue records that files changed for task
func (q *RebuildQueue) Enqueue(task string, files []string) {
	q.mu.Lock()
	if req, ok := q.pending[task]; ok {
		req.Files = mergeFiles(req.Files, files)
		req.Timestamp = time.Now()
		q.mu.Unlock()
		q.logger.Debug("Merged rebuild request",
			logger.WithField("task", task),
			logger.WithField("files", len(req.Files)))
		q.wake()
		return
	}

	req := &RebuildRequest{
		ID:        uuid.New().String(),
		Task:      task,
		Files:     mergeFiles(nil, files),
		Timestamp: time.Now(),
	}
	q.pending[task] = req
	q.order = append(q.order, task)
	q.mu.Unlock()

	q.logger.Debug("Queued rebuild request",
		logger.WithField("task", task),
		logger.WithField("id", req.ID))
	q.wake()
}

// Pending returns the number of requests waiting to run
func (q *RebuildQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Active returns the number of rebuilds currently running
func (q *RebuildQueue) Active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}

func (q *RebuildQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *RebuildQueue) process() {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-q.signal:
			q.dispatch()
		}
	}
}

// dispatch starts every pending request whose task is idle
func (q *RebuildQueue) dispatch() {
	q.mu.Lock()
	defer q.mu.Unlock()

	remaining := q.order[:0]
	for _, task := range q.order {
		if q.active[task] {
			remaining = append(remaining, task)
			continue
		}

		req := *q.pending[task]
		delete(q.pending, task)
		q.active[task] = true

		q.wg.Add(1)
		go q.execute(req)
	}
	q.order = remaining
}

func (q *RebuildQueue) execute(req RebuildRequest) {
	defer q.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error(fmt.Sprintf("Rebuild of %s panicked", req.Task),
				logger.WithField("panic", r),
				logger.WithField("stack_trace", string(debug.Stack())))
		}

		q.mu.Lock()
		delete(q.active, req.Task)
		_, queued := q.pending[req.Task]
		q.mu.Unlock()

		if queued {
			q.wake()
		}
	}()

	q.rebuild(q.ctx, req)
}

func mergeFiles(existing, files []string) []string {
	seen := make(map[string]bool, len(existing)+len(files))
	out := make([]string, 0, len(existing)+len(files))
	for _, f := range append(append([]string(nil), existing...), files...) {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}
