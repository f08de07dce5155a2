package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rebuildRecorder struct {
	mu       sync.Mutex
	requests []RebuildRequest
	release  chan struct{}
}

func (r *rebuildRecorder) rebuild(ctx context.Context, req RebuildRequest) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()
	if r.release != nil {
		<-r.release
	}
}

func (r *rebuildRecorder) seen() []RebuildRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RebuildRequest(nil), r.requests...)
}

func TestRebuildQueue_MergesWhileTaskIsBusy(t *testing.T) {
	rec := &rebuildRecorder{release: make(chan struct{})}
	q := NewRebuildQueue(testLogger(), rec.rebuild)
	q.Start(context.Background())
	defer q.Stop()

	q.Enqueue("styles", []string{"app/styles/common.css"})
	require.Eventually(t, func() bool { return len(rec.seen()) == 1 }, time.Second, 5*time.Millisecond)

	// The first rebuild is blocked; these collapse into one pending request
	q.Enqueue("styles", []string{"app/styles/a.css"})
	q.Enqueue("styles", []string{"app/styles/b.css", "app/styles/a.css"})
	assert.Equal(t, 1, q.Pending())
	assert.Equal(t, 1, q.Active())

	rec.release <- struct{}{}
	require.Eventually(t, func() bool { return len(rec.seen()) == 2 }, time.Second, 5*time.Millisecond)
	rec.release <- struct{}{}

	second := rec.seen()[1]
	assert.Equal(t, "styles", second.Task)
	assert.Equal(t, []string{"app/styles/a.css", "app/styles/b.css"}, second.Files)
	assert.NotEmpty(t, second.ID)
	assert.NotEqual(t, rec.seen()[0].ID, second.ID)

	require.Eventually(t, func() bool { return q.Active() == 0 && q.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestRebuildQueue_DifferentTasksRunConcurrently(t *testing.T) {
	rec := &rebuildRecorder{release: make(chan struct{})}
	q := NewRebuildQueue(testLogger(), rec.rebuild)
	q.Start(context.Background())

	q.Enqueue("styles", []string{"app/styles/common.css"})
	q.Enqueue("templates", []string{"app/templates/pages/index.tmpl"})

	require.Eventually(t, func() bool { return len(rec.seen()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, q.Active())

	close(rec.release)
	q.Stop()
	assert.Equal(t, 0, q.Active())
}

func TestRebuildQueue_SurvivesPanics(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	q := NewRebuildQueue(testLogger(), func(ctx context.Context, req RebuildRequest) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			panic("bundler crashed")
		}
	})
	q.Start(context.Background())
	defer q.Stop()

	q.Enqueue("scripts", []string{"app/js/common.js"})
	require.Eventually(t, func() bool { return q.Active() == 0 && q.Pending() == 0 }, time.Second, 5*time.Millisecond)

	q.Enqueue("scripts", []string{"app/js/common.js"})
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	}, time.Second, 5*time.Millisecond)
}
