package context

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ctxKey int

// Context keys for run tracing
const (
	runIDKey ctxKey = iota
	taskKey
	triggerKey
	startTimeKey
)

// WithRunID tags the context with the identifier of one scheduler run
func WithRunID(parent context.Context, runID string) context.Context {
	if runID == "" {
		runID = GenerateRunID()
	}
	return context.WithValue(parent, runIDKey, runID)
}

// GetRunID retrieves the run ID from context
func GetRunID(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok && id != "" {
		return id
	}
	return "unknown-run"
}

// WithTask adds the executing task name to the context
func WithTask(parent context.Context, task string) context.Context {
	return context.WithValue(parent, taskKey, task)
}

// GetTask retrieves the task name from context
func GetTask(ctx context.Context) string {
	if t, ok := ctx.Value(taskKey).(string); ok && t != "" {
		return t
	}
	return "unknown-task"
}

// WithTrigger records what caused the run (a changed file, "build", ...)
func WithTrigger(parent context.Context, trigger string) context.Context {
	return context.WithValue(parent, triggerKey, trigger)
}

// GetTrigger retrieves the trigger from context
func GetTrigger(ctx context.Context) string {
	if t, ok := ctx.Value(triggerKey).(string); ok && t != "" {
		return t
	}
	return ""
}

// WithStartTime adds the operation start time to the context
func WithStartTime(parent context.Context, startTime time.Time) context.Context {
	return context.WithValue(parent, startTimeKey, startTime)
}

// GetStartTime retrieves the operation start time from context
func GetStartTime(ctx context.Context) time.Time {
	if t, ok := ctx.Value(startTimeKey).(time.Time); ok {
		return t
	}
	return time.Time{}
}

// GetDuration calculates the duration since the start time in context.
// Zero when no start time was recorded.
func GetDuration(ctx context.Context) time.Duration {
	startTime := GetStartTime(ctx)
	if startTime.IsZero() {
		return 0
	}
	return time.Since(startTime)
}

// GenerateRunID creates a new unique run ID
func GenerateRunID() string {
	return "run_" + uuid.New().String()
}

// EnrichContext adds a run ID (if missing) and a start time
func EnrichContext(parent context.Context) context.Context {
	ctx := parent

	if GetRunID(ctx) == "unknown-run" {
		ctx = WithRunID(ctx, GenerateRunID())
	}

	return WithStartTime(ctx, time.Now())
}
