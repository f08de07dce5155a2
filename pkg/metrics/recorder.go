// Package metrics records task and live reload metrics. Components default to
// NoopRecorder; the development server swaps in a PrometheusRecorder and
// exposes it over HTTP.
package metrics

import "time"

// ResultLabel enumerates task result categories for counters
type ResultLabel string

const (
	ResultSuccess     ResultLabel = "success"
	ResultRecoverable ResultLabel = "recoverable"
	ResultFatal       ResultLabel = "fatal"
	ResultSkipped     ResultLabel = "skipped"
)

// Recorder defines observability hooks for the scheduler and the live reload hub
type Recorder interface {
	ObserveTaskDuration(task string, d time.Duration)
	IncTaskResult(task string, result ResultLabel)
	ObserveRunDuration(d time.Duration)
	IncReload(kind string)
	SetReloadClients(n int)
}

// NoopRecorder is a Recorder that does nothing
type NoopRecorder struct{}

func (NoopRecorder) ObserveTaskDuration(string, time.Duration) {}
func (NoopRecorder) IncTaskResult(string, ResultLabel)         {}
func (NoopRecorder) ObserveRunDuration(time.Duration)          {}
func (NoopRecorder) IncReload(string)                          {}
func (NoopRecorder) SetReloadClients(int)                      {}
