// Package mocks provides test doubles for the reload, notification and
// builder seams.
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/poltergeist/wisp/pkg/types"
)

// MockReloader records live reload pushes
type MockReloader struct {
	mu      sync.Mutex
	css     [][]string
	reasons []string
}

// NewMockReloader creates a new mock reloader
func NewMockReloader() *MockReloader {
	return &MockReloader{}
}

// ReloadCSS records a stylesheet refresh
func (m *MockReloader) ReloadCSS(paths []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.css = append(m.css, append([]string(nil), paths...))
}

// ReloadPage records a page reload
func (m *MockReloader) ReloadPage(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reasons = append(m.reasons, reason)
}

// CSSReloads returns every recorded stylesheet refresh
func (m *MockReloader) CSSReloads() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.css...)
}

// PageReloads returns the reasons of every recorded page reload
func (m *MockReloader) PageReloads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.reasons...)
}

// Notification is one recorded failure report
type Notification struct {
	Task string
	Err  error
}

// MockNotifier records failure reports
type MockNotifier struct {
	mu            sync.Mutex
	notifications []Notification
}

// NewMockNotifier creates a new mock notifier
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// Notify records a failure
func (m *MockNotifier) Notify(task string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, Notification{Task: task, Err: err})
}

// Notifications returns the recorded failures
func (m *MockNotifier) Notifications() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notification(nil), m.notifications...)
}

// MockBuilder is a scripted pipeline stage
type MockBuilder struct {
	name     string
	mu       sync.Mutex
	outcomes []types.Outcome
	delay    time.Duration
	calls    int
	onBuild  func()
}

// NewMockBuilder creates a builder that succeeds unless outcomes are queued
func NewMockBuilder(name string) *MockBuilder {
	return &MockBuilder{name: name}
}

// Name returns the task name
func (m *MockBuilder) Name() string {
	return m.name
}

// Build returns the next queued outcome, or success when none is left
func (m *MockBuilder) Build(ctx context.Context) types.Outcome {
	m.mu.Lock()
	m.calls++
	delay := m.delay
	hook := m.onBuild
	outcome := types.Succeeded()
	if len(m.outcomes) > 0 {
		outcome = m.outcomes[0]
		m.outcomes = m.outcomes[1:]
	}
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if hook != nil {
		hook()
	}
	return outcome
}

// QueueOutcome appends an outcome for a future Build call
func (m *MockBuilder) QueueOutcome(outcome types.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

// SetDelay makes every Build sleep first
func (m *MockBuilder) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// OnBuild registers a hook run during every Build
func (m *MockBuilder) OnBuild(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onBuild = fn
}

// Calls returns the number of Build calls
func (m *MockBuilder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
