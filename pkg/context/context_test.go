package context_test

import (
	"context"
	"strings"
	"testing"
	"time"

	pcontext "github.com/poltergeist/wisp/pkg/context"
)

func TestRunID(t *testing.T) {
	ctx := context.Background()
	if got := pcontext.GetRunID(ctx); got != "unknown-run" {
		t.Errorf("expected unknown-run, got %s", got)
	}

	ctx = pcontext.WithRunID(ctx, "")
	if id := pcontext.GetRunID(ctx); !strings.HasPrefix(id, "run_") {
		t.Errorf("expected generated run id, got %s", id)
	}

	ctx = pcontext.WithRunID(context.Background(), "run_fixed")
	if id := pcontext.GetRunID(ctx); id != "run_fixed" {
		t.Errorf("expected run_fixed, got %s", id)
	}
}

func TestTaskAndTrigger(t *testing.T) {
	ctx := pcontext.WithTask(context.Background(), "styles")
	ctx = pcontext.WithTrigger(ctx, "app/styles/common.css")

	if got := pcontext.GetTask(ctx); got != "styles" {
		t.Errorf("expected styles, got %s", got)
	}
	if got := pcontext.GetTrigger(ctx); got != "app/styles/common.css" {
		t.Errorf("unexpected trigger %s", got)
	}
	if got := pcontext.GetTask(context.Background()); got != "unknown-task" {
		t.Errorf("expected unknown-task, got %s", got)
	}
}

func TestEnrichContext(t *testing.T) {
	ctx := pcontext.EnrichContext(context.Background())
	if pcontext.GetRunID(ctx) == "unknown-run" {
		t.Error("EnrichContext should assign a run id")
	}
	if pcontext.GetStartTime(ctx).IsZero() {
		t.Error("EnrichContext should record a start time")
	}

	kept := pcontext.EnrichContext(pcontext.WithRunID(context.Background(), "run_keep"))
	if pcontext.GetRunID(kept) != "run_keep" {
		t.Error("EnrichContext must not replace an existing run id")
	}
}

func TestDuration(t *testing.T) {
	if d := pcontext.GetDuration(context.Background()); d != 0 {
		t.Errorf("expected zero duration without start time, got %s", d)
	}

	ctx := pcontext.WithStartTime(context.Background(), time.Now().Add(-50*time.Millisecond))
	if d := pcontext.GetDuration(ctx); d < 50*time.Millisecond {
		t.Errorf("expected at least 50ms, got %s", d)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	start := time.Now()
	ctx := pcontext.WithRunID(context.Background(), "run_1")
	ctx = pcontext.WithTrigger(ctx, "build")
	ctx = pcontext.WithTask(ctx, "styles")
	ctx = pcontext.WithStartTime(ctx, start)

	if got := pcontext.GetRunID(ctx); got != "run_1" {
		t.Errorf("expected run_1, got %s", got)
	}
	if got := pcontext.GetTrigger(ctx); got != "build" {
		t.Errorf("expected build, got %s", got)
	}
	if got := pcontext.GetTask(ctx); got != "styles" {
		t.Errorf("expected styles, got %s", got)
	}
	if !pcontext.GetStartTime(ctx).Equal(start) {
		t.Error("start time was overwritten")
	}
}

func TestGeneratedRunIDSurvivesTrigger(t *testing.T) {
	ctx := pcontext.WithTrigger(pcontext.WithRunID(context.Background(), ""), "manual")

	id := pcontext.GetRunID(ctx)
	if !strings.HasPrefix(id, "run_") {
		t.Errorf("expected generated run id, got %s", id)
	}
	if other := pcontext.GetRunID(pcontext.WithRunID(context.Background(), "")); other == id {
		t.Error("expected distinct run ids per call")
	}
}
