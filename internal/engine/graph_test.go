package engine

import (
	"errors"
	"strings"
	"testing"
)

func newTestGraph(t *testing.T, edges map[string][]string) *Graph {
	t.Helper()
	g := NewGraph()
	for name, deps := range edges {
		if err := g.AddTask(&Task{Name: name, Dependencies: deps}); err != nil {
			t.Fatalf("AddTask(%s): %v", name, err)
		}
	}
	return g
}

func indexOf(list []string, name string) int {
	for i, n := range list {
		if n == name {
			return i
		}
	}
	return -1
}

func TestGraph_Order(t *testing.T) {
	g := newTestGraph(t, map[string][]string{
		"templates":  nil,
		"styles":     nil,
		"minify-css": {"styles"},
		"revision":   {"templates", "minify-css"},
		"rewrite":    {"revision", "templates"},
	})

	order, err := g.Order()
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	if len(order) != 5 {
		t.Fatalf("expected 5 tasks, got %v", order)
	}

	for name, deps := range map[string][]string{
		"minify-css": {"styles"},
		"revision":   {"templates", "minify-css"},
		"rewrite":    {"revision", "templates"},
	} {
		for _, dep := range deps {
			if indexOf(order, dep) > indexOf(order, name) {
				t.Errorf("%s ordered after %s: %v", dep, name, order)
			}
		}
	}

	again, _ := g.Order()
	if strings.Join(again, ",") != strings.Join(order, ",") {
		t.Errorf("order is not deterministic: %v vs %v", order, again)
	}
}

func TestGraph_Errors(t *testing.T) {
	tests := []struct {
		name     string
		edges    map[string][]string
		sentinel error
		contains string
	}{
		{
			name:     "missing dependency",
			edges:    map[string][]string{"revision": {"styles"}},
			sentinel: ErrMissingDependency,
			contains: "revision requires styles",
		},
		{
			name:     "self cycle",
			edges:    map[string][]string{"a": {"a"}},
			sentinel: ErrCycleDetected,
			contains: "a -> a",
		},
		{
			name: "longer cycle",
			edges: map[string][]string{
				"a": {"b"},
				"b": {"c"},
				"c": {"a"},
			},
			sentinel: ErrCycleDetected,
			contains: "a -> b -> c -> a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newTestGraph(t, tt.edges).Validate()
			if !errors.Is(err, tt.sentinel) {
				t.Fatalf("expected %v, got %v", tt.sentinel, err)
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("expected error to contain %q, got %q", tt.contains, err)
			}
		})
	}
}

func TestGraph_DuplicateTask(t *testing.T) {
	g := NewGraph()
	if err := g.AddTask(&Task{Name: "styles"}); err != nil {
		t.Fatal(err)
	}
	if err := g.AddTask(&Task{Name: "styles"}); !errors.Is(err, ErrTaskExists) {
		t.Errorf("expected ErrTaskExists, got %v", err)
	}
}

func TestGraph_Closure(t *testing.T) {
	g := newTestGraph(t, map[string][]string{
		"templates":  nil,
		"styles":     nil,
		"scripts":    nil,
		"minify-css": {"styles"},
		"revision":   {"templates", "minify-css"},
	})

	closure, err := g.Closure([]string{"revision"})
	if err != nil {
		t.Fatalf("Closure: %v", err)
	}
	if len(closure) != 4 || indexOf(closure, "scripts") >= 0 {
		t.Errorf("unexpected closure %v", closure)
	}
	if closure[len(closure)-1] != "revision" {
		t.Errorf("expected revision last, got %v", closure)
	}

	if _, err := g.Closure([]string{"nope"}); !errors.Is(err, ErrUnknownTask) {
		t.Errorf("expected ErrUnknownTask, got %v", err)
	}
}
