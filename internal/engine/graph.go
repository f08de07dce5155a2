package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/poltergeist/wisp/pkg/types"
)

var (
	// ErrTaskExists is returned when a task name is registered twice
	ErrTaskExists = errors.New("task already exists")
	// ErrUnknownTask is returned when a requested task is not registered
	ErrUnknownTask = errors.New("unknown task")
	// ErrMissingDependency is returned when a task depends on an unregistered task
	ErrMissingDependency = errors.New("missing dependency")
	// ErrCycleDetected is returned when the prerequisites form a cycle
	ErrCycleDetected = errors.New("dependency cycle detected")
)

// Action is the work performed by a task
type Action func(ctx context.Context) types.Outcome

// Task is a named unit of work with ordered prerequisites
type Task struct {
	Name         string
	Dependencies []string
	Description  string
	Action       Action
}

// Graph is the task registry. Edges point from a task to its prerequisites.
type Graph struct {
	tasks map[string]*Task
	order []string
}

// NewGraph creates a new empty Graph
func NewGraph() *Graph {
	return &Graph{
		tasks: make(map[string]*Task),
	}
}

// AddTask adds a task to the graph.
// It returns an error if a task with the same name already exists.
func (g *Graph) AddTask(t *Task) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("task name is required")
	}
	if _, exists := g.tasks[t.Name]; exists {
		return fmt.Errorf("%w: %s", ErrTaskExists, t.Name)
	}
	g.tasks[t.Name] = t
	g.order = nil
	return nil
}

// Task returns the task registered under name
func (g *Graph) Task(name string) (*Task, bool) {
	t, ok := g.tasks[name]
	return t, ok
}

// Names returns every task name in sorted order
func (g *Graph) Names() []string {
	names := make([]string, 0, len(g.tasks))
	for name := range g.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks for unknown prerequisites and cycles using a depth first
// topological sort. On success the execution order is cached.
func (g *Graph) Validate() error {
	order := make([]string, 0, len(g.tasks))
	visited := make(map[string]int) // 0: unvisited, 1: visiting, 2: visited
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		visited[name] = 1
		path = append(path, name)

		for _, dep := range g.tasks[name].Dependencies {
			if _, exists := g.tasks[dep]; !exists {
				return fmt.Errorf("%w: %s requires %s", ErrMissingDependency, name, dep)
			}
			switch visited[dep] {
			case 1:
				return cycleError(path, dep)
			case 0:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		visited[name] = 2
		path = path[:len(path)-1]
		order = append(order, name)
		return nil
	}

	// Sorted iteration keeps the order stable across runs
	for _, name := range g.Names() {
		if visited[name] == 0 {
			if err := visit(name); err != nil {
				return err
			}
		}
	}

	g.order = order
	return nil
}

// cycleError names the cycle starting at dep
func cycleError(path []string, dep string) error {
	start := 0
	for i, node := range path {
		if node == dep {
			start = i
			break
		}
	}
	cycle := append(append([]string(nil), path[start:]...), dep)
	return fmt.Errorf("%w: %s", ErrCycleDetected, strings.Join(cycle, " -> "))
}

// Order returns every task with prerequisites before dependents
func (g *Graph) Order() ([]string, error) {
	if g.order == nil {
		if err := g.Validate(); err != nil {
			return nil, err
		}
	}
	return append([]string(nil), g.order...), nil
}

// Closure returns the requested tasks plus all of their transitive
// prerequisites, in execution order
func (g *Graph) Closure(names []string) ([]string, error) {
	order, err := g.Order()
	if err != nil {
		return nil, err
	}

	include := make(map[string]bool)
	queue := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := g.tasks[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
		}
		if !include[name] {
			include[name] = true
			queue = append(queue, name)
		}
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, dep := range g.tasks[current].Dependencies {
			if !include[dep] {
				include[dep] = true
				queue = append(queue, dep)
			}
		}
	}

	closure := make([]string, 0, len(include))
	for _, name := range order {
		if include[name] {
			closure = append(closure, name)
		}
	}
	return closure, nil
}
