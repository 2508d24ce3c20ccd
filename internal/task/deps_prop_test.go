package task

import (
	"errors"
	"testing"

	"pgregory.net/rapid"

	"github.com/fuelsh/fuel/pkg/models"
)

// Random edge insertions never leave a cycle in the store: every edge
// is either accepted (graph stays acyclic) or rejected precisely when a
// blocked-by path already runs from the target back to the source.
func TestAddDependencyKeepsGraphAcyclic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		r := NewRepo(t.TempDir())

		n := rapid.IntRange(2, 6).Draw(rt, "tasks")
		ids := make([]string, n)
		for i := 0; i < n; i++ {
			task, err := r.Create(CreateOptions{Title: "t"})
			if err != nil {
				rt.Fatalf("Create: %v", err)
			}
			ids[i] = task.ID
		}

		edges := rapid.IntRange(1, 12).Draw(rt, "edges")
		for i := 0; i < edges; i++ {
			from := ids[rapid.IntRange(0, n-1).Draw(rt, "from")]
			to := ids[rapid.IntRange(0, n-1).Draw(rt, "to")]

			tasks, err := r.All()
			if err != nil {
				rt.Fatalf("All: %v", err)
			}
			pathBack := wouldCycle(tasks, from, to)

			_, err = r.AddDependency(from, to)
			switch {
			case from == to:
				if !errors.Is(err, ErrSelfDependency) {
					rt.Fatalf("self edge %s: err = %v", from, err)
				}
			case pathBack:
				if !errors.Is(err, ErrCycleDetected) {
					rt.Fatalf("edge %s->%s closes a path but err = %v", from, to, err)
				}
			default:
				if err != nil {
					rt.Fatalf("edge %s->%s rejected: %v", from, to, err)
				}
			}

			tasks, err = r.All()
			if err != nil {
				rt.Fatalf("All: %v", err)
			}
			assertAcyclic(rt, tasks)
		}
	})
}

func assertAcyclic(rt *rapid.T, tasks []*models.Task) {
	byID := make(map[string]*models.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	colors := make(map[string]int, len(tasks))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = gray
		for _, dep := range byID[id].BlockedBy {
			switch colors[dep] {
			case gray:
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		colors[id] = black
		return false
	}

	for _, t := range tasks {
		if colors[t.ID] == white && visit(t.ID) {
			rt.Fatalf("store contains a dependency cycle involving %s", t.ID)
		}
	}
}
