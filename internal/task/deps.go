package task

import (
	"fmt"

	"github.com/fuelsh/fuel/pkg/models"
)

// AddDependency records that task id is blocked by blocker. The edge is
// rejected if it is a self-reference or if adding it would create a
// cycle in the blocked-by graph, checked by BFS from the blocker
// looking for a path back to the task.
func (r *Repo) AddDependency(id, blocker string) (*models.Task, error) {
	if err := r.lock.LockExclusive(); err != nil {
		return nil, err
	}
	defer r.lock.Unlock()

	tasks, err := r.load()
	if err != nil {
		return nil, err
	}
	t, err := findIn(tasks, id)
	if err != nil {
		return nil, err
	}
	b, err := findIn(tasks, blocker)
	if err != nil {
		return nil, fmt.Errorf("blocker %s: %w", blocker, err)
	}

	if t.ID == b.ID {
		return nil, fmt.Errorf("%w: %s", ErrSelfDependency, t.ID)
	}
	if t.BlockedByID(b.ID) {
		return t, nil
	}
	if wouldCycle(tasks, t.ID, b.ID) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrCycleDetected, t.ID, b.ID)
	}

	t.BlockedBy = append(t.BlockedBy, b.ID)
	if err := r.save(tasks); err != nil {
		return nil, err
	}
	return t, nil
}

// RemoveDependency deletes the blocked-by edge if present.
func (r *Repo) RemoveDependency(id, blocker string) (*models.Task, error) {
	if err := r.lock.LockExclusive(); err != nil {
		return nil, err
	}
	defer r.lock.Unlock()

	tasks, err := r.load()
	if err != nil {
		return nil, err
	}
	t, err := findIn(tasks, id)
	if err != nil {
		return nil, err
	}
	b, err := findIn(tasks, blocker)
	if err != nil {
		return nil, fmt.Errorf("blocker %s: %w", blocker, err)
	}

	kept := t.BlockedBy[:0]
	for _, dep := range t.BlockedBy {
		if dep != b.ID {
			kept = append(kept, dep)
		}
	}
	t.BlockedBy = kept
	if err := r.save(tasks); err != nil {
		return nil, err
	}
	return t, nil
}

// wouldCycle reports whether adding the edge from -> to (from blocked
// by to) would create a cycle: true iff a blocked-by path already leads
// from `to` back to `from`.
func wouldCycle(tasks []*models.Task, from, to string) bool {
	byID := make(map[string]*models.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	visited := map[string]bool{}
	queue := []string{to}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == from {
			return true
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true
		if t, ok := byID[cur]; ok {
			queue = append(queue, t.BlockedBy...)
		}
	}
	return false
}
