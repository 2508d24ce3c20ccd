package task

import (
	"sort"

	"github.com/fuelsh/fuel/pkg/models"
)

// Ready returns open tasks whose every blocker is closed and that do
// not carry the needs-human label, ordered by priority ascending then
// creation time ascending.
func (r *Repo) Ready() ([]*models.Task, error) {
	tasks, err := r.All()
	if err != nil {
		return nil, err
	}
	return ReadyOf(tasks), nil
}

// ReadyOf is Ready computed over an existing snapshot, so one shared
// lock read can serve both readiness and completion processing in a
// single scheduler tick.
func ReadyOf(tasks []*models.Task) []*models.Task {
	byID := make(map[string]*models.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	var ready []*models.Task
	for _, t := range tasks {
		if t.Status != models.TaskStatusOpen || t.HasLabel(models.LabelNeedsHuman) {
			continue
		}
		if allBlockersClosed(t, byID) {
			ready = append(ready, t)
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority < ready[j].Priority
		}
		return ready[i].CreatedAt.Before(ready[j].CreatedAt)
	})
	return ready
}

// Blocked returns open tasks with at least one blocker not yet closed.
func (r *Repo) Blocked() ([]*models.Task, error) {
	tasks, err := r.All()
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	var blocked []*models.Task
	for _, t := range tasks {
		if t.Status != models.TaskStatusOpen {
			continue
		}
		if !allBlockersClosed(t, byID) {
			blocked = append(blocked, t)
		}
	}
	return blocked, nil
}

func allBlockersClosed(t *models.Task, byID map[string]*models.Task) bool {
	for _, dep := range t.BlockedBy {
		b, ok := byID[dep]
		if !ok {
			// Dangling blocker: treat as unmet rather than silently ready.
			return false
		}
		if b.Status != models.TaskStatusClosed {
			return false
		}
	}
	return true
}

// IsFailed reports whether the task is failed-stuck: consumed with a
// non-zero exit code, or consumed + in_progress whose pid is gone. A
// nil isPIDDead treats any recorded pid as dead; excludePIDs lists pids
// the supervisor still owns in this process.
func IsFailed(t *models.Task, isPIDDead func(pid int) bool, excludePIDs map[int]bool) bool {
	return isFailedStuck(t, isPIDDead, excludePIDs)
}

func isFailedStuck(t *models.Task, isPIDDead func(pid int) bool, excludePIDs map[int]bool) bool {
	if !t.Consumed {
		return false
	}
	if t.ConsumedExitCode != nil && *t.ConsumedExitCode != 0 {
		return true
	}
	if t.Status != models.TaskStatusInProgress {
		return false
	}
	if t.ConsumePID == nil {
		return true
	}
	pid := *t.ConsumePID
	if excludePIDs != nil && excludePIDs[pid] {
		return false
	}
	if isPIDDead == nil {
		return true
	}
	return isPIDDead(pid)
}
