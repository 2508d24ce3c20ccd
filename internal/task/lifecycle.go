package task

import (
	"fmt"
	"time"

	"github.com/fuelsh/fuel/pkg/models"
)

// Start transitions an open task to in_progress.
func (r *Repo) Start(id string) (*models.Task, error) {
	return r.mutate(id, func(t *models.Task) error {
		if t.Status != models.TaskStatusOpen {
			return &ValidationError{Field: "status", Message: fmt.Sprintf("cannot start a %s task", t.Status)}
		}
		t.Status = models.TaskStatusInProgress
		return nil
	})
}

// Done closes a task, recording an optional reason and commit hash.
func (r *Repo) Done(id, reason, commitHash string) (*models.Task, error) {
	return r.mutate(id, func(t *models.Task) error {
		if t.Status.Terminal() {
			return &ValidationError{Field: "status", Message: fmt.Sprintf("task is already %s", t.Status)}
		}
		t.Status = models.TaskStatusClosed
		if reason != "" {
			t.Reason = reason
		}
		if commitHash != "" {
			t.CommitHash = commitHash
		}
		return nil
	})
}

// Reopen transitions a closed task back to open.
func (r *Repo) Reopen(id, reason string) (*models.Task, error) {
	return r.mutate(id, func(t *models.Task) error {
		if t.Status != models.TaskStatusClosed {
			return &ValidationError{Field: "status", Message: fmt.Sprintf("cannot reopen a %s task", t.Status)}
		}
		t.Status = models.TaskStatusOpen
		if reason != "" {
			t.Reason = reason
		}
		return nil
	})
}

// Cancel abandons an open or in_progress task.
func (r *Repo) Cancel(id, reason string) (*models.Task, error) {
	return r.mutate(id, func(t *models.Task) error {
		if t.Status.Terminal() {
			return &ValidationError{Field: "status", Message: fmt.Sprintf("task is already %s", t.Status)}
		}
		t.Status = models.TaskStatusCancelled
		if reason != "" {
			t.Reason = reason
		}
		return nil
	})
}

// Retry resets a failed-stuck task to open and clears the supervisor's
// transient consume fields. Both failed-stuck shapes are accepted:
// consumed with a non-zero exit code, and consumed + in_progress with
// no live pid. isPIDDead probes a recorded pid (nil treats any pid as
// dead); livePIDs lists pids the caller's own supervisor still owns, so
// a task with a running agent is never treated as stuck.
func (r *Repo) Retry(id string, isPIDDead func(pid int) bool, livePIDs map[int]bool) (*models.Task, error) {
	return r.mutate(id, func(t *models.Task) error {
		if !IsFailed(t, isPIDDead, livePIDs) {
			return &ValidationError{Field: "status", Message: "task is not failed-stuck; retry applies to consumed tasks with a non-zero exit or no live agent"}
		}
		clearConsume(t)
		t.Status = models.TaskStatusOpen
		return nil
	})
}

// MarkConsumed records a successful spawn: the task moves to
// in_progress and the supervisor's pid ownership is recorded.
func (r *Repo) MarkConsumed(id string, pid int) (*models.Task, error) {
	return r.mutate(id, func(t *models.Task) error {
		now := time.Now().UTC()
		t.Status = models.TaskStatusInProgress
		t.Consumed = true
		t.ConsumedAt = &now
		t.ConsumePID = &pid
		t.ConsumedExitCode = nil
		t.ConsumedOutput = ""
		return nil
	})
}

// RecordExit stores the terminal state of the task's agent process.
// The pid is cleared; status transitions are the scheduler's call.
func (r *Repo) RecordExit(id string, exitCode int, output string) (*models.Task, error) {
	return r.mutate(id, func(t *models.Task) error {
		t.ConsumedExitCode = &exitCode
		t.ConsumedOutput = output
		t.ConsumePID = nil
		return nil
	})
}

// MarkNeedsHuman reopens a task whose agent was blocked on permissions
// and labels it for operator attention. The consume fields are cleared
// so the task does not read as failed-stuck.
func (r *Repo) MarkNeedsHuman(id string) (*models.Task, error) {
	return r.mutate(id, func(t *models.Task) error {
		clearConsume(t)
		t.Status = models.TaskStatusOpen
		t.AddLabel(models.LabelNeedsHuman)
		return nil
	})
}

func clearConsume(t *models.Task) {
	t.Consumed = false
	t.ConsumedAt = nil
	t.ConsumedExitCode = nil
	t.ConsumePID = nil
	t.ConsumedOutput = ""
}
