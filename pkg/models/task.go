// Package models defines the core data types shared across fuel:
// tasks, epics, and runs.
package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusOpen indicates the task has not started.
	TaskStatusOpen TaskStatus = "open"
	// TaskStatusInProgress indicates the task is being worked on.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusClosed indicates the task completed successfully.
	TaskStatusClosed TaskStatus = "closed"
	// TaskStatusCancelled indicates the task was abandoned.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusOpen, TaskStatusInProgress, TaskStatusClosed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is closed or cancelled.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusClosed || s == TaskStatusCancelled
}

// TaskType categorizes a task.
type TaskType string

const (
	TaskTypeBug     TaskType = "bug"
	TaskTypeFeature TaskType = "feature"
	TaskTypeTask    TaskType = "task"
	TaskTypeEpic    TaskType = "epic"
	TaskTypeChore   TaskType = "chore"
	TaskTypeDocs    TaskType = "docs"
	TaskTypeTest    TaskType = "test"
)

// Valid returns true if the type is a known value.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeBug, TaskTypeFeature, TaskTypeTask, TaskTypeEpic, TaskTypeChore, TaskTypeDocs, TaskTypeTest:
		return true
	default:
		return false
	}
}

// Size is a t-shirt estimate of a task's scope.
type Size string

const (
	SizeXS Size = "xs"
	SizeS  Size = "s"
	SizeM  Size = "m"
	SizeL  Size = "l"
	SizeXL Size = "xl"
)

// Valid returns true if the size is a known value.
func (s Size) Valid() bool {
	switch s {
	case SizeXS, SizeS, SizeM, SizeL, SizeXL:
		return true
	default:
		return false
	}
}

// Complexity estimates how demanding a task is, and drives agent selection.
type Complexity string

const (
	ComplexityTrivial  Complexity = "trivial"
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Valid returns true if the complexity is a known value.
func (c Complexity) Valid() bool {
	switch c {
	case ComplexityTrivial, ComplexitySimple, ComplexityModerate, ComplexityComplex:
		return true
	default:
		return false
	}
}

// PriorityMin and PriorityMax bound task priority. Lower is more urgent.
const (
	PriorityMin = 0
	PriorityMax = 4
	// PriorityDefault is assigned when a task is created without one.
	PriorityDefault = 2
)

// LabelNeedsHuman marks a task that the scheduler must not pick up.
const LabelNeedsHuman = "needs-human"

// Task represents a unit of work in the system.
type Task struct {
	// ID is the unique identifier, "f-" followed by 6 hex characters.
	ID string `json:"id"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// Type categorizes the task.
	Type TaskType `json:"type"`
	// Priority orders scheduling; 0 is most urgent, 4 least.
	Priority int `json:"priority"`
	// Size is the t-shirt scope estimate.
	Size Size `json:"size"`
	// Complexity drives agent selection via the config mapping.
	Complexity Complexity `json:"complexity"`
	// Labels is an ordered set of label strings.
	Labels []string `json:"labels,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Epic is the ID of the owning epic, if any.
	Epic string `json:"epic,omitempty"`
	// BlockedBy lists task IDs that must close before this task is ready.
	BlockedBy []string `json:"blocked_by,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the task was last modified. Never before CreatedAt.
	UpdatedAt time.Time `json:"updated_at"`
	// Reason records why the task was closed or reopened.
	Reason string `json:"reason,omitempty"`
	// CommitHash links the task to the commit that completed it.
	CommitHash string `json:"commit_hash,omitempty"`
	// LastReviewIssues holds issues raised by the most recent review.
	LastReviewIssues []string `json:"last_review_issues,omitempty"`

	// Supervisor-owned transient fields. Only the scheduler and the
	// supervisor write these; retry clears them.

	// Consumed is set once the supervisor has spawned an agent for the task.
	Consumed bool `json:"consumed,omitempty"`
	// ConsumedAt is when the supervisor picked the task up.
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
	// ConsumedExitCode is the exit code of the last agent process.
	ConsumedExitCode *int `json:"consumed_exit_code,omitempty"`
	// ConsumePID is the pid of the currently running agent, if any.
	ConsumePID *int `json:"consume_pid,omitempty"`
	// ConsumedOutput is the truncated tail of the last agent's output.
	ConsumedOutput string `json:"consumed_output,omitempty"`
}

// HasLabel reports whether the task carries the given label.
func (t *Task) HasLabel(label string) bool {
	for _, l := range t.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// AddLabel appends the label if not already present, preserving order.
func (t *Task) AddLabel(label string) {
	if !t.HasLabel(label) {
		t.Labels = append(t.Labels, label)
	}
}

// BlockedByID reports whether blocker is in the task's BlockedBy set.
func (t *Task) BlockedByID(blocker string) bool {
	for _, b := range t.BlockedBy {
		if b == blocker {
			return true
		}
	}
	return false
}
