package models

import "time"

// RunStatus represents the state of a single execution attempt.
type RunStatus string

const (
	// RunStatusRunning indicates the agent process is still alive.
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted indicates the attempt finished and recorded an end time.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed indicates the attempt was orphaned or otherwise lost.
	RunStatusFailed RunStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return true
	default:
		return false
	}
}

// Run is one attempt to execute a task with exactly one spawned agent
// process. At most one run per task is in status running.
type Run struct {
	// ID is the unique identifier, "run-" followed by 6 hex characters.
	ID string `json:"id"`
	// TaskID is the owning task.
	TaskID string `json:"task_id"`
	// Agent is the agent name from config that executed this run.
	Agent string `json:"agent"`
	// Model overrides the agent's default model, if set.
	Model string `json:"model,omitempty"`
	// StartedAt is when the agent process was spawned.
	StartedAt time.Time `json:"started_at"`
	// EndedAt is when the process exited, if it has.
	EndedAt *time.Time `json:"ended_at,omitempty"`
	// ExitCode is the process exit code, if it exited.
	ExitCode *int `json:"exit_code,omitempty"`
	// Output is the captured agent output, truncated to 10 KiB.
	Output string `json:"output,omitempty"`
	// SessionID is the agent session id extracted from output, if any.
	SessionID string `json:"session_id,omitempty"`
	// Cost is the reported cost of the attempt in dollars, if known.
	Cost *float64 `json:"cost,omitempty"`
	// Status is the current state of the run.
	Status RunStatus `json:"status"`
	// DurationSeconds is EndedAt minus StartedAt, set on completion when
	// both timestamps are known.
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
}
