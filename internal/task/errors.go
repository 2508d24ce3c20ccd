// Package task implements the task repository: CRUD, lifecycle
// transitions, dependency edges, and readiness queries over the JSONL
// store at .fuel/tasks.jsonl.
package task

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound indicates the referenced task id does not exist.
var ErrNotFound = errors.New("task not found")

// ErrCycleDetected indicates a dependency edge would create a cycle.
var ErrCycleDetected = errors.New("dependency cycle detected")

// ErrSelfDependency indicates a task was asked to block on itself.
var ErrSelfDependency = errors.New("task cannot block on itself")

// AmbiguousIDError is returned when a partial id matches multiple tasks.
type AmbiguousIDError struct {
	Partial    string
	Candidates []string
}

func (e *AmbiguousIDError) Error() string {
	return fmt.Sprintf("id %q is ambiguous; candidates: %s", e.Partial, strings.Join(e.Candidates, ", "))
}

// ValidationError reports a rejected field value. It is raised before
// any state mutation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
