package task

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fuelsh/fuel/internal/store"
	"github.com/fuelsh/fuel/pkg/models"
)

// IDPrefix is prepended to every task id.
const IDPrefix = "f-"

// Repo provides atomic access to the task store. Every operation takes
// the advisory file lock: shared for reads, exclusive for writes.
type Repo struct {
	path string
	lock *store.FileLock
}

// NewRepo creates a repository over <dir>/tasks.jsonl.
func NewRepo(dir string) *Repo {
	path := filepath.Join(dir, "tasks.jsonl")
	return &Repo{
		path: path,
		lock: store.NewFileLock(path + ".lock"),
	}
}

// Path returns the backing file path.
func (r *Repo) Path() string {
	return r.path
}

// load reads every task. Caller must hold the lock.
func (r *Repo) load() ([]*models.Task, error) {
	return store.ReadLines[*models.Task](r.path)
}

// save sorts by id and atomically rewrites the store. Caller must hold
// the lock exclusively.
func (r *Repo) save(tasks []*models.Task) error {
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return store.WriteLines(r.path, tasks)
}

// All returns every task under a shared lock, sorted by id.
func (r *Repo) All() ([]*models.Task, error) {
	if err := r.lock.LockShared(); err != nil {
		return nil, err
	}
	defer r.lock.Unlock()

	tasks, err := r.load()
	if err != nil {
		return nil, err
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

// Find resolves an exact or partial id to a single task. Resolution
// order: exact match, then prefix match, then prefix match with "f-"
// prepended. Multiple prefix matches raise AmbiguousIDError.
func (r *Repo) Find(id string) (*models.Task, error) {
	if err := r.lock.LockShared(); err != nil {
		return nil, err
	}
	defer r.lock.Unlock()

	tasks, err := r.load()
	if err != nil {
		return nil, err
	}
	return findIn(tasks, id)
}

func findIn(tasks []*models.Task, id string) (*models.Task, error) {
	for _, t := range tasks {
		if t.ID == id {
			return t, nil
		}
	}

	for _, prefix := range []string{id, IDPrefix + id} {
		var matches []*models.Task
		for _, t := range tasks {
			if strings.HasPrefix(t.ID, prefix) {
				matches = append(matches, t)
			}
		}
		switch len(matches) {
		case 0:
			continue
		case 1:
			return matches[0], nil
		default:
			candidates := make([]string, len(matches))
			for i, m := range matches {
				candidates[i] = m.ID
			}
			sort.Strings(candidates)
			return nil, &AmbiguousIDError{Partial: id, Candidates: candidates}
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// CreateOptions are the caller-supplied fields for a new task.
// Zero values take documented defaults.
type CreateOptions struct {
	Title       string
	Description string
	Type        models.TaskType
	Priority    *int
	Size        models.Size
	Complexity  models.Complexity
	Labels      []string
	Epic        string
	BlockedBy   []string
}

// Create validates the options, assigns an id and timestamps, and
// persists the new task. Defaults: type=task, priority=2, size=m,
// complexity=simple, status=open.
func (r *Repo) Create(opts CreateOptions) (*models.Task, error) {
	if err := r.lock.LockExclusive(); err != nil {
		return nil, err
	}
	defer r.lock.Unlock()

	tasks, err := r.load()
	if err != nil {
		return nil, err
	}

	t, err := buildTask(opts, tasks)
	if err != nil {
		return nil, err
	}

	tasks = append(tasks, t)
	if err := r.save(tasks); err != nil {
		return nil, err
	}
	return t, nil
}

func buildTask(opts CreateOptions, existing []*models.Task) (*models.Task, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return nil, &ValidationError{Field: "title", Message: "must not be empty"}
	}

	t := &models.Task{
		Title:       opts.Title,
		Description: opts.Description,
		Type:        models.TaskTypeTask,
		Priority:    models.PriorityDefault,
		Size:        models.SizeM,
		Complexity:  models.ComplexitySimple,
		Status:      models.TaskStatusOpen,
		Labels:      append([]string(nil), opts.Labels...),
		Epic:        opts.Epic,
	}
	if opts.Type != "" {
		t.Type = opts.Type
	}
	if opts.Priority != nil {
		t.Priority = *opts.Priority
	}
	if opts.Size != "" {
		t.Size = opts.Size
	}
	if opts.Complexity != "" {
		t.Complexity = opts.Complexity
	}
	if err := validateTaskFields(t); err != nil {
		return nil, err
	}

	for _, b := range opts.BlockedBy {
		if _, err := findIn(existing, b); err != nil {
			return nil, fmt.Errorf("blocker %s: %w", b, err)
		}
		t.BlockedBy = append(t.BlockedBy, b)
	}

	id, err := store.NewID(IDPrefix, func(id string) bool {
		for _, e := range existing {
			if e.ID == id {
				return true
			}
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	t.ID = id

	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	return t, nil
}

func validateTaskFields(t *models.Task) error {
	if !t.Type.Valid() {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown type %q", t.Type)}
	}
	if t.Priority < models.PriorityMin || t.Priority > models.PriorityMax {
		return &ValidationError{Field: "priority", Message: fmt.Sprintf("%d is outside %d..%d", t.Priority, models.PriorityMin, models.PriorityMax)}
	}
	if !t.Size.Valid() {
		return &ValidationError{Field: "size", Message: fmt.Sprintf("unknown size %q", t.Size)}
	}
	if !t.Complexity.Valid() {
		return &ValidationError{Field: "complexity", Message: fmt.Sprintf("unknown complexity %q", t.Complexity)}
	}
	if !t.Status.Valid() {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", t.Status)}
	}
	return nil
}

// Update holds optional field patches. Nil fields are left unchanged.
type Update struct {
	Title            *string
	Description      *string
	Type             *models.TaskType
	Priority         *int
	Size             *models.Size
	Complexity       *models.Complexity
	Labels           *[]string
	Status           *models.TaskStatus
	Epic             *string
	Reason           *string
	CommitHash       *string
	LastReviewIssues *[]string
}

// UpdateTask applies the patch with the same per-field validation as
// Create, then bumps UpdatedAt.
func (r *Repo) UpdateTask(id string, patch Update) (*models.Task, error) {
	return r.mutate(id, func(t *models.Task) error {
		if patch.Title != nil {
			if strings.TrimSpace(*patch.Title) == "" {
				return &ValidationError{Field: "title", Message: "must not be empty"}
			}
			t.Title = *patch.Title
		}
		if patch.Description != nil {
			t.Description = *patch.Description
		}
		if patch.Type != nil {
			t.Type = *patch.Type
		}
		if patch.Priority != nil {
			t.Priority = *patch.Priority
		}
		if patch.Size != nil {
			t.Size = *patch.Size
		}
		if patch.Complexity != nil {
			t.Complexity = *patch.Complexity
		}
		if patch.Labels != nil {
			t.Labels = append([]string(nil), (*patch.Labels)...)
		}
		if patch.Status != nil {
			t.Status = *patch.Status
		}
		if patch.Epic != nil {
			t.Epic = *patch.Epic
		}
		if patch.Reason != nil {
			t.Reason = *patch.Reason
		}
		if patch.CommitHash != nil {
			t.CommitHash = *patch.CommitHash
		}
		if patch.LastReviewIssues != nil {
			t.LastReviewIssues = append([]string(nil), (*patch.LastReviewIssues)...)
		}
		return validateTaskFields(t)
	})
}

// mutate runs fn against the resolved task under the exclusive lock and
// persists the result. UpdatedAt is set to the current time.
func (r *Repo) mutate(id string, fn func(t *models.Task) error) (*models.Task, error) {
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
	if err := fn(t); err != nil {
		return nil, err
	}
	t.UpdatedAt = time.Now().UTC()
	if t.UpdatedAt.Before(t.CreatedAt) {
		t.UpdatedAt = t.CreatedAt
	}
	if err := r.save(tasks); err != nil {
		return nil, err
	}
	return t, nil
}
