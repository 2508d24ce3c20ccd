// Package epic implements the epic repository: CRUD over
// .fuel/epics.jsonl plus the derived status, approval, and rejection
// flows. Epics never store a status; it is always computed from their
// member tasks and review flags.
package epic

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fuelsh/fuel/internal/store"
	"github.com/fuelsh/fuel/internal/task"
	"github.com/fuelsh/fuel/pkg/models"
)

// IDPrefix is prepended to every epic id.
const IDPrefix = "e-"

// DefaultApprover is recorded when no approver is named.
const DefaultApprover = "human"

// ErrNotFound indicates the referenced epic id does not exist.
var ErrNotFound = errors.New("epic not found")

// Repo provides atomic access to the epic store. Member-task lookups
// and rejection reopening go through the task repository.
type Repo struct {
	path  string
	lock  *store.FileLock
	tasks *task.Repo
}

// NewRepo creates a repository over <dir>/epics.jsonl, using tasks for
// member resolution.
func NewRepo(dir string, tasks *task.Repo) *Repo {
	path := filepath.Join(dir, "epics.jsonl")
	return &Repo{
		path:  path,
		lock:  store.NewFileLock(path + ".lock"),
		tasks: tasks,
	}
}

func (r *Repo) load() ([]*models.Epic, error) {
	return store.ReadLines[*models.Epic](r.path)
}

func (r *Repo) save(epics []*models.Epic) error {
	sort.Slice(epics, func(i, j int) bool { return epics[i].ID < epics[j].ID })
	return store.WriteLines(r.path, epics)
}

// All returns every epic under a shared lock, sorted by id.
func (r *Repo) All() ([]*models.Epic, error) {
	if err := r.lock.LockShared(); err != nil {
		return nil, err
	}
	defer r.lock.Unlock()

	epics, err := r.load()
	if err != nil {
		return nil, err
	}
	sort.Slice(epics, func(i, j int) bool { return epics[i].ID < epics[j].ID })
	return epics, nil
}

// Find resolves an exact or partial epic id.
func (r *Repo) Find(id string) (*models.Epic, error) {
	if err := r.lock.LockShared(); err != nil {
		return nil, err
	}
	defer r.lock.Unlock()

	epics, err := r.load()
	if err != nil {
		return nil, err
	}
	return findIn(epics, id)
}

func findIn(epics []*models.Epic, id string) (*models.Epic, error) {
	for _, e := range epics {
		if e.ID == id {
			return e, nil
		}
	}
	for _, prefix := range []string{id, IDPrefix + id} {
		var matches []*models.Epic
		for _, e := range epics {
			if strings.HasPrefix(e.ID, prefix) {
				matches = append(matches, e)
			}
		}
		if len(matches) == 1 {
			return matches[0], nil
		}
		if len(matches) > 1 {
			candidates := make([]string, len(matches))
			for i, m := range matches {
				candidates[i] = m.ID
			}
			sort.Strings(candidates)
			return nil, &task.AmbiguousIDError{Partial: id, Candidates: candidates}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Create validates and persists a new epic.
func (r *Repo) Create(title, description string) (*models.Epic, error) {
	if strings.TrimSpace(title) == "" {
		return nil, &task.ValidationError{Field: "title", Message: "must not be empty"}
	}

	if err := r.lock.LockExclusive(); err != nil {
		return nil, err
	}
	defer r.lock.Unlock()

	epics, err := r.load()
	if err != nil {
		return nil, err
	}

	id, err := store.NewID(IDPrefix, func(id string) bool {
		for _, e := range epics {
			if e.ID == id {
				return true
			}
		}
		return false
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	e := &models.Epic{
		ID:          id,
		Title:       title,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	epics = append(epics, e)
	if err := r.save(epics); err != nil {
		return nil, err
	}
	return e, nil
}

// Members returns the tasks belonging to the epic.
func (r *Repo) Members(epicID string) ([]*models.Task, error) {
	tasks, err := r.tasks.All()
	if err != nil {
		return nil, err
	}
	var members []*models.Task
	for _, t := range tasks {
		if t.Epic == epicID {
			members = append(members, t)
		}
	}
	return members, nil
}

// Status computes the epic's derived status from its members.
func (r *Repo) Status(id string) (models.EpicStatus, error) {
	e, err := r.Find(id)
	if err != nil {
		return "", err
	}
	members, err := r.Members(e.ID)
	if err != nil {
		return "", err
	}
	return models.ComputeEpicStatus(e, members), nil
}

// Approve marks the epic approved, clearing any outstanding change
// request. An empty approvedBy records the default approver.
func (r *Repo) Approve(id, approvedBy string) (*models.Epic, error) {
	if approvedBy == "" {
		approvedBy = DefaultApprover
	}
	return r.mutate(id, func(e *models.Epic) error {
		now := time.Now().UTC()
		e.ApprovedAt = &now
		e.ApprovedBy = approvedBy
		e.ChangesRequestedAt = nil
		return nil
	})
}

// Reject records a change request, clears any approval, and reopens
// every member task whose status is closed.
func (r *Repo) Reject(id, reason string) (*models.Epic, error) {
	e, err := r.mutate(id, func(e *models.Epic) error {
		now := time.Now().UTC()
		e.ChangesRequestedAt = &now
		e.ApprovedAt = nil
		e.ApprovedBy = ""
		return nil
	})
	if err != nil {
		return nil, err
	}

	members, err := r.Members(e.ID)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if m.Status != models.TaskStatusClosed {
			continue
		}
		if _, err := r.tasks.Reopen(m.ID, reason); err != nil {
			return nil, fmt.Errorf("reopen member %s: %w", m.ID, err)
		}
	}
	return e, nil
}

// MarkReviewed stamps the epic's reviewed time.
func (r *Repo) MarkReviewed(id string) (*models.Epic, error) {
	return r.mutate(id, func(e *models.Epic) error {
		now := time.Now().UTC()
		e.ReviewedAt = &now
		return nil
	})
}

// CheckCompletion reports whether the epic has at least one member and
// every member is closed or cancelled.
func (r *Repo) CheckCompletion(id string) (bool, error) {
	e, err := r.Find(id)
	if err != nil {
		return false, err
	}
	members, err := r.Members(e.ID)
	if err != nil {
		return false, err
	}
	if len(members) == 0 {
		return false, nil
	}
	for _, m := range members {
		if !m.Status.Terminal() {
			return false, nil
		}
	}
	return true, nil
}

func (r *Repo) mutate(id string, fn func(e *models.Epic) error) (*models.Epic, error) {
	if err := r.lock.LockExclusive(); err != nil {
		return nil, err
	}
	defer r.lock.Unlock()

	epics, err := r.load()
	if err != nil {
		return nil, err
	}
	e, err := findIn(epics, id)
	if err != nil {
		return nil, err
	}
	if err := fn(e); err != nil {
		return nil, err
	}
	e.UpdatedAt = time.Now().UTC()
	if err := r.save(epics); err != nil {
		return nil, err
	}
	return e, nil
}
