package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fuelsh/fuel/internal/store"
	"github.com/fuelsh/fuel/pkg/models"
)

// RunIDPrefix is prepended to every run id.
const RunIDPrefix = "run-"

// MaxRunOutputBytes caps the output stored for a single run. Longer
// output is truncated once, at this boundary, before it reaches the
// database.
const MaxRunOutputBytes = 10240

// ErrRunNotFound indicates no run matched the query.
var ErrRunNotFound = errors.New("run not found")

// Runs is the run repository: one row per spawn attempt.
type Runs struct {
	db *DB
}

// NewRuns wraps the database with the run repository.
func NewRuns(db *DB) *Runs {
	return &Runs{db: db}
}

// CreateRunData holds the fields recorded when a spawn begins.
type CreateRunData struct {
	Agent     string
	Model     string
	StartedAt time.Time
	SessionID string
}

// CreateRun inserts a new running row for the task and returns its id.
func (r *Runs) CreateRun(taskID string, data CreateRunData) (string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if data.StartedAt.IsZero() {
		data.StartedAt = time.Now().UTC()
	}

	id, err := store.NewID(RunIDPrefix, func(id string) bool {
		var n int
		row := r.db.conn.QueryRow("SELECT COUNT(*) FROM runs WHERE id = ?", id)
		if err := row.Scan(&n); err != nil {
			return false
		}
		return n > 0
	})
	if err != nil {
		return "", err
	}

	_, err = r.db.conn.Exec(`
		INSERT INTO runs (id, task_id, agent, model, started_at, session_id, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, taskID, data.Agent, nullString(data.Model), formatTime(data.StartedAt),
		nullString(data.SessionID), string(models.RunStatusRunning))
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// RunPatch describes a partial update to a run. Nil fields are left
// untouched.
type RunPatch struct {
	EndedAt   *time.Time
	ExitCode  *int
	Output    *string
	SessionID *string
	Cost      *float64
	Status    *models.RunStatus
}

// UpdateLatestRun applies the patch to the task's most recent run.
// Setting EndedAt also marks the run completed (unless the patch names
// a status) and computes its duration.
func (r *Runs) UpdateLatestRun(taskID string, patch RunPatch) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var id string
	var startedAtStr string
	row := r.db.conn.QueryRow(`
		SELECT id, started_at FROM runs
		WHERE task_id = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT 1
	`, taskID)
	if err := row.Scan(&id, &startedAtStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: no runs for task %s", ErrRunNotFound, taskID)
		}
		return fmt.Errorf("find latest run: %w", err)
	}

	sets := []string{}
	args := []any{}
	add := func(clause string, v any) {
		sets = append(sets, clause)
		args = append(args, v)
	}

	if patch.EndedAt != nil {
		add("ended_at = ?", formatTime(*patch.EndedAt))
		if patch.Status == nil {
			completed := models.RunStatusCompleted
			patch.Status = &completed
		}
		if startedAt, err := parseTime(startedAtStr); err == nil {
			add("duration_seconds = ?", patch.EndedAt.Sub(startedAt).Seconds())
		}
	}
	if patch.ExitCode != nil {
		add("exit_code = ?", *patch.ExitCode)
	}
	if patch.Output != nil {
		add("output = ?", truncateOutput(*patch.Output))
	}
	if patch.SessionID != nil {
		add("session_id = ?", *patch.SessionID)
	}
	if patch.Cost != nil {
		add("cost = ?", *patch.Cost)
	}
	if patch.Status != nil {
		add("status = ?", string(*patch.Status))
	}
	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE runs SET "
	for i, s := range sets {
		if i > 0 {
			query += ", "
		}
		query += s
	}
	query += " WHERE id = ?"
	args = append(args, id)

	if _, err := r.db.conn.Exec(query, args...); err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	return nil
}

// CleanupOrphanedRuns marks every run still flagged running with no end
// time as failed. Called once at daemon startup, before any spawns,
// so rows from a crashed daemon don't linger as running forever.
func (r *Runs) CleanupOrphanedRuns() (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	now := formatTime(time.Now().UTC())
	res, err := r.db.conn.Exec(`
		UPDATE runs
		SET status = ?, exit_code = -1, ended_at = ?,
		    output = '[Run orphaned — daemon restarted while run was in flight]'
		WHERE status = ? AND ended_at IS NULL
	`, string(models.RunStatusFailed), now, string(models.RunStatusRunning))
	if err != nil {
		return 0, fmt.Errorf("cleanup orphaned runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ListRuns returns the task's runs, most recent first. A limit of 0
// means no limit.
func (r *Runs) ListRuns(taskID string, limit int) ([]*models.Run, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	query := `
		SELECT id, task_id, agent, model, started_at, ended_at, exit_code,
		       output, session_id, cost, status, duration_seconds
		FROM runs
		WHERE task_id = ?
		ORDER BY started_at DESC, rowid DESC
	`
	args := []any{taskID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LatestRun returns the task's most recent run, or ErrRunNotFound.
func (r *Runs) LatestRun(taskID string) (*models.Run, error) {
	runs, err := r.ListRuns(taskID, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: no runs for task %s", ErrRunNotFound, taskID)
	}
	return runs[0], nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	var run models.Run
	var model, endedAt, output, sessionID sql.NullString
	var exitCode sql.NullInt64
	var cost, duration sql.NullFloat64
	var startedAtStr, status string

	err := row.Scan(&run.ID, &run.TaskID, &run.Agent, &model, &startedAtStr,
		&endedAt, &exitCode, &output, &sessionID, &cost, &status, &duration)
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	run.Model = model.String
	run.Output = output.String
	run.SessionID = sessionID.String
	run.Status = models.RunStatus(status)
	startedAt, err := parseTime(startedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	run.StartedAt = startedAt
	run.EndedAt = parseNullableTime(endedAt)
	if exitCode.Valid {
		c := int(exitCode.Int64)
		run.ExitCode = &c
	}
	if cost.Valid {
		v := cost.Float64
		run.Cost = &v
	}
	if duration.Valid {
		v := duration.Float64
		run.DurationSeconds = &v
	}
	return &run, nil
}

func truncateOutput(s string) string {
	if len(s) <= MaxRunOutputBytes {
		return s
	}
	return s[:MaxRunOutputBytes]
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
