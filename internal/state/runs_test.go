package state

import (
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/fuelsh/fuel/pkg/models"
)

func newTestRuns(t *testing.T) *Runs {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return NewRuns(db)
}

func TestCreateAndListRuns(t *testing.T) {
	r := newTestRuns(t)

	id, err := r.CreateRun("f-abc123", CreateRunData{Agent: "claude", Model: "sonnet"})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if !regexp.MustCompile(`^run-[0-9a-f]{6}$`).MatchString(id) {
		t.Errorf("run id %q does not match ^run-[0-9a-f]{6}$", id)
	}

	run, err := r.LatestRun("f-abc123")
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if run.ID != id {
		t.Errorf("latest run = %s, want %s", run.ID, id)
	}
	if run.Status != models.RunStatusRunning {
		t.Errorf("status = %q, want running", run.Status)
	}
	if run.Agent != "claude" || run.Model != "sonnet" {
		t.Errorf("agent/model = %q/%q", run.Agent, run.Model)
	}
	if run.EndedAt != nil || run.ExitCode != nil {
		t.Error("new run must have no ended_at or exit_code")
	}

	if _, err := r.LatestRun("f-nothere"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("LatestRun(unknown) err = %v, want ErrRunNotFound", err)
	}
}

func TestUpdateLatestRunPicksMostRecent(t *testing.T) {
	r := newTestRuns(t)

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	if _, err := r.CreateRun("f-abc123", CreateRunData{Agent: "claude", StartedAt: base}); err != nil {
		t.Fatal(err)
	}
	second, err := r.CreateRun("f-abc123", CreateRunData{Agent: "claude", StartedAt: base.Add(time.Minute)})
	if err != nil {
		t.Fatal(err)
	}

	code := 0
	ended := base.Add(90 * time.Second)
	err = r.UpdateLatestRun("f-abc123", RunPatch{EndedAt: &ended, ExitCode: &code})
	if err != nil {
		t.Fatalf("UpdateLatestRun: %v", err)
	}

	run, err := r.LatestRun("f-abc123")
	if err != nil {
		t.Fatal(err)
	}
	if run.ID != second {
		t.Errorf("updated run = %s, want most recent %s", run.ID, second)
	}
	if run.Status != models.RunStatusCompleted {
		t.Errorf("status = %q, want completed after ended_at", run.Status)
	}
	if run.ExitCode == nil || *run.ExitCode != 0 {
		t.Errorf("exit_code = %v, want 0", run.ExitCode)
	}
	if run.DurationSeconds == nil || *run.DurationSeconds != 30 {
		t.Errorf("duration_seconds = %v, want 30", run.DurationSeconds)
	}
}

func TestUpdateLatestRunExplicitStatusWins(t *testing.T) {
	r := newTestRuns(t)
	if _, err := r.CreateRun("f-abc123", CreateRunData{Agent: "claude"}); err != nil {
		t.Fatal(err)
	}

	ended := time.Now().UTC()
	failed := models.RunStatusFailed
	code := 2
	err := r.UpdateLatestRun("f-abc123", RunPatch{EndedAt: &ended, ExitCode: &code, Status: &failed})
	if err != nil {
		t.Fatal(err)
	}

	run, err := r.LatestRun("f-abc123")
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != models.RunStatusFailed {
		t.Errorf("status = %q, want failed", run.Status)
	}
}

func TestUpdateLatestRunNoRuns(t *testing.T) {
	r := newTestRuns(t)
	code := 0
	err := r.UpdateLatestRun("f-abc123", RunPatch{ExitCode: &code})
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("err = %v, want ErrRunNotFound", err)
	}
}

func TestOutputTruncation(t *testing.T) {
	r := newTestRuns(t)
	if _, err := r.CreateRun("f-abc123", CreateRunData{Agent: "claude"}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		size    int
		wantLen int
	}{
		{"under cap", 100, 100},
		{"exactly cap", MaxRunOutputBytes, MaxRunOutputBytes},
		{"one over cap", MaxRunOutputBytes + 1, MaxRunOutputBytes},
		{"far over cap", 5 * MaxRunOutputBytes, MaxRunOutputBytes},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := strings.Repeat("x", tt.size)
			if err := r.UpdateLatestRun("f-abc123", RunPatch{Output: &out}); err != nil {
				t.Fatal(err)
			}
			run, err := r.LatestRun("f-abc123")
			if err != nil {
				t.Fatal(err)
			}
			if len(run.Output) != tt.wantLen {
				t.Errorf("stored output = %d bytes, want %d", len(run.Output), tt.wantLen)
			}
		})
	}
}

func TestCleanupOrphanedRuns(t *testing.T) {
	r := newTestRuns(t)

	if _, err := r.CreateRun("f-aaa111", CreateRunData{Agent: "claude"}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.CreateRun("f-bbb222", CreateRunData{Agent: "claude"}); err != nil {
		t.Fatal(err)
	}
	// Finish the second run cleanly; only the first should be swept.
	ended := time.Now().UTC()
	code := 0
	if err := r.UpdateLatestRun("f-bbb222", RunPatch{EndedAt: &ended, ExitCode: &code}); err != nil {
		t.Fatal(err)
	}

	n, err := r.CleanupOrphanedRuns()
	if err != nil {
		t.Fatalf("CleanupOrphanedRuns: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept %d runs, want 1", n)
	}

	orphaned, err := r.LatestRun("f-aaa111")
	if err != nil {
		t.Fatal(err)
	}
	if orphaned.Status != models.RunStatusFailed {
		t.Errorf("status = %q, want failed", orphaned.Status)
	}
	if orphaned.ExitCode == nil || *orphaned.ExitCode != -1 {
		t.Errorf("exit_code = %v, want -1", orphaned.ExitCode)
	}
	if orphaned.EndedAt == nil {
		t.Error("orphaned run must get an ended_at")
	}
	if !strings.HasPrefix(orphaned.Output, "[Run orphaned") {
		t.Errorf("output = %q, want orphan marker", orphaned.Output)
	}

	clean, err := r.LatestRun("f-bbb222")
	if err != nil {
		t.Fatal(err)
	}
	if clean.Status != models.RunStatusCompleted {
		t.Errorf("completed run was touched: status = %q", clean.Status)
	}

	// Second sweep is a no-op.
	n, err = r.CleanupOrphanedRuns()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("second sweep affected %d runs, want 0", n)
	}
}
