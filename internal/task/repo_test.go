package task

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/fuelsh/fuel/pkg/models"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	return NewRepo(t.TempDir())
}

func mustCreate(t *testing.T, r *Repo, opts CreateOptions) *models.Task {
	t.Helper()
	task, err := r.Create(opts)
	if err != nil {
		t.Fatalf("Create(%q): %v", opts.Title, err)
	}
	return task
}

func TestCreateDefaults(t *testing.T) {
	r := newTestRepo(t)
	task := mustCreate(t, r, CreateOptions{Title: "fix the thing"})

	idRe := regexp.MustCompile(`^f-[0-9a-f]{6}$`)
	if !idRe.MatchString(task.ID) {
		t.Errorf("id %q does not match ^f-[0-9a-f]{6}$", task.ID)
	}
	if task.Type != models.TaskTypeTask {
		t.Errorf("type = %q, want task", task.Type)
	}
	if task.Priority != 2 {
		t.Errorf("priority = %d, want 2", task.Priority)
	}
	if task.Size != models.SizeM {
		t.Errorf("size = %q, want m", task.Size)
	}
	if task.Complexity != models.ComplexitySimple {
		t.Errorf("complexity = %q, want simple", task.Complexity)
	}
	if task.Status != models.TaskStatusOpen {
		t.Errorf("status = %q, want open", task.Status)
	}
	if task.UpdatedAt.Before(task.CreatedAt) {
		t.Error("updated_at before created_at")
	}
}

func TestCreateValidation(t *testing.T) {
	r := newTestRepo(t)

	bad := []CreateOptions{
		{Title: ""},
		{Title: "   "},
		{Title: "x", Type: "story"},
		{Title: "x", Size: "xxl"},
		{Title: "x", Complexity: "impossible"},
		{Title: "x", Priority: intp(-1)},
		{Title: "x", Priority: intp(5)},
	}
	for _, opts := range bad {
		if _, err := r.Create(opts); !IsValidation(err) {
			t.Errorf("Create(%+v) err = %v, want ValidationError", opts, err)
		}
	}

	// Boundary priorities are accepted.
	for _, p := range []int{0, 4} {
		if _, err := r.Create(CreateOptions{Title: "ok", Priority: intp(p)}); err != nil {
			t.Errorf("priority %d rejected: %v", p, err)
		}
	}
}

func intp(v int) *int { return &v }

func TestIDsAreUnique(t *testing.T) {
	r := newTestRepo(t)
	seen := map[string]bool{}
	for i := 0; i < 25; i++ {
		task := mustCreate(t, r, CreateOptions{Title: "t"})
		if seen[task.ID] {
			t.Fatalf("duplicate id %s", task.ID)
		}
		seen[task.ID] = true
	}
}

func TestFindPartialResolution(t *testing.T) {
	r := newTestRepo(t)
	task := mustCreate(t, r, CreateOptions{Title: "target"})

	// Exact, full prefix, and bare-hex prefix all resolve.
	for _, q := range []string{task.ID, task.ID[:4], task.ID[2:5]} {
		got, err := r.Find(q)
		if err != nil {
			t.Fatalf("Find(%q): %v", q, err)
		}
		if got.ID != task.ID {
			t.Errorf("Find(%q) = %s, want %s", q, got.ID, task.ID)
		}
	}

	if _, err := r.Find("f-zzzzzz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Find(unknown) err = %v, want ErrNotFound", err)
	}
}

func TestFindAmbiguous(t *testing.T) {
	r := newTestRepo(t)
	for i := 0; i < 12; i++ {
		mustCreate(t, r, CreateOptions{Title: "t"})
	}

	// "f-" prefixes every id, so it must be ambiguous.
	_, err := r.Find("f-")
	var amb *AmbiguousIDError
	if !errors.As(err, &amb) {
		t.Fatalf("Find(\"f-\") err = %v, want AmbiguousIDError", err)
	}
	if len(amb.Candidates) != 12 {
		t.Errorf("got %d candidates, want 12", len(amb.Candidates))
	}
}

func TestDependencyRejections(t *testing.T) {
	r := newTestRepo(t)
	a := mustCreate(t, r, CreateOptions{Title: "a"})
	b := mustCreate(t, r, CreateOptions{Title: "b"})
	c := mustCreate(t, r, CreateOptions{Title: "c"})

	if _, err := r.AddDependency(a.ID, a.ID); !errors.Is(err, ErrSelfDependency) {
		t.Errorf("self dependency err = %v, want ErrSelfDependency", err)
	}

	// a -> b, then b -> a is a 2-cycle.
	if _, err := r.AddDependency(a.ID, b.ID); err != nil {
		t.Fatalf("a->b: %v", err)
	}
	if _, err := r.AddDependency(b.ID, a.ID); !errors.Is(err, ErrCycleDetected) {
		t.Errorf("2-cycle err = %v, want ErrCycleDetected", err)
	}

	// a -> b -> c, then c -> a is a 3-cycle.
	if _, err := r.AddDependency(b.ID, c.ID); err != nil {
		t.Fatalf("b->c: %v", err)
	}
	if _, err := r.AddDependency(c.ID, a.ID); !errors.Is(err, ErrCycleDetected) {
		t.Errorf("3-cycle err = %v, want ErrCycleDetected", err)
	}

	// Duplicate edges are idempotent.
	before, _ := r.Find(a.ID)
	if _, err := r.AddDependency(a.ID, b.ID); err != nil {
		t.Fatalf("duplicate edge: %v", err)
	}
	after, _ := r.Find(a.ID)
	if len(after.BlockedBy) != len(before.BlockedBy) {
		t.Error("duplicate edge changed blocked_by")
	}
}

func TestRemoveDependency(t *testing.T) {
	r := newTestRepo(t)
	a := mustCreate(t, r, CreateOptions{Title: "a"})
	b := mustCreate(t, r, CreateOptions{Title: "b"})

	if _, err := r.AddDependency(a.ID, b.ID); err != nil {
		t.Fatal(err)
	}
	got, err := r.RemoveDependency(a.ID, b.ID)
	if err != nil {
		t.Fatalf("RemoveDependency: %v", err)
	}
	if len(got.BlockedBy) != 0 {
		t.Errorf("blocked_by = %v, want empty", got.BlockedBy)
	}
}

func TestReadyOrderingAndBlocking(t *testing.T) {
	r := newTestRepo(t)

	low := mustCreate(t, r, CreateOptions{Title: "low", Priority: intp(2)})
	urgent := mustCreate(t, r, CreateOptions{Title: "urgent", Priority: intp(1)})
	blocked := mustCreate(t, r, CreateOptions{Title: "blocked", Priority: intp(0)})
	human := mustCreate(t, r, CreateOptions{Title: "manual", Labels: []string{models.LabelNeedsHuman}})

	if _, err := r.AddDependency(blocked.ID, low.ID); err != nil {
		t.Fatal(err)
	}

	ready, err := r.Ready()
	if err != nil {
		t.Fatalf("Ready: %v", err)
	}
	if len(ready) != 2 {
		t.Fatalf("ready = %d tasks, want 2", len(ready))
	}
	if ready[0].ID != urgent.ID || ready[1].ID != low.ID {
		t.Errorf("ready order = %s, %s; want urgent then low", ready[0].ID, ready[1].ID)
	}

	blockedTasks, err := r.Blocked()
	if err != nil {
		t.Fatalf("Blocked: %v", err)
	}
	if len(blockedTasks) != 1 || blockedTasks[0].ID != blocked.ID {
		t.Errorf("blocked = %v, want just %s", blockedTasks, blocked.ID)
	}
	_ = human

	// Closing the blocker unblocks the dependent.
	if _, err := r.Done(low.ID, "", "deadbee"); err != nil {
		t.Fatal(err)
	}
	ready, err = r.Ready()
	if err != nil {
		t.Fatal(err)
	}
	ids := map[string]bool{}
	for _, task := range ready {
		ids[task.ID] = true
	}
	if !ids[blocked.ID] {
		t.Error("dependent task should be ready after blocker closed")
	}
}

func TestLifecycleTransitions(t *testing.T) {
	r := newTestRepo(t)
	task := mustCreate(t, r, CreateOptions{Title: "t"})

	if _, err := r.Start(task.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := r.Start(task.ID); !IsValidation(err) {
		t.Errorf("double Start err = %v, want ValidationError", err)
	}

	done, err := r.Done(task.ID, "works", "deadbee")
	if err != nil {
		t.Fatalf("Done: %v", err)
	}
	if done.Status != models.TaskStatusClosed || done.Reason != "works" || done.CommitHash != "deadbee" {
		t.Errorf("Done result = %+v", done)
	}

	reopened, err := r.Reopen(task.ID, "missing tests")
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if reopened.Status != models.TaskStatusOpen {
		t.Errorf("status = %q, want open", reopened.Status)
	}
}

func TestRetryAcceptsBothFailedStuckShapes(t *testing.T) {
	r := newTestRepo(t)

	// Shape 1: consumed with non-zero exit code.
	a := mustCreate(t, r, CreateOptions{Title: "a"})
	if _, err := r.MarkConsumed(a.ID, 4242); err != nil {
		t.Fatal(err)
	}
	if _, err := r.RecordExit(a.ID, 1, "boom"); err != nil {
		t.Fatal(err)
	}
	got, err := r.Retry(a.ID, nil, nil)
	if err != nil {
		t.Fatalf("Retry(exit!=0): %v", err)
	}
	if got.Status != models.TaskStatusOpen || got.Consumed || got.ConsumePID != nil || got.ConsumedExitCode != nil || got.ConsumedOutput != "" {
		t.Errorf("retry did not clear consume fields: %+v", got)
	}

	// Shape 2: consumed + in_progress + null pid.
	b := mustCreate(t, r, CreateOptions{Title: "b"})
	if _, err := r.MarkConsumed(b.ID, 4243); err != nil {
		t.Fatal(err)
	}
	if _, err := r.RecordExit(b.ID, 0, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Retry(b.ID, nil, nil); err != nil {
		t.Fatalf("Retry(null pid): %v", err)
	}

	// A plain open task is not retryable.
	c := mustCreate(t, r, CreateOptions{Title: "c"})
	if _, err := r.Retry(c.ID, nil, nil); !IsValidation(err) {
		t.Errorf("Retry(open) err = %v, want ValidationError", err)
	}
}

func TestRetryRefusesTaskWithLiveAgent(t *testing.T) {
	r := newTestRepo(t)
	pid := 4244

	task := mustCreate(t, r, CreateOptions{Title: "t"})
	if _, err := r.MarkConsumed(task.ID, pid); err != nil {
		t.Fatal(err)
	}

	alive := func(int) bool { return false }
	if _, err := r.Retry(task.ID, alive, nil); !IsValidation(err) {
		t.Errorf("Retry(live pid) err = %v, want ValidationError", err)
	}
	// A pid the caller's supervisor still owns is refused even when the
	// probe cannot see it.
	if _, err := r.Retry(task.ID, nil, map[int]bool{pid: true}); !IsValidation(err) {
		t.Errorf("Retry(owned pid) err = %v, want ValidationError", err)
	}

	// Once the agent is gone the same task becomes retryable.
	dead := func(int) bool { return true }
	if _, err := r.Retry(task.ID, dead, nil); err != nil {
		t.Fatalf("Retry(dead pid): %v", err)
	}
}

func TestIsFailed(t *testing.T) {
	pid := 1234
	exit1 := 1
	exit0 := 0

	dead := func(int) bool { return true }
	alive := func(int) bool { return false }

	tests := []struct {
		name string
		task models.Task
		dead func(int) bool
		excl map[int]bool
		want bool
	}{
		{"not consumed", models.Task{Status: models.TaskStatusInProgress}, dead, nil, false},
		{"nonzero exit", models.Task{Status: models.TaskStatusInProgress, Consumed: true, ConsumedExitCode: &exit1}, alive, nil, true},
		{"zero exit null pid", models.Task{Status: models.TaskStatusInProgress, Consumed: true, ConsumedExitCode: &exit0}, alive, nil, true},
		{"live pid", models.Task{Status: models.TaskStatusInProgress, Consumed: true, ConsumePID: &pid}, alive, nil, false},
		{"dead pid", models.Task{Status: models.TaskStatusInProgress, Consumed: true, ConsumePID: &pid}, dead, nil, true},
		{"excluded pid", models.Task{Status: models.TaskStatusInProgress, Consumed: true, ConsumePID: &pid}, dead, map[int]bool{pid: true}, false},
		{"open task", models.Task{Status: models.TaskStatusOpen, Consumed: true}, dead, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFailed(&tt.task, tt.dead, tt.excl); got != tt.want {
				t.Errorf("IsFailed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUpdatedAtNeverBeforeCreatedAt(t *testing.T) {
	r := newTestRepo(t)
	task := mustCreate(t, r, CreateOptions{Title: "t"})

	got, err := r.UpdateTask(task.ID, Update{Description: strp("details")})
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if got.UpdatedAt.Before(got.CreatedAt) {
		t.Error("updated_at before created_at after update")
	}
	if got.Description != "details" {
		t.Errorf("description = %q", got.Description)
	}
	if time.Since(got.UpdatedAt) > time.Minute {
		t.Error("updated_at not refreshed")
	}
}

func strp(s string) *string { return &s }
