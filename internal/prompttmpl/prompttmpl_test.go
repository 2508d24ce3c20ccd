package prompttmpl

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fuelsh/fuel/pkg/models"
)

func sampleTask() *models.Task {
	return &models.Task{
		ID:          "f-abc123",
		Title:       "Fix login redirect",
		Description: "Users land on a 404 after OAuth.",
		Type:        models.TaskTypeBug,
		Priority:    1,
		Size:        models.SizeS,
		Complexity:  models.ComplexitySimple,
		Labels:      []string{"auth", "frontend"},
	}
}

func TestRenderDefaultTemplate(t *testing.T) {
	r, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := r.Render(sampleTask())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	for _, want := range []string{
		"f-abc123", "Fix login redirect", "Users land on a 404",
		"Priority: 1", "Complexity: simple", "auth, frontend",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("prompt missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Previous attempt notes") {
		t.Error("empty reason should omit its section")
	}
	if !strings.HasSuffix(out, "\n") || strings.HasSuffix(out, "\n\n") {
		t.Error("prompt must end with exactly one newline")
	}
}

func TestRenderRetrySections(t *testing.T) {
	r, err := New("")
	if err != nil {
		t.Fatal(err)
	}
	task := sampleTask()
	task.Reason = "network dropped mid-run"
	task.LastReviewIssues = []string{"missing tests for the redirect path"}

	out, err := r.Render(task)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "network dropped mid-run") {
		t.Error("reason not rendered")
	}
	if !strings.Contains(out, "missing tests for the redirect path") {
		t.Error("review issues not rendered")
	}
}

func TestProjectOverrideWins(t *testing.T) {
	dir := t.TempDir()
	custom := "Do {{.ID}} now.\n"
	if err := os.WriteFile(filepath.Join(dir, OverrideName), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	out, err := r.Render(sampleTask())
	if err != nil {
		t.Fatal(err)
	}
	if out != "Do f-abc123 now.\n" {
		t.Errorf("out = %q", out)
	}
}

func TestBrokenOverrideFailsLoad(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, OverrideName), []byte("{{.Unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(dir); err == nil {
		t.Error("unparsable override must fail at load time")
	}
}
