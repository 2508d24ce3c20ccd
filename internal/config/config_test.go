package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fuelsh/fuel/pkg/models"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(Path(dir), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

const validYAML = `
primary: claude
complexity:
  trivial: claude
  complex:
    agent: codex
    model: gpt-5
    args: ["--reasoning", "high"]
agents:
  claude:
    command: claude
    model: sonnet
  codex:
    command: codex
    prompt_args: ["exec"]
    max_concurrent: 4
consume_port: 5999
`

func TestLoadValid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Primary != "claude" {
		t.Errorf("primary = %q", cfg.Primary)
	}
	if cfg.Review != "claude" {
		t.Errorf("review should default to primary, got %q", cfg.Review)
	}
	if cfg.ConsumePort != 5999 {
		t.Errorf("consume_port = %d", cfg.ConsumePort)
	}
	if cfg.ConsumeBind != DefaultConsumeBind {
		t.Errorf("consume_bind = %q, want loopback default", cfg.ConsumeBind)
	}

	claude := cfg.Agents["claude"]
	if got := claude.PromptArgs; len(got) != 1 || got[0] != "-p" {
		t.Errorf("prompt_args default = %v, want [-p]", got)
	}
	if claude.MaxConcurrent != DefaultMaxConcurrent {
		t.Errorf("max_concurrent default = %d", claude.MaxConcurrent)
	}
	if claude.MaxAttempts != DefaultMaxAttempts || claude.MaxRetries != DefaultMaxRetries {
		t.Errorf("attempt defaults = %d/%d", claude.MaxAttempts, claude.MaxRetries)
	}

	codex := cfg.Agents["codex"]
	if got := codex.PromptArgs; len(got) != 1 || got[0] != "exec" {
		t.Errorf("explicit prompt_args = %v", got)
	}
	if codex.MaxConcurrent != 4 {
		t.Errorf("explicit max_concurrent = %d", codex.MaxConcurrent)
	}

	// String and object complexity forms.
	if cfg.Complexity["trivial"].Agent != "claude" {
		t.Errorf("trivial target = %+v", cfg.Complexity["trivial"])
	}
	complexTarget := cfg.Complexity["complex"]
	if complexTarget.Agent != "codex" || complexTarget.Model != "gpt-5" {
		t.Errorf("complex target = %+v", complexTarget)
	}
	if len(complexTarget.Args) != 2 {
		t.Errorf("complex args = %v", complexTarget.Args)
	}
}

func TestResolveAgent(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatal(err)
	}

	name, agent, model, args, err := cfg.ResolveAgent(models.ComplexityComplex)
	if err != nil {
		t.Fatal(err)
	}
	if name != "codex" || agent.Command != "codex" {
		t.Errorf("resolved %q (%q)", name, agent.Command)
	}
	if model != "gpt-5" {
		t.Errorf("model = %q, want complexity override", model)
	}
	if len(args) != 2 {
		t.Errorf("args = %v", args)
	}

	// Unmapped complexity falls back to primary; model falls back to
	// the agent's own.
	name, _, model, _, err = cfg.ResolveAgent(models.ComplexityModerate)
	if err != nil {
		t.Fatal(err)
	}
	if name != "claude" {
		t.Errorf("fallback agent = %q, want primary", name)
	}
	if model != "sonnet" {
		t.Errorf("fallback model = %q, want agent model", model)
	}
}

func TestLoadRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			"missing primary",
			"agents:\n  a:\n    command: a\n",
			"primary agent is required",
		},
		{
			"no agents",
			"primary: a\n",
			"at least one agent",
		},
		{
			"agent without command",
			"primary: a\nagents:\n  a: {}\n",
			"agents.a.command is required",
		},
		{
			"primary undefined",
			"primary: ghost\nagents:\n  a:\n    command: a\n",
			`undefined agent "ghost"`,
		},
		{
			"unknown complexity key",
			"primary: a\ncomplexity:\n  gnarly: a\nagents:\n  a:\n    command: a\n",
			`unknown complexity level "gnarly"`,
		},
		{
			"complexity references undefined agent",
			"primary: a\ncomplexity:\n  simple: ghost\nagents:\n  a:\n    command: a\n",
			`undefined agent "ghost"`,
		},
		{
			"complexity object without agent",
			"primary: a\ncomplexity:\n  simple:\n    model: m\nagents:\n  a:\n    command: a\n",
			"missing an agent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !IsConfigError(err) {
				t.Errorf("err %T is not a config error", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(t.TempDir())
	if err == nil || !IsConfigError(err) {
		t.Fatalf("err = %v, want config error", err)
	}
	if !strings.Contains(err.Error(), "fuel init") {
		t.Errorf("missing-config error should point at fuel init: %q", err)
	}
}

func TestWriteExample(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".fuel")

	path, err := WriteExample(dir)
	if err != nil {
		t.Fatalf("WriteExample: %v", err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	if cfg.Primary == "" || len(cfg.Agents) == 0 {
		t.Error("example config is incomplete")
	}

	if _, err := WriteExample(dir); err == nil {
		t.Error("second WriteExample must refuse to overwrite")
	}
}
