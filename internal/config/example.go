package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// exampleConfig is what `fuel init` writes when no config exists.
var exampleConfig = map[string]any{
	"primary": "claude",
	"review":  "claude",
	"complexity": map[string]any{
		"trivial":  "claude",
		"simple":   "claude",
		"moderate": map[string]any{"agent": "claude", "model": "sonnet"},
		"complex":  map[string]any{"agent": "claude", "model": "opus"},
	},
	"agents": map[string]any{
		"claude": map[string]any{
			"command":        "claude",
			"prompt_args":    []string{"-p"},
			"args":           []string{"--output-format", "stream-json", "--verbose"},
			"resume_args":    []string{"--resume"},
			"max_concurrent": DefaultMaxConcurrent,
			"max_attempts":   DefaultMaxAttempts,
			"max_retries":    DefaultMaxRetries,
		},
	},
	"consume_port": DefaultConsumePort,
}

// WriteExample writes a starter config to <dir>/config.yaml. It refuses
// to overwrite an existing file.
func WriteExample(dir string) (string, error) {
	path := Path(dir)
	if _, err := os.Stat(path); err == nil {
		return path, errf("config already exists at %s", path)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create state directory: %w", err)
	}

	data, err := yaml.Marshal(exampleConfig)
	if err != nil {
		return "", fmt.Errorf("marshal example config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
