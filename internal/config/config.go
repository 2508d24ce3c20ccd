// Package config handles loading and validation of the orchestrator
// configuration at .fuel/config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/viper"

	"github.com/fuelsh/fuel/pkg/models"
)

// Defaults applied per agent when the config omits a field.
const (
	DefaultMaxConcurrent = 2
	DefaultMaxAttempts   = 3
	DefaultMaxRetries    = 5
	DefaultConsumePort   = 4711
	DefaultConsumeBind   = "127.0.0.1"
)

// Error indicates missing or malformed configuration.
type Error struct {
	Message string
}

func (e *Error) Error() string { return "config error: " + e.Message }

func errf(format string, args ...any) error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

// Config is the full orchestrator configuration.
type Config struct {
	// Primary is the default agent for orchestration.
	Primary string `mapstructure:"primary"`
	// Review is the agent for review tasks; defaults to Primary.
	Review string `mapstructure:"review"`
	// Complexity maps each complexity level to an agent assignment.
	Complexity map[string]ComplexityTarget `mapstructure:"-"`
	// Agents defines every runnable agent by name.
	Agents map[string]AgentConfig `mapstructure:"agents"`
	// ConsumePort is the IPC listen port for the consume loop.
	ConsumePort int `mapstructure:"consume_port"`
	// ConsumeBind is the IPC listen address. Defaults to loopback;
	// set explicitly to expose the port beyond the local host.
	ConsumeBind string `mapstructure:"consume_bind"`
}

// ComplexityTarget assigns an agent, and optionally a model and extra
// args, to a complexity level.
type ComplexityTarget struct {
	Agent string   `mapstructure:"agent"`
	Model string   `mapstructure:"model"`
	Args  []string `mapstructure:"args"`
}

// AgentConfig describes how to spawn one agent.
type AgentConfig struct {
	Command       string            `mapstructure:"command"`
	PromptArgs    []string          `mapstructure:"prompt_args"`
	Args          []string          `mapstructure:"args"`
	Env           map[string]string `mapstructure:"env"`
	Model         string            `mapstructure:"model"`
	ResumeArgs    []string          `mapstructure:"resume_args"`
	MaxConcurrent int               `mapstructure:"max_concurrent"`
	MaxAttempts   int               `mapstructure:"max_attempts"`
	MaxRetries    int               `mapstructure:"max_retries"`
}

// Path returns the config file path under the given state directory.
func Path(dir string) string {
	return filepath.Join(dir, "config.yaml")
}

// Load reads and validates the config at <dir>/config.yaml.
func Load(dir string) (*Config, error) {
	return LoadFile(Path(dir))
}

// LoadFile reads and validates the config at an explicit path.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errf("config file not found at %s (run 'fuel init' first)", path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, errf("reading %s: %v", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errf("unmarshaling %s: %v", path, err)
	}

	complexity, err := parseComplexity(v.Get("complexity"))
	if err != nil {
		return nil, err
	}
	cfg.Complexity = complexity

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseComplexity normalizes the complexity mapping, whose values may
// be a bare agent name or an {agent, model, args} object.
func parseComplexity(raw any) (map[string]ComplexityTarget, error) {
	out := make(map[string]ComplexityTarget)
	if raw == nil {
		return out, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, errf("complexity must be a mapping")
	}
	for key, val := range m {
		if !models.Complexity(key).Valid() {
			return nil, errf("unknown complexity level %q", key)
		}
		switch v := val.(type) {
		case string:
			out[key] = ComplexityTarget{Agent: v}
		case map[string]any:
			target := ComplexityTarget{}
			if agent, ok := v["agent"].(string); ok {
				target.Agent = agent
			}
			if model, ok := v["model"].(string); ok {
				target.Model = model
			}
			if args, ok := v["args"].([]any); ok {
				for _, a := range args {
					s, ok := a.(string)
					if !ok {
						return nil, errf("complexity.%s.args must be a list of strings", key)
					}
					target.Args = append(target.Args, s)
				}
			}
			if target.Agent == "" {
				return nil, errf("complexity.%s is missing an agent", key)
			}
			out[key] = target
		default:
			return nil, errf("complexity.%s must be an agent name or a mapping", key)
		}
	}
	return out, nil
}

func (c *Config) applyDefaults() {
	if c.Review == "" {
		c.Review = c.Primary
	}
	if c.ConsumePort == 0 {
		c.ConsumePort = DefaultConsumePort
	}
	if c.ConsumeBind == "" {
		c.ConsumeBind = DefaultConsumeBind
	}
	for name, agent := range c.Agents {
		if agent.PromptArgs == nil {
			agent.PromptArgs = []string{"-p"}
		}
		if agent.Args == nil {
			agent.Args = []string{}
		}
		if agent.Env == nil {
			agent.Env = map[string]string{}
		}
		if agent.ResumeArgs == nil {
			agent.ResumeArgs = []string{}
		}
		if agent.MaxConcurrent == 0 {
			agent.MaxConcurrent = DefaultMaxConcurrent
		}
		if agent.MaxAttempts == 0 {
			agent.MaxAttempts = DefaultMaxAttempts
		}
		if agent.MaxRetries == 0 {
			agent.MaxRetries = DefaultMaxRetries
		}
		c.Agents[name] = agent
	}
}

// Validate checks required fields and cross-references.
func (c *Config) Validate() error {
	if c.Primary == "" {
		return errf("primary agent is required")
	}
	if len(c.Agents) == 0 {
		return errf("at least one agent must be defined")
	}
	for name, agent := range c.Agents {
		if agent.Command == "" {
			return errf("agents.%s.command is required", name)
		}
		if agent.MaxConcurrent < 1 {
			return errf("agents.%s.max_concurrent must be at least 1", name)
		}
	}
	if _, ok := c.Agents[c.Primary]; !ok {
		return errf("primary references undefined agent %q", c.Primary)
	}
	if _, ok := c.Agents[c.Review]; !ok {
		return errf("review references undefined agent %q", c.Review)
	}
	for _, key := range sortedKeys(c.Complexity) {
		target := c.Complexity[key]
		if _, ok := c.Agents[target.Agent]; !ok {
			return errf("complexity.%s references undefined agent %q", key, target.Agent)
		}
	}
	return nil
}

// ResolveAgent picks the agent, model, and extra args for a task of the
// given complexity, falling back to the primary agent.
func (c *Config) ResolveAgent(complexity models.Complexity) (name string, agent AgentConfig, model string, args []string, err error) {
	target, ok := c.Complexity[string(complexity)]
	if !ok {
		target = ComplexityTarget{Agent: c.Primary}
	}
	agent, ok = c.Agents[target.Agent]
	if !ok {
		return "", AgentConfig{}, "", nil, errf("complexity %s references undefined agent %q", complexity, target.Agent)
	}
	model = target.Model
	if model == "" {
		model = agent.Model
	}
	return target.Agent, agent, model, target.Args, nil
}

// AgentNames returns the defined agent names, sorted.
func (c *Config) AgentNames() []string {
	return sortedKeys(c.Agents)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
