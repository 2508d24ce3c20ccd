// Package supervisor owns the set of live agent processes: spawning
// them from task + config, capturing their output, classifying their
// exits, and tearing them down on shutdown.
package supervisor

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fuelsh/fuel/internal/agentout"
	"github.com/fuelsh/fuel/internal/config"
	"github.com/fuelsh/fuel/internal/health"
	"github.com/fuelsh/fuel/pkg/models"
)

const (
	// shutdownGrace is how long children get after the termination
	// signal before being force-killed.
	shutdownGrace = 30 * time.Second
	// shutdownLogEvery paces progress logging during shutdown.
	shutdownLogEvery = 5 * time.Second
	// maxOutputBuffer caps per-process captured output held in memory.
	// The on-disk logs keep everything.
	maxOutputBuffer = 256 << 10
)

// SpawnKind tags a SpawnResult.
type SpawnKind int

const (
	SpawnSuccess SpawnKind = iota
	SpawnAgentInBackoff
	SpawnAtCapacity
	SpawnFailed
	SpawnConfigError
)

// SpawnResult is the outcome of one spawn attempt.
type SpawnResult struct {
	Kind           SpawnKind
	Process        *Process
	Agent          string
	BackoffSeconds int
	TaskID         string
	Err            string
}

// SpawnOptions tweak a single spawn.
type SpawnOptions struct {
	// AgentOverride bypasses complexity resolution.
	AgentOverride string
	// ResumeSessionID, when set, appends the agent's resume_args and
	// the session id so the agent picks up its previous conversation.
	ResumeSessionID string
}

// Process is one live agent child.
type Process struct {
	TaskID    string
	Agent     string
	Model     string
	PID       int
	StartedAt time.Time

	handle     Handle
	stdoutPath string
	stderrPath string
	stdoutOff  int64
	stderrOff  int64
	output     []byte
	sessionID  string
	parser     *agentout.Parser
	activity   string
}

// SessionID returns the session id seen in output so far, or "".
func (p *Process) SessionID() string { return p.sessionID }

// Activity summarizes what the agent last reported doing: the tool it
// invoked, or the start of its latest message.
func (p *Process) Activity() string { return p.activity }

// Supervisor tracks live processes and per-agent counts.
type Supervisor struct {
	cfg     *config.Config
	health  *health.Tracker
	starter Starter
	dir     string
	log     *slog.Logger

	procs     map[string]*Process
	liveCount map[string]int
}

// New creates a supervisor writing process logs under
// <dir>/processes/<task id>/.
func New(cfg *config.Config, tracker *health.Tracker, starter Starter, dir string, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{
		cfg:       cfg,
		health:    tracker,
		starter:   starter,
		dir:       dir,
		log:       log,
		procs:     make(map[string]*Process),
		liveCount: make(map[string]int),
	}
}

// CanSpawn reports whether the agent is below its concurrency cap.
func (s *Supervisor) CanSpawn(agent string) bool {
	a, ok := s.cfg.Agents[agent]
	if !ok {
		return false
	}
	return s.liveCount[agent] < a.MaxConcurrent
}

// LiveCount returns the number of live processes for the agent.
func (s *Supervisor) LiveCount(agent string) int { return s.liveCount[agent] }

// Active returns the live processes, keyed by task id.
func (s *Supervisor) Active() map[string]*Process {
	out := make(map[string]*Process, len(s.procs))
	for k, v := range s.procs {
		out[k] = v
	}
	return out
}

// ActivePIDs returns the pids of live children. The scheduler uses
// these to exclude its own spawns from stuck-task detection.
func (s *Supervisor) ActivePIDs() map[int]bool {
	out := make(map[int]bool, len(s.procs))
	for _, p := range s.procs {
		out[p.PID] = true
	}
	return out
}

// SpawnForTask resolves the agent for the task, checks backoff and
// capacity, and launches the process.
func (s *Supervisor) SpawnForTask(task *models.Task, prompt, cwd string, opts SpawnOptions) SpawnResult {
	name, agent, model, extraArgs, err := s.resolveAgent(task, opts.AgentOverride)
	if err != nil {
		return SpawnResult{Kind: SpawnConfigError, TaskID: task.ID, Err: err.Error()}
	}

	now := time.Now()
	if !s.health.IsAvailable(name, now) {
		return SpawnResult{
			Kind:           SpawnAgentInBackoff,
			Agent:          name,
			TaskID:         task.ID,
			BackoffSeconds: int(s.health.BackoffRemaining(name, now).Seconds()),
		}
	}
	if !s.CanSpawn(name) {
		return SpawnResult{Kind: SpawnAtCapacity, Agent: name, TaskID: task.ID}
	}

	argv := buildArgv(agent, prompt, model, extraArgs, opts.ResumeSessionID)
	captureDir := filepath.Join(s.dir, "processes", task.ID)
	handle, err := s.starter.Start(StartSpec{
		Argv:       argv,
		Env:        agent.Env,
		Dir:        cwd,
		CaptureDir: captureDir,
	})
	if err != nil {
		s.log.Warn("spawn failed", "task", task.ID, "agent", name, "error", err)
		return SpawnResult{Kind: SpawnFailed, Agent: name, TaskID: task.ID, Err: err.Error()}
	}

	p := &Process{
		TaskID:     task.ID,
		Agent:      name,
		Model:      model,
		PID:        handle.PID(),
		StartedAt:  now,
		handle:     handle,
		stdoutPath: filepath.Join(captureDir, "stdout.log"),
		stderrPath: filepath.Join(captureDir, "stderr.log"),
		parser:     agentout.NewParser(),
	}
	s.procs[task.ID] = p
	s.liveCount[name]++
	s.log.Info("spawned agent", "task", task.ID, "agent", name, "model", model, "pid", p.PID)
	return SpawnResult{Kind: SpawnSuccess, Process: p, Agent: name, TaskID: task.ID}
}

func (s *Supervisor) resolveAgent(task *models.Task, override string) (string, config.AgentConfig, string, []string, error) {
	if override != "" {
		agent, ok := s.cfg.Agents[override]
		if !ok {
			return "", config.AgentConfig{}, "", nil, &config.Error{Message: "undefined agent " + override}
		}
		return override, agent, agent.Model, nil, nil
	}
	return s.cfg.ResolveAgent(task.Complexity)
}

// buildArgv assembles the child command line:
// binary, prompt_args..., prompt, --model <model>, args..., and when
// resuming, resume_args... <session id>.
func buildArgv(agent config.AgentConfig, prompt, model string, extraArgs []string, resumeSession string) []string {
	argv := []string{agent.Command}
	argv = append(argv, agent.PromptArgs...)
	argv = append(argv, prompt)
	if model != "" {
		argv = append(argv, "--model", model)
	}
	argv = append(argv, agent.Args...)
	argv = append(argv, extraArgs...)
	if resumeSession != "" && len(agent.ResumeArgs) > 0 {
		argv = append(argv, agent.ResumeArgs...)
		argv = append(argv, resumeSession)
	}
	return argv
}

// Poll reads new output from every live process and returns a
// completion for each one that has exited. Completed processes are
// unregistered and their agent counters decremented.
func (s *Supervisor) Poll() []Completion {
	var completions []Completion
	for taskID, p := range s.procs {
		s.readNewOutput(p)

		code, done := p.handle.Exited()
		if !done {
			continue
		}
		completions = append(completions, s.retire(taskID, p, code))
	}
	return completions
}

// retire builds the completion for an exited process and unregisters
// it. A final read catches output flushed at exit.
func (s *Supervisor) retire(taskID string, p *Process, code int) Completion {
	s.readNewOutput(p)

	output := string(p.output)
	c := Completion{
		TaskID:    taskID,
		Agent:     p.Agent,
		ExitCode:  code,
		Duration:  time.Since(p.StartedAt),
		SessionID: p.sessionID,
		Output:    output,
		Outcome:   classifyExit(code, output),
	}

	delete(s.procs, taskID)
	if s.liveCount[p.Agent] > 0 {
		s.liveCount[p.Agent]--
	}
	s.log.Info("agent exited",
		"task", taskID, "agent", p.Agent, "exit", code,
		"outcome", string(c.Outcome), "duration", c.Duration.Round(time.Second))
	return c
}

// readNewOutput appends newly written log bytes to the in-memory
// buffer and scans them for a session id and stream events. Read
// errors are ignored; capture is best-effort.
func (s *Supervisor) readNewOutput(p *Process) {
	p.stdoutOff += s.readFrom(p, p.stdoutPath, p.stdoutOff, true)
	p.stderrOff += s.readFrom(p, p.stderrPath, p.stderrOff, false)
}

func (s *Supervisor) readFrom(p *Process, path string, offset int64, parse bool) int64 {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0
	}
	data, _ := io.ReadAll(f)
	if len(data) == 0 {
		return 0
	}

	p.output = append(p.output, data...)
	if len(p.output) > maxOutputBuffer {
		p.output = p.output[len(p.output)-maxOutputBuffer:]
	}
	if p.sessionID == "" {
		p.sessionID = extractSessionID(string(p.output))
	}
	if parse {
		for _, ev := range p.parser.Feed(data) {
			switch ev.Kind {
			case agentout.EventToolStart:
				p.activity = ev.Tool
				if ev.Input != "" {
					p.activity += " " + ev.Input
				}
				s.log.Debug("agent tool call", "task", p.TaskID, "tool", ev.Tool, "input", ev.Input)
			case agentout.EventText:
				p.activity = firstLine(ev.Text)
			}
		}
	}
	return int64(len(data))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const limit = 80
	if len(s) > limit {
		s = s[:limit]
	}
	return s
}

// Shutdown signals every live child, waits up to the grace period, and
// force-kills the remainder. Receiving on force during the wait skips
// straight to force-kill; Shutdown then reports forced=true so the
// caller can exit 130. Every child yields a completion so its run row
// can be closed out.
func (s *Supervisor) Shutdown(force <-chan struct{}) (completions []Completion, forced bool) {
	if len(s.procs) == 0 {
		return nil, false
	}

	s.log.Info("shutting down", "live", len(s.procs))
	for _, p := range s.procs {
		if err := p.handle.Terminate(); err != nil {
			s.log.Debug("terminate failed", "task", p.TaskID, "pid", p.PID, "error", err)
		}
	}

	deadline := time.Now().Add(shutdownGrace)
	nextLog := time.Now().Add(shutdownLogEvery)
	for time.Now().Before(deadline) {
		completions = append(completions, s.reapExited()...)
		if len(s.procs) == 0 {
			s.log.Info("all agents exited cleanly")
			return completions, false
		}
		select {
		case <-force:
			return append(completions, s.killAll()...), true
		case <-time.After(100 * time.Millisecond):
		}
		if time.Now().After(nextLog) {
			s.log.Info("waiting for agents to exit", "remaining", len(s.procs))
			nextLog = time.Now().Add(shutdownLogEvery)
		}
	}

	return append(completions, s.killAll()...), false
}

func (s *Supervisor) reapExited() []Completion {
	var completions []Completion
	for taskID, p := range s.procs {
		if code, done := p.handle.Exited(); done {
			completions = append(completions, s.retire(taskID, p, code))
		}
	}
	return completions
}

func (s *Supervisor) killAll() []Completion {
	var completions []Completion
	for taskID, p := range s.procs {
		s.log.Warn("force-killing agent", "task", taskID, "pid", p.PID)
		p.handle.Kill()
		code, done := p.handle.Exited()
		if !done {
			code = -1
		}
		completions = append(completions, s.retire(taskID, p, code))
	}
	return completions
}
