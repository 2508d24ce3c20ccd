// Package scheduler runs the consume loop: a single-threaded tick that
// drains IPC commands, retires finished agent processes, spawns agents
// for ready tasks, and broadcasts state to observers.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fuelsh/fuel/internal/config"
	"github.com/fuelsh/fuel/internal/epic"
	"github.com/fuelsh/fuel/internal/health"
	"github.com/fuelsh/fuel/internal/ipc"
	"github.com/fuelsh/fuel/internal/prompttmpl"
	"github.com/fuelsh/fuel/internal/state"
	"github.com/fuelsh/fuel/internal/supervisor"
	"github.com/fuelsh/fuel/internal/task"
	"github.com/fuelsh/fuel/pkg/models"
)

// DefaultTickInterval paces the loop when nothing wakes it early.
const DefaultTickInterval = 100 * time.Millisecond

// ErrForcedShutdown is returned when a second shutdown signal arrived
// during the graceful drain. The command layer maps it to exit 130.
var ErrForcedShutdown = errors.New("shutdown forced by second signal")

// Scheduler owns all loop state. Nothing here is safe for concurrent
// use; every method runs on the loop goroutine.
type Scheduler struct {
	cfg     *config.Config
	tasks   *task.Repo
	epics   *epic.Repo
	runs    *state.Runs
	health  *health.Tracker
	sup     *supervisor.Supervisor
	server  *ipc.Server
	prompts *prompttmpl.Renderer
	log     *slog.Logger

	dir  string
	cwd  string
	tick time.Duration

	paused bool
	// spawned counts automatic spawns per task this session; an
	// operator retry resets it.
	spawned map[string]int
	// resumeSessions remembers the session id of a network-failed run
	// so the next spawn can resume the conversation.
	resumeSessions map[string]string
}

// Options configure a scheduler.
type Options struct {
	Cwd          string
	TickInterval time.Duration
}

// New wires a scheduler over already-constructed components.
func New(cfg *config.Config, tasks *task.Repo, epics *epic.Repo, runs *state.Runs,
	tracker *health.Tracker, sup *supervisor.Supervisor, server *ipc.Server,
	prompts *prompttmpl.Renderer, dir string, opts Options, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	tick := opts.TickInterval
	if tick <= 0 {
		tick = DefaultTickInterval
	}
	return &Scheduler{
		cfg:            cfg,
		tasks:          tasks,
		epics:          epics,
		runs:           runs,
		health:         tracker,
		sup:            sup,
		server:         server,
		prompts:        prompts,
		log:            log,
		dir:            dir,
		cwd:            opts.Cwd,
		tick:           tick,
		spawned:        make(map[string]int),
		resumeSessions: make(map[string]string),
	}
}

// Run drives the loop until ctx is cancelled, then drains children.
// Receiving on force during the drain skips the grace period; Run then
// returns ErrForcedShutdown.
func (s *Scheduler) Run(ctx context.Context, force <-chan struct{}) error {
	if err := s.server.Start(); err != nil {
		return err
	}
	defer s.server.Stop()

	if n, err := s.runs.CleanupOrphanedRuns(); err != nil {
		s.log.Warn("orphan sweep failed", "error", err)
	} else if n > 0 {
		s.log.Info("swept orphaned runs", "count", n)
	}

	wake := s.watchStore(ctx)

	s.log.Info("consume loop started", "addr", s.server.Addr(), "tick", s.tick)
	for {
		s.Tick()
		select {
		case <-ctx.Done():
			return s.drain(force)
		case <-wake:
		case <-time.After(s.tick):
		}
	}
}

// drain closes out every child: run rows transition running → completed
// (or failed) even for agents that exit during the shutdown grace.
func (s *Scheduler) drain(force <-chan struct{}) error {
	s.server.Broadcast(ipc.NewMessage(ipc.KindShutdown))
	s.server.Flush()
	completions, forced := s.sup.Shutdown(force)
	for _, c := range completions {
		s.handleCompletion(c)
	}
	if forced {
		return ErrForcedShutdown
	}
	return nil
}

// watchStore wakes the loop when the task store changes on disk, so
// external `fuel add` / `fuel done` invocations take effect without
// waiting out the tick interval.
func (s *Scheduler) watchStore(ctx context.Context) <-chan struct{} {
	wake := make(chan struct{}, 1)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.Debug("store watcher unavailable", "error", err)
		return wake
	}
	if err := watcher.Add(s.dir); err != nil {
		s.log.Debug("cannot watch state directory", "error", err)
		watcher.Close()
		return wake
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename) {
					select {
					case wake <- struct{}{}:
					default:
					}
				}
			case <-watcher.Errors:
			}
		}
	}()
	return wake
}

// Tick executes one pass of the loop. Completions are processed before
// spawns so freed capacity is usable in the same tick, and spawns
// follow ready() order exactly.
func (s *Scheduler) Tick() {
	s.server.Accept()
	for _, msgs := range s.server.Poll() {
		for _, m := range msgs {
			s.handleCommand(m)
		}
	}

	for _, c := range s.sup.Poll() {
		s.handleCompletion(c)
	}

	if !s.paused {
		s.spawnReady()
	}
	s.autoRetryNetworkFailures()

	s.broadcastSnapshot()
	s.server.Flush()
}

// Paused reports whether spawning is suspended.
func (s *Scheduler) Paused() bool { return s.paused }

func (s *Scheduler) handleCommand(m ipc.Message) {
	switch m.Kind {
	case ipc.KindPause:
		if !s.paused {
			s.paused = true
			s.log.Info("spawning paused", "client", m.ClientID)
		}
	case ipc.KindResume:
		if s.paused {
			s.paused = false
			s.log.Info("spawning resumed", "client", m.ClientID)
		}
	case ipc.KindRetry:
		if m.TaskID == "" {
			s.log.Warn("retry command without task id", "client", m.ClientID)
			return
		}
		t, err := s.tasks.Retry(m.TaskID, pidDead, s.sup.ActivePIDs())
		if err != nil {
			s.log.Warn("retry command failed", "task", m.TaskID, "error", err)
			return
		}
		delete(s.spawned, t.ID)
		s.log.Info("task force-retried", "task", t.ID, "client", m.ClientID)
	case ipc.KindSubscribe:
		// Observers get the next snapshot automatically.
	case ipc.KindError:
		s.log.Warn("unparseable ipc line", "client", m.ClientID, "raw", m.Raw)
	default:
		s.log.Debug("ignoring ipc message", "kind", m.Kind, "client", m.ClientID)
	}
}

func (s *Scheduler) handleCompletion(c supervisor.Completion) {
	ended := time.Now().UTC()
	patch := state.RunPatch{
		EndedAt:  &ended,
		ExitCode: &c.ExitCode,
		Output:   &c.Output,
	}
	if c.SessionID != "" {
		patch.SessionID = &c.SessionID
	}
	if err := s.runs.UpdateLatestRun(c.TaskID, patch); err != nil {
		s.log.Warn("run update failed", "task", c.TaskID, "error", err)
	}
	if _, err := s.tasks.RecordExit(c.TaskID, c.ExitCode, tail(c.Output, state.MaxRunOutputBytes)); err != nil {
		s.log.Warn("exit record failed", "task", c.TaskID, "error", err)
	}

	switch c.Outcome {
	case supervisor.OutcomeSuccess:
		s.health.RecordSuccess(c.Agent)
		delete(s.resumeSessions, c.TaskID)
		t, err := s.tasks.Done(c.TaskID, "", "")
		if err != nil {
			s.log.Warn("close failed", "task", c.TaskID, "error", err)
			break
		}
		s.log.Info("task completed", "task", t.ID, "agent", c.Agent, "duration", c.Duration.Round(time.Second))
		s.broadcastTaskEvent(ipc.KindTaskCompleted, t.ID)
		s.recomputeEpic(t)

	case supervisor.OutcomePermissionBlocked:
		delete(s.resumeSessions, c.TaskID)
		if _, err := s.tasks.MarkNeedsHuman(c.TaskID); err != nil {
			s.log.Warn("needs-human transition failed", "task", c.TaskID, "error", err)
		}
		s.log.Warn("agent blocked on permissions", "task", c.TaskID, "agent", c.Agent)
		s.broadcastTaskEvent(ipc.KindTaskFailed, c.TaskID)

	case supervisor.OutcomeNetworkError:
		s.health.RecordFailure(c.Agent)
		if _, seen := s.resumeSessions[c.TaskID]; !seen || c.SessionID != "" {
			s.resumeSessions[c.TaskID] = c.SessionID
		}
		s.log.Warn("agent hit a network error", "task", c.TaskID, "agent", c.Agent, "exit", c.ExitCode)
		s.broadcastTaskEvent(ipc.KindTaskFailed, c.TaskID)
		s.broadcastBackoff(c.Agent)

	default: // OutcomeFailed
		s.health.RecordFailure(c.Agent)
		s.log.Warn("agent failed", "task", c.TaskID, "agent", c.Agent, "exit", c.ExitCode)
		s.broadcastTaskEvent(ipc.KindTaskFailed, c.TaskID)
		s.broadcastBackoff(c.Agent)
	}
}

// recomputeEpic logs the owning epic's derived status after a member
// closes, surfacing review_pending transitions.
func (s *Scheduler) recomputeEpic(t *models.Task) {
	if t.Epic == "" {
		return
	}
	status, err := s.epics.Status(t.Epic)
	if err != nil {
		s.log.Warn("epic status recompute failed", "epic", t.Epic, "error", err)
		return
	}
	if status == models.EpicStatusReviewPending {
		s.log.Info("epic ready for review", "epic", t.Epic)
	}
}

func (s *Scheduler) spawnReady() {
	ready, err := s.tasks.Ready()
	if err != nil {
		s.log.Warn("ready query failed", "error", err)
		return
	}

	for _, t := range ready {
		name, agent, _, _, err := s.cfg.ResolveAgent(t.Complexity)
		if err != nil {
			s.log.Warn("agent resolution failed", "task", t.ID, "error", err)
			continue
		}
		if s.spawned[t.ID] >= agent.MaxAttempts {
			s.log.Debug("attempt cap reached", "task", t.ID, "attempts", s.spawned[t.ID])
			continue
		}
		now := time.Now()
		if !s.health.IsAvailable(name, now) {
			continue
		}
		if !s.sup.CanSpawn(name) {
			continue
		}

		prompt, err := s.prompts.Render(t)
		if err != nil {
			s.log.Warn("prompt render failed", "task", t.ID, "error", err)
			continue
		}

		res := s.sup.SpawnForTask(t, prompt, s.cwd, supervisor.SpawnOptions{
			ResumeSessionID: s.resumeSessions[t.ID],
		})
		switch res.Kind {
		case supervisor.SpawnSuccess:
			s.spawned[t.ID]++
			delete(s.resumeSessions, t.ID)
			if _, err := s.tasks.MarkConsumed(t.ID, res.Process.PID); err != nil {
				s.log.Warn("consume mark failed", "task", t.ID, "error", err)
			}
			if _, err := s.runs.CreateRun(t.ID, state.CreateRunData{
				Agent:     res.Agent,
				Model:     res.Process.Model,
				StartedAt: res.Process.StartedAt.UTC(),
			}); err != nil {
				s.log.Warn("run create failed", "task", t.ID, "error", err)
			}
			s.broadcastTaskEvent(ipc.KindTaskStarted, t.ID)
		case supervisor.SpawnFailed:
			s.log.Warn("spawn failed", "task", t.ID, "agent", res.Agent, "error", res.Err)
		case supervisor.SpawnConfigError:
			s.log.Warn("spawn misconfigured", "task", t.ID, "error", res.Err)
		}
	}
}

// autoRetryNetworkFailures revives failed-stuck tasks whose last run
// died on the network, once the agent's backoff clears and while the
// run count stays under the agent's retry budget. Anything past the
// budget waits for an operator.
func (s *Scheduler) autoRetryNetworkFailures() {
	for taskID := range s.resumeSessions {
		t, err := s.tasks.Find(taskID)
		if err != nil {
			delete(s.resumeSessions, taskID)
			continue
		}
		if !t.Consumed || t.ConsumedExitCode == nil || *t.ConsumedExitCode == 0 {
			continue
		}

		name, agent, _, _, err := s.cfg.ResolveAgent(t.Complexity)
		if err != nil || !s.health.IsAvailable(name, time.Now()) {
			continue
		}
		runs, err := s.runs.ListRuns(taskID, 0)
		if err != nil {
			continue
		}
		if len(runs) >= agent.MaxRetries {
			s.log.Warn("retry budget exhausted", "task", taskID, "runs", len(runs))
			delete(s.resumeSessions, taskID)
			continue
		}
		if _, err := s.tasks.Retry(taskID, pidDead, s.sup.ActivePIDs()); err != nil {
			s.log.Warn("auto-retry failed", "task", taskID, "error", err)
			delete(s.resumeSessions, taskID)
			continue
		}
		delete(s.spawned, taskID)
		s.log.Info("auto-retrying after network error", "task", taskID, "attempt", len(runs)+1)
	}
}

func (s *Scheduler) broadcastTaskEvent(kind, taskID string) {
	m := ipc.NewMessage(kind)
	m.TaskID = taskID
	s.server.Broadcast(m)
}

func (s *Scheduler) broadcastBackoff(agent string) {
	remaining := s.health.BackoffRemaining(agent, time.Now())
	if remaining <= 0 {
		return
	}
	m := ipc.NewMessage(ipc.KindAgentBackoff)
	m.Payload, _ = backoffPayload(agent, int(remaining.Seconds()))
	s.server.Broadcast(m)
}

// pidDead reports whether a recorded agent pid is gone from the system.
func pidDead(pid int) bool {
	return !supervisor.IsAlive(pid)
}

// tail keeps the last n bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
