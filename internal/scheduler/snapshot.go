package scheduler

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/fuelsh/fuel/internal/ipc"
	"github.com/fuelsh/fuel/internal/task"
)

// Snapshot is the loop state broadcast to IPC observers every tick.
type Snapshot struct {
	Paused       bool           `json:"paused"`
	Ready        int            `json:"ready"`
	Running      []RunningAgent `json:"running"`
	StatusCounts map[string]int `json:"status_counts"`
	// AgentBackoff maps agent name to remaining backoff seconds.
	AgentBackoff map[string]int `json:"agent_backoff,omitempty"`
}

// RunningAgent describes one live child.
type RunningAgent struct {
	TaskID     string  `json:"task_id"`
	Agent      string  `json:"agent"`
	Model      string  `json:"model,omitempty"`
	PID        int     `json:"pid"`
	RunningFor float64 `json:"running_for_seconds"`
	// Activity is the tool or message the agent last reported.
	Activity string `json:"activity,omitempty"`
}

func (s *Scheduler) buildSnapshot() Snapshot {
	snap := Snapshot{
		Paused:       s.paused,
		StatusCounts: map[string]int{},
		AgentBackoff: map[string]int{},
	}

	now := time.Now()
	for _, p := range s.sup.Active() {
		snap.Running = append(snap.Running, RunningAgent{
			TaskID:     p.TaskID,
			Agent:      p.Agent,
			Model:      p.Model,
			PID:        p.PID,
			RunningFor: now.Sub(p.StartedAt).Seconds(),
			Activity:   p.Activity(),
		})
	}
	sort.Slice(snap.Running, func(i, j int) bool {
		return snap.Running[i].TaskID < snap.Running[j].TaskID
	})

	if tasks, err := s.tasks.All(); err == nil {
		for _, t := range tasks {
			snap.StatusCounts[string(t.Status)]++
		}
		snap.Ready = len(task.ReadyOf(tasks))
	}

	for agent, h := range s.health.Snapshot() {
		if h.NextAvailableAt.After(now) {
			snap.AgentBackoff[agent] = int(h.NextAvailableAt.Sub(now).Seconds())
		}
	}
	if len(snap.AgentBackoff) == 0 {
		snap.AgentBackoff = nil
	}
	return snap
}

func (s *Scheduler) broadcastSnapshot() {
	if s.server.ClientCount() == 0 {
		return
	}
	m, err := ipc.NewSnapshot(s.buildSnapshot())
	if err != nil {
		s.log.Warn("snapshot encode failed", "error", err)
		return
	}
	s.server.Broadcast(m)
}

func backoffPayload(agent string, seconds int) ([]byte, error) {
	return json.Marshal(map[string]any{
		"agent":   agent,
		"seconds": seconds,
	})
}
