// Package health tracks per-agent consecutive failures and gates agent
// availability with exponential backoff. The tracker is process-local
// and rebuilt empty on restart: after a supervisor crash the correct
// behavior is an optimistic retry.
package health

import (
	"sync"
	"time"

	"github.com/fuelsh/fuel/internal/backoff"
)

// AgentHealth is the in-memory record for one agent.
type AgentHealth struct {
	// ConsecutiveFailures counts failures since the last success.
	ConsecutiveFailures int
	// LastFailureAt is when the most recent failure was recorded.
	LastFailureAt time.Time
	// NextAvailableAt is the earliest time the agent may be scheduled again.
	NextAvailableAt time.Time
}

// Tracker maintains AgentHealth records keyed by agent name.
type Tracker struct {
	mu     sync.RWMutex
	agents map[string]*AgentHealth
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{agents: make(map[string]*AgentHealth)}
}

// RecordSuccess resets the agent's failure count and clears its backoff.
func (t *Tracker) RecordSuccess(agent string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.agents, agent)
}

// RecordFailure increments the agent's consecutive-failure count and
// pushes its next-available time out by the backoff delay.
func (t *Tracker) RecordFailure(agent string) {
	t.recordFailureAt(agent, time.Now())
}

func (t *Tracker) recordFailureAt(agent string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.agents[agent]
	if !ok {
		h = &AgentHealth{}
		t.agents[agent] = h
	}
	h.ConsecutiveFailures++
	h.LastFailureAt = now
	h.NextAvailableAt = now.Add(backoff.Delay(h.ConsecutiveFailures - 1))
}

// IsAvailable reports whether the agent may be scheduled at the given time.
func (t *Tracker) IsAvailable(agent string, now time.Time) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	h, ok := t.agents[agent]
	if !ok {
		return true
	}
	return !h.NextAvailableAt.After(now)
}

// BackoffRemaining returns how long until the agent becomes available,
// or zero if it already is.
func (t *Tracker) BackoffRemaining(agent string, now time.Time) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	h, ok := t.agents[agent]
	if !ok {
		return 0
	}
	remaining := h.NextAvailableAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Failures returns the agent's current consecutive-failure count.
func (t *Tracker) Failures(agent string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	h, ok := t.agents[agent]
	if !ok {
		return 0
	}
	return h.ConsecutiveFailures
}

// Snapshot returns a copy of every agent's health record.
func (t *Tracker) Snapshot() map[string]AgentHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]AgentHealth, len(t.agents))
	for name, h := range t.agents {
		out[name] = *h
	}
	return out
}
