// Package ipc implements the consume loop's TCP fan-out: a line-framed
// JSON protocol between the daemon and any number of observer or
// operator clients.
package ipc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Message kinds exchanged over the wire.
const (
	// KindSnapshot carries the daemon's current task/agent state.
	KindSnapshot = "snapshot"
	// KindPause and KindResume toggle spawning without stopping the loop.
	KindPause  = "pause"
	KindResume = "resume"
	// KindRetry asks the daemon to force-retry a failed-stuck task.
	KindRetry = "retry"
	// KindSubscribe is sent by observer clients on connect.
	KindSubscribe = "subscribe"
	// Per-event kinds emitted alongside snapshots.
	KindTaskStarted   = "task_started"
	KindTaskCompleted = "task_completed"
	KindTaskFailed    = "task_failed"
	KindAgentBackoff  = "agent_backoff"
	KindShutdown      = "shutdown"
	// KindError marks an inbound line that failed to decode.
	KindError = "error"
)

// Message is one line on the wire. Payload is left raw so each kind
// can carry its own shape.
type Message struct {
	Kind     string          `json:"kind"`
	TS       time.Time       `json:"ts,omitempty"`
	TaskID   string          `json:"task_id,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	ClientID string          `json:"client_id,omitempty"`
	Raw      string          `json:"raw,omitempty"`
}

// NewMessage builds a timestamped message of the given kind.
func NewMessage(kind string) Message {
	return Message{Kind: kind, TS: time.Now().UTC()}
}

// NewSnapshot wraps v as a snapshot message.
func NewSnapshot(v any) (Message, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	m := NewMessage(KindSnapshot)
	m.Payload = payload
	return m, nil
}

// Encode renders the message as a single \n-terminated line. JSON
// string escaping guarantees no embedded newline survives in the
// payload, so the line framing cannot be broken by field values.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	if bytes.ContainsRune(data, '\n') {
		return nil, fmt.Errorf("encoded message contains a newline")
	}
	return append(data, '\n'), nil
}

// knownKinds is the set of kinds valid on the wire, in either
// direction.
var knownKinds = map[string]bool{
	KindSnapshot:      true,
	KindPause:         true,
	KindResume:        true,
	KindRetry:         true,
	KindSubscribe:     true,
	KindTaskStarted:   true,
	KindTaskCompleted: true,
	KindTaskFailed:    true,
	KindAgentBackoff:  true,
	KindShutdown:      true,
	KindError:         true,
}

// Decode parses one line into a Message. A line that fails to decode,
// or that carries an unknown kind, becomes an error-kind message with
// the raw bytes; the connection stays usable.
func Decode(line []byte, clientID string) Message {
	line = bytes.TrimSpace(line)
	var m Message
	if err := json.Unmarshal(line, &m); err != nil || !knownKinds[m.Kind] {
		return Message{Kind: KindError, ClientID: clientID, Raw: string(line)}
	}
	m.ClientID = clientID
	return m
}
