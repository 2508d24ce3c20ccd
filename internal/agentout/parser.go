// Package agentout parses the line-delimited event stream produced by
// agent processes. Agents emit one JSON object per line; the parser
// buffers partial lines between reads and never fails on malformed
// input, so a chatty or broken agent cannot wedge the supervisor.
package agentout

import (
	"bytes"
	"encoding/json"
	"strings"
)

// EventKind classifies a parsed event.
type EventKind string

const (
	// EventText is an assistant message's first text content item.
	EventText EventKind = "text"
	// EventToolStart marks the beginning of a tool invocation.
	EventToolStart EventKind = "tool_start"
	// EventToolProgress is an in-flight update for a tool invocation.
	EventToolProgress EventKind = "tool_progress"
	// EventOpaque carries a line of a type the parser doesn't interpret.
	EventOpaque EventKind = "opaque"
)

// Event is one structured event extracted from the agent stream.
type Event struct {
	// Kind classifies the event.
	Kind EventKind
	// Text holds the assistant text for EventText.
	Text string
	// Tool is the canonical tool name for tool events.
	Tool string
	// Input is the tool's key input (file path, command, pattern), if any.
	Input string
	// Type is the raw type field from the line.
	Type string
	// Raw is the original line for EventOpaque.
	Raw string
}

// streamLine is the sparse parse target for one agent output line.
// Only the fields the supervisor cares about are declared; everything
// else passes through untouched.
type streamLine struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	Message struct {
		Content []contentItem `json:"content"`
	} `json:"message"`
	ToolCall map[string]json.RawMessage `json:"tool_call"`
}

// contentItem is one entry of an assistant message's content array.
type contentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Parser is a restartable streaming parser over the agent's byte stream.
// Feed may be called with arbitrary chunk boundaries; a trailing partial
// line is buffered until its newline arrives.
type Parser struct {
	buf bytes.Buffer
}

// NewParser creates an empty Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Feed appends data to the parser's buffer and returns the events for
// every complete newline-terminated line now available.
func (p *Parser) Feed(data []byte) []Event {
	p.buf.Write(data)

	var events []Event
	for {
		raw := p.buf.Bytes()
		idx := bytes.IndexByte(raw, '\n')
		if idx < 0 {
			return events
		}
		line := make([]byte, idx)
		copy(line, raw[:idx])
		p.buf.Next(idx + 1)

		if ev, ok := ParseLine(line); ok {
			events = append(events, ev)
		}
	}
}

// Pending returns the number of buffered bytes awaiting a newline.
func (p *Parser) Pending() int {
	return p.buf.Len()
}

// ParseLine parses a single complete line into an event. Blank lines
// and lines that are not JSON objects are skipped.
func ParseLine(line []byte) (Event, bool) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return Event{}, false
	}

	var sl streamLine
	if err := json.Unmarshal(trimmed, &sl); err != nil {
		return Event{}, false
	}

	switch sl.Type {
	case "assistant":
		for _, item := range sl.Message.Content {
			if item.Type == "text" {
				return Event{Kind: EventText, Type: sl.Type, Text: item.Text}, true
			}
		}
		return Event{Kind: EventOpaque, Type: sl.Type, Raw: string(trimmed)}, true

	case "tool_call":
		key, input := toolCallKey(sl.ToolCall)
		kind := EventToolStart
		if sl.Subtype == "progress" {
			kind = EventToolProgress
		}
		return Event{Kind: kind, Type: sl.Type, Tool: CanonicalToolName(key), Input: input}, true

	default:
		return Event{Kind: EventOpaque, Type: sl.Type, Raw: string(trimmed)}, true
	}
}

// toolCallKey picks the tool-call key from the tool_call object and
// extracts the most useful input field for an at-a-glance summary.
func toolCallKey(tc map[string]json.RawMessage) (key, input string) {
	for k, raw := range tc {
		key = k
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return key, ""
		}
		if args, ok := fields["args"]; ok {
			var nested map[string]json.RawMessage
			if json.Unmarshal(args, &nested) == nil {
				fields = nested
			}
		}
		for _, f := range []string{"path", "filePath", "file_path", "command", "cmd", "pattern", "query", "url"} {
			if raw, ok := fields[f]; ok {
				var s string
				if json.Unmarshal(raw, &s) == nil && s != "" {
					return key, s
				}
			}
		}
		return key, ""
	}
	return "", ""
}

// canonicalNames maps tool-call keys to display names where the
// mechanical derivation would be wrong.
var canonicalNames = map[string]string{
	"shellToolCall":     "Bash",
	"bashToolCall":      "Bash",
	"readToolCall":      "Read",
	"writeToolCall":     "Write",
	"editToolCall":      "Edit",
	"grepToolCall":      "Grep",
	"globToolCall":      "Glob",
	"lsToolCall":        "LS",
	"webFetchToolCall":  "WebFetch",
	"webSearchToolCall": "WebSearch",
	"todoToolCall":      "Todo",
}

// CanonicalToolName derives a display name from a tool-call key.
// Known keys use the table above; unknown keys drop the "ToolCall"
// suffix and upper-case the first letter, so "fooBarToolCall" renders
// as "FooBar".
func CanonicalToolName(key string) string {
	if key == "" {
		return ""
	}
	if name, ok := canonicalNames[key]; ok {
		return name
	}
	name := strings.TrimSuffix(key, "ToolCall")
	if name == "" {
		return key
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
