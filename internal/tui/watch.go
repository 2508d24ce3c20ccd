// Package tui provides the live watch view over a running consume
// loop, fed by the daemon's IPC snapshot broadcasts.
package tui

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/fuelsh/fuel/internal/ipc"
	"github.com/fuelsh/fuel/internal/scheduler"
)

// messageMsg wraps one decoded IPC message.
type messageMsg ipc.Message

// connectedMsg carries a freshly dialed client.
type connectedMsg struct{ client *ipc.Client }

// disconnectedMsg reports a lost or failed connection.
type disconnectedMsg struct{ err error }

// retryMsg triggers a reconnect attempt.
type retryMsg struct{}

// eventLine is one entry in the recent-events pane.
type eventLine struct {
	at   time.Time
	text string
}

const maxEventLines = 8

// Model is the bubbletea model for `fuel watch`.
type Model struct {
	addr   string
	client *ipc.Client

	spinner   spinner.Model
	snap      *scheduler.Snapshot
	events    []eventLine
	connected bool
	lastErr   error
	quitting  bool
	width     int
	height    int
}

// New creates a watch model that will connect to addr.
func New(addr string) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle
	return &Model{addr: addr, spinner: sp}
}

// Run starts the watch TUI and blocks until it exits.
func Run(addr string) error {
	_, err := tea.NewProgram(New(addr), tea.WithAltScreen()).Run()
	return err
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, dial(m.addr))
}

func dial(addr string) tea.Cmd {
	return func() tea.Msg {
		client, err := ipc.Dial(addr, 2*time.Second)
		if err != nil {
			return disconnectedMsg{err: err}
		}
		if err := client.Send(ipc.NewMessage(ipc.KindSubscribe)); err != nil {
			client.Close()
			return disconnectedMsg{err: err}
		}
		return connectedMsg{client: client}
	}
}

func listen(client *ipc.Client) tea.Cmd {
	return func() tea.Msg {
		msg, err := client.Next()
		if err != nil {
			return disconnectedMsg{err: err}
		}
		return messageMsg(msg)
	}
}

func retryLater() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return retryMsg{} })
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			if m.client != nil {
				m.client.Close()
			}
			return m, tea.Quit
		case "p":
			return m, m.send(ipc.KindPause)
		case "r":
			return m, m.send(ipc.KindResume)
		}
		return m, nil

	case connectedMsg:
		m.client = msg.client
		m.connected = true
		m.lastErr = nil
		return m, listen(m.client)

	case disconnectedMsg:
		m.connected = false
		m.client = nil
		m.lastErr = msg.err
		if m.quitting {
			return m, nil
		}
		return m, retryLater()

	case retryMsg:
		return m, dial(m.addr)

	case messageMsg:
		m.apply(ipc.Message(msg))
		if m.client == nil {
			return m, nil
		}
		return m, listen(m.client)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) send(kind string) tea.Cmd {
	client := m.client
	if client == nil {
		return nil
	}
	return func() tea.Msg {
		if err := client.Send(ipc.NewMessage(kind)); err != nil {
			return disconnectedMsg{err: err}
		}
		return nil
	}
}

func (m *Model) apply(msg ipc.Message) {
	switch msg.Kind {
	case ipc.KindSnapshot:
		var snap scheduler.Snapshot
		if err := json.Unmarshal(msg.Payload, &snap); err == nil {
			m.snap = &snap
		}
	case ipc.KindTaskStarted:
		m.pushEvent(fmt.Sprintf("started   %s", msg.TaskID))
	case ipc.KindTaskCompleted:
		m.pushEvent(fmt.Sprintf("completed %s", msg.TaskID))
	case ipc.KindTaskFailed:
		m.pushEvent(fmt.Sprintf("failed    %s", msg.TaskID))
	case ipc.KindAgentBackoff:
		var payload struct {
			Agent   string `json:"agent"`
			Seconds int    `json:"seconds"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err == nil {
			m.pushEvent(fmt.Sprintf("backoff   %s for %ds", payload.Agent, payload.Seconds))
		}
	case ipc.KindShutdown:
		m.pushEvent("daemon shutting down")
	}
}

func (m *Model) pushEvent(text string) {
	m.events = append(m.events, eventLine{at: time.Now(), text: text})
	if len(m.events) > maxEventLines {
		m.events = m.events[len(m.events)-maxEventLines:]
	}
}
