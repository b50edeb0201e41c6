package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/chaz8081/invisa-link/internal/ble"
	"github.com/chaz8081/invisa-link/internal/ble/protocol"
)

const (
	maxLogEntries  = 200
	defaultLogRows = 12
)

// Session is the part of a GATT session the watch view drives.
type Session interface {
	State() ble.State
	Address() string
	Handles() []*ble.Handle
	Read(h *ble.Handle) error
}

type logEntry struct {
	at    time.Time
	event ble.Event
}

// Model is the Bubbletea model for the watch view.
type Model struct {
	session Session
	events  <-chan ble.Event

	// State
	state    ble.State
	address  string
	handles  []*ble.Handle
	log      []logEntry
	closed   bool
	errorMsg string
	width    int
	height   int

	// Components
	keys    KeyMap
	help    help.Model
	spinner spinner.Model
	styles  Styles
}

// --- Custom messages for async operations ---

// eventMsg delivers one session event.
type eventMsg struct {
	event ble.Event
}

// eventsClosedMsg signals the subscription ended.
type eventsClosedMsg struct{}

// statusTickMsg triggers a status refresh.
type statusTickMsg time.Time

// readResultMsg reports how many reads were submitted.
type readResultMsg struct {
	submitted int
	err       error
}

// NewModel builds a watch model over session, consuming events.
func NewModel(session Session, events <-chan ble.Event) Model {
	h := help.New()
	h.ShowAll = false

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))

	return Model{
		session: session,
		events:  events,
		state:   session.State(),
		address: session.Address(),
		keys:    DefaultKeyMap(),
		help:    h,
		spinner: s,
		styles:  DefaultStyles(),
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEventCmd(m.events), statusTickCmd(), m.spinner.Tick)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m.record(msg.event)
		m.refresh()
		return m, waitForEventCmd(m.events)

	case eventsClosedMsg:
		m.closed = true
		m.refresh()
		return m, nil

	case statusTickMsg:
		m.refresh()
		return m, statusTickCmd()

	case readResultMsg:
		if msg.err != nil {
			m.errorMsg = fmt.Sprintf("Read failed: %v", msg.err)
		} else if msg.submitted == 0 {
			m.errorMsg = "No readable characteristics"
		} else {
			m.errorMsg = ""
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Clear):
		m.log = nil
		m.errorMsg = ""
	case key.Matches(msg, m.keys.Read):
		return m, readAllCmd(m.session)
	}
	return m, nil
}

func (m *Model) record(ev ble.Event) {
	m.log = append(m.log, logEntry{at: time.Now(), event: ev})
	if len(m.log) > maxLogEntries {
		m.log = m.log[len(m.log)-maxLogEntries:]
	}
	if ev.Type == ble.EventError && ev.Err != nil {
		m.errorMsg = ev.Err.Error()
	}
}

func (m *Model) refresh() {
	m.state = m.session.State()
	m.address = m.session.Address()
	m.handles = m.session.Handles()
}

// View renders the model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderTitleBar("invisa-link"))
	b.WriteString("\n\n")

	b.WriteString(m.renderField("Address", orDash(m.address)))
	b.WriteString(m.renderField("State", m.state.String()))
	b.WriteString("\n")

	b.WriteString(m.styles.Highlight.Render("Characteristics"))
	b.WriteString("\n")
	if len(m.handles) == 0 {
		b.WriteString(m.styles.Muted.Render("  none selected"))
		b.WriteString("\n")
	}
	for _, h := range m.handles {
		b.WriteString(m.renderField(string(h.Role),
			fmt.Sprintf("%s  %s  delivery=%s", truncate(h.UUID, 36), h.Properties, h.Delivery)))
	}
	b.WriteString("\n")

	b.WriteString(m.styles.Highlight.Render("Events"))
	b.WriteString("\n")
	rows := m.logRows()
	start := 0
	if len(m.log) > rows {
		start = len(m.log) - rows
	}
	if len(m.log) == 0 {
		b.WriteString(m.styles.Muted.Render("  waiting for events..."))
		b.WriteString("\n")
	}
	for _, e := range m.log[start:] {
		b.WriteString(m.renderEvent(e))
		b.WriteString("\n")
	}

	if m.errorMsg != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.Error.Render(m.errorMsg))
		b.WriteString("\n")
	}

	helpView := m.styles.Help.Render(m.help.View(m.keys))
	return m.styles.App.Render(b.String() + helpView)
}

func (m Model) renderTitleBar(title string) string {
	var parts []string
	parts = append(parts, m.styles.Title.Render(title))

	switch {
	case m.closed:
		parts = append(parts, m.styles.StatusOffline.Render("○ Closed"))
	case m.state == ble.StateConnecting:
		parts = append(parts, m.spinner.View()+" "+m.styles.Warning.Render("Connecting..."))
	case m.state == ble.StateConnected:
		parts = append(parts, m.spinner.View()+" "+m.styles.Warning.Render("Discovering..."))
	case m.state == ble.StateServicesDiscovered:
		parts = append(parts, m.styles.StatusOnline.Render("●"))
		parts = append(parts, m.styles.Muted.Render(m.address))
	default:
		parts = append(parts, m.styles.StatusOffline.Render("○ Offline"))
	}

	return strings.Join(parts, "  ")
}

func (m Model) renderEvent(e logEntry) string {
	ev := e.event
	ts := m.styles.Muted.Render(e.at.Format("15:04:05"))
	name := fmt.Sprintf("%-20s", ev.Type.String())

	var detail string
	switch ev.Type {
	case ble.EventMessage:
		detail = fmt.Sprintf("%s %q", ev.Role, ev.Text)
	case ble.EventDataAvailable:
		detail = string(ev.Role) + " " + protocol.FormatHex(ev.Data)
		if protocol.Printable(ev.Data) {
			detail += fmt.Sprintf(" %q", protocol.DecodeText(ev.Data))
		}
	case ble.EventDataWritten:
		detail = string(ev.Role)
	case ble.EventError:
		return ts + " " + m.styles.Error.Render(name+" "+fmt.Sprint(ev.Err))
	default:
		detail = ev.Address
	}

	style := m.styles.Value
	if ev.Type == ble.EventMessage || ev.Type == ble.EventConnected || ev.Type == ble.EventServicesDiscovered {
		style = m.styles.Success
	}
	return ts + " " + style.Render(name) + " " + m.styles.Value.Render(truncate(detail, 120))
}

func (m Model) logRows() int {
	if m.height <= 0 {
		return defaultLogRows
	}
	rows := m.height - 14 - len(m.handles)
	if rows < 3 {
		rows = 3
	}
	return rows
}

func (m Model) renderField(label, value string) string {
	return m.styles.Label.Render(label+":") + " " + m.styles.Value.Render(value) + "\n"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

// --- Async commands ---

// waitForEventCmd blocks on the next session event.
func waitForEventCmd(events <-chan ble.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{event: ev}
	}
}

func statusTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return statusTickMsg(t)
	})
}

// readAllCmd submits a read on every readable selected characteristic.
func readAllCmd(session Session) tea.Cmd {
	return func() tea.Msg {
		var n int
		for _, h := range session.Handles() {
			if !h.Properties.Has(ble.PropRead) {
				continue
			}
			if err := session.Read(h); err != nil {
				return readResultMsg{submitted: n, err: err}
			}
			n++
		}
		return readResultMsg{submitted: n}
	}
}
