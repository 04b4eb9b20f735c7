// Package terminal is the interactive key console: a Bubble Tea program
// that reads single key presses in raw mode, shows the key menu and the
// dispatcher's diagnostics.
package terminal

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/teslashibe/go-picarx/pkg/dispatch"
)

// maxLines is how many recent diagnostics the view keeps.
const maxLines = 8

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	busyStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

type stateMsg struct {
	to dispatch.State
}

type reportMsg struct {
	report dispatch.Report
}

// Model is the Bubble Tea model for the console. Key presses are forwarded
// to keys; the dispatcher's state and reports arrive as messages.
type Model struct {
	title string
	menu  string
	keys  chan<- dispatch.Event

	state   dispatch.State
	current string
	lines   []string
	dropped int
}

// NewModel creates a console model forwarding key presses to keys.
func NewModel(title, menu string, keys chan<- dispatch.Event) Model {
	return Model{title: title, menu: menu, keys: keys}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		for _, ev := range keyEvents(msg) {
			m.forward(ev.From("terminal"))
		}

	case stateMsg:
		m.state = msg.to
		if msg.to != dispatch.Executing {
			m.current = ""
		}
		if msg.to == dispatch.Terminated {
			return m, tea.Quit
		}

	case reportMsg:
		r := msg.report
		if r.Kind == dispatch.ReportAction {
			m.current = strings.TrimPrefix(r.Message, ">> ")
		}
		m.addLine(formatReport(r))
	}
	return m, nil
}

// keyEvents maps a Bubble Tea key to dispatcher events.
func keyEvents(msg tea.KeyMsg) []dispatch.Event {
	switch msg.Type {
	case tea.KeyCtrlC:
		return []dispatch.Event{dispatch.Interrupt()}
	case tea.KeySpace:
		return []dispatch.Event{dispatch.Key(' ')}
	case tea.KeyRunes:
		evs := make([]dispatch.Event, 0, len(msg.Runes))
		for _, r := range msg.Runes {
			evs = append(evs, dispatch.Key(r))
		}
		return evs
	}
	return []dispatch.Event{dispatch.NamedKey(msg.String())}
}

func (m *Model) forward(ev dispatch.Event) {
	select {
	case m.keys <- ev:
	default:
		m.dropped++
		m.addLine(warnStyle.Render(fmt.Sprintf("Input queue full, dropped %s", ev.Display())))
	}
}

func (m *Model) addLine(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
}

func formatReport(r dispatch.Report) string {
	line := r.Message
	if r.Err != nil && r.Kind != dispatch.ReportAction {
		line = fmt.Sprintf("%s: %v", line, r.Err)
	}
	switch r.Kind {
	case dispatch.ReportHardwareFault:
		return errStyle.Render("❌ " + line)
	case dispatch.ReportUnknownKey, dispatch.ReportInputFault, dispatch.ReportBusy, dispatch.ReportError:
		return warnStyle.Render("⚠️  " + line)
	case dispatch.ReportStop, dispatch.ReportInterrupted:
		return busyStyle.Render("🛑 " + line)
	}
	return line
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")
	b.WriteString(m.menu)

	for _, line := range m.lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if len(m.lines) > 0 {
		b.WriteString("\n")
	}

	switch m.state {
	case dispatch.Executing:
		b.WriteString(busyStyle.Render(">> " + m.current))
		b.WriteString(dimStyle.Render("  (SPACE to stop)"))
	case dispatch.Terminated:
		b.WriteString("Goodbye!")
	default:
		b.WriteString("Waiting for input...")
	}
	b.WriteString("\n")
	return b.String()
}

// State returns the dispatcher state last shown.
func (m Model) State() dispatch.State {
	return m.state
}

// Dropped returns how many key presses were dropped because the input
// queue was full.
func (m Model) Dropped() int {
	return m.dropped
}
