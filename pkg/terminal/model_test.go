package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-picarx/pkg/dispatch"
)

func update(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModel_ForwardsKeys(t *testing.T) {
	keys := make(chan dispatch.Event, 8)
	m := NewModel("PiCar-X", "menu\n", keys)

	m, _ = update(m, runes("w"))
	m, _ = update(m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	m, _ = update(m, tea.KeyMsg{Type: tea.KeyCtrlC})
	m, _ = update(m, tea.KeyMsg{Type: tea.KeyEnter})
	_, _ = update(m, runes("qe"))

	require.Len(t, keys, 6)
	w := <-keys
	assert.Equal(t, dispatch.KeyEvent, w.Kind)
	assert.Equal(t, 'w', w.Key)
	assert.Equal(t, "terminal", w.Source)

	assert.Equal(t, ' ', (<-keys).Key)
	assert.Equal(t, dispatch.InterruptEvent, (<-keys).Kind)

	enter := <-keys
	assert.Equal(t, rune(0), enter.Key)
	assert.Equal(t, "enter", enter.Name)

	assert.Equal(t, 'q', (<-keys).Key)
	assert.Equal(t, 'e', (<-keys).Key)
}

func TestModel_DropsWhenQueueFull(t *testing.T) {
	keys := make(chan dispatch.Event, 1)
	m := NewModel("PiCar-X", "", keys)

	m, _ = update(m, runes("wz"))

	assert.Len(t, keys, 1)
	assert.Equal(t, 1, m.Dropped())
	assert.Contains(t, m.View(), "dropped z")
}

func TestModel_ViewFollowsDispatcher(t *testing.T) {
	m := NewModel("PiCar-X Maneuvers", "  [W] Forward\n", make(chan dispatch.Event, 1))

	view := m.View()
	assert.Contains(t, view, "PiCar-X Maneuvers")
	assert.Contains(t, view, "[W] Forward")
	assert.Contains(t, view, "Waiting for input...")

	m, _ = update(m, stateMsg{to: dispatch.Executing})
	m, _ = update(m, reportMsg{report: dispatch.Report{Kind: dispatch.ReportAction, Message: ">> Parallel park LEFT"}})
	assert.Equal(t, dispatch.Executing, m.State())
	assert.Contains(t, m.View(), ">> Parallel park LEFT")
	assert.NotContains(t, m.View(), "Waiting for input...")

	m, _ = update(m, stateMsg{to: dispatch.Idle})
	assert.Contains(t, m.View(), "Waiting for input...")

	m, _ = update(m, reportMsg{report: dispatch.Report{Kind: dispatch.ReportUnknownKey, Message: "Unknown key: 'p'"}})
	assert.Contains(t, m.View(), "Unknown key: 'p'")

	m, _ = update(m, reportMsg{report: dispatch.Report{
		Kind:    dispatch.ReportHardwareFault,
		Message: "Hardware fault, stopping",
		Err:     errors.New("servo timeout"),
	}})
	assert.Contains(t, m.View(), "Hardware fault, stopping: servo timeout")
}

func TestModel_KeepsRecentLines(t *testing.T) {
	m := NewModel("", "", make(chan dispatch.Event, 1))
	for i := 0; i < maxLines+3; i++ {
		m, _ = update(m, reportMsg{report: dispatch.Report{Kind: dispatch.ReportAction, Message: fmt.Sprintf("line-%02d", i)}})
	}

	view := m.View()
	assert.NotContains(t, view, "line-00")
	assert.NotContains(t, view, "line-02")
	assert.Contains(t, view, "line-03")
	assert.Contains(t, view, fmt.Sprintf("line-%02d", maxLines+2))
}

func TestModel_QuitsOnTerminated(t *testing.T) {
	m := NewModel("", "", make(chan dispatch.Event, 1))

	m, cmd := update(m, stateMsg{to: dispatch.Terminated})

	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Contains(t, m.View(), "Goodbye!")
}

func TestTerminal_SourceAndObserver(t *testing.T) {
	term := New("PiCar-X", "", tea.WithInput(nil), tea.WithOutput(io.Discard), tea.WithoutSignalHandler())
	term.Start()

	term.program.Send(runes("q"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev, err := term.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 'q', ev.Key)

	term.Report(dispatch.Report{Kind: dispatch.ReportHandled})
	term.StateChanged(dispatch.Idle, dispatch.Terminated)

	select {
	case <-term.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("program did not quit on Terminated")
	}
	require.NoError(t, term.Wait())

	_, err = term.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, term.Quit(), "quitting twice is harmless")
}
