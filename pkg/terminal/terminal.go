package terminal

import (
	"context"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/teslashibe/go-picarx/pkg/dispatch"
)

// queueSize bounds key presses waiting for the dispatcher.
const queueSize = 32

// Terminal runs the console program. It is a dispatch.Source for the key
// presses it reads and a dispatch.Observer that renders state and reports.
type Terminal struct {
	program *tea.Program
	events  chan dispatch.Event

	startOnce sync.Once
	done      chan struct{}
	err       error
}

var (
	_ dispatch.Source   = (*Terminal)(nil)
	_ dispatch.Observer = (*Terminal)(nil)
)

// New creates a console with the given title and menu text. Program
// options are passed to Bubble Tea, e.g. tea.WithInput for tests.
func New(title, menu string, opts ...tea.ProgramOption) *Terminal {
	events := make(chan dispatch.Event, queueSize)
	return &Terminal{
		program: tea.NewProgram(NewModel(title, menu, events), opts...),
		events:  events,
		done:    make(chan struct{}),
	}
}

// Start runs the program in the background. It takes over the terminal
// until the dispatcher terminates or Quit is called.
func (t *Terminal) Start() {
	t.startOnce.Do(func() {
		go func() {
			defer close(t.done)
			_, t.err = t.program.Run()
		}()
	})
}

// Next implements dispatch.Source. It returns io.EOF once the program
// has exited and all key presses were read.
func (t *Terminal) Next(ctx context.Context) (dispatch.Event, error) {
	select {
	case ev := <-t.events:
		return ev, nil
	default:
	}
	select {
	case ev := <-t.events:
		return ev, nil
	case <-t.done:
		return dispatch.Event{}, io.EOF
	case <-ctx.Done():
		return dispatch.Event{}, ctx.Err()
	}
}

// StateChanged implements dispatch.Observer.
func (t *Terminal) StateChanged(from, to dispatch.State) {
	t.program.Send(stateMsg{to: to})
}

// Report implements dispatch.Observer.
func (t *Terminal) Report(r dispatch.Report) {
	if r.Kind == dispatch.ReportHandled {
		return
	}
	t.program.Send(reportMsg{report: r})
}

// Quit stops the program and waits for it to restore the terminal.
func (t *Terminal) Quit() error {
	t.program.Quit()
	return t.Wait()
}

// Wait blocks until the program has exited.
func (t *Terminal) Wait() error {
	<-t.done
	return t.err
}

// Done is closed once the program has exited.
func (t *Terminal) Done() <-chan struct{} {
	return t.done
}
