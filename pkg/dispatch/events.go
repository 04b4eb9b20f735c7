package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// CtrlC is the character a raw-mode terminal delivers for Ctrl+C.
const CtrlC = '\x03'

// EventKind classifies input events.
type EventKind int

const (
	// KeyEvent is a single key press.
	KeyEvent EventKind = iota
	// InterruptEvent is an interrupt signal (SIGINT, Ctrl+C).
	InterruptEvent
	// FaultEvent carries an InputFault from a source.
	FaultEvent
)

// Event is one input event.
type Event struct {
	Kind EventKind
	// Key is the pressed character for KeyEvent. Zero for non-character keys.
	Key rune
	// Name describes non-character keys, e.g. "enter" or "up".
	Name string
	// Source identifies where the event came from, e.g. "terminal".
	Source string
	// Err is set for FaultEvent.
	Err error
}

// Key returns a key press event.
func Key(r rune) Event {
	if r == CtrlC {
		return Interrupt()
	}
	return Event{Kind: KeyEvent, Key: r}
}

// NamedKey returns an event for a key without a character.
func NamedKey(name string) Event {
	return Event{Kind: KeyEvent, Name: name}
}

// Interrupt returns an interrupt event.
func Interrupt() Event {
	return Event{Kind: InterruptEvent, Name: "interrupt"}
}

// Fault returns an event reporting unreadable input.
func Fault(err error) Event {
	return Event{Kind: FaultEvent, Err: &InputFault{Err: err}}
}

// From returns e tagged with source.
func (e Event) From(source string) Event {
	e.Source = source
	return e
}

// Display renders the key for diagnostics.
func (e Event) Display() string {
	switch {
	case e.Kind == InterruptEvent:
		return "interrupt"
	case e.Key == ' ':
		return "space"
	case e.Key != 0:
		return string(e.Key)
	case e.Name != "":
		return e.Name
	}
	return "?"
}

// InputFault reports a malformed or unreadable input event. It is logged
// and otherwise ignored.
type InputFault struct {
	Err error
}

// Error implements the error interface.
func (e *InputFault) Error() string {
	return fmt.Sprintf("dispatch: input fault: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *InputFault) Unwrap() error {
	return e.Err
}

// Source produces input events.
//
// Next blocks until an event is available. It returns io.EOF when the source
// is exhausted and an *InputFault for a single unreadable event; any other
// error ends the source.
type Source interface {
	Next(ctx context.Context) (Event, error)
}

// ErrSourceClosed is returned by Push on a closed ChanSource.
var ErrSourceClosed = errors.New("dispatch: source closed")

// ChanSource is a Source fed by Push. It is safe for concurrent use and is
// how the web API and teleop endpoint inject key presses.
type ChanSource struct {
	name   string
	events chan Event

	mu     sync.RWMutex
	closed bool
}

// NewChanSource creates a source buffering up to size events.
func NewChanSource(name string, size int) *ChanSource {
	return &ChanSource{name: name, events: make(chan Event, size)}
}

// Push queues ev without blocking. It fails when the buffer is full or the
// source is closed.
func (s *ChanSource) Push(ev Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSourceClosed
	}
	if ev.Source == "" {
		ev.Source = s.name
	}
	select {
	case s.events <- ev:
		return nil
	default:
		return fmt.Errorf("dispatch: %s input queue full", s.name)
	}
}

// Close ends the source; Next returns io.EOF once queued events are drained.
func (s *ChanSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
}

// Next implements Source.
func (s *ChanSource) Next(ctx context.Context) (Event, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			return Event{}, io.EOF
		}
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// ScriptSource replays a fixed list of events, then reports io.EOF.
//
// Events are paced: after the first, each is released only once the
// dispatcher has finished handling the previous one, as if typed by an
// operator who waits for each maneuver. Dispatcher.Run registers the source
// as an observer to receive that signal.
type ScriptSource struct {
	mu     sync.Mutex
	events []Event
	ready  chan struct{}
}

var _ Observer = (*ScriptSource)(nil)

// Script builds a ScriptSource from key characters.
func Script(keys string) *ScriptSource {
	s := &ScriptSource{ready: make(chan struct{}, 1)}
	for _, r := range keys {
		s.events = append(s.events, Key(r).From("script"))
	}
	s.ready <- struct{}{}
	return s
}

// Next implements Source.
func (s *ScriptSource) Next(ctx context.Context) (Event, error) {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

// StateChanged implements Observer.
func (s *ScriptSource) StateChanged(from, to State) {}

// Report implements Observer; a handled event releases the next one.
func (s *ScriptSource) Report(r Report) {
	if r.Kind != ReportHandled {
		return
	}
	select {
	case s.ready <- struct{}{}:
	default:
	}
}
