package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-picarx/internal/log"
	"github.com/teslashibe/go-picarx/pkg/movement"
	"github.com/teslashibe/go-picarx/pkg/robot"
)

// ErrTerminated is returned by Run on a dispatcher that already terminated.
var ErrTerminated = errors.New("dispatch: terminated")

// State is the dispatcher state.
type State int32

const (
	Idle State = iota
	Executing
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Executing:
		return "executing"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, error) {
	switch s {
	case "idle":
		return Idle, nil
	case "executing":
		return Executing, nil
	case "terminated":
		return Terminated, nil
	}
	return Idle, fmt.Errorf("dispatch: unknown state %q", s)
}

// Maneuverer is the part of the maneuver engine the dispatcher drives.
type Maneuverer interface {
	Run(ctx context.Context, m movement.Maneuver) error
	Stop() error
}

var _ Maneuverer = (*movement.Engine)(nil)

// queueSize bounds keys typed ahead while a maneuver runs.
const queueSize = 64

// Dispatcher maps input events to maneuvers, one at a time.
//
// Maneuvers run synchronously on the goroutine that called Run. Sources are
// read on their own goroutines so that a stop, exit or interrupt arriving
// while a maneuver executes cancels it immediately; all events are still
// handled in arrival order.
type Dispatcher struct {
	engine Maneuverer
	keys   KeyMap
	log    *slog.Logger

	state atomic.Int32
	// stops counts stop, exit and interrupt events read so far. A maneuver
	// queued before a later stop is skipped.
	stops atomic.Uint64

	mu        sync.Mutex
	observers []Observer
	running   bool
	// cancelRun cancels the maneuver being handled. It is set before the
	// state becomes Executing and cleared once the engine has returned.
	cancelRun context.CancelFunc
}

// New creates a dispatcher. A nil key map uses DefaultKeyMap and a nil
// logger uses the global one.
func New(engine Maneuverer, keys KeyMap, logger *slog.Logger, observers ...Observer) *Dispatcher {
	if keys == nil {
		keys = DefaultKeyMap()
	}
	if logger == nil {
		logger = log.L()
	}
	return &Dispatcher{
		engine:    engine,
		keys:      keys,
		log:       logger.With("component", "dispatcher"),
		observers: observers,
	}
}

// AddObserver registers o for state changes and reports.
func (d *Dispatcher) AddObserver(o Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, o)
}

// observing reports whether o is registered. d.mu must be held.
func (d *Dispatcher) observing(o Observer) bool {
	for _, have := range d.observers {
		if have == o {
			return true
		}
	}
	return false
}

// State returns the current state.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// Keys returns the key map in use.
func (d *Dispatcher) Keys() KeyMap {
	return d.keys
}

// queued is an event as read by a pump.
type queued struct {
	Event
	// preempted is set when the pump already called engine.Stop for it.
	preempted bool
	// stops is the stop count when the event was read.
	stops uint64
}

// Run processes events from sources until an exit or interrupt event, the
// context is cancelled, every source is exhausted, or a hardware fault
// occurs. Only a hardware fault produces a non-nil error. Sources that also
// implement Observer are registered for the duration of the run.
func (d *Dispatcher) Run(ctx context.Context, sources ...Source) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return errors.New("dispatch: already running")
	}
	if d.State() == Terminated {
		d.mu.Unlock()
		return ErrTerminated
	}
	d.running = true
	for _, src := range sources {
		if o, ok := src.(Observer); ok && !d.observing(o) {
			d.observers = append(d.observers, o)
		}
	}
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan queued, queueSize)
	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			d.pump(ctx, src, events)
		}(src)
	}
	go func() {
		wg.Wait()
		close(events)
	}()

	d.log.Info("dispatcher started", "sources", len(sources))
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return d.shutdown(ReportInterrupted, "Interrupted", "")
				}
				d.log.Info("all input sources closed")
				d.setState(Terminated)
				return nil
			}
			done, err := d.handle(ctx, ev)
			d.report(slog.LevelDebug, ReportHandled, ev.Display(), "", nil)
			if done {
				return err
			}
		case <-ctx.Done():
			return d.shutdown(ReportInterrupted, "Interrupted", "")
		}
	}
}

// pump reads src into events. A stop, exit or interrupt event read while a
// maneuver is being handled cancels it at once; the maneuver's own cleanup
// stops the motors and centers the steering.
func (d *Dispatcher) pump(ctx context.Context, src Source, events chan<- queued) {
	for {
		ev, err := src.Next(ctx)
		var fault *InputFault
		switch {
		case err == nil:
		case errors.As(err, &fault):
			ev = Event{Kind: FaultEvent, Err: fault}
		case errors.Is(err, io.EOF), ctx.Err() != nil:
			return
		default:
			d.log.Warn("input source failed", "err", err)
			return
		}

		q := queued{Event: ev}
		if d.preemptive(ev) {
			d.stops.Add(1)
			d.mu.Lock()
			cancel := d.cancelRun
			d.mu.Unlock()
			if cancel != nil {
				q.preempted = true
				cancel()
				d.report(slog.LevelWarn, ReportStop, ev.Display(), "STOP requested during maneuver", nil)
			}
		}
		q.stops = d.stops.Load()

		select {
		case events <- q:
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) preemptive(ev Event) bool {
	if ev.Kind == InterruptEvent {
		return true
	}
	if ev.Kind != KeyEvent || ev.Key == 0 {
		return false
	}
	b, ok := d.keys.Lookup(ev.Key)
	return ok && b.Kind != ActionManeuver
}

// handle processes one event and reports whether the loop is done.
func (d *Dispatcher) handle(ctx context.Context, ev queued) (bool, error) {
	switch ev.Kind {
	case FaultEvent:
		d.report(slog.LevelWarn, ReportInputFault, "", fmt.Sprintf("Ignoring unreadable input: %v", ev.Err), ev.Err)
		return false, nil
	case InterruptEvent:
		return true, d.terminate(ev, ReportInterrupted, "Interrupted")
	}

	b, ok := d.keys.Lookup(ev.Key)
	if ev.Key == 0 || !ok {
		d.report(slog.LevelWarn, ReportUnknownKey, ev.Display(), fmt.Sprintf("Unknown key: '%s'", ev.Display()), nil)
		return false, nil
	}

	switch b.Kind {
	case ActionStop:
		d.report(slog.LevelInfo, ReportStop, ev.Display(), "STOP!", nil)
		if ev.preempted {
			return false, nil
		}
		if err := d.engine.Stop(); err != nil {
			return d.fault(ev.Display(), err)
		}
		return false, nil
	case ActionExit:
		return true, d.terminate(ev, ReportExit, "Exiting...")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancelRun = cancel
	d.mu.Unlock()

	d.setState(Executing)
	if d.stops.Load() != ev.stops {
		d.report(slog.LevelWarn, ReportInterrupted, ev.Display(), b.Label+" skipped after STOP", movement.ErrInterrupted)
		d.clearRun(cancel)
		d.setState(Idle)
		return false, nil
	}
	d.report(slog.LevelInfo, ReportAction, ev.Display(), ">> "+b.Label, nil)
	err := d.engine.Run(runCtx, b.Maneuver)
	d.clearRun(cancel)
	switch {
	case err == nil:
	case robot.IsHardwareFault(err):
		return d.fault(ev.Display(), err)
	case errors.Is(err, movement.ErrInterrupted):
		d.report(slog.LevelWarn, ReportInterrupted, ev.Display(), b.Label+" interrupted", err)
	case errors.Is(err, movement.ErrBusy):
		d.report(slog.LevelWarn, ReportBusy, ev.Display(), "Another maneuver is running", err)
	default:
		d.report(slog.LevelError, ReportError, ev.Display(), b.Label+" failed", err)
	}
	d.setState(Idle)
	return false, nil
}

// clearRun ends the preemption window opened for a maneuver.
func (d *Dispatcher) clearRun(cancel context.CancelFunc) {
	d.mu.Lock()
	d.cancelRun = nil
	d.mu.Unlock()
	cancel()
}

// terminate stops the robot unless the event already did, then ends the loop.
func (d *Dispatcher) terminate(ev queued, kind ReportKind, msg string) error {
	if ev.preempted {
		d.report(slog.LevelInfo, kind, ev.Display(), msg, nil)
		d.setState(Terminated)
		return nil
	}
	return d.shutdown(kind, msg, ev.Display())
}

func (d *Dispatcher) shutdown(kind ReportKind, msg, key string) error {
	d.report(slog.LevelInfo, kind, key, msg, nil)
	err := d.engine.Stop()
	d.setState(Terminated)
	if err != nil {
		d.report(slog.LevelError, ReportHardwareFault, key, "Stop failed during shutdown", err)
		if robot.IsHardwareFault(err) {
			return err
		}
	}
	return nil
}

// fault reports an unrecoverable hardware fault and terminates. The engine
// has already attempted to stop and center.
func (d *Dispatcher) fault(key string, err error) (bool, error) {
	d.report(slog.LevelError, ReportHardwareFault, key, "Hardware fault, stopping", err)
	d.setState(Terminated)
	return true, err
}

func (d *Dispatcher) setState(to State) {
	from := State(d.state.Swap(int32(to)))
	if from == to {
		return
	}
	for _, o := range d.snapshotObservers() {
		o.StateChanged(from, to)
	}
}

func (d *Dispatcher) report(level slog.Level, kind ReportKind, key, msg string, err error) {
	r := Report{Time: time.Now(), Level: level, Kind: kind, Key: key, Message: msg, Err: err}
	for _, o := range d.snapshotObservers() {
		o.Report(r)
	}
}

func (d *Dispatcher) snapshotObservers() []Observer {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Observer, len(d.observers))
	copy(out, d.observers)
	return out
}
