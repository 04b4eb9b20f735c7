package robot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// OpWait is the trace name of a timed hold recorded by Recorder.Wait.
const OpWait = "wait"

// ErrInjectedFault is the error returned by Recorder for injected faults.
var ErrInjectedFault = errors.New("robot: injected fault")

// Call records a primitive invocation for verification.
type Call struct {
	Op    string
	Value float64
}

// String renders the call as it appears in traces, e.g. "driveForward(30)".
func (c Call) String() string {
	if c.Op == OpStopMotors {
		return c.Op + "()"
	}
	return c.Op + "(" + strconv.FormatFloat(c.Value, 'g', -1, 64) + ")"
}

// Recorder implements Controller for testing. It records every primitive,
// keeps the abstract hardware state and can inject faults.
//
// Recorder also has a Wait method so it can serve as the step sleeper and
// interleave holds into the same trace without wall-clock delay.
type Recorder struct {
	// FailAt makes the Nth fallible primitive (steering or drive, 1-based)
	// return ErrInjectedFault. Zero disables injection.
	FailAt int

	// FailSteering makes every steering command fail.
	FailSteering bool

	// StopErr is returned by every StopMotors call when set.
	StopErr error

	// BlockWaits makes Wait block until its context is cancelled
	// instead of returning immediately.
	BlockWaits bool

	mu       sync.Mutex
	calls    []Call
	fallible int
	state    State
	waiting  chan struct{}
}

// NewRecorder creates a recorder with no faults injected.
func NewRecorder() *Recorder {
	return &Recorder{waiting: make(chan struct{}, 16)}
}

// SetSteeringAngle records the call.
func (r *Recorder) SetSteeringAngle(angle int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Op: OpSetSteeringAngle, Value: float64(angle)})
	if r.FailSteering || r.injectLocked() {
		return ErrInjectedFault
	}
	r.state.Angle = angle
	return nil
}

// DriveForward records the call.
func (r *Recorder) DriveForward(speed int) error {
	return r.drive(OpDriveForward, Forward, speed)
}

// DriveBackward records the call.
func (r *Recorder) DriveBackward(speed int) error {
	return r.drive(OpDriveBackward, Backward, speed)
}

// StopMotors records the call. The recorded state is stopped even when
// StopErr is set.
func (r *Recorder) StopMotors() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Op: OpStopMotors})
	r.state.Direction = Stopped
	r.state.Speed = 0
	return r.StopErr
}

// Wait records a hold of d. With BlockWaits it blocks until ctx is done.
func (r *Recorder) Wait(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Op: OpWait, Value: d.Seconds()})
	block := r.BlockWaits
	waiting := r.waiting
	r.mu.Unlock()

	if !block {
		return ctx.Err()
	}
	if waiting != nil {
		select {
		case waiting <- struct{}{}:
		default:
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

// Waiting signals each time a blocking Wait starts.
func (r *Recorder) Waiting() <-chan struct{} {
	return r.waiting
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Trace returns the recorded calls as strings.
func (r *Recorder) Trace() []string {
	calls := r.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

// HardwareCalls returns the number of recorded primitives, excluding waits.
func (r *Recorder) HardwareCalls() int {
	n := 0
	for _, c := range r.Calls() {
		if c.Op != OpWait {
			n++
		}
	}
	return n
}

// Count returns how many times op was recorded.
func (r *Recorder) Count(op string) int {
	n := 0
	for _, c := range r.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// State returns the abstract hardware state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Reset clears recorded calls. Fault settings and state are kept.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
	r.fallible = 0
}

func (r *Recorder) drive(op string, dir Direction, speed int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Op: op, Value: float64(speed)})
	if r.injectLocked() {
		return fmt.Errorf("%s: %w", op, ErrInjectedFault)
	}
	if speed == 0 {
		dir = Stopped
	}
	r.state.Direction = dir
	r.state.Speed = speed
	return nil
}

// injectLocked counts a fallible call and reports whether it should fail.
func (r *Recorder) injectLocked() bool {
	r.fallible++
	return r.FailAt > 0 && r.fallible == r.FailAt
}
