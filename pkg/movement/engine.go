package movement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-picarx/internal/log"
	"github.com/teslashibe/go-picarx/pkg/robot"
)

// Config holds engine behaviour switches.
type Config struct {
	// Interruptible makes Stop cancel the hold in progress. When false,
	// a stop during a hold is only observed once the hold elapses.
	Interruptible bool
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	return Config{Interruptible: true}
}

// Outcome describes how a run ended.
type Outcome string

const (
	OutcomeRunning     Outcome = "running"
	OutcomeCompleted   Outcome = "completed"
	OutcomeInterrupted Outcome = "interrupted"
	OutcomeFault       Outcome = "fault"
	OutcomeFailed      Outcome = "failed"
)

// Run records one maneuver execution.
type Run struct {
	ID       string    `json:"id"`
	Maneuver string    `json:"maneuver"`
	Label    string    `json:"label"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished,omitempty"`
	Outcome  Outcome   `json:"outcome"`
	Error    string    `json:"error,omitempty"`
}

// Status is a snapshot of the engine for dashboards.
type Status struct {
	Hardware robot.State `json:"hardware"`
	Running  bool        `json:"running"`
	Current  *Run        `json:"current,omitempty"`
	LastRun  *Run        `json:"last_run,omitempty"`
	Runs     uint64      `json:"runs"`
}

// Session is what the engine needs from the hardware handle.
type Session interface {
	Primitives
	Center() error
	State() robot.State
}

var _ Session = (*robot.Session)(nil)

// Engine runs maneuvers against the robot session, one at a time.
//
// Post-condition of every Run: motors stopped and steering at 0. On a
// fault or interruption the engine stops and centers unconditionally
// before returning the error. Stop may be called from any goroutine.
type Engine struct {
	hw   Session
	exec *Executor
	cfg  Config
	log  *slog.Logger

	mu            sync.Mutex
	current       *Run
	cancel        context.CancelFunc
	stopRequested bool
	last          *Run
	runs          uint64
	onRun         []func(Run)
}

// NewEngine creates an engine. A nil sleeper uses TimerSleeper, or
// BlockingSleeper when cfg.Interruptible is false. A nil logger uses the
// global one.
func NewEngine(hw Session, sleep Sleeper, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = log.L()
	}
	if sleep == nil && !cfg.Interruptible {
		sleep = BlockingSleeper{}
	}
	return &Engine{
		hw:   hw,
		exec: NewExecutor(hw, sleep),
		cfg:  cfg,
		log:  logger.With("component", "engine"),
	}
}

// OnRun registers fn to be called when a run starts and when it ends.
// Callbacks run on the maneuver's goroutine and must not block.
func (e *Engine) OnRun(fn func(Run)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onRun = append(e.onRun, fn)
}

// Run executes m. It blocks until the maneuver completes, is interrupted,
// or faults. It returns ErrBusy if another maneuver is in progress.
func (e *Engine) Run(ctx context.Context, m Maneuver) error {
	if err := m.Validate(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	run, err := e.begin(m, cancel)
	if err != nil {
		return err
	}

	logger := e.log.With("maneuver", m.Name, "run_id", run.ID)
	logger.Info("maneuver started", "steps", len(m.Steps), "duration", m.Duration())

	err = e.settle(e.steps(runCtx, m, logger), logger)
	e.end(run, err, logger)
	return err
}

// RunNamed looks name up in the catalogue and runs it.
func (e *Engine) RunNamed(ctx context.Context, name string) error {
	m, err := Lookup(name)
	if err != nil {
		return err
	}
	return e.Run(ctx, m)
}

// DriveStraight drives in dir for hold at speed with the steering at angle,
// then stops and centers. Parameters are validated before any hardware call.
func (e *Engine) DriveStraight(ctx context.Context, dir Direction, speed int, hold time.Duration, angle int) error {
	m, err := DriveStraight(dir, speed, hold, angle)
	if err != nil {
		return err
	}
	return e.Run(ctx, m)
}

// ParallelPark runs the parallel park recipe for side.
func (e *Engine) ParallelPark(ctx context.Context, side Side) error {
	return e.Run(ctx, ParallelPark(side))
}

// KTurn runs the three-point turn recipe for side.
func (e *Engine) KTurn(ctx context.Context, side Side) error {
	return e.Run(ctx, KTurn(side))
}

// Stop stops the motors and centers the steering. It never waits for a
// maneuver to finish.
//
// With a maneuver in flight, Stop stops the motors and cancels it; the
// maneuver's own cleanup then writes the final centering so that write
// happens exactly once, last. In blocking mode Stop only flags the request;
// the maneuver observes it when its current hold ends.
func (e *Engine) Stop() error {
	e.mu.Lock()
	running := e.current != nil
	if running {
		e.stopRequested = true
	}
	cancel := e.cancel
	e.mu.Unlock()

	if !running {
		return errors.Join(e.hw.StopMotors(), e.hw.Center())
	}
	if !e.cfg.Interruptible {
		e.log.Warn("stop requested; takes effect when the current hold ends")
		return nil
	}
	err := e.hw.StopMotors()
	if cancel != nil {
		cancel()
	}
	return err
}

// Status returns a snapshot for dashboards.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		Hardware: e.hw.State(),
		Running:  e.current != nil,
		Runs:     e.runs,
	}
	if e.current != nil {
		cur := *e.current
		st.Current = &cur
	}
	if e.last != nil {
		last := *e.last
		st.LastRun = &last
	}
	return st
}

// Running reports whether a maneuver is in progress.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil
}

// steps runs each step in order and stops at the first error.
func (e *Engine) steps(ctx context.Context, m Maneuver, logger *slog.Logger) error {
	if m.PreStop {
		if err := e.hw.StopMotors(); err != nil {
			return err
		}
	}
	for i, step := range m.Steps {
		if e.interrupted(ctx) {
			return ErrInterrupted
		}
		logger.Debug("step", "index", i+1, "step", step.String())
		if err := e.exec.Execute(ctx, step); err != nil {
			return fmt.Errorf("%s step %d/%d: %w", m.Name, i+1, len(m.Steps), err)
		}
	}
	if e.interrupted(ctx) {
		return ErrInterrupted
	}
	return nil
}

// settle brings the robot to the safe state after the steps ran.
func (e *Engine) settle(err error, logger *slog.Logger) error {
	if err == nil {
		st := e.hw.State()
		if !st.Stopped() {
			if stopErr := e.hw.StopMotors(); stopErr != nil {
				return stopErr
			}
		}
		if st.Angle != 0 {
			return e.hw.Center()
		}
		return nil
	}

	if robot.IsHardwareFault(err) {
		logger.Error("hardware fault; emergency stop", "err", err)
	}
	return errors.Join(err, e.hw.StopMotors(), e.hw.Center())
}

// interrupted reports a pending Stop or a cancelled run context. Both are
// checked between steps since a blocking hold ignores cancellation.
func (e *Engine) interrupted(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopRequested || ctx.Err() != nil
}

func (e *Engine) begin(m Maneuver, cancel context.CancelFunc) (*Run, error) {
	e.mu.Lock()
	if e.current != nil {
		busy := e.current.Maneuver
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrBusy, busy)
	}
	run := &Run{
		ID:       uuid.NewString(),
		Maneuver: m.Name,
		Label:    m.Label,
		Started:  time.Now(),
		Outcome:  OutcomeRunning,
	}
	e.current = run
	e.cancel = cancel
	e.stopRequested = false
	e.runs++
	callbacks := e.onRun
	snapshot := *run
	e.mu.Unlock()

	for _, fn := range callbacks {
		fn(snapshot)
	}
	return run, nil
}

func (e *Engine) end(run *Run, err error, logger *slog.Logger) {
	e.mu.Lock()
	run.Finished = time.Now()
	run.Outcome = outcome(err)
	if err != nil {
		run.Error = err.Error()
	}
	e.current = nil
	e.cancel = nil
	e.stopRequested = false
	e.last = run
	callbacks := e.onRun
	snapshot := *run
	e.mu.Unlock()

	elapsed := run.Finished.Sub(run.Started)
	switch run.Outcome {
	case OutcomeCompleted:
		logger.Info("maneuver completed", "elapsed", elapsed)
	case OutcomeInterrupted:
		logger.Warn("maneuver interrupted", "elapsed", elapsed)
	default:
		logger.Error("maneuver failed", "elapsed", elapsed, "err", err)
	}

	for _, fn := range callbacks {
		fn(snapshot)
	}
}

func outcome(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeCompleted
	case robot.IsHardwareFault(err):
		return OutcomeFault
	case errors.Is(err, ErrInterrupted):
		return OutcomeInterrupted
	default:
		return OutcomeFailed
	}
}
