package robot

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-picarx/internal/log"
)

// Primitive names, as they appear in faults and traces.
const (
	OpSetSteeringAngle = "setSteeringAngle"
	OpDriveForward     = "driveForward"
	OpDriveBackward    = "driveBackward"
	OpStopMotors       = "stopMotors"
)

// Session is the single runtime handle to the robot hardware.
// Create one per process and pass it by reference; every primitive
// command goes through it.
//
// Session validates arguments before they reach the controller, serializes
// commands so two callers never interleave writes, wraps controller errors
// as HardwareFault and remembers the last commanded State.
type Session struct {
	ctrl Controller
	log  *slog.Logger

	mu    sync.Mutex
	state State

	// Diagnostics
	commands atomic.Uint64
	faults   atomic.Uint64
}

// NewSession takes ownership of ctrl. Nothing else should hold ctrl afterwards.
// A nil logger uses the global one.
func NewSession(ctrl Controller, logger *slog.Logger) *Session {
	if logger == nil {
		logger = log.L()
	}
	return &Session{
		ctrl: ctrl,
		log:  logger.With("component", "session"),
	}
}

// SetSteeringAngle moves the steering servo. Out-of-range angles are rejected
// with ErrInvalidParameter without touching the hardware.
func (s *Session) SetSteeringAngle(angle int) error {
	if err := ValidateAngle(angle); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.command(OpSetSteeringAngle, angle, func() error {
		return s.ctrl.SetSteeringAngle(angle)
	}); err != nil {
		return err
	}
	s.state.Angle = angle
	return nil
}

// DriveForward drives the rear motors forward at speed percent.
func (s *Session) DriveForward(speed int) error {
	return s.drive(OpDriveForward, Forward, speed, s.ctrl.DriveForward)
}

// DriveBackward drives the rear motors backward at speed percent.
func (s *Session) DriveBackward(speed int) error {
	return s.drive(OpDriveBackward, Backward, speed, s.ctrl.DriveBackward)
}

func (s *Session) drive(op string, dir Direction, speed int, fn func(int) error) error {
	if err := ValidateSpeed(speed); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.command(op, speed, func() error { return fn(speed) }); err != nil {
		// Direction is unknown after a failed drive; assume the worst.
		s.state.Direction = dir
		s.state.Speed = speed
		return err
	}
	if speed == 0 {
		dir = Stopped
	}
	s.state.Direction = dir
	s.state.Speed = speed
	return nil
}

// StopMotors stops the rear motors. It is idempotent.
func (s *Session) StopMotors() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.command(OpStopMotors, 0, s.ctrl.StopMotors); err != nil {
		return err
	}
	s.state.Direction = Stopped
	s.state.Speed = 0
	return nil
}

// Center returns the steering to straight ahead.
func (s *Session) Center() error {
	return s.SetSteeringAngle(0)
}

// State returns the last commanded hardware state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns the number of primitives issued and how many faulted.
func (s *Session) Stats() (commands, faults uint64) {
	return s.commands.Load(), s.faults.Load()
}

// command runs fn with s.mu held.
func (s *Session) command(op string, value int, fn func() error) error {
	s.commands.Add(1)
	err := fault(op, value, fn())
	if err != nil {
		s.faults.Add(1)
		s.log.Error("primitive failed", "op", op, "value", value, "err", err)
		return err
	}
	s.log.Debug("primitive", "op", op, "value", value)
	return nil
}
