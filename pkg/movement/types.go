// Package movement runs open-loop driving maneuvers on a PiCar-X.
//
// A maneuver is a fixed, ordered list of timed steps. Each step sets the
// steering angle, drives in one direction at a fixed speed, holds for a
// duration and stops. The Engine runs one maneuver at a time and always
// leaves the robot stopped with centered steering, whether the maneuver
// completes, is interrupted by Stop, or hits a hardware fault.
package movement

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/teslashibe/go-picarx/pkg/robot"
)

// Direction aliases robot.Direction so recipes read naturally.
type Direction = robot.Direction

// Motion directions.
const (
	Forward  = robot.Forward
	Backward = robot.Backward
	Stopped  = robot.Stopped
)

// Side selects which way a maneuver turns first.
type Side int

const (
	Left Side = iota
	Right
)

// Sign is -1 for Left and +1 for Right: the sign of a steering angle toward that side.
func (s Side) Sign() int {
	if s == Left {
		return -1
	}
	return 1
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Left {
		return Right
	}
	return Left
}

// String returns "left" or "right".
func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

// ParseSide parses "left"/"l" or "right"/"r".
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "left", "l":
		return Left, nil
	case "right", "r":
		return Right, nil
	}
	return Left, fmt.Errorf("%w: unknown side %q", robot.ErrInvalidParameter, s)
}

// TimedStep is one atomic motion segment. Its fields are fixed at
// construction; use NewTimedStep so out-of-domain values never exist.
type TimedStep struct {
	angle     int
	direction Direction
	speed     int
	hold      time.Duration
}

// NewTimedStep validates and builds a step.
func NewTimedStep(angle int, dir Direction, speed int, hold time.Duration) (TimedStep, error) {
	if err := robot.ValidateAngle(angle); err != nil {
		return TimedStep{}, err
	}
	if err := robot.ValidateSpeed(speed); err != nil {
		return TimedStep{}, err
	}
	switch dir {
	case Forward, Backward, Stopped:
	default:
		return TimedStep{}, fmt.Errorf("%w: unknown direction %d", robot.ErrInvalidParameter, int(dir))
	}
	if hold < 0 {
		return TimedStep{}, fmt.Errorf("%w: negative hold %v", robot.ErrInvalidParameter, hold)
	}
	return TimedStep{angle: angle, direction: dir, speed: speed, hold: hold}, nil
}

// MustStep is NewTimedStep for fixed recipe literals. It panics on invalid input.
func MustStep(angle int, dir Direction, speed int, hold time.Duration) TimedStep {
	step, err := NewTimedStep(angle, dir, speed, hold)
	if err != nil {
		panic(err)
	}
	return step
}

// Angle returns the steering angle in degrees.
func (s TimedStep) Angle() int { return s.angle }

// Direction returns the drive direction.
func (s TimedStep) Direction() Direction { return s.direction }

// Speed returns the motor speed percentage.
func (s TimedStep) Speed() int { return s.speed }

// Hold returns how long the step drives before stopping.
func (s TimedStep) Hold() time.Duration { return s.hold }

// Mirror returns the step with the steering angle sign flipped.
func (s TimedStep) Mirror() TimedStep {
	s.angle = -s.angle
	return s
}

// String describes the step, e.g. "steer -30° backward @50 for 1.2s".
func (s TimedStep) String() string {
	return fmt.Sprintf("steer %d° %s @%d for %v", s.angle, s.direction, s.speed, s.hold)
}

type stepJSON struct {
	Angle     int       `json:"angle"`
	Direction Direction `json:"direction"`
	Speed     int       `json:"speed"`
	HoldSec   float64   `json:"hold_sec"`
}

// MarshalJSON encodes the step for the dashboard catalogue.
func (s TimedStep) MarshalJSON() ([]byte, error) {
	return json.Marshal(stepJSON{
		Angle:     s.angle,
		Direction: s.direction,
		Speed:     s.speed,
		HoldSec:   s.hold.Seconds(),
	})
}

// UnmarshalJSON decodes and validates a step.
func (s *TimedStep) UnmarshalJSON(data []byte) error {
	var raw stepJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	step, err := NewTimedStep(raw.Angle, raw.Direction, raw.Speed,
		time.Duration(raw.HoldSec*float64(time.Second)))
	if err != nil {
		return err
	}
	*s = step
	return nil
}

// Maneuver is a named, ordered sequence of timed steps. Every maneuver ends
// with an implicit stop-and-center performed by the Engine.
// Maneuvers are plain values and own no hardware.
type Maneuver struct {
	// Name is the catalogue identifier, e.g. "k-turn-left".
	Name string `json:"name"`

	// Label is the operator-facing description, e.g. "K-turn LEFT".
	Label string `json:"label"`

	// Steps run in order.
	Steps []TimedStep `json:"steps"`

	// PreStop issues a motor stop before the first step.
	PreStop bool `json:"pre_stop,omitempty"`
}

// Duration returns the sum of the step holds.
func (m Maneuver) Duration() time.Duration {
	var d time.Duration
	for _, s := range m.Steps {
		d += s.hold
	}
	return d
}

// Mirror returns a copy with every steering angle sign flipped.
func (m Maneuver) Mirror(name, label string) Maneuver {
	steps := make([]TimedStep, len(m.Steps))
	for i, s := range m.Steps {
		steps[i] = s.Mirror()
	}
	return Maneuver{Name: name, Label: label, Steps: steps, PreStop: m.PreStop}
}

// Validate re-checks every step. Steps built with NewTimedStep always pass;
// a zero-value TimedStep also passes (straight, stopped, no hold).
func (m Maneuver) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: maneuver has no name", robot.ErrInvalidParameter)
	}
	for i, s := range m.Steps {
		if _, err := NewTimedStep(s.angle, s.direction, s.speed, s.hold); err != nil {
			return fmt.Errorf("%s step %d: %w", m.Name, i+1, err)
		}
	}
	return nil
}
