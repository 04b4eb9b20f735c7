package robot

import "fmt"

// Physical limits of the steering servo and drive motors.
const (
	MinSteeringAngle = -30
	MaxSteeringAngle = 30
	MinSpeed         = 0
	MaxSpeed         = 100
)

// Direction is the commanded motor direction.
type Direction int

const (
	Stopped Direction = iota
	Forward
	Backward
)

// String returns the lower-case direction name.
func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// MarshalText encodes the direction by name.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a direction name.
func (d *Direction) UnmarshalText(text []byte) error {
	switch string(text) {
	case "forward":
		*d = Forward
	case "backward":
		*d = Backward
	case "stopped", "stop", "":
		*d = Stopped
	default:
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidParameter, text)
	}
	return nil
}

// State is the last commanded hardware state.
type State struct {
	Angle     int       `json:"angle"`
	Direction Direction `json:"direction"`
	Speed     int       `json:"speed"`
}

// Stopped reports whether the motors are not driving.
func (s State) Stopped() bool {
	return s.Direction == Stopped || s.Speed == 0
}

// Safe reports whether the robot is stopped with centered steering.
func (s State) Safe() bool {
	return s.Stopped() && s.Angle == 0
}

// ValidateAngle rejects steering angles outside [MinSteeringAngle, MaxSteeringAngle].
func ValidateAngle(angle int) error {
	if angle < MinSteeringAngle || angle > MaxSteeringAngle {
		return fmt.Errorf("%w: steering angle %d outside [%d, %d]",
			ErrInvalidParameter, angle, MinSteeringAngle, MaxSteeringAngle)
	}
	return nil
}

// ValidateSpeed rejects speeds outside [MinSpeed, MaxSpeed].
func ValidateSpeed(speed int) error {
	if speed < MinSpeed || speed > MaxSpeed {
		return fmt.Errorf("%w: speed %d outside [%d, %d]",
			ErrInvalidParameter, speed, MinSpeed, MaxSpeed)
	}
	return nil
}

// ClampAngle restricts angle to the servo range.
func ClampAngle(angle int) int {
	if angle < MinSteeringAngle {
		return MinSteeringAngle
	}
	if angle > MaxSteeringAngle {
		return MaxSteeringAngle
	}
	return angle
}
