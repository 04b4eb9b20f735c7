// Package robot provides the motion primitives of a PiCar-X style robot:
// a front steering servo and a pair of rear drive motors.
//
// This package follows the Interface Segregation Principle (ISP) by defining
// small, focused interfaces that can be composed as needed. Consumers should
// depend only on the interfaces they actually use.
package robot

// SteeringController positions the front steering servo.
// Angles are whole degrees, negative is left, 0 is straight.
type SteeringController interface {
	SetSteeringAngle(angle int) error
}

// DriveController sets rear motor direction and throttle.
// Speed is a percentage of max motor output; 0 is equivalent to stop.
type DriveController interface {
	DriveForward(speed int) error
	DriveBackward(speed int) error
	// StopMotors is idempotent and safe to call in any state.
	StopMotors() error
}

// Controller is the composite interface for full robot control.
// Implementations are assumed calibrated and synchronous: a nil return
// means the actuator acknowledged the command.
type Controller interface {
	SteeringController
	DriveController
}

// Ensure the shipped controllers implement Controller
var (
	_ Controller = (*HTTPController)(nil)
	_ Controller = (*SimController)(nil)
	_ Controller = (*Recorder)(nil)
	_ Controller = (*trimmed)(nil)
)
