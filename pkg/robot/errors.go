package robot

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrInvalidParameter is returned when an angle or speed is outside its domain.
	// Nothing is sent to the hardware.
	ErrInvalidParameter = errors.New("robot: invalid parameter")

	// ErrNotAcknowledged is returned by controllers when an actuator
	// did not confirm a command.
	ErrNotAcknowledged = errors.New("robot: actuator did not acknowledge")
)

// HardwareFault reports a motion primitive that failed to take effect.
// It is never retried automatically.
type HardwareFault struct {
	// Op is the primitive that failed, e.g. "setSteeringAngle".
	Op string

	// Value is the argument passed to the primitive (angle or speed).
	Value int

	// Err is the underlying controller error.
	Err error
}

// Error implements the error interface.
func (e *HardwareFault) Error() string {
	if e.Op == OpStopMotors {
		return fmt.Sprintf("robot: hardware fault in %s(): %v", e.Op, e.Err)
	}
	return fmt.Sprintf("robot: hardware fault in %s(%d): %v", e.Op, e.Value, e.Err)
}

// Unwrap returns the underlying error.
func (e *HardwareFault) Unwrap() error {
	return e.Err
}

// IsHardwareFault reports whether err carries a HardwareFault.
func IsHardwareFault(err error) bool {
	var hf *HardwareFault
	return errors.As(err, &hf)
}

// fault wraps err as a HardwareFault unless it already is one.
func fault(op string, value int, err error) error {
	if err == nil {
		return nil
	}
	var hf *HardwareFault
	if errors.As(err, &hf) {
		return err
	}
	return &HardwareFault{Op: op, Value: value, Err: err}
}
