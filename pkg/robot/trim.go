package robot

import "fmt"

// MaxSteeringTrim bounds the calibration offset. A larger offset means the
// servo horn is mounted wrong, not that it needs trimming.
const MaxSteeringTrim = 10

// trimmed adds a fixed calibration offset to every steering command.
type trimmed struct {
	Controller
	offset int
}

// ValidateTrim rejects offsets outside [-MaxSteeringTrim, MaxSteeringTrim].
func ValidateTrim(offset int) error {
	if offset < -MaxSteeringTrim || offset > MaxSteeringTrim {
		return fmt.Errorf("%w: steering trim %d outside [%d, %d]",
			ErrInvalidParameter, offset, -MaxSteeringTrim, MaxSteeringTrim)
	}
	return nil
}

// WithSteeringTrim returns ctrl with offset degrees added to each steering
// angle after validation, so a servo mounted slightly off-center drives
// straight at angle 0. A zero offset returns ctrl unchanged. Offsets beyond
// MaxSteeringTrim are rejected, so the servo never sees more than
// MaxSteeringAngle+MaxSteeringTrim.
func WithSteeringTrim(ctrl Controller, offset int) (Controller, error) {
	if err := ValidateTrim(offset); err != nil {
		return nil, err
	}
	if offset == 0 {
		return ctrl, nil
	}
	return &trimmed{Controller: ctrl, offset: offset}, nil
}

// SetSteeringAngle applies the trim offset.
func (t *trimmed) SetSteeringAngle(angle int) error {
	return t.Controller.SetSteeringAngle(angle + t.offset)
}
