package movement

import "errors"

var (
	// ErrInterrupted is returned when Stop or context cancellation ends a
	// maneuver early. The robot has been stopped and centered.
	ErrInterrupted = errors.New("movement: maneuver interrupted")

	// ErrBusy is returned when a maneuver is requested while another runs.
	ErrBusy = errors.New("movement: another maneuver is running")

	// ErrUnknownManeuver is returned when a catalogue lookup fails.
	ErrUnknownManeuver = errors.New("movement: unknown maneuver")
)
