package movement

import (
	"fmt"
	"sort"
	"time"

	"github.com/teslashibe/go-picarx/pkg/robot"
)

// Recipe constants. Speed 50 moves the car about one car length over in a
// parallel park.
const (
	DefaultSpeed = 30
	DefaultHold  = time.Second

	ManeuverSpeed = 50
	FullLock      = robot.MaxSteeringAngle

	parkReverseHold = 1200 * time.Millisecond
	parkPullHold    = 1500 * time.Millisecond
	kTurnFirstHold  = 1500 * time.Millisecond
	kTurnBackHold   = 1500 * time.Millisecond
	kTurnFinishHold = 1200 * time.Millisecond
)

// ============================================================
// Straight driving
// ============================================================

// DriveStraight builds a single-step maneuver. Despite the name the step
// may carry a steering angle, for gentle curves.
func DriveStraight(dir Direction, speed int, hold time.Duration, angle int) (Maneuver, error) {
	step, err := NewTimedStep(angle, dir, speed, hold)
	if err != nil {
		return Maneuver{}, err
	}

	name, label := "drive-"+dir.String(), "Drive "+dir.String()
	switch {
	case dir == Forward && angle == 0:
		name, label = "forward", "Forward"
	case dir == Backward && angle == 0:
		name, label = "backward", "Backward"
	case angle < 0:
		name, label = fmt.Sprintf("%s-left-%d", dir, -angle), fmt.Sprintf("%s with LEFT turn", titleDir(dir))
	case angle > 0:
		name, label = fmt.Sprintf("%s-right-%d", dir, angle), fmt.Sprintf("%s with RIGHT turn", titleDir(dir))
	}
	return Maneuver{Name: name, Label: label, Steps: []TimedStep{step}}, nil
}

func titleDir(d Direction) string {
	switch d {
	case Forward:
		return "Forward"
	case Backward:
		return "Backward"
	}
	return "Stopped"
}

// ============================================================
// Parallel parking
// ============================================================

// ParallelPark backs into a space on side, straightens, then pulls forward
// to center. The car starts parallel to the space.
//
// The right-hand version stops the motors first; the left one doesn't.
func ParallelPark(side Side) Maneuver {
	toward := side.Sign() * FullLock
	return Maneuver{
		Name:    "parallel-park-" + side.String(),
		Label:   "Parallel park " + upper(side),
		PreStop: side == Right,
		Steps: []TimedStep{
			MustStep(toward, Backward, ManeuverSpeed, parkReverseHold),
			MustStep(-toward, Backward, ManeuverSpeed, parkReverseHold),
			MustStep(0, Forward, ManeuverSpeed, parkPullHold),
		},
	}
}

// ============================================================
// Three-point turn
// ============================================================

// KTurn turns the car around in a confined space: forward toward side,
// reverse away from it, forward toward it again. The final centering is the
// Engine's implicit cleanup and runs even if the last step is interrupted.
func KTurn(side Side) Maneuver {
	toward := side.Sign() * FullLock
	return Maneuver{
		Name:  "k-turn-" + side.String(),
		Label: "K-turn " + upper(side),
		Steps: []TimedStep{
			MustStep(toward, Forward, ManeuverSpeed, kTurnFirstHold),
			MustStep(-toward, Backward, ManeuverSpeed, kTurnBackHold),
			MustStep(toward, Forward, ManeuverSpeed, kTurnFinishHold),
		},
	}
}

func upper(s Side) string {
	if s == Left {
		return "LEFT"
	}
	return "RIGHT"
}

// ============================================================
// Catalogue
// ============================================================

// Catalogue returns every fixed maneuver keyed by name. Each call returns
// fresh values, so callers may modify the result.
func Catalogue() map[string]Maneuver {
	moves := []Maneuver{
		mustDrive(Forward, DefaultSpeed, DefaultHold, 0),
		mustDrive(Backward, DefaultSpeed, DefaultHold, 0),
		mustDrive(Forward, DefaultSpeed, DefaultHold, -25),
		mustDrive(Forward, DefaultSpeed, DefaultHold, 25),
		ParallelPark(Left),
		ParallelPark(Right),
		KTurn(Left),
		KTurn(Right),
	}
	out := make(map[string]Maneuver, len(moves))
	for _, m := range moves {
		out[m.Name] = m
	}
	return out
}

// Names returns the catalogue names in sorted order.
func Names() []string {
	cat := Catalogue()
	names := make([]string, 0, len(cat))
	for name := range cat {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the catalogue maneuver with the given name.
func Lookup(name string) (Maneuver, error) {
	m, ok := Catalogue()[name]
	if !ok {
		return Maneuver{}, fmt.Errorf("%w: %q", ErrUnknownManeuver, name)
	}
	return m, nil
}

func mustDrive(dir Direction, speed int, hold time.Duration, angle int) Maneuver {
	m, err := DriveStraight(dir, speed, hold, angle)
	if err != nil {
		panic(err)
	}
	return m
}
