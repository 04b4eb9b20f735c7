package movement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-picarx/pkg/robot"
)

// Sleeper holds a step for its duration.
// Wait returns early with ctx.Err() when ctx is cancelled.
type Sleeper interface {
	Wait(ctx context.Context, d time.Duration) error
}

// TimerSleeper waits on a real timer and returns as soon as ctx is cancelled.
type TimerSleeper struct{}

// Wait implements Sleeper.
func (TimerSleeper) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BlockingSleeper always waits the full duration and ignores cancellation,
// so a stop request is only observed once the hold has elapsed.
type BlockingSleeper struct{}

// Wait implements Sleeper.
func (BlockingSleeper) Wait(_ context.Context, d time.Duration) error {
	time.Sleep(d)
	return nil
}

// Primitives is the slice of the robot session the executor drives.
type Primitives interface {
	SetSteeringAngle(angle int) error
	DriveForward(speed int) error
	DriveBackward(speed int) error
	StopMotors() error
}

var _ Primitives = (*robot.Session)(nil)

// Executor runs single timed steps.
type Executor struct {
	hw    Primitives
	sleep Sleeper
}

// NewExecutor creates an executor. A nil sleeper uses TimerSleeper.
func NewExecutor(hw Primitives, sleep Sleeper) *Executor {
	if sleep == nil {
		sleep = TimerSleeper{}
	}
	return &Executor{hw: hw, sleep: sleep}
}

// Execute steers, drives, holds and stops.
//
// Motors are always stopped before Execute returns, including after a
// hardware fault or an interrupted hold. The steering angle is left as the
// step set it. A cancelled ctx yields ErrInterrupted.
func (x *Executor) Execute(ctx context.Context, step TimedStep) (err error) {
	defer func() {
		if stopErr := x.hw.StopMotors(); stopErr != nil {
			err = errors.Join(err, stopErr)
		}
	}()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	if err := x.hw.SetSteeringAngle(step.angle); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}

	switch step.direction {
	case Forward:
		err = x.hw.DriveForward(step.speed)
	case Backward:
		err = x.hw.DriveBackward(step.speed)
	default:
		err = x.hw.StopMotors()
	}
	if err != nil {
		return err
	}

	if err := x.sleep.Wait(ctx, step.hold); err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	return nil
}
