package movement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-picarx/internal/log"
	"github.com/teslashibe/go-picarx/pkg/robot"
)

func newEngine(cfg Config) (*Engine, *robot.Recorder) {
	rec := robot.NewRecorder()
	return NewEngine(robot.NewSession(rec, log.Discard()), rec, cfg, log.Discard()), rec
}

func TestEngine_DriveStraightTrace(t *testing.T) {
	e, rec := newEngine(DefaultConfig())

	require.NoError(t, e.DriveStraight(context.Background(), Forward, 30, time.Second, 0))

	assert.Equal(t, []string{
		"setSteeringAngle(0)",
		"driveForward(30)",
		"wait(1)",
		"stopMotors()",
	}, rec.Trace())
}

func TestEngine_DriveWithAngleRecenters(t *testing.T) {
	e, rec := newEngine(DefaultConfig())

	require.NoError(t, e.DriveStraight(context.Background(), Forward, 30, time.Second, -25))

	assert.Equal(t, []string{
		"setSteeringAngle(-25)",
		"driveForward(30)",
		"wait(1)",
		"stopMotors()",
		"setSteeringAngle(0)",
	}, rec.Trace())
	assert.True(t, rec.State().Safe())
}

func TestEngine_ParallelParkLeftTrace(t *testing.T) {
	e, rec := newEngine(DefaultConfig())

	require.NoError(t, e.ParallelPark(context.Background(), Left))

	assert.Equal(t, []string{
		"setSteeringAngle(-30)", "driveBackward(50)", "wait(1.2)", "stopMotors()",
		"setSteeringAngle(30)", "driveBackward(50)", "wait(1.2)", "stopMotors()",
		"setSteeringAngle(0)", "driveForward(50)", "wait(1.5)", "stopMotors()",
	}, rec.Trace())
}

func TestEngine_ParallelParkRightStopsFirst(t *testing.T) {
	e, rec := newEngine(DefaultConfig())

	require.NoError(t, e.ParallelPark(context.Background(), Right))

	trace := rec.Trace()
	assert.Equal(t, "stopMotors()", trace[0])
	assert.Equal(t, "setSteeringAngle(30)", trace[1])
	assert.Equal(t, "setSteeringAngle(-30)", trace[5])
}

func TestEngine_KTurnCentersAtEnd(t *testing.T) {
	e, rec := newEngine(DefaultConfig())

	require.NoError(t, e.KTurn(context.Background(), Left))

	assert.Equal(t, []string{
		"setSteeringAngle(-30)", "driveForward(50)", "wait(1.5)", "stopMotors()",
		"setSteeringAngle(30)", "driveBackward(50)", "wait(1.5)", "stopMotors()",
		"setSteeringAngle(-30)", "driveForward(50)", "wait(1.2)", "stopMotors()",
		"setSteeringAngle(0)",
	}, rec.Trace())
}

func TestEngine_PostConditionEveryManeuver(t *testing.T) {
	for name := range Catalogue() {
		t.Run(name, func(t *testing.T) {
			e, rec := newEngine(DefaultConfig())
			require.NoError(t, e.RunNamed(context.Background(), name))
			assert.True(t, rec.State().Safe(), "%s ended in %+v", name, rec.State())
		})
	}
}

func TestEngine_PostConditionUnderFaultAtEveryStep(t *testing.T) {
	for name, m := range Catalogue() {
		// Two fallible primitives per step: steering then drive.
		for failAt := 1; failAt <= 2*len(m.Steps); failAt++ {
			e, rec := newEngine(DefaultConfig())
			rec.FailAt = failAt

			err := e.Run(context.Background(), m)
			require.Error(t, err, "%s fail at %d", name, failAt)
			assert.True(t, robot.IsHardwareFault(err), "%s fail at %d: %v", name, failAt, err)
			assert.True(t, rec.State().Safe(), "%s fail at %d ended in %+v", name, failAt, rec.State())

			trace := rec.Trace()
			require.GreaterOrEqual(t, len(trace), 2)
			assert.Equal(t, []string{"stopMotors()", "setSteeringAngle(0)"}, trace[len(trace)-2:],
				"%s fail at %d: emergency stop and center must come last", name, failAt)
		}
	}
}

func TestEngine_KTurnFaultOnThirdPrimitive(t *testing.T) {
	e, rec := newEngine(DefaultConfig())
	rec.FailAt = 3

	err := e.KTurn(context.Background(), Left)
	require.Error(t, err)
	assert.ErrorIs(t, err, robot.ErrInjectedFault)

	assert.Equal(t, []string{
		"setSteeringAngle(-30)", "driveForward(50)", "wait(1.5)", "stopMotors()",
		"setSteeringAngle(30)", // faulted
		"stopMotors()",         // step cleanup
		"stopMotors()",         // emergency stop
		"setSteeringAngle(0)",  // center
	}, rec.Trace())
	assert.Zero(t, rec.Count(robot.OpDriveBackward), "no further K-turn steps may run")

	st := e.Status()
	require.NotNil(t, st.LastRun)
	assert.Equal(t, OutcomeFault, st.LastRun.Outcome)
}

func TestEngine_FaultAndFailedStopAreBothReported(t *testing.T) {
	e, rec := newEngine(DefaultConfig())
	rec.FailAt = 1
	rec.StopErr = errors.New("motor driver offline")

	err := e.KTurn(context.Background(), Right)
	require.Error(t, err)
	assert.ErrorIs(t, err, robot.ErrInjectedFault)
	assert.Contains(t, err.Error(), "motor driver offline")
	assert.Contains(t, err.Error(), "stopMotors()")
	assert.False(t, e.Running(), "engine must release the run even when stop fails")
}

func TestEngine_StopIdleIsIdempotent(t *testing.T) {
	e, rec := newEngine(DefaultConfig())

	for i := 0; i < 3; i++ {
		require.NoError(t, e.Stop())
	}

	assert.Equal(t, []string{
		"stopMotors()", "setSteeringAngle(0)",
		"stopMotors()", "setSteeringAngle(0)",
		"stopMotors()", "setSteeringAngle(0)",
	}, rec.Trace())
	assert.True(t, rec.State().Safe())
}

func TestEngine_StopInterruptsHold(t *testing.T) {
	e, rec := newEngine(DefaultConfig())
	rec.BlockWaits = true

	done := make(chan error, 1)
	go func() { done <- e.KTurn(context.Background(), Left) }()

	<-rec.Waiting()
	require.True(t, e.Running())
	require.NoError(t, e.Stop())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrInterrupted)
	case <-time.After(time.Second):
		t.Fatal("KTurn did not return after Stop")
	}

	assert.True(t, rec.State().Safe())
	assert.Zero(t, rec.Count(robot.OpDriveBackward))

	var centers, lastSteer int
	for i, c := range rec.Calls() {
		if c.Op == robot.OpSetSteeringAngle {
			lastSteer = i
			if c.Value == 0 {
				centers++
			}
		}
	}
	assert.Equal(t, 1, centers, "centering must be written exactly once")
	assert.Equal(t, float64(0), rec.Calls()[lastSteer].Value, "centering must be the last steering write")

	st := e.Status()
	require.NotNil(t, st.LastRun)
	assert.Equal(t, OutcomeInterrupted, st.LastRun.Outcome)
}

func TestEngine_ContextCancelInterrupts(t *testing.T) {
	e, rec := newEngine(DefaultConfig())
	rec.BlockWaits = true

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.ParallelPark(ctx, Right) }()

	<-rec.Waiting()
	cancel()

	assert.ErrorIs(t, <-done, ErrInterrupted)
	assert.True(t, rec.State().Safe())
}

// stopDuringHold calls stop from inside the first hold, the way a key press
// would land while a blocking sleep is in progress.
type stopDuringHold struct {
	rec  *robot.Recorder
	stop func() error
	once sync.Once
}

func (s *stopDuringHold) Wait(ctx context.Context, d time.Duration) error {
	s.once.Do(func() { _ = s.stop() })
	return s.rec.Wait(ctx, d)
}

func TestEngine_BlockingModeObservesStopAfterHold(t *testing.T) {
	rec := robot.NewRecorder()
	sleeper := &stopDuringHold{rec: rec}
	e := NewEngine(robot.NewSession(rec, log.Discard()), sleeper, Config{Interruptible: false}, log.Discard())
	sleeper.stop = e.Stop

	err := e.KTurn(context.Background(), Left)
	assert.ErrorIs(t, err, ErrInterrupted)

	assert.Equal(t, []string{
		"setSteeringAngle(-30)", "driveForward(50)", "wait(1.5)", "stopMotors()",
		"stopMotors()", "setSteeringAngle(0)",
	}, rec.Trace(), "the hold runs to completion, then remaining steps are skipped")
}

func TestEngine_BusyWhileRunning(t *testing.T) {
	e, rec := newEngine(DefaultConfig())
	rec.BlockWaits = true

	done := make(chan error, 1)
	go func() { done <- e.KTurn(context.Background(), Right) }()
	<-rec.Waiting()

	err := e.ParallelPark(context.Background(), Left)
	assert.ErrorIs(t, err, ErrBusy)
	assert.Contains(t, err.Error(), "k-turn-right")

	require.NoError(t, e.Stop())
	assert.ErrorIs(t, <-done, ErrInterrupted)
}

func TestEngine_InvalidDriveTouchesNothing(t *testing.T) {
	e, rec := newEngine(DefaultConfig())

	assert.ErrorIs(t, e.DriveStraight(context.Background(), Forward, 120, time.Second, 0), robot.ErrInvalidParameter)
	assert.ErrorIs(t, e.DriveStraight(context.Background(), Forward, 30, time.Second, 40), robot.ErrInvalidParameter)
	assert.ErrorIs(t, e.DriveStraight(context.Background(), Forward, 30, -time.Second, 0), robot.ErrInvalidParameter)
	assert.Empty(t, rec.Calls())
	assert.Zero(t, e.Status().Runs)
}

func TestEngine_RunNamedUnknown(t *testing.T) {
	e, rec := newEngine(DefaultConfig())

	assert.ErrorIs(t, e.RunNamed(context.Background(), "moonwalk"), ErrUnknownManeuver)
	assert.Empty(t, rec.Calls())
}

// There is no maximum-maneuver-duration watchdog: a maneuver with an
// arbitrarily long hold runs until the hold elapses or Stop is called.
func TestEngine_NoWatchdog(t *testing.T) {
	e, rec := newEngine(DefaultConfig())

	m := Maneuver{Name: "long-haul", Steps: []TimedStep{MustStep(0, Forward, 10, 24*time.Hour)}}
	require.NoError(t, e.Run(context.Background(), m))
	assert.Contains(t, rec.Trace(), "wait(86400)")
}

func TestEngine_RunRecords(t *testing.T) {
	e, _ := newEngine(DefaultConfig())

	var mu sync.Mutex
	var events []Run
	e.OnRun(func(r Run) {
		mu.Lock()
		events = append(events, r)
		mu.Unlock()
	})

	require.NoError(t, e.KTurn(context.Background(), Left))
	require.NoError(t, e.ParallelPark(context.Background(), Right))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 4)
	assert.Equal(t, OutcomeRunning, events[0].Outcome)
	assert.Equal(t, OutcomeCompleted, events[1].Outcome)
	assert.Equal(t, events[0].ID, events[1].ID)
	assert.NotEqual(t, events[1].ID, events[3].ID)
	_, err := uuid.Parse(events[3].ID)
	assert.NoError(t, err)

	st := e.Status()
	assert.False(t, st.Running)
	assert.Equal(t, uint64(2), st.Runs)
	require.NotNil(t, st.LastRun)
	assert.Equal(t, "parallel-park-right", st.LastRun.Maneuver)
	assert.True(t, st.Hardware.Safe())
}
