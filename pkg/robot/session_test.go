package robot

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-picarx/internal/log"
)

func newTestSession() (*Session, *Recorder) {
	rec := NewRecorder()
	return NewSession(rec, log.Discard()), rec
}

func TestSession_RejectsOutOfRangeBeforeHardware(t *testing.T) {
	s, rec := newTestSession()

	for _, angle := range []int{-31, 31, -90, 180} {
		err := s.SetSteeringAngle(angle)
		assert.ErrorIs(t, err, ErrInvalidParameter, "angle %d", angle)
	}
	for _, speed := range []int{-1, 101} {
		assert.ErrorIs(t, s.DriveForward(speed), ErrInvalidParameter, "forward %d", speed)
		assert.ErrorIs(t, s.DriveBackward(speed), ErrInvalidParameter, "backward %d", speed)
	}

	assert.Empty(t, rec.Calls(), "invalid parameters must not reach the hardware")
}

func TestSession_AcceptsDomainBounds(t *testing.T) {
	s, rec := newTestSession()

	require.NoError(t, s.SetSteeringAngle(MinSteeringAngle))
	require.NoError(t, s.SetSteeringAngle(MaxSteeringAngle))
	require.NoError(t, s.DriveForward(MaxSpeed))
	require.NoError(t, s.DriveBackward(MinSpeed))

	assert.Equal(t, []string{
		"setSteeringAngle(-30)",
		"setSteeringAngle(30)",
		"driveForward(100)",
		"driveBackward(0)",
	}, rec.Trace())
}

func TestSession_TracksState(t *testing.T) {
	s, _ := newTestSession()

	require.NoError(t, s.SetSteeringAngle(-25))
	require.NoError(t, s.DriveForward(30))
	assert.Equal(t, State{Angle: -25, Direction: Forward, Speed: 30}, s.State())
	assert.False(t, s.State().Stopped())

	require.NoError(t, s.StopMotors())
	assert.True(t, s.State().Stopped())
	assert.False(t, s.State().Safe())

	require.NoError(t, s.Center())
	assert.True(t, s.State().Safe())
}

func TestSession_SpeedZeroIsStopped(t *testing.T) {
	s, _ := newTestSession()

	require.NoError(t, s.DriveBackward(0))
	assert.Equal(t, Stopped, s.State().Direction)
}

func TestSession_WrapsHardwareFault(t *testing.T) {
	s, rec := newTestSession()
	rec.FailAt = 2

	require.NoError(t, s.SetSteeringAngle(10))
	err := s.DriveForward(40)
	require.Error(t, err)

	var hf *HardwareFault
	require.True(t, errors.As(err, &hf))
	assert.Equal(t, OpDriveForward, hf.Op)
	assert.Equal(t, 40, hf.Value)
	assert.ErrorIs(t, err, ErrInjectedFault)
	assert.True(t, IsHardwareFault(err))

	commands, faults := s.Stats()
	assert.Equal(t, uint64(2), commands)
	assert.Equal(t, uint64(1), faults)
}

func TestSession_StopFaultIsReported(t *testing.T) {
	s, rec := newTestSession()
	rec.StopErr = errors.New("i2c bus timeout")

	err := s.StopMotors()
	require.Error(t, err)
	assert.True(t, IsHardwareFault(err))
	assert.Contains(t, err.Error(), "stopMotors()")
}

func TestSession_StopIsIdempotent(t *testing.T) {
	s, rec := newTestSession()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.StopMotors())
	}
	assert.Equal(t, 5, rec.Count(OpStopMotors))
	assert.True(t, s.State().Stopped())
}

func TestSession_SerializesConcurrentCallers(t *testing.T) {
	s, rec := newTestSession()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(angle int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = s.SetSteeringAngle(angle)
				_ = s.StopMotors()
			}
		}(i - 5)
	}
	wg.Wait()

	assert.Len(t, rec.Calls(), 10*50*2)
	assert.Equal(t, rec.State().Angle, s.State().Angle)
}

func TestHardwareFault_Error(t *testing.T) {
	err := &HardwareFault{Op: OpSetSteeringAngle, Value: -30, Err: ErrNotAcknowledged}
	assert.Equal(t, "robot: hardware fault in setSteeringAngle(-30): robot: actuator did not acknowledge", err.Error())
	assert.ErrorIs(t, err, ErrNotAcknowledged)
}

func TestClampAngle(t *testing.T) {
	assert.Equal(t, -30, ClampAngle(-45))
	assert.Equal(t, 30, ClampAngle(45))
	assert.Equal(t, 12, ClampAngle(12))
}

func TestDirection_Text(t *testing.T) {
	for _, d := range []Direction{Forward, Backward, Stopped} {
		text, err := d.MarshalText()
		require.NoError(t, err)

		var got Direction
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, d, got)
	}

	var d Direction
	assert.ErrorIs(t, d.UnmarshalText([]byte("sideways")), ErrInvalidParameter)
}
