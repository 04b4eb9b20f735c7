package movement

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-picarx/pkg/robot"
)

func TestCatalogue_AllValid(t *testing.T) {
	cat := Catalogue()
	require.Len(t, cat, 8)

	for name, m := range cat {
		assert.Equal(t, name, m.Name)
		assert.NoError(t, m.Validate(), name)
		assert.NotEmpty(t, m.Label, name)
		for _, s := range m.Steps {
			assert.GreaterOrEqual(t, s.Angle(), robot.MinSteeringAngle)
			assert.LessOrEqual(t, s.Angle(), robot.MaxSteeringAngle)
			assert.GreaterOrEqual(t, s.Speed(), robot.MinSpeed)
			assert.LessOrEqual(t, s.Speed(), robot.MaxSpeed)
			assert.GreaterOrEqual(t, s.Hold(), time.Duration(0))
		}
	}
}

func TestMirror_ParallelPark(t *testing.T) {
	left, right := ParallelPark(Left), ParallelPark(Right)

	assert.Equal(t, left.Mirror("", "").Steps, right.Steps)
	require.Len(t, left.Steps, 3)
	for i := range left.Steps {
		assert.Equal(t, -left.Steps[i].Angle(), right.Steps[i].Angle())
		assert.Equal(t, left.Steps[i].Speed(), right.Steps[i].Speed())
		assert.Equal(t, left.Steps[i].Hold(), right.Steps[i].Hold())
		assert.Equal(t, left.Steps[i].Direction(), right.Steps[i].Direction())
	}
}

func TestMirror_KTurn(t *testing.T) {
	left, right := KTurn(Left), KTurn(Right)

	assert.Equal(t, left.Mirror("", "").Steps, right.Steps)
	assert.Equal(t, right.Steps, right.Mirror("", "").Mirror("", "").Steps)
}

func TestParallelPark_Recipe(t *testing.T) {
	m := ParallelPark(Left)

	assert.Equal(t, "parallel-park-left", m.Name)
	assert.False(t, m.PreStop)
	assert.True(t, ParallelPark(Right).PreStop)
	assert.Equal(t, []TimedStep{
		MustStep(-30, Backward, 50, 1200*time.Millisecond),
		MustStep(30, Backward, 50, 1200*time.Millisecond),
		MustStep(0, Forward, 50, 1500*time.Millisecond),
	}, m.Steps)
	assert.Equal(t, 3900*time.Millisecond, m.Duration())
}

func TestKTurn_Recipe(t *testing.T) {
	m := KTurn(Right)

	assert.Equal(t, "K-turn RIGHT", m.Label)
	assert.Equal(t, []TimedStep{
		MustStep(30, Forward, 50, 1500*time.Millisecond),
		MustStep(-30, Backward, 50, 1500*time.Millisecond),
		MustStep(30, Forward, 50, 1200*time.Millisecond),
	}, m.Steps)
}

func TestDriveStraight_Names(t *testing.T) {
	tests := []struct {
		dir   Direction
		angle int
		name  string
		label string
	}{
		{Forward, 0, "forward", "Forward"},
		{Backward, 0, "backward", "Backward"},
		{Forward, -25, "forward-left-25", "Forward with LEFT turn"},
		{Forward, 25, "forward-right-25", "Forward with RIGHT turn"},
		{Backward, 10, "backward-right-10", "Backward with RIGHT turn"},
	}
	for _, tt := range tests {
		m, err := DriveStraight(tt.dir, 30, time.Second, tt.angle)
		require.NoError(t, err)
		assert.Equal(t, tt.name, m.Name)
		assert.Equal(t, tt.label, m.Label)
		require.Len(t, m.Steps, 1)
	}
}

func TestNewTimedStep_Rejects(t *testing.T) {
	cases := []struct {
		angle, speed int
		dir          Direction
		hold         time.Duration
	}{
		{-31, 30, Forward, time.Second},
		{31, 30, Forward, time.Second},
		{0, -1, Forward, time.Second},
		{0, 101, Backward, time.Second},
		{0, 30, Direction(9), time.Second},
		{0, 30, Forward, -time.Millisecond},
	}
	for _, c := range cases {
		_, err := NewTimedStep(c.angle, c.dir, c.speed, c.hold)
		assert.ErrorIs(t, err, robot.ErrInvalidParameter, "%+v", c)
	}

	assert.Panics(t, func() { MustStep(45, Forward, 30, time.Second) })
}

func TestLookup(t *testing.T) {
	m, err := Lookup("k-turn-left")
	require.NoError(t, err)
	assert.Equal(t, KTurn(Left), m)

	_, err = Lookup("donut")
	assert.ErrorIs(t, err, ErrUnknownManeuver)

	assert.Contains(t, Names(), "parallel-park-right")
}

func TestParseSide(t *testing.T) {
	s, err := ParseSide("L")
	require.NoError(t, err)
	assert.Equal(t, Left, s)
	assert.Equal(t, Right, s.Opposite())

	_, err = ParseSide("up")
	assert.ErrorIs(t, err, robot.ErrInvalidParameter)
}

func TestTimedStep_JSON(t *testing.T) {
	data, err := json.Marshal(KTurn(Left))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"angle":-30,"direction":"forward","speed":50,"hold_sec":1.5`)

	var m Maneuver
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, KTurn(Left), m)

	var bad TimedStep
	err = json.Unmarshal([]byte(`{"angle":90,"direction":"forward","speed":10,"hold_sec":1}`), &bad)
	assert.ErrorIs(t, err, robot.ErrInvalidParameter)
}
