package teleop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-picarx/internal/log"
	"github.com/teslashibe/go-picarx/pkg/dispatch"
	"github.com/teslashibe/go-picarx/pkg/movement"
	"github.com/teslashibe/go-picarx/pkg/protocol"
	"github.com/teslashibe/go-picarx/pkg/robot"
)

type mirror struct {
	mu      sync.Mutex
	states  []string
	reports []dispatch.Report
}

func (m *mirror) StateChanged(from, to dispatch.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, from.String()+"->"+to.String())
}

func (m *mirror) Report(r dispatch.Report) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
}

func (m *mirror) messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, r := range m.reports {
		out = append(out, r.Message)
	}
	return out
}

func TestReportFromData(t *testing.T) {
	r := ReportFromData(protocol.DiagnosticData{
		Kind:    "hardware_fault",
		Level:   "ERROR",
		Key:     "z",
		Message: "Hardware fault",
		Error:   "servo timeout",
	})
	assert.Equal(t, dispatch.ReportHardwareFault, r.Kind)
	assert.Equal(t, "ERROR", r.Level.String())
	assert.Equal(t, "z", r.Key)
	require.Error(t, r.Err)
	assert.Equal(t, "servo timeout", r.Err.Error())

	r = ReportFromData(protocol.DiagnosticData{Kind: "action", Level: "bogus"})
	assert.Equal(t, "INFO", r.Level.String())
	assert.NoError(t, r.Err)
}

func TestRelay_DrivesRemoteCar(t *testing.T) {
	rec := robot.NewRecorder()
	engine := movement.NewEngine(robot.NewSession(rec, log.Discard()), rec, movement.DefaultConfig(), log.Discard())
	sink := dispatch.NewChanSource("teleop", 8)

	var d *dispatch.Dispatcher
	ep := New(sink, func() protocol.StateData { return StateData(d.State(), engine.Status()) }, log.Discard())
	d = dispatch.New(engine, nil, log.Discard(), ep)

	url := startEndpoint(t, "18110", ep)
	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background(), sink) }()

	c, err := Dial(context.Background(), url)
	require.NoError(t, err)
	defer c.Close()

	obs := &mirror{}
	keys := dispatch.NewChanSource("local", 8)
	relayDone := make(chan error, 1)
	go func() { relayDone <- NewRelay(c, obs, log.Discard()).Run(context.Background(), keys) }()

	require.NoError(t, keys.Push(dispatch.NamedKey("up")))
	require.NoError(t, keys.Push(dispatch.Key('p')))
	assert.Eventually(t, func() bool {
		msgs := obs.messages()
		return len(msgs) >= 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, obs.messages(), "Unknown key: 'up'")
	assert.Contains(t, obs.messages(), "Unknown key: 'p'")

	require.NoError(t, keys.Push(dispatch.Key('x')))
	select {
	case err := <-relayDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not see the car terminate")
	}
	require.NoError(t, <-done)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.NotEmpty(t, obs.states)
	assert.Equal(t, "idle->terminated", obs.states[len(obs.states)-1])
	assert.Zero(t, rec.Count(robot.OpDriveForward))
	assert.True(t, rec.State().Safe())
}

func TestRelay_InterruptSendsStop(t *testing.T) {
	sink := dispatch.NewChanSource("teleop", 8)
	ep := New(sink, nil, log.Discard())
	url := startEndpoint(t, "18111", ep)

	c, err := Dial(context.Background(), url)
	require.NoError(t, err)
	defer c.Close()

	keys := dispatch.NewChanSource("local", 2)
	require.NoError(t, keys.Push(dispatch.Interrupt()))
	require.NoError(t, NewRelay(c, &mirror{}, log.Discard()).Run(context.Background(), keys))

	ev := nextEvent(t, sink)
	assert.Equal(t, ' ', ev.Key)
}

func TestRelay_ConnectionLost(t *testing.T) {
	ep := New(dispatch.NewChanSource("teleop", 1), nil, log.Discard())
	url := startEndpoint(t, "18112", ep)

	c, err := Dial(context.Background(), url)
	require.NoError(t, err)

	keys := dispatch.NewChanSource("local", 1)
	errc := make(chan error, 1)
	go func() { errc <- NewRelay(c, &mirror{}, log.Discard()).Run(context.Background(), keys) }()

	time.Sleep(50 * time.Millisecond)
	c.conn.Close()

	select {
	case err := <-errc:
		require.Error(t, err)
		assert.False(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not notice the dropped connection")
	}
}
