package teleop

import (
	"errors"
	"log/slog"
	"time"

	"github.com/teslashibe/go-picarx/pkg/dispatch"
	"github.com/teslashibe/go-picarx/pkg/movement"
	"github.com/teslashibe/go-picarx/pkg/protocol"
)

// StateData converts dispatcher and engine state to the wire form.
func StateData(state dispatch.State, st movement.Status) protocol.StateData {
	out := protocol.StateData{
		Dispatcher: state.String(),
		Running:    st.Running,
		Hardware: protocol.HardwareState{
			Angle:     st.Hardware.Angle,
			Direction: st.Hardware.Direction.String(),
			Speed:     st.Hardware.Speed,
		},
		Runs: st.Runs,
	}
	if st.Current != nil {
		out.Maneuver = st.Current.Maneuver
	}
	return out
}

// DiagnosticData converts a dispatcher report to the wire form.
func DiagnosticData(r dispatch.Report) protocol.DiagnosticData {
	out := protocol.DiagnosticData{
		Kind:    string(r.Kind),
		Level:   r.Level.String(),
		Key:     r.Key,
		Message: r.Message,
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return out
}

// RunData converts a run record to the wire form.
func RunData(run movement.Run) protocol.RunData {
	out := protocol.RunData{
		ID:       run.ID,
		Maneuver: run.Maneuver,
		Label:    run.Label,
		Outcome:  string(run.Outcome),
		Started:  run.Started.UnixMilli(),
		Error:    run.Error,
	}
	if !run.Finished.IsZero() {
		out.Finished = run.Finished.UnixMilli()
	}
	return out
}

// ReportFromData converts a diagnostic received from a car back into a
// dispatcher report. Unknown levels read as info.
func ReportFromData(d protocol.DiagnosticData) dispatch.Report {
	var level slog.Level
	_ = level.UnmarshalText([]byte(d.Level))
	r := dispatch.Report{
		Time:    time.Now(),
		Level:   level,
		Kind:    dispatch.ReportKind(d.Kind),
		Key:     d.Key,
		Message: d.Message,
	}
	if d.Error != "" {
		r.Err = errors.New(d.Error)
	}
	return r
}
