package teleop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/teslashibe/go-picarx/internal/log"
	"github.com/teslashibe/go-picarx/pkg/dispatch"
	"github.com/teslashibe/go-picarx/pkg/protocol"
)

// Relay drives a remote car from a local key source and mirrors the car's
// dispatcher state and diagnostics to a local observer.
type Relay struct {
	client *Client
	obs    dispatch.Observer
	log    *slog.Logger

	state dispatch.State
}

// NewRelay creates a relay over an open client connection.
func NewRelay(client *Client, obs dispatch.Observer, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = log.L()
	}
	return &Relay{client: client, obs: obs, log: logger.With("component", "relay")}
}

// Run forwards key presses from src until the car terminates, src ends,
// the operator interrupts or ctx is cancelled. An interrupt sends a stop
// to the car but leaves it running. A dropped connection is an error.
func (r *Relay) Run(ctx context.Context, src dispatch.Source) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- r.forward(ctx, src) }()

	for {
		select {
		case msg, ok := <-r.client.Messages():
			if !ok {
				if err := r.client.Err(); err != nil {
					return fmt.Errorf("teleop: connection lost: %w", err)
				}
				return ErrClosed
			}
			if r.apply(msg) {
				return nil
			}
		case err := <-errc:
			return err
		case <-ctx.Done():
			return nil
		}
	}
}

func (r *Relay) forward(ctx context.Context, src dispatch.Source) error {
	for {
		ev, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		switch {
		case ev.Kind == dispatch.InterruptEvent:
			if err := r.client.SendStop("operator left"); err != nil {
				r.log.Warn("stop not sent", "err", err)
			}
			return nil
		case ev.Kind == dispatch.FaultEvent:
			r.local(slog.LevelWarn, dispatch.ReportInputFault, "",
				fmt.Sprintf("Ignoring unreadable input: %v", ev.Err))
		case ev.Key == 0:
			r.local(slog.LevelWarn, dispatch.ReportUnknownKey, ev.Display(),
				fmt.Sprintf("Unknown key: '%s'", ev.Display()))
		default:
			if err := r.client.SendKey(ev.Key); err != nil {
				return err
			}
		}
	}
}

// apply mirrors one message from the car. It reports whether the car's
// dispatcher has terminated.
func (r *Relay) apply(msg *protocol.Message) bool {
	switch msg.Type {
	case protocol.TypeState:
		data, err := msg.GetStateData()
		if err != nil {
			return false
		}
		st, err := dispatch.ParseState(data.Dispatcher)
		if err != nil {
			r.log.Debug("ignoring state", "err", err)
			return false
		}
		if st != r.state {
			r.obs.StateChanged(r.state, st)
			r.state = st
		}
		return st == dispatch.Terminated
	case protocol.TypeDiagnostic:
		if data, err := msg.GetDiagnosticData(); err == nil {
			r.obs.Report(ReportFromData(*data))
		}
	case protocol.TypeError:
		if data, err := msg.GetErrorData(); err == nil {
			r.local(slog.LevelWarn, dispatch.ReportError, "", data.Message)
		}
	case protocol.TypeRun:
		if data, err := msg.GetRunData(); err == nil {
			r.log.Debug("run", "maneuver", data.Maneuver, "outcome", data.Outcome)
		}
	}
	return false
}

func (r *Relay) local(level slog.Level, kind dispatch.ReportKind, key, msg string) {
	r.obs.Report(dispatch.Report{
		Time:    time.Now(),
		Level:   level,
		Kind:    kind,
		Key:     key,
		Message: msg,
	})
}
