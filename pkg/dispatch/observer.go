package dispatch

import (
	"context"
	"log/slog"
	"time"
)

// ReportKind classifies dispatcher diagnostics.
type ReportKind string

const (
	ReportAction        ReportKind = "action"
	ReportStop          ReportKind = "stop"
	ReportExit          ReportKind = "exit"
	ReportUnknownKey    ReportKind = "unknown_key"
	ReportInputFault    ReportKind = "input_fault"
	ReportInterrupted   ReportKind = "interrupted"
	ReportHardwareFault ReportKind = "hardware_fault"
	ReportBusy          ReportKind = "busy"
	ReportError         ReportKind = "error"
	// ReportHandled marks the end of processing for one event.
	ReportHandled ReportKind = "handled"
)

// Report is one operator-facing diagnostic.
type Report struct {
	Time    time.Time
	Level   slog.Level
	Kind    ReportKind
	Key     string
	Message string
	Err     error
}

// Observer receives dispatcher state changes and diagnostics. Calls are
// made synchronously from the dispatcher; implementations must not block.
type Observer interface {
	StateChanged(from, to State)
	Report(r Report)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnState  func(from, to State)
	OnReport func(r Report)
}

func (o ObserverFuncs) StateChanged(from, to State) {
	if o.OnState != nil {
		o.OnState(from, to)
	}
}

func (o ObserverFuncs) Report(r Report) {
	if o.OnReport != nil {
		o.OnReport(r)
	}
}

// LogObserver writes reports to a structured logger.
type LogObserver struct {
	Logger *slog.Logger
}

func (o LogObserver) StateChanged(from, to State) {
	o.Logger.Debug("dispatcher state", "from", from.String(), "to", to.String())
}

func (o LogObserver) Report(r Report) {
	if r.Kind == ReportHandled {
		return
	}
	attrs := []any{"kind", string(r.Kind)}
	if r.Key != "" {
		attrs = append(attrs, "key", r.Key)
	}
	if r.Err != nil {
		attrs = append(attrs, "err", r.Err)
	}
	o.Logger.Log(context.Background(), r.Level, r.Message, attrs...)
}
