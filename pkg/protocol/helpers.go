package protocol

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrBadKey is returned for key messages that do not name exactly one key.
var ErrBadKey = errors.New("protocol: key must be one character or \"space\"")

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewKeyMessage creates a key press message. A space is sent as "space".
func NewKeyMessage(key rune) (*Message, error) {
	name := string(key)
	if key == ' ' {
		name = "space"
	}
	return NewMessage(TypeKey, KeyData{Key: name})
}

// NewStopMessage creates an emergency stop message
func NewStopMessage(reason string) (*Message, error) {
	return NewMessage(TypeStop, StopData{Reason: reason})
}

// NewStateMessage creates a state message
func NewStateMessage(state StateData) (*Message, error) {
	return NewMessage(TypeState, state)
}

// NewDiagnosticMessage creates a diagnostic message
func NewDiagnosticMessage(d DiagnosticData) (*Message, error) {
	return NewMessage(TypeDiagnostic, d)
}

// NewRunMessage creates a run record message
func NewRunMessage(run RunData) (*Message, error) {
	return NewMessage(TypeRun, run)
}

// NewErrorMessage creates an error reply
func NewErrorMessage(format string, args ...any) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Message: fmt.Sprintf(format, args...)})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: 0, // Will be set by NewMessage
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetKeyData extracts key data from a message
func (m *Message) GetKeyData() (*KeyData, error) {
	var data KeyData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Rune returns the pressed key as a character.
func (k *KeyData) Rune() (rune, error) {
	return ParseKey(k.Key)
}

// ParseKey converts a key name to its character: "space" or " " is a
// space, anything else must be a single character.
func ParseKey(s string) (rune, error) {
	if s == "space" || s == " " {
		return ' ', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("%w: %q", ErrBadKey, s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

// GetStopData extracts stop data from a message
func (m *Message) GetStopData() (*StopData, error) {
	var data StopData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetStateData extracts state data from a message
func (m *Message) GetStateData() (*StateData, error) {
	var data StateData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetDiagnosticData extracts diagnostic data from a message
func (m *Message) GetDiagnosticData() (*DiagnosticData, error) {
	var data DiagnosticData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetRunData extracts run data from a message
func (m *Message) GetRunData() (*RunData, error) {
	var data RunData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error data from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
