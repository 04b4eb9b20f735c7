// Package protocol defines the WebSocket message types exchanged between the
// car and remote operator consoles.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Operator → Car messages
	TypeKey  MessageType = "key"  // Key press, handled like a terminal key
	TypeStop MessageType = "stop" // Emergency stop

	// Car → Operator messages
	TypeState      MessageType = "state"      // Dispatcher and hardware state
	TypeDiagnostic MessageType = "diagnostic" // Operator-facing report
	TypeRun        MessageType = "run"        // Maneuver run started or finished
	TypeError      MessageType = "error"      // Rejected message

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// =============================================================================
// Operator → Car Message Types
// =============================================================================

// KeyData carries one key press. Key is a single character, or "space".
type KeyData struct {
	Key string `json:"key"`
}

// StopData carries an optional reason for an emergency stop.
type StopData struct {
	Reason string `json:"reason,omitempty"`
}

// =============================================================================
// Car → Operator Message Types
// =============================================================================

// StateData describes the dispatcher and the car.
type StateData struct {
	Dispatcher string        `json:"dispatcher"` // "idle", "executing", "terminated"
	Running    bool          `json:"running"`
	Maneuver   string        `json:"maneuver,omitempty"` // Name of the running maneuver
	Hardware   HardwareState `json:"hardware"`
	Runs       uint64        `json:"runs"`
}

// HardwareState is the abstract actuator state.
type HardwareState struct {
	Angle     int    `json:"angle"`     // Degrees, negative = left
	Direction string `json:"direction"` // "forward", "backward", "stopped"
	Speed     int    `json:"speed"`     // Percent
}

// DiagnosticData is an operator-facing report from the dispatcher.
type DiagnosticData struct {
	Kind    string `json:"kind"`  // e.g. "unknown_key", "hardware_fault"
	Level   string `json:"level"` // "INFO", "WARN", "ERROR"
	Key     string `json:"key,omitempty"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// RunData describes one maneuver execution.
type RunData struct {
	ID       string `json:"id"`
	Maneuver string `json:"maneuver"`
	Label    string `json:"label"`
	Outcome  string `json:"outcome"`            // "running", "completed", "interrupted", "fault", "failed"
	Started  int64  `json:"started"`            // Unix milliseconds
	Finished int64  `json:"finished,omitempty"` // Unix milliseconds
	Error    string `json:"error,omitempty"`
}

// ErrorData explains why a message was rejected.
type ErrorData struct {
	Message string `json:"message"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
