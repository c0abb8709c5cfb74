package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientControl MessageType = "client_control"
	TypeStatusEvent   MessageType = "status"
	TypeLogEntry      MessageType = "log_entry"
	TypeAnalyserFrame MessageType = "analyser_frame"
	TypeErrorEvent    MessageType = "error_event"
)

// Control actions a client may send. Unknown actions are rejected by the
// gateway with an error event, not at parse time.
const (
	ActionConnect    = "connect"
	ActionDisconnect = "disconnect"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientControl drives the session lifecycle. The connect fields are
// optional; the server falls back to its configured defaults.
type ClientControl struct {
	Type     MessageType `json:"type"`
	Action   string      `json:"action"`
	Provider string      `json:"provider,omitempty"`
	Model    string      `json:"model,omitempty"`
	Voice    string      `json:"voice,omitempty"`
}

// StatusEvent reports a session lifecycle transition. The session fields are
// present only while a session is connecting or established.
type StatusEvent struct {
	Type        MessageType `json:"type"`
	Status      string      `json:"status"`
	SessionID   string      `json:"session_id,omitempty"`
	Provider    string      `json:"provider,omitempty"`
	Model       string      `json:"model,omitempty"`
	Voice       string      `json:"voice,omitempty"`
	StartedAtMs int64       `json:"started_at_ms,omitempty"`
}

type LogEntryEvent struct {
	Type      MessageType `json:"type"`
	ID        string      `json:"id"`
	Seq       int         `json:"seq"`
	SessionID string      `json:"session_id,omitempty"`
	Sender    string      `json:"sender"`
	Message   string      `json:"message"`
	TSMs      int64       `json:"ts_ms"`
}

// AnalyserFrameEvent carries one spectrum snapshot of the assistant's output
// audio for UI visualisation.
type AnalyserFrameEvent struct {
	Type       MessageType `json:"type"`
	SampleRate int         `json:"sample_rate"`
	RMS        float64     `json:"rms"`
	Peak       float64     `json:"peak"`
	Bins       []float64   `json:"bins"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
