package session

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of the single active session.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Provider selects which transport model drives a session.
type Provider string

const (
	// ProviderLive is the persistent duplex streaming transport.
	ProviderLive Provider = "live-model"
	// ProviderRest is the turn-based recognize/complete/synthesize transport.
	ProviderRest Provider = "rest-completion"
)

func ParseProvider(raw string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(raw))) {
	case ProviderLive:
		return ProviderLive, nil
	case ProviderRest:
		return ProviderRest, nil
	default:
		return "", fmt.Errorf("invalid provider %q (expected %s|%s)", raw, ProviderLive, ProviderRest)
	}
}

// Config is the immutable per-connect session configuration. It is treated as
// opaque input until Connect validates it.
type Config struct {
	Provider          Provider `json:"provider"`
	Model             string   `json:"model"`
	Voice             string   `json:"voice,omitempty"`
	SystemInstruction string   `json:"system_instruction,omitempty"`
	Credential        string   `json:"credential,omitempty"`
}

// Sender identifies who produced a log entry.
type Sender string

const (
	SenderUser   Sender = "user"
	SenderAI     Sender = "ai"
	SenderSystem Sender = "system"
)

// LogEntry is one immutable record in the append-only session log.
type LogEntry struct {
	ID        string    `json:"id"`
	Seq       int       `json:"seq"`
	SessionID string    `json:"session_id,omitempty"`
	At        time.Time `json:"at"`
	Sender    Sender    `json:"sender"`
	Message   string    `json:"message"`
}
