package voice

import (
	"context"
	"time"

	"github.com/Ratata326/james-ia/internal/audio"
)

// LiveEventType tags messages delivered by a live duplex session.
type LiveEventType string

const (
	LiveEventInputDelta   LiveEventType = "input_transcription"
	LiveEventOutputDelta  LiveEventType = "output_transcription"
	LiveEventAudio        LiveEventType = "audio"
	LiveEventTurnComplete LiveEventType = "turn_complete"
	LiveEventInterrupted  LiveEventType = "interrupted"
	LiveEventError        LiveEventType = "error"
)

type LiveEvent struct {
	Type        LiveEventType
	Text        string // transcription delta
	AudioBase64 string // inline audio payload
	MIMEType    string
	Detail      string // close reason or error text
}

// LiveSession is one open duplex streaming session: microphone frames go up,
// tagged events come down. The events channel closes after Close or a server
// disconnect.
type LiveSession interface {
	SendAudio(frame audio.WireFrame) error
	Events() <-chan LiveEvent
	Close() error
}

// LiveConfig carries everything needed to open a live session.
type LiveConfig struct {
	Model             string
	Voice             string
	SystemInstruction string
	Credential        string
}

// LiveDialer opens a live session. ctx covers dialing and setup only; the
// session outlives it.
type LiveDialer func(ctx context.Context, cfg LiveConfig) (LiveSession, error)

// CompletionRequest is a single-shot text completion: one system instruction
// and one user message.
type CompletionRequest struct {
	Model             string
	SystemInstruction string
	UserText          string
}

type CompletionResult struct {
	Text             string
	PromptTokens     int64
	CompletionTokens int64
}

type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// RecognizerEventType tags events from the local recognition engine.
type RecognizerEventType string

const (
	RecognizerResult RecognizerEventType = "result"
	RecognizerEnd    RecognizerEventType = "end"
	RecognizerError  RecognizerEventType = "error"
)

// Error codes carried on RecognizerError events.
const (
	RecognizerErrNoSpeech   = "no-speech"
	RecognizerErrAborted    = "aborted"
	RecognizerErrNotAllowed = "not-allowed"
)

type RecognizerEvent struct {
	Type RecognizerEventType
	Text string // final transcript, Result events only
	Code string // error code, Error events only
}

// Recognizer is a local capture-to-text engine reporting final results only.
// Start arms listening for one utterance; the engine emits at most one
// Result followed by exactly one End, after which the caller may Start
// again. Stop discards the in-progress utterance; End still follows.
type Recognizer interface {
	Start() error
	Stop()
	Events() <-chan RecognizerEvent
	Close() error
}

// Voice is one installed synthesis voice.
type Voice struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Locale  string `json:"locale"`
	Default bool   `json:"default,omitempty"`
}

type SpeakRequest struct {
	Text  string
	Voice string  // voice ID; empty lets the engine pick
	Rate  float64 // 1.0 = native speed
	Pitch float64 // 1.0 = native pitch
}

// Synthesizer is a local text-to-speech engine. Synthesize renders the whole
// request to an audio buffer; playback belongs to the caller.
type Synthesizer interface {
	// Voices blocks until the voice inventory is known or the timeout
	// elapses, then returns it. An empty result means no voices are
	// available yet.
	Voices(timeout time.Duration) []Voice
	Synthesize(ctx context.Context, req SpeakRequest) (audio.Buffer, error)
	Close() error
}
