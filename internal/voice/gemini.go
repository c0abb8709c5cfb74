package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Ratata326/james-ia/internal/audio"
)

const (
	geminiLiveEndpoint     = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	geminiDefaultLiveModel = "gemini-2.0-flash-live-001"
)

// Wire frames for the BidiGenerateContent websocket protocol. Client frames
// carry exactly one of their members per message.

type geminiClientFrame struct {
	Setup         *geminiSetup         `json:"setup,omitempty"`
	RealtimeInput *geminiRealtimeInput `json:"realtimeInput,omitempty"`
}

type geminiSetup struct {
	Model                    string                  `json:"model"`
	GenerationConfig         *geminiGenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction        *geminiContent          `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *geminiTranscriptionCfg `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *geminiTranscriptionCfg `json:"outputAudioTranscription,omitempty"`
}

type geminiTranscriptionCfg struct{}

type geminiGenerationConfig struct {
	ResponseModalities []string            `json:"responseModalities,omitempty"`
	SpeechConfig       *geminiSpeechConfig `json:"speechConfig,omitempty"`
}

type geminiSpeechConfig struct {
	VoiceConfig *geminiVoiceConfig `json:"voiceConfig,omitempty"`
}

type geminiVoiceConfig struct {
	PrebuiltVoiceConfig *geminiPrebuiltVoice `json:"prebuiltVoiceConfig,omitempty"`
}

type geminiPrebuiltVoice struct {
	VoiceName string `json:"voiceName,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts,omitempty"`
	Role  string       `json:"role,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiRealtimeInput struct {
	Audio *geminiInlineData `json:"audio,omitempty"`
}

type geminiServerFrame struct {
	SetupComplete *geminiSetupComplete `json:"setupComplete"`
	ServerContent *geminiServerContent `json:"serverContent"`
	GoAway        *geminiGoAway        `json:"goAway"`
}

type geminiSetupComplete struct{}

type geminiServerContent struct {
	ModelTurn           *geminiContent    `json:"modelTurn"`
	InputTranscription  *geminiTranscript `json:"inputTranscription"`
	OutputTranscription *geminiTranscript `json:"outputTranscription"`
	TurnComplete        bool              `json:"turnComplete"`
	Interrupted         bool              `json:"interrupted"`
}

type geminiTranscript struct {
	Text string `json:"text"`
}

type geminiGoAway struct {
	TimeLeft string `json:"timeLeft"`
}

// DialGeminiLive opens a live duplex session: it dials the websocket, sends
// the session setup, and blocks until the server acknowledges it, so the
// returned session accepts audio immediately.
func DialGeminiLive(ctx context.Context, cfg LiveConfig) (LiveSession, error) {
	if strings.TrimSpace(cfg.Credential) == "" {
		return nil, fmt.Errorf("live api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = geminiDefaultLiveModel
	}
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	u, err := url.Parse(geminiLiveEndpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("key", cfg.Credential)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial live websocket: %w", err)
	}

	s := &geminiLiveSession{
		conn:   conn,
		events: make(chan LiveEvent, 256),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.readLoop()

	setup := &geminiSetup{
		Model: model,
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
		InputAudioTranscription:  &geminiTranscriptionCfg{},
		OutputAudioTranscription: &geminiTranscriptionCfg{},
	}
	if voice := strings.TrimSpace(cfg.Voice); voice != "" {
		setup.GenerationConfig.SpeechConfig = &geminiSpeechConfig{
			VoiceConfig: &geminiVoiceConfig{
				PrebuiltVoiceConfig: &geminiPrebuiltVoice{VoiceName: voice},
			},
		}
	}
	if instruction := strings.TrimSpace(cfg.SystemInstruction); instruction != "" {
		setup.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: instruction}}}
	}
	if err := s.writeJSON(geminiClientFrame{Setup: setup}); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("send live setup: %w", err)
	}

	select {
	case <-s.ready:
	case <-s.done:
		_ = s.Close()
		return nil, fmt.Errorf("live session closed during setup")
	case <-ctx.Done():
		_ = s.Close()
		return nil, ctx.Err()
	case <-time.After(20 * time.Second):
		_ = s.Close()
		return nil, fmt.Errorf("timed out waiting for live setup ack")
	}
	return s, nil
}

type geminiLiveSession struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	readyOnce sync.Once
	events    chan LiveEvent
	ready     chan struct{}
	done      chan struct{}
}

func (s *geminiLiveSession) SendAudio(frame audio.WireFrame) error {
	return s.writeJSON(geminiClientFrame{
		RealtimeInput: &geminiRealtimeInput{
			Audio: &geminiInlineData{MIMEType: frame.MIMEType, Data: frame.Data},
		},
	})
}

func (s *geminiLiveSession) Events() <-chan LiveEvent { return s.events }

// Close is idempotent. The events channel closes once the read loop drains;
// only the read loop ever closes it, so a concurrent Close cannot race a
// pending send.
func (s *geminiLiveSession) Close() error {
	var retErr error
	s.closeOnce.Do(func() {
		close(s.done)
		retErr = s.conn.Close()
	})
	return retErr
}

func (s *geminiLiveSession) writeJSON(frame geminiClientFrame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(frame)
}

func (s *geminiLiveSession) readLoop() {
	defer close(s.events)
	defer func() { _ = s.Close() }()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !s.isClosed() {
				s.emit(LiveEvent{Type: LiveEventError, Detail: err.Error()})
			}
			return
		}
		var frame geminiServerFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}

		if frame.SetupComplete != nil {
			s.readyOnce.Do(func() { close(s.ready) })
			continue
		}
		if frame.GoAway != nil {
			detail := "live server going away"
			if frame.GoAway.TimeLeft != "" {
				detail += " in " + frame.GoAway.TimeLeft
			}
			s.emit(LiveEvent{Type: LiveEventError, Detail: detail})
			continue
		}

		sc := frame.ServerContent
		if sc == nil {
			continue
		}
		if sc.Interrupted {
			s.emit(LiveEvent{Type: LiveEventInterrupted})
		}
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			s.emit(LiveEvent{Type: LiveEventInputDelta, Text: sc.InputTranscription.Text})
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			s.emit(LiveEvent{Type: LiveEventOutputDelta, Text: sc.OutputTranscription.Text})
		}
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData != nil && part.InlineData.Data != "" {
					s.emit(LiveEvent{
						Type:        LiveEventAudio,
						AudioBase64: part.InlineData.Data,
						MIMEType:    part.InlineData.MIMEType,
					})
				}
			}
		}
		if sc.TurnComplete {
			s.emit(LiveEvent{Type: LiveEventTurnComplete})
		}
	}
}

// emit delivers without risking a permanent block when the consumer has
// already walked away after Close.
func (s *geminiLiveSession) emit(ev LiveEvent) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *geminiLiveSession) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
