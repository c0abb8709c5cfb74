package voice

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/Ratata326/james-ia/internal/audio"
)

// Mock backends let the orchestrator run end to end with no upstream
// credentials and no local engines installed: scripted transcripts in,
// tone bursts out.

var mockExchanges = []struct {
	input  string
	output string
}{
	{"hola james", "Hola, soy James. ¿En qué puedo ayudarte?"},
	{"qué hora es", "No tengo reloj, pero seguro que es buena hora."},
	{"cuéntame algo", "Esto es una sesión simulada, así que seré breve."},
}

// DialMockLive opens a simulated live session: every second of uplink audio
// triggers one scripted exchange.
func DialMockLive(_ context.Context, _ LiveConfig) (LiveSession, error) {
	return &mockLiveSession{events: make(chan LiveEvent, 64)}, nil
}

type mockLiveSession struct {
	mu     sync.Mutex
	events chan LiveEvent
	frames int
	turns  int
	closed bool
}

func (s *mockLiveSession) SendAudio(_ audio.WireFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.frames++
	if s.frames%50 != 0 {
		return nil
	}

	exchange := mockExchanges[s.turns%len(mockExchanges)]
	s.turns++
	s.emit(LiveEvent{Type: LiveEventInputDelta, Text: exchange.input})
	s.emit(LiveEvent{
		Type:        LiveEventAudio,
		AudioBase64: base64.StdEncoding.EncodeToString(audio.EncodePCM16LE(mockTone(300*time.Millisecond, 262))),
		MIMEType:    fmt.Sprintf("audio/pcm;rate=%d", audio.PlaybackRate),
	})
	s.emit(LiveEvent{Type: LiveEventOutputDelta, Text: exchange.output})
	s.emit(LiveEvent{Type: LiveEventTurnComplete})
	return nil
}

func (s *mockLiveSession) Events() <-chan LiveEvent { return s.events }

func (s *mockLiveSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}

func (s *mockLiveSession) emit(ev LiveEvent) {
	select {
	case s.events <- ev:
	default:
	}
}

// MockCompleter answers every prompt by echoing it back.
type MockCompleter struct{}

func (MockCompleter) Complete(_ context.Context, req CompletionRequest) (CompletionResult, error) {
	text := strings.TrimSpace(req.UserText)
	if text == "" {
		return CompletionResult{Text: "No te he escuchado bien."}, nil
	}
	return CompletionResult{
		Text:             "Me has dicho: " + text + ". Esto es una respuesta simulada.",
		PromptTokens:     int64(len(req.UserText) / 4),
		CompletionTokens: 12,
	}, nil
}

// MockRecognizer delivers a scripted phrase shortly after every Start.
type MockRecognizer struct {
	mu      sync.Mutex
	events  chan RecognizerEvent
	phrases []string
	next    int
	timer   *time.Timer
	armed   bool
	closed  bool
}

func NewMockRecognizer(phrases ...string) *MockRecognizer {
	if len(phrases) == 0 {
		for _, e := range mockExchanges {
			phrases = append(phrases, e.input)
		}
	}
	return &MockRecognizer{events: make(chan RecognizerEvent, 16), phrases: phrases}
}

func (r *MockRecognizer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("recognizer closed")
	}
	if r.armed {
		return fmt.Errorf("recognition already active")
	}
	r.armed = true
	r.timer = time.AfterFunc(300*time.Millisecond, r.deliver)
	return nil
}

func (r *MockRecognizer) deliver() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || !r.armed {
		return
	}
	r.armed = false
	text := r.phrases[r.next%len(r.phrases)]
	r.next++
	r.emit(RecognizerEvent{Type: RecognizerResult, Text: text})
	r.emit(RecognizerEvent{Type: RecognizerEnd})
}

func (r *MockRecognizer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || !r.armed {
		return
	}
	r.armed = false
	if r.timer != nil {
		r.timer.Stop()
	}
	r.emit(RecognizerEvent{Type: RecognizerEnd})
}

func (r *MockRecognizer) Events() <-chan RecognizerEvent { return r.events }

func (r *MockRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.armed = false
	if r.timer != nil {
		r.timer.Stop()
	}
	return nil
}

func (r *MockRecognizer) emit(ev RecognizerEvent) {
	select {
	case r.events <- ev:
	default:
	}
}

// MockSynthesizer renders every request as a tone burst sized to the text.
type MockSynthesizer struct{}

func (MockSynthesizer) Voices(time.Duration) []Voice {
	return []Voice{
		{ID: "mock-es", Name: "Mónica female", Locale: "es-ES", Default: true},
		{ID: "mock-en", Name: "Daniel", Locale: "en-GB"},
	}
}

func (MockSynthesizer) Synthesize(_ context.Context, req SpeakRequest) (audio.Buffer, error) {
	words := len(strings.Fields(req.Text))
	if words == 0 {
		return audio.Buffer{Rate: audio.PlaybackRate}, nil
	}
	d := time.Duration(words) * 180 * time.Millisecond
	if d > 6*time.Second {
		d = 6 * time.Second
	}
	return audio.Buffer{Samples: mockTone(d, 330), Rate: audio.PlaybackRate}, nil
}

func (MockSynthesizer) Close() error { return nil }

func mockTone(duration time.Duration, freq float64) []float32 {
	n := int(duration.Seconds() * float64(audio.PlaybackRate))
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.2 * math.Sin(2*math.Pi*freq*float64(i)/float64(audio.PlaybackRate)))
	}
	return samples
}
