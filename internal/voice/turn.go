package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Ratata326/james-ia/internal/audio"
	"github.com/Ratata326/james-ia/internal/session"
)

// turnPipeline drives the fallback transport as discrete cycles: listen,
// recognize a final utterance, request one completion, speak the reply,
// resume listening. A single processing flag serializes the cycle; no new
// recognition result is accepted while one is in flight.
type turnPipeline struct {
	o     *Orchestrator
	epoch int
	cfg   session.Config

	stopOnce sync.Once
	stopCh   chan struct{}

	mu          sync.Mutex
	stopping    bool
	processing  bool
	rec         Recognizer
	out         outputSink
	completer   Completer
	voiceID     string
	speakCancel context.CancelFunc
}

func newTurnPipeline(o *Orchestrator, epoch int, cfg session.Config) *turnPipeline {
	return &turnPipeline{o: o, epoch: epoch, cfg: cfg, stopCh: make(chan struct{})}
}

func (p *turnPipeline) adopt(assign func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopping {
		return false
	}
	assign()
	return true
}

func (p *turnPipeline) run() error {
	deps := p.o.deps
	if deps.NewRecognizer == nil {
		return fmt.Errorf("local speech recognition is not available")
	}
	if deps.NewCompleter == nil {
		return fmt.Errorf("completion backend is not available")
	}

	ctx, cancel := stopContext(p.stopCh, dialTimeout)
	completer, err := deps.NewCompleter(ctx, p.cfg)
	cancel()
	if err != nil {
		return fmt.Errorf("completion backend: %w", err)
	}

	analyser := audio.NewAnalyser(audio.PlaybackRate)
	p.o.publishAnalyser(p.epoch, analyser)
	out, err := deps.OpenOutput(analyser)
	if err != nil {
		return fmt.Errorf("open audio output: %w", err)
	}
	if !p.adopt(func() { p.out, p.completer = out, completer }) {
		out.Close()
		return nil
	}

	rec, err := deps.NewRecognizer()
	if err != nil {
		return fmt.Errorf("speech recognition: %w", err)
	}
	if !p.adopt(func() { p.rec = rec }) {
		_ = rec.Close()
		return nil
	}

	// Load the synthesis inventory up front so voice selection for the
	// first reply has something to match against.
	if deps.Synth != nil {
		voices := deps.Synth.Voices(voicesReadyTimeout)
		if v, ok := ChooseVoice(voices, VoicePreference{
			Name:         deps.PreferredVoiceName,
			Locale:       deps.Locale,
			GenderMarker: deps.VoiceGenderMarker,
		}); ok {
			p.mu.Lock()
			p.voiceID = v.ID
			p.mu.Unlock()
		}
	}

	p.o.pipelineReady(p.epoch)
	if err := rec.Start(); err != nil {
		return fmt.Errorf("start recognition: %w", err)
	}

	for {
		select {
		case <-p.stopCh:
			return nil
		case ev, ok := <-rec.Events():
			if !ok {
				return nil
			}
			if err := p.handleRecognizerEvent(ev); err != nil {
				return err
			}
		}
	}
}

func (p *turnPipeline) handleRecognizerEvent(ev RecognizerEvent) error {
	switch ev.Type {
	case RecognizerResult:
		p.mu.Lock()
		if p.processing || p.stopping {
			p.mu.Unlock()
			return nil // a result may not preempt the turn in progress
		}
		text := strings.TrimSpace(ev.Text)
		if text == "" {
			p.mu.Unlock()
			return nil
		}
		p.processing = true
		rec := p.rec
		p.mu.Unlock()

		if rec != nil {
			rec.Stop() // listening resumes only after the reply is spoken
		}
		p.o.appendLog(p.epoch, session.SenderUser, text)
		go p.completeTurn(text, time.Now())

	case RecognizerEnd:
		p.mu.Lock()
		restart := !p.processing && !p.stopping && p.rec != nil
		rec := p.rec
		p.mu.Unlock()
		if restart {
			// Continuous-listening keep-alive: the engine disarms after
			// every utterance and after benign errors.
			_ = rec.Start()
		}

	case RecognizerError:
		switch ev.Code {
		case RecognizerErrNoSpeech, RecognizerErrAborted:
			// Expected engine noise while idling.
		case RecognizerErrNotAllowed:
			return fmt.Errorf("microphone access not allowed")
		default:
			// Swallowed; the end event keeps the listening loop alive.
		}
	}
	return nil
}

func (p *turnPipeline) completeTurn(userText string, turnStart time.Time) {
	deps := p.o.deps
	p.mu.Lock()
	completer := p.completer
	p.mu.Unlock()

	start := time.Now()
	ctx, cancel := stopContext(p.stopCh, completionTimeout)
	res, err := completer.Complete(ctx, CompletionRequest{
		Model:             p.cfg.Model,
		SystemInstruction: p.cfg.SystemInstruction,
		UserText:          userText,
	})
	cancel()
	deps.Metrics.ObserveTurnStage("completion", time.Since(start))

	if err != nil {
		p.o.appendLog(p.epoch, session.SenderSystem, "completion failed: "+err.Error())
		deps.Metrics.ProviderErrors.WithLabelValues(string(p.cfg.Provider), "completion").Inc()
		p.finishTurn(turnStart)
		return
	}

	reply := strings.TrimSpace(res.Text)
	if reply != "" {
		p.o.appendLog(p.epoch, session.SenderAI, reply)
	}
	p.speak(reply, turnStart)
}

// speak renders the reply and resumes listening once playback finishes, or
// immediately when there is nothing to say.
func (p *turnPipeline) speak(reply string, turnStart time.Time) {
	deps := p.o.deps
	text := sanitizeSpeechText(reply)
	if text == "" || deps.Synth == nil {
		p.finishTurn(turnStart)
		return
	}

	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), synthesisTimeout)
	p.speakCancel = cancel
	voiceID := p.voiceID
	p.mu.Unlock()

	start := time.Now()
	buf, err := deps.Synth.Synthesize(ctx, SpeakRequest{
		Text:  text,
		Voice: voiceID,
		Rate:  1.08, // slightly brisker than native reads as more responsive
		Pitch: 1.0,
	})
	deps.Metrics.ObserveTurnStage("synthesis", time.Since(start))

	p.mu.Lock()
	if p.speakCancel != nil {
		p.speakCancel()
		p.speakCancel = nil
	}
	stopping := p.stopping
	out := p.out
	p.mu.Unlock()

	if err != nil || stopping || out == nil {
		if err != nil && !errors.Is(err, context.Canceled) {
			p.o.appendLog(p.epoch, session.SenderSystem, "synthesis failed: "+err.Error())
		}
		p.finishTurn(turnStart)
		return
	}
	out.Enqueue(buf.Samples, func() { p.finishTurn(turnStart) })
}

// finishTurn clears the processing flag and re-arms recognition, completing
// one listen/process cycle.
func (p *turnPipeline) finishTurn(turnStart time.Time) {
	p.mu.Lock()
	p.processing = false
	rec := p.rec
	stopping := p.stopping
	p.mu.Unlock()

	p.o.deps.Metrics.ObserveTurnStage("turn_total", time.Since(turnStart))
	p.o.deps.Metrics.PipelineTurns.WithLabelValues("turn").Inc()

	if stopping || rec == nil {
		return
	}
	_ = rec.Start()
}

func (p *turnPipeline) stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		p.mu.Lock()
		p.stopping = true
		rec := p.rec
		p.rec = nil // cleared before stop so the end-event keep-alive cannot re-arm it
		out := p.out
		p.out = nil
		cancel := p.speakCancel
		p.speakCancel = nil
		p.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if rec != nil {
			rec.Stop()
			_ = rec.Close()
		}
		if out != nil {
			out.DropQueued()
			out.Close()
		}
	})
}
