package voice

import (
	"fmt"
	"sync"
	"time"

	"github.com/Ratata326/james-ia/internal/audio"
	"github.com/Ratata326/james-ia/internal/playback"
	"github.com/Ratata326/james-ia/internal/session"
	"github.com/Ratata326/james-ia/internal/transcript"
)

// livePipeline drives the duplex streaming transport: microphone frames go
// up the live session, transcription deltas and audio chunks come down into
// the playback scheduler and the transcript accumulator.
type livePipeline struct {
	o     *Orchestrator
	epoch int
	cfg   session.Config

	stopOnce sync.Once
	stopCh   chan struct{}

	mu       sync.Mutex
	stopping bool
	capture  captureStream
	out      outputSink
	sched    *playback.Scheduler
	sess     LiveSession
}

func newLivePipeline(o *Orchestrator, epoch int, cfg session.Config) *livePipeline {
	return &livePipeline{o: o, epoch: epoch, cfg: cfg, stopCh: make(chan struct{})}
}

// adopt records a resource for teardown. When teardown already ran it
// refuses, and the caller must release the resource itself.
func (p *livePipeline) adopt(assign func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopping {
		return false
	}
	assign()
	return true
}

func (p *livePipeline) run() error {
	deps := p.o.deps

	// Publish the analyser before anything can fail so the visualizer holds
	// a valid handle for the whole connection attempt.
	analyser := audio.NewAnalyser(audio.PlaybackRate)
	p.o.publishAnalyser(p.epoch, analyser)

	out, err := deps.OpenOutput(analyser)
	if err != nil {
		return fmt.Errorf("open audio output: %w", err)
	}
	sched := playback.NewScheduler(out, nil)
	if !p.adopt(func() { p.out, p.sched = out, sched }) {
		out.Close()
		return nil
	}

	capture, err := deps.OpenCapture(deps.CaptureDevice)
	if err != nil {
		return fmt.Errorf("open microphone: %w", err)
	}
	if !p.adopt(func() { p.capture = capture }) {
		capture.Stop()
		return nil
	}

	dialCtx, cancel := stopContext(p.stopCh, dialTimeout)
	dialStart := time.Now()
	sess, err := deps.DialLive(dialCtx, LiveConfig{
		Model:             p.cfg.Model,
		Voice:             p.cfg.Voice,
		SystemInstruction: p.cfg.SystemInstruction,
		Credential:        p.cfg.Credential,
	})
	cancel()
	if err != nil {
		if p.isStopping() {
			return nil // disconnected mid-dial; not a session error
		}
		return fmt.Errorf("open live session: %w", err)
	}
	if !p.adopt(func() { p.sess = sess }) {
		_ = sess.Close()
		return nil
	}
	deps.Metrics.ObserveTurnStage("live_connect", time.Since(dialStart))

	p.o.pipelineReady(p.epoch)
	readyAt := time.Now()
	sawFirstAudio := false

	// Fresh accumulators for the new session.
	tr := transcript.New()
	go p.pump(capture, sess)

	for ev := range sess.Events() {
		switch ev.Type {
		case LiveEventInputDelta:
			tr.AddInput(ev.Text)

		case LiveEventOutputDelta:
			tr.AddOutput(ev.Text)

		case LiveEventTurnComplete:
			if text, ok := tr.FlushInput(); ok {
				p.o.appendLog(p.epoch, session.SenderUser, text)
			}
			if text, ok := tr.FlushOutput(); ok {
				p.o.appendLog(p.epoch, session.SenderAI, text)
			}
			deps.Metrics.PipelineTurns.WithLabelValues("live").Inc()

		case LiveEventAudio:
			raw, err := audio.DecodeBase64(ev.AudioBase64)
			if err != nil {
				p.o.appendLog(p.epoch, session.SenderSystem, "dropped audio chunk: "+err.Error())
				deps.Metrics.AudioChunks.WithLabelValues("decode_error").Inc()
				continue
			}
			buf, err := audio.DecodePCM16LE(raw, audio.PlaybackRate)
			if err != nil {
				p.o.appendLog(p.epoch, session.SenderSystem, "dropped audio chunk: "+err.Error())
				deps.Metrics.AudioChunks.WithLabelValues("decode_error").Inc()
				continue
			}
			sched.Schedule(buf)
			deps.Metrics.AudioChunks.WithLabelValues("scheduled").Inc()
			if !sawFirstAudio {
				sawFirstAudio = true
				deps.Metrics.ObserveFirstAudioLatency(time.Since(readyAt))
			}

		case LiveEventInterrupted:
			p.o.appendLog(p.epoch, session.SenderSystem, "assistant interrupted by operator")
			if text, ok := tr.FlushOutput(); ok {
				p.o.appendLog(p.epoch, session.SenderAI, text+" [interrupted]")
			}
			// The only mid-session cursor reset: discard queued audio and
			// start the schedule over from the clock.
			sched.StopAll()
			deps.Metrics.SessionEvents.WithLabelValues("interrupted").Inc()

		case LiveEventError:
			return fmt.Errorf("live session: %s", ev.Detail)
		}
	}
	return nil
}

// pump forwards capture frames to the live session for as long as both
// sides stay open. A failed send drops that frame only; streaming is best
// effort per frame.
func (p *livePipeline) pump(capture captureStream, sess LiveSession) {
	m := p.o.deps.Metrics
	for frame := range capture.Frames() {
		if err := sess.SendAudio(audio.EncodeWireFrame(frame, audio.CaptureRate)); err != nil {
			m.CaptureFrames.WithLabelValues("dropped").Inc()
			continue
		}
		m.CaptureFrames.WithLabelValues("sent").Inc()
	}
}

func (p *livePipeline) isStopping() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopping
}

func (p *livePipeline) stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		p.mu.Lock()
		p.stopping = true
		capture, out, sched, sess := p.capture, p.out, p.sched, p.sess
		p.capture, p.out, p.sched, p.sess = nil, nil, nil, nil
		p.mu.Unlock()

		if sched != nil {
			sched.StopAll()
		}
		if sess != nil {
			_ = sess.Close()
		}
		if capture != nil {
			capture.Stop()
		}
		if out != nil {
			out.Close()
		}
	})
}
