package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ratata326/james-ia/internal/audio"
	"github.com/Ratata326/james-ia/internal/observability"
	"github.com/Ratata326/james-ia/internal/reliability"
	"github.com/Ratata326/james-ia/internal/session"
)

const (
	dialTimeout        = 30 * time.Second
	completionTimeout  = 60 * time.Second
	synthesisTimeout   = 30 * time.Second
	voicesReadyTimeout = 3 * time.Second
)

// Connect rejections callers may want to tell apart.
var (
	ErrSessionActive = errors.New("a session is already active; disconnect first")
	ErrNoCredential  = errors.New("no credential configured")
)

// outputSink is the playback device boundary. *audio.Output satisfies it.
type outputSink interface {
	Enqueue(samples []float32, done func())
	DropQueued()
	Close()
}

// pipeline is one running transport. run blocks until the session ends and
// returns nil on a clean close; stop tears down hardware and remote handles
// and is safe to call at any time, any number of times.
type pipeline interface {
	run() error
	stop()
}

// Deps wires the orchestrator to its collaborators. Factories run at connect
// time so every session acquires fresh hardware and provider handles.
// Metrics must be non-nil; nil hardware factories default to the PulseAudio
// devices.
type Deps struct {
	Log     *session.Log
	Metrics *observability.Metrics

	DialLive      LiveDialer
	NewCompleter  func(ctx context.Context, cfg session.Config) (Completer, error)
	NewRecognizer func() (Recognizer, error)
	Synth         Synthesizer

	OpenCapture func(device string) (captureStream, error)
	OpenOutput  func(analyser *audio.Analyser) (outputSink, error)

	// FallbackCredential is used when the session config carries none.
	FallbackCredential string
	CaptureDevice      string
	Locale             string // spoken-language locale, also drives voice choice
	PreferredVoiceName string
	VoiceGenderMarker  string
}

// Orchestrator owns the lifecycle of the single active session: it validates
// connects, picks the pipeline for the configured provider, and surfaces
// status, log, and analyser observables. All callback paths are epoch
// checked so anything outliving its session becomes inert.
type Orchestrator struct {
	deps Deps

	mu        sync.Mutex
	status    session.Status
	epoch     int
	active    pipeline
	analyser  *audio.Analyser
	sessionID string
	cfg       session.Config
	startedAt time.Time
}

func NewOrchestrator(deps Deps) *Orchestrator {
	if deps.Log == nil {
		deps.Log = session.NewLog()
	}
	if strings.TrimSpace(deps.Locale) == "" {
		deps.Locale = "es-ES"
	}
	if deps.OpenCapture == nil {
		deps.OpenCapture = func(device string) (captureStream, error) {
			return audio.StartCapture(device)
		}
	}
	if deps.OpenOutput == nil {
		deps.OpenOutput = func(analyser *audio.Analyser) (outputSink, error) {
			return audio.OpenOutput(analyser)
		}
	}
	return &Orchestrator{deps: deps, status: session.StatusDisconnected}
}

// Log exposes the append-only session log.
func (o *Orchestrator) Log() *session.Log { return o.deps.Log }

// Status returns the current lifecycle state.
func (o *Orchestrator) Status() session.Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Analyser returns the output spectrum handle, or nil when no session with
// audible output is active.
func (o *Orchestrator) Analyser() *audio.Analyser {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.analyser
}

// Snapshot describes the session for read-only consumers. The credential is
// never included.
type Snapshot struct {
	Status    session.Status   `json:"status"`
	SessionID string           `json:"session_id,omitempty"`
	Provider  session.Provider `json:"provider,omitempty"`
	Model     string           `json:"model,omitempty"`
	Voice     string           `json:"voice,omitempty"`
	StartedAt time.Time        `json:"started_at,omitzero"`
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	snap := Snapshot{Status: o.status}
	if o.status == session.StatusConnecting || o.status == session.StatusConnected {
		snap.SessionID = o.sessionID
		snap.Provider = o.cfg.Provider
		snap.Model = o.cfg.Model
		snap.Voice = o.cfg.Voice
		snap.StartedAt = o.startedAt
	}
	return snap
}

// Connect validates the configuration and starts the pipeline for its
// provider. It returns quickly; session readiness and runtime failures are
// reported through the status and log observables.
func (o *Orchestrator) Connect(cfg session.Config) error {
	provider, err := session.ParseProvider(string(cfg.Provider))
	if err != nil {
		return err
	}
	cfg.Provider = provider

	o.mu.Lock()
	if o.status == session.StatusConnecting || o.status == session.StatusConnected {
		o.mu.Unlock()
		return ErrSessionActive
	}

	cfg.Credential = strings.TrimSpace(cfg.Credential)
	if cfg.Credential == "" {
		cfg.Credential = strings.TrimSpace(o.deps.FallbackCredential)
	}
	if cfg.Credential == "" {
		o.status = session.StatusError
		o.mu.Unlock()
		o.deps.Log.Append("", session.SenderSystem, "connect failed: no credential configured")
		o.deps.Metrics.SessionEvents.WithLabelValues("credential_missing").Inc()
		return ErrNoCredential
	}

	o.epoch++
	epoch := o.epoch
	o.sessionID = uuid.NewString()
	o.cfg = cfg
	o.startedAt = time.Now().UTC()
	o.status = session.StatusConnecting

	var pl pipeline
	switch provider {
	case session.ProviderLive:
		pl = newLivePipeline(o, epoch, cfg)
	default:
		pl = newTurnPipeline(o, epoch, cfg)
	}
	o.active = pl
	id := o.sessionID
	o.mu.Unlock()

	o.deps.Log.Append(id, session.SenderSystem, fmt.Sprintf("connecting via %s", provider))
	o.deps.Metrics.SessionEvents.WithLabelValues("connect").Inc()
	o.deps.Metrics.ResetTurnStages()

	go func() {
		o.pipelineExited(epoch, pl, pl.run())
	}()
	return nil
}

// Disconnect tears the active session down. It is unconditionally
// idempotent: repeat calls log and return without a second teardown.
func (o *Orchestrator) Disconnect() {
	o.mu.Lock()
	if o.active == nil && o.status == session.StatusDisconnected {
		id := o.sessionID
		o.mu.Unlock()
		o.deps.Log.Append(id, session.SenderSystem, "disconnect requested; no active session")
		return
	}
	o.epoch++ // every in-flight callback and the pipeline goroutine become stale
	pl := o.active
	o.active = nil
	o.analyser = nil
	o.status = session.StatusDisconnected
	id := o.sessionID
	o.mu.Unlock()

	if pl != nil {
		pl.stop()
	}
	o.deps.Log.Append(id, session.SenderSystem, "session disconnected")
	o.deps.Metrics.SessionEvents.WithLabelValues("disconnect").Inc()
	o.deps.Metrics.ActiveSessions.Set(0)
}

// pipelineExited runs exactly once per pipeline goroutine. A stale epoch
// means Disconnect already tore the session down and claimed the transition.
func (o *Orchestrator) pipelineExited(epoch int, pl pipeline, err error) {
	pl.stop() // release anything still held, on every exit path

	o.mu.Lock()
	if epoch != o.epoch {
		o.mu.Unlock()
		return
	}
	o.active = nil
	o.analyser = nil
	id := o.sessionID

	if err == nil {
		o.status = session.StatusDisconnected
		o.mu.Unlock()
		o.deps.Log.Append(id, session.SenderSystem, "session closed")
		o.deps.Metrics.SessionEvents.WithLabelValues("closed").Inc()
		o.deps.Metrics.ActiveSessions.Set(0)
		return
	}

	o.status = session.StatusError
	o.mu.Unlock()
	msg := "session error: " + err.Error()
	if reliability.IsUpstreamUnavailable(err.Error()) {
		msg = "session error: the model service looks temporarily unavailable, try again shortly (" + err.Error() + ")"
	}
	o.deps.Log.Append(id, session.SenderSystem, msg)
	o.deps.Metrics.SessionEvents.WithLabelValues("error").Inc()
	o.deps.Metrics.ActiveSessions.Set(0)
}

// pipelineReady moves CONNECTING to CONNECTED. Stale or out-of-order calls
// are ignored.
func (o *Orchestrator) pipelineReady(epoch int) {
	o.mu.Lock()
	if epoch != o.epoch || o.status != session.StatusConnecting {
		o.mu.Unlock()
		return
	}
	o.status = session.StatusConnected
	id := o.sessionID
	o.mu.Unlock()

	o.deps.Log.Append(id, session.SenderSystem, "session established")
	o.deps.Metrics.SessionEvents.WithLabelValues("ready").Inc()
	o.deps.Metrics.ActiveSessions.Set(1)
}

// appendLog writes a session log entry unless the caller became stale.
func (o *Orchestrator) appendLog(epoch int, sender session.Sender, message string) {
	o.mu.Lock()
	if epoch != o.epoch {
		o.mu.Unlock()
		return
	}
	id := o.sessionID
	o.mu.Unlock()
	o.deps.Log.Append(id, sender, message)
}

// publishAnalyser exposes the output spectrum handle for the visualizer.
func (o *Orchestrator) publishAnalyser(epoch int, an *audio.Analyser) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if epoch != o.epoch {
		return
	}
	o.analyser = an
}

// stopContext derives a deadline context that is also canceled by stop.
func stopContext(stopCh <-chan struct{}, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
