package voice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/Ratata326/james-ia/internal/audio"
)

// SynthConfig configures the local synthesis worker process.
type SynthConfig struct {
	PythonPath string
	ScriptPath string
}

// SynthWorker talks to a Python synthesis process over stdio: one JSON
// request line in, one JSON response with base64 PCM out. The worker
// announces its installed voices in a single inventory line at startup.
// Requests are single-flight, serialized by the mutex.
type SynthWorker struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	dec    *json.Decoder
	closed bool

	voicesReady chan struct{}
	voices      []Voice
}

type synthInventory struct {
	Event  string  `json:"event"`
	Voices []Voice `json:"voices"`
}

type synthResponse struct {
	ID          string `json:"id"`
	OK          bool   `json:"ok"`
	Format      string `json:"format"`
	SampleRate  int    `json:"sample_rate"`
	AudioBase64 string `json:"audio_base64"`
	Error       string `json:"error"`
}

// StartSynthWorker launches the worker, waits for its voice inventory, and
// runs a warmup request so dependency errors surface early.
func StartSynthWorker(cfg SynthConfig) (*SynthWorker, error) {
	pythonPath := strings.TrimSpace(cfg.PythonPath)
	if pythonPath == "" {
		pythonPath = "python3"
	}
	scriptPath := strings.TrimSpace(cfg.ScriptPath)
	if scriptPath == "" {
		return nil, fmt.Errorf("synth worker script path is required")
	}

	cmd := exec.Command(pythonPath, "-u", scriptPath)
	cmd.Env = os.Environ()
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	w := &SynthWorker{
		cmd:         cmd,
		stdin:       stdin,
		dec:         json.NewDecoder(stdout),
		voicesReady: make(chan struct{}),
	}

	fail := func(cause error) error {
		_ = stdin.Close()
		_ = cmd.Process.Kill()
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = cause.Error()
		}
		return fmt.Errorf("synth worker failed to start: %s", msg)
	}

	// The first line the worker prints is its voice inventory; treat that as
	// the readiness signal.
	inventory := make(chan error, 1)
	go func() {
		var inv synthInventory
		if err := w.dec.Decode(&inv); err != nil {
			inventory <- err
			return
		}
		if inv.Event != "voices" {
			inventory <- fmt.Errorf("expected voices inventory, got %q", inv.Event)
			return
		}
		w.mu.Lock()
		w.voices = inv.Voices
		w.mu.Unlock()
		close(w.voicesReady)
		inventory <- nil
	}()

	select {
	case err := <-inventory:
		if err != nil {
			return nil, fail(err)
		}
	case <-time.After(25 * time.Second):
		return nil, fail(fmt.Errorf("timed out waiting for voice inventory"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()
	if _, err := w.Synthesize(ctx, SpeakRequest{Text: "warmup", Rate: 1.0, Pitch: 1.0}); err != nil {
		return nil, fail(err)
	}
	return w, nil
}

// Voices returns the announced inventory, waiting up to timeout for the
// startup handshake. An empty result means no voices are known.
func (w *SynthWorker) Voices(timeout time.Duration) []Voice {
	select {
	case <-w.voicesReady:
	case <-time.After(timeout):
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Voice, len(w.voices))
	copy(out, w.voices)
	return out
}

// Synthesize renders the request to a playback-rate audio buffer.
func (w *SynthWorker) Synthesize(ctx context.Context, req SpeakRequest) (audio.Buffer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return audio.Buffer{}, fmt.Errorf("synth worker closed")
	}

	type requestLine struct {
		ID    string  `json:"id"`
		Text  string  `json:"text"`
		Voice string  `json:"voice,omitempty"`
		Rate  float64 `json:"rate"`
		Pitch float64 `json:"pitch"`
	}
	id := fmt.Sprintf("req-%d", time.Now().UnixNano())
	line := requestLine{
		ID:    id,
		Text:  req.Text,
		Voice: req.Voice,
		Rate:  req.Rate,
		Pitch: req.Pitch,
	}
	if line.Rate <= 0 {
		line.Rate = 1.0
	}
	if line.Pitch <= 0 {
		line.Pitch = 1.0
	}

	b, _ := json.Marshal(line)
	b = append(b, '\n')
	if _, err := w.stdin.Write(b); err != nil {
		return audio.Buffer{}, err
	}

	// Decode exactly one response; requests are single-flight under mu.
	var resp synthResponse
	if err := w.dec.Decode(&resp); err != nil {
		return audio.Buffer{}, err
	}
	if err := ctx.Err(); err != nil {
		return audio.Buffer{}, err
	}
	if resp.ID != id {
		return audio.Buffer{}, fmt.Errorf("synth worker out-of-sync (got %q, expected %q)", resp.ID, id)
	}
	if !resp.OK {
		msg := strings.TrimSpace(resp.Error)
		if msg == "" {
			msg = "unknown synthesis error"
		}
		return audio.Buffer{}, fmt.Errorf("%s", msg)
	}

	if format := strings.TrimSpace(resp.Format); format != "" && format != "pcm_s16le" {
		return audio.Buffer{}, fmt.Errorf("unsupported synth format %q", format)
	}
	rate := resp.SampleRate
	if rate <= 0 {
		rate = audio.PlaybackRate
	}
	if strings.TrimSpace(resp.AudioBase64) == "" {
		return audio.Buffer{Rate: rate}, nil
	}

	raw, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("decode audio_base64: %w", err)
	}
	return audio.DecodePCM16LE(raw, rate)
}

// Close shuts the worker down, giving it a grace period before killing.
func (w *SynthWorker) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	stdin := w.stdin
	cmd := w.cmd
	w.stdin = nil
	w.cmd = nil
	w.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	_ = cmd.Process.Signal(os.Interrupt)
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-time.After(1200 * time.Millisecond):
		_ = cmd.Process.Kill()
		<-done
	case <-done:
	}
	return nil
}
