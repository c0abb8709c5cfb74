package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Ratata326/james-ia/internal/audio"
)

// WhisperConfig configures the local recognition engine.
type WhisperConfig struct {
	ModelPath string
	Language  string
	Threads   int
	BeamSize  int
	BestOf    int
	CLIPath   string // fallback binary, default "whisper-cli"
	Device    string // Pulse capture source; empty selects the default
}

func (cfg WhisperConfig) withDefaults() (WhisperConfig, error) {
	cfg.ModelPath = strings.TrimSpace(cfg.ModelPath)
	if cfg.ModelPath == "" {
		return cfg, fmt.Errorf("whisper model path is required")
	}
	if !filepath.IsAbs(cfg.ModelPath) {
		if wd, err := os.Getwd(); err == nil {
			cfg.ModelPath = filepath.Join(wd, cfg.ModelPath)
		}
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return cfg, fmt.Errorf("whisper model not found: %s", cfg.ModelPath)
	}
	cfg.Language = strings.TrimSpace(cfg.Language)
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if strings.TrimSpace(cfg.CLIPath) == "" {
		cfg.CLIPath = "whisper-cli"
	}
	if cfg.Threads < 0 {
		return cfg, fmt.Errorf("whisper threads must be >= 0")
	}
	if cfg.Threads == 0 {
		threads := runtime.NumCPU()
		if threads > 8 {
			threads = 8
		}
		if threads < 2 {
			threads = 2
		}
		cfg.Threads = threads
	}
	if cfg.BeamSize <= 0 {
		cfg.BeamSize = 1
	}
	if cfg.BestOf <= 0 {
		cfg.BestOf = 1
	}
	return cfg, nil
}

// transcriber is a batch speech-to-text backend.
type transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)
	Close() error
}

// newTranscriber prefers a resident whisper-server process and falls back to
// one-shot whisper-cli runs.
func newTranscriber(cfg WhisperConfig) (transcriber, string, error) {
	if srv, err := startWhisperServer(cfg); err == nil {
		return srv, "whisper-server", nil
	}
	cli, err := newWhisperCLI(cfg)
	if err != nil {
		return nil, "", err
	}
	return cli, "whisper-cli", nil
}

// captureStream abstracts the microphone for tests.
type captureStream interface {
	Frames() <-chan []float32
	Stop()
}

const transcribeTimeout = 30 * time.Second

// WhisperRecognizer drives local recognition: it owns the microphone stream,
// finds utterance boundaries by frame energy, and transcribes each utterance
// with whisper.cpp. It reports final results only; after each one it stops
// listening and emits an end event, leaving re-arming to the owner.
type WhisperRecognizer struct {
	trans   transcriber
	backend string
	capture captureStream

	events chan RecognizerEvent
	done   chan struct{}

	mu     sync.Mutex
	ep     *endpointer
	armed  bool
	closed bool
	gen    int
	cancel context.CancelFunc // in-flight transcription
}

// NewWhisperRecognizer validates the model, starts a transcription backend,
// and opens the microphone. Any failure leaves nothing acquired.
func NewWhisperRecognizer(cfg WhisperConfig) (*WhisperRecognizer, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	trans, backend, err := newTranscriber(cfg)
	if err != nil {
		return nil, err
	}
	capture, err := audio.StartCapture(cfg.Device)
	if err != nil {
		trans.Close()
		return nil, fmt.Errorf("open microphone: %w", err)
	}
	return newWhisperRecognizerWith(trans, backend, capture), nil
}

func newWhisperRecognizerWith(trans transcriber, backend string, capture captureStream) *WhisperRecognizer {
	r := &WhisperRecognizer{
		trans:   trans,
		backend: backend,
		capture: capture,
		events:  make(chan RecognizerEvent, 64),
		done:    make(chan struct{}),
		ep:      newEndpointer(),
	}
	go r.run()
	return r
}

// Backend reports which whisper.cpp frontend is in use.
func (r *WhisperRecognizer) Backend() string { return r.backend }

// Events returns the recognition event stream. The channel is never closed;
// after Close no further events arrive.
func (r *WhisperRecognizer) Events() <-chan RecognizerEvent { return r.events }

// Start arms listening for the next utterance.
func (r *WhisperRecognizer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("recognizer closed")
	}
	if r.armed || r.cancel != nil {
		return fmt.Errorf("recognition already active")
	}
	r.armed = true
	r.ep.reset()
	return nil
}

// Stop disarms listening and discards the in-progress utterance or
// transcription. One end event follows when anything was active.
func (r *WhisperRecognizer) Stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	wasActive := r.armed || r.cancel != nil
	r.armed = false
	r.ep.reset()
	r.gen++ // renders in-flight transcription emissions stale
	gen := r.gen
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if wasActive {
		r.emit(gen, RecognizerEvent{Type: RecognizerEnd})
	}
}

// Close releases the microphone and the transcription backend. Safe to call
// repeatedly.
func (r *WhisperRecognizer) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.capture.Stop()
	<-r.done
	return r.trans.Close()
}

func (r *WhisperRecognizer) run() {
	defer close(r.done)
	for frame := range r.capture.Frames() {
		r.mu.Lock()
		if r.closed || !r.armed {
			r.mu.Unlock()
			continue
		}
		switch r.ep.feed(frame) {
		case endpointContinue:
			r.mu.Unlock()

		case endpointNoSpeech:
			r.armed = false
			gen := r.gen
			r.mu.Unlock()
			r.emit(gen, RecognizerEvent{Type: RecognizerError, Code: RecognizerErrNoSpeech})
			r.emit(gen, RecognizerEvent{Type: RecognizerEnd})

		case endpointUtterance:
			samples := r.ep.take()
			r.armed = false
			gen := r.gen
			ctx, cancel := context.WithTimeout(context.Background(), transcribeTimeout)
			r.cancel = cancel
			r.mu.Unlock()
			go r.transcribe(ctx, cancel, gen, samples)
		}
	}
}

func (r *WhisperRecognizer) transcribe(ctx context.Context, cancel context.CancelFunc, gen int, samples []float32) {
	defer cancel()
	text, err := r.trans.Transcribe(ctx, samples, audio.CaptureRate)

	r.mu.Lock()
	if r.gen == gen {
		r.cancel = nil
	}
	r.mu.Unlock()

	switch {
	case errors.Is(err, context.Canceled):
		// Stopped mid-transcription; Stop already emitted the end event.
		return
	case err != nil:
		r.emit(gen, RecognizerEvent{Type: RecognizerError, Code: "transcription-failed"})
		r.emit(gen, RecognizerEvent{Type: RecognizerEnd})
	default:
		if text = cleanWhisperText(text); text == "" {
			r.emit(gen, RecognizerEvent{Type: RecognizerError, Code: RecognizerErrNoSpeech})
			r.emit(gen, RecognizerEvent{Type: RecognizerEnd})
			return
		}
		r.emit(gen, RecognizerEvent{Type: RecognizerResult, Text: text})
		r.emit(gen, RecognizerEvent{Type: RecognizerEnd})
	}
}

// emit delivers one event unless it belongs to a superseded utterance or the
// recognizer has closed. Delivery never blocks the audio path.
func (r *WhisperRecognizer) emit(gen int, ev RecognizerEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || gen != r.gen {
		return
	}
	select {
	case r.events <- ev:
	default:
	}
}

// whisper.cpp annotates non-speech audio with bracketed tags such as
// [BLANK_AUDIO] or (wind blowing); strip them so silence reads as silence.
var whisperAnnotationRe = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)`)

func cleanWhisperText(raw string) string {
	cleaned := whisperAnnotationRe.ReplaceAllString(raw, " ")
	return strings.Join(strings.Fields(cleaned), " ")
}

// whisperServer runs whisper.cpp's whisper-server as a child process and
// transcribes over its HTTP inference endpoint.
type whisperServer struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	baseURL string
	client  *http.Client
	logTail *tailBuffer
	closed  bool
}

func startWhisperServer(cfg WhisperConfig) (*whisperServer, error) {
	path, err := exec.LookPath("whisper-server")
	if err != nil {
		return nil, err
	}

	port, err := pickFreePort()
	if err != nil {
		return nil, err
	}

	args := []string{
		"--host", "127.0.0.1",
		"--port", strconv.Itoa(port),
		"-m", cfg.ModelPath,
		"-l", cfg.Language,
		"-nt",
	}
	if cfg.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(cfg.Threads))
	}
	if cfg.BeamSize > 0 {
		args = append(args, "-bs", strconv.Itoa(cfg.BeamSize))
	}
	if cfg.BestOf > 0 {
		args = append(args, "-bo", strconv.Itoa(cfg.BestOf))
	}

	tail := newTailBuffer(24 << 10)
	cmd := exec.Command(path, args...)
	injectWhisperLibraryEnv(cmd, path)
	cmd.Stdout = tail
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	client := &http.Client{}

	// Wait until the server is reachable.
	deadline := time.Now().Add(25 * time.Second)
	for time.Now().Before(deadline) {
		req, _ := http.NewRequest(http.MethodGet, baseURL+"/", nil)
		resp, err := client.Do(req)
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return &whisperServer{
					cmd:     cmd,
					baseURL: baseURL,
					client:  client,
					logTail: tail,
				}, nil
			}
		}
		time.Sleep(80 * time.Millisecond)
	}

	_ = cmd.Process.Kill()
	_ = cmd.Wait()
	msg := tail.String()
	if msg == "" {
		msg = "whisper-server did not become ready"
	}
	return nil, fmt.Errorf("%s", msg)
}

func (s *whisperServer) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	wav, err := audio.EncodeWAVPCM16LE(samples, sampleRate)
	if err != nil {
		return "", err
	}

	// Serialize requests; the server runs a single processor.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", fmt.Errorf("whisper-server closed")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		_ = mw.Close()
		return "", err
	}
	if _, err := fw.Write(wav); err != nil {
		_ = mw.Close()
		return "", err
	}
	_ = mw.WriteField("temperature", "0.0")
	_ = mw.WriteField("response_format", "json")
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/inference", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", context.Canceled
		}
		return "", err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper-server HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Text), nil
}

func (s *whisperServer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cmd := s.cmd
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	// Best-effort graceful shutdown.
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

// whisperCLI shells out to whisper.cpp's CLI for each utterance.
type whisperCLI struct {
	cliPath string
	cfg     WhisperConfig
}

func newWhisperCLI(cfg WhisperConfig) (whisperCLI, error) {
	cliPath, err := exec.LookPath(cfg.CLIPath)
	if err != nil {
		return whisperCLI{}, fmt.Errorf("whisper.cpp CLI not found (%s)", cfg.CLIPath)
	}
	return whisperCLI{cliPath: cliPath, cfg: cfg}, nil
}

func (w whisperCLI) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}
	if sampleRate <= 0 {
		sampleRate = audio.CaptureRate
	}
	tmpDir, err := os.MkdirTemp("", "james-whisper-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmpDir)

	wavPath := filepath.Join(tmpDir, "audio.wav")
	if err := audio.WriteWAVPCM16LEFile(wavPath, samples, sampleRate); err != nil {
		return "", err
	}
	outPrefix := filepath.Join(tmpDir, "out")

	// whisper.cpp CLI flag set varies slightly across builds; keep this conservative.
	args := []string{
		"-m", w.cfg.ModelPath,
		"-f", wavPath,
		"-l", w.cfg.Language,
		"-otxt",
		"-of", outPrefix,
		"-nt",
	}
	if w.cfg.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(w.cfg.Threads))
	}
	if w.cfg.BeamSize > 0 {
		args = append(args, "-bs", strconv.Itoa(w.cfg.BeamSize))
	}
	if w.cfg.BestOf > 0 {
		args = append(args, "-bo", strconv.Itoa(w.cfg.BestOf))
	}

	cmd := exec.CommandContext(ctx, w.cliPath, args...)
	injectWhisperLibraryEnv(cmd, w.cliPath)
	cmd.Stdout = io.Discard
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", context.Canceled
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("whisper.cpp timed out; use a smaller model or reduce utterance length")
		}
		detail := strings.TrimSpace(stderr.String())
		// whisper.cpp can be extremely chatty; keep errors readable.
		if len(detail) > 8<<10 {
			detail = strings.TrimSpace(detail[len(detail)-(8<<10):])
		}
		if detail == "" {
			detail = err.Error()
		}
		return "", fmt.Errorf("whisper.cpp failed: %s", detail)
	}

	b, err := os.ReadFile(outPrefix + ".txt")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func (w whisperCLI) Close() error { return nil }

func pickFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok || addr == nil || addr.Port == 0 {
		return 0, fmt.Errorf("failed to allocate port")
	}
	return addr.Port, nil
}

// injectWhisperLibraryEnv points the child at whisper.cpp's shared libraries
// when they live next to the binary rather than on the system path.
func injectWhisperLibraryEnv(cmd *exec.Cmd, toolPath string) {
	if cmd == nil {
		return
	}
	toolPath = strings.TrimSpace(toolPath)
	if toolPath == "" {
		return
	}

	toolDir := filepath.Dir(toolPath)
	candidates := []string{
		filepath.Clean(filepath.Join(toolDir, "..", "lib")),
		filepath.Clean(filepath.Join(toolDir, "lib")),
	}
	libDir := ""
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && info.IsDir() {
			libDir = candidate
			break
		}
	}
	if libDir == "" {
		return
	}

	env := cmd.Env
	if len(env) == 0 {
		env = os.Environ()
	}
	cmd.Env = prependPathEnv(env, "LD_LIBRARY_PATH", libDir)
}

func prependPathEnv(env []string, key, value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return env
	}
	prefix := key + "="
	for i := range env {
		if !strings.HasPrefix(env[i], prefix) {
			continue
		}
		current := strings.TrimPrefix(env[i], prefix)
		if pathListContains(current, value) {
			return env
		}
		if strings.TrimSpace(current) == "" {
			env[i] = prefix + value
		} else {
			env[i] = prefix + value + ":" + current
		}
		return env
	}
	return append(env, prefix+value)
}

func pathListContains(pathList, value string) bool {
	value = filepath.Clean(strings.TrimSpace(value))
	if value == "" {
		return false
	}
	for _, item := range strings.Split(pathList, ":") {
		if filepath.Clean(strings.TrimSpace(item)) == value {
			return true
		}
	}
	return false
}

// tailBuffer keeps the last max bytes written, for surfacing child process
// logs in error messages.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
