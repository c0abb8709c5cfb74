package audio

import (
	"fmt"
	"io"
	"sync"

	"github.com/jfreymuth/pulse"
)

// captureFrameSamples is the fixed microphone frame size delivered to
// consumers: 20ms of mono float32 at the capture rate.
const captureFrameSamples = CaptureRate / 50

// Capture streams fixed-size mono float32 frames from one PulseAudio source.
type Capture struct {
	client *pulse.Client
	stream *pulse.RecordStream

	frames chan []float32
	stopCh chan struct{}

	mu       sync.Mutex
	pending  []float32
	stopped  bool
	inflight sync.WaitGroup
}

// StartCapture opens the given Pulse source (default source when device is
// empty) and starts a 16kHz mono float32 record stream.
func StartCapture(device string) (*Capture, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("james"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}

	var source *pulse.Source
	if device == "" {
		source, err = client.DefaultSource()
	} else {
		source, err = client.SourceByID(device)
	}
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve capture source %q: %w", device, err)
	}

	capture := &Capture{
		client: client,
		frames: make(chan []float32, 128),
		stopCh: make(chan struct{}),
	}

	stream, err := client.NewRecord(
		pulse.Float32Writer(capture.onSamples),
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(CaptureRate),
		pulse.RecordBufferFragmentSize(captureFrameSamples*4),
		pulse.RecordMediaName("james voice session"),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	capture.stream = stream
	stream.Start()
	return capture, nil
}

// Frames returns the microphone stream as fixed-size sample frames. The
// channel closes after Stop.
func (c *Capture) Frames() <-chan []float32 {
	return c.frames
}

// Stop halts the stream, flushes any residual partial frame, and closes
// Frames exactly once. Safe to call repeatedly.
func (c *Capture) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	close(c.stopCh)
	c.mu.Unlock()

	c.stream.Stop()
	c.stream.Close()
	c.client.Close()

	c.inflight.Wait()

	c.mu.Lock()
	pending := append([]float32(nil), c.pending...)
	c.pending = nil
	c.mu.Unlock()

	if len(pending) > 0 {
		select {
		case c.frames <- pending:
		default:
		}
	}
	close(c.frames)
}

// onSamples receives raw Pulse sample runs and emits fixed-size frames.
func (c *Capture) onSamples(buf []float32) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	select {
	case <-c.stopCh:
		return 0, io.EOF
	default:
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, io.EOF
	}
	// Guard Add under the same mutex as c.stopped to avoid Add/Wait races.
	c.inflight.Add(1)

	c.pending = append(c.pending, buf...)
	frames := make([][]float32, 0, len(c.pending)/captureFrameSamples)
	for len(c.pending) >= captureFrameSamples {
		frame := make([]float32, captureFrameSamples)
		copy(frame, c.pending[:captureFrameSamples])
		c.pending = c.pending[captureFrameSamples:]
		frames = append(frames, frame)
	}
	c.mu.Unlock()
	defer c.inflight.Done()

	for _, frame := range frames {
		select {
		case <-c.stopCh:
			return 0, io.EOF
		case c.frames <- frame:
		}
	}
	return len(buf), nil
}
