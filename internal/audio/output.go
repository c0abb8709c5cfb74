package audio

import (
	"fmt"
	"sync"

	"github.com/jfreymuth/pulse"
)

type outputChunk struct {
	samples []float32
	done    func()
}

// Output renders queued audio chunks to the default PulseAudio sink at the
// playback rate. The stream stays warm between chunks by rendering silence,
// so consecutive chunks play back-to-back with no stream restart. Each
// chunk's done callback fires once its final sample has been handed to the
// server.
type Output struct {
	client   *pulse.Client
	stream   *pulse.PlaybackStream
	analyser *Analyser

	mu     sync.Mutex
	queue  []outputChunk
	closed bool
}

// OpenOutput connects to PulseAudio and starts a mono float32 playback
// stream. The analyser, when non-nil, taps every rendered sample run.
func OpenOutput(analyser *Analyser) (*Output, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("james"),
		pulse.ClientApplicationIconName("audio-speakers"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}

	out := &Output{client: client, analyser: analyser}
	stream, err := client.NewPlayback(
		pulse.Float32Reader(out.render),
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(PlaybackRate),
		pulse.PlaybackLatency(0.1),
		pulse.PlaybackMediaName("james voice session"),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create pulse playback stream: %w", err)
	}

	out.stream = stream
	stream.Start()
	return out, nil
}

// Enqueue appends one chunk to the render queue. done may be nil.
func (o *Output) Enqueue(samples []float32, done func()) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.queue = append(o.queue, outputChunk{samples: samples, done: done})
	o.mu.Unlock()
}

// DropQueued discards every queued chunk, including the remainder of the one
// currently rendering, without firing done callbacks. Playback falls silent
// on the next render pass.
func (o *Output) DropQueued() {
	o.mu.Lock()
	o.queue = nil
	o.mu.Unlock()
}

// Close stops rendering and disconnects from the server. Queued chunks are
// discarded.
func (o *Output) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.queue = nil
	o.mu.Unlock()

	o.stream.Close()
	o.client.Close()
}

// render fills p from the queue, zero-filling when nothing is queued. Runs
// on the playback stream's goroutine.
func (o *Output) render(p []float32) (int, error) {
	var finished []func()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return 0, pulse.EndOfData
	}
	n := 0
	for n < len(p) && len(o.queue) > 0 {
		head := &o.queue[0]
		c := copy(p[n:], head.samples)
		head.samples = head.samples[c:]
		n += c
		if len(head.samples) == 0 {
			if head.done != nil {
				finished = append(finished, head.done)
			}
			o.queue = o.queue[1:]
		}
	}
	for ; n < len(p); n++ {
		p[n] = 0
	}
	o.mu.Unlock()

	if o.analyser != nil {
		o.analyser.Push(p)
	}
	// Fire callbacks outside the queue lock: they re-enter the scheduler.
	for _, done := range finished {
		done()
	}
	return len(p), nil
}
