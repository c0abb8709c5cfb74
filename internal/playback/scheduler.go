// Package playback schedules decoded audio chunks for gapless rendering and
// hard-stops everything on interruption.
package playback

import (
	"sync"
	"time"

	"github.com/Ratata326/james-ia/internal/audio"
)

// Sink renders enqueued sample chunks in arrival order. *audio.Output
// implements it.
type Sink interface {
	Enqueue(samples []float32, done func())
	DropQueued()
}

// Scheduler owns the "next start time" cursor for streamed audio and the set
// of chunks currently scheduled or playing. Chunks play back-to-back: each
// start time is clamped to no earlier than the end of the previous chunk, or
// the output clock when the cursor has fallen behind. The cursor only
// advances by chunk duration, or resets to zero on StopAll.
type Scheduler struct {
	sink Sink
	now  func() time.Duration

	mu      sync.Mutex
	cursor  time.Duration
	handles map[int]time.Duration
	nextID  int
}

// NewScheduler builds a scheduler over the given sink. now reports the
// output clock; nil defaults to time elapsed since construction.
func NewScheduler(sink Sink, now func() time.Duration) *Scheduler {
	if now == nil {
		epoch := time.Now()
		now = func() time.Duration { return time.Since(epoch) }
	}
	return &Scheduler{
		sink:    sink,
		now:     now,
		handles: make(map[int]time.Duration),
	}
}

// Schedule queues one decoded chunk to start at max(cursor, now), advances
// the cursor past it, and registers its handle until natural completion. It
// returns the chunk's start time on the output clock.
func (s *Scheduler) Schedule(buf audio.Buffer) time.Duration {
	s.mu.Lock()
	start := s.cursor
	if now := s.now(); now > start {
		start = now
	}
	s.cursor = start + buf.Duration()
	id := s.nextID
	s.nextID++
	s.handles[id] = s.cursor
	s.mu.Unlock()

	s.sink.Enqueue(buf.Samples, func() { s.finish(id) })
	return start
}

// finish deregisters one handle after its chunk has fully rendered. Handles
// already cleared by StopAll are gone; the delete is then a no-op, so every
// handle leaves the registry exactly once.
func (s *Scheduler) finish(id int) {
	s.mu.Lock()
	delete(s.handles, id)
	s.mu.Unlock()
}

// StopAll discards every queued chunk including the one mid-render, clears
// the handle registry, and resets the cursor to zero. Used on interruption
// and on teardown.
func (s *Scheduler) StopAll() {
	s.sink.DropQueued()
	s.mu.Lock()
	s.handles = make(map[int]time.Duration)
	s.cursor = 0
	s.mu.Unlock()
}

// Cursor returns the earliest time the next chunk may start.
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Pending returns the number of chunks scheduled or still playing.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}
