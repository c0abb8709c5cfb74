package playback

import (
	"sync"
	"testing"
	"time"

	"github.com/Ratata326/james-ia/internal/audio"
)

type fakeSink struct {
	mu     sync.Mutex
	chunks [][]float32
	dones  []func()
	drops  int
}

func (f *fakeSink) Enqueue(samples []float32, done func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, samples)
	f.dones = append(f.dones, done)
}

func (f *fakeSink) DropQueued() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drops++
	f.chunks = nil
}

func (f *fakeSink) finishAll() {
	f.mu.Lock()
	dones := f.dones
	f.dones = nil
	f.mu.Unlock()
	for _, done := range dones {
		done()
	}
}

func chunkOf(d time.Duration) audio.Buffer {
	samples := int(d * audio.PlaybackRate / time.Second)
	return audio.Buffer{Samples: make([]float32, samples), Rate: audio.PlaybackRate}
}

func TestScheduleChainsChunksBackToBack(t *testing.T) {
	sink := &fakeSink{}
	clock := time.Duration(0)
	s := NewScheduler(sink, func() time.Duration { return clock })

	d := 100 * time.Millisecond
	starts := []time.Duration{
		s.Schedule(chunkOf(d)),
		s.Schedule(chunkOf(d)),
		s.Schedule(chunkOf(d)),
	}

	for i, want := range []time.Duration{0, d, 2 * d} {
		if starts[i] != want {
			t.Fatalf("chunk %d: expected start %v, got %v", i, want, starts[i])
		}
	}
	if got := s.Cursor(); got != 3*d {
		t.Fatalf("expected cursor %v, got %v", 3*d, got)
	}
	if s.Pending() != 3 {
		t.Fatalf("expected 3 pending handles, got %d", s.Pending())
	}
	if len(sink.chunks) != 3 {
		t.Fatalf("expected 3 chunks handed to sink, got %d", len(sink.chunks))
	}
}

func TestScheduleClampsToOutputClock(t *testing.T) {
	sink := &fakeSink{}
	clock := time.Duration(0)
	s := NewScheduler(sink, func() time.Duration { return clock })

	s.Schedule(chunkOf(50 * time.Millisecond))
	// The output clock has run past the cursor: the next chunk must not be
	// scheduled in the past.
	clock = 500 * time.Millisecond
	start := s.Schedule(chunkOf(100 * time.Millisecond))
	if start != 500*time.Millisecond {
		t.Fatalf("expected start clamped to clock, got %v", start)
	}
	if got := s.Cursor(); got != 600*time.Millisecond {
		t.Fatalf("expected cursor 600ms, got %v", got)
	}
}

func TestNaturalCompletionDeregistersHandles(t *testing.T) {
	sink := &fakeSink{}
	s := NewScheduler(sink, func() time.Duration { return 0 })

	s.Schedule(chunkOf(40 * time.Millisecond))
	s.Schedule(chunkOf(40 * time.Millisecond))
	if s.Pending() != 2 {
		t.Fatalf("expected 2 pending, got %d", s.Pending())
	}

	sink.finishAll()
	if s.Pending() != 0 {
		t.Fatalf("expected empty registry after completion, got %d", s.Pending())
	}
	// Natural completion never rewinds the cursor.
	if got := s.Cursor(); got != 80*time.Millisecond {
		t.Fatalf("expected cursor 80ms, got %v", got)
	}
}

func TestStopAllResetsCursorAndRegistry(t *testing.T) {
	sink := &fakeSink{}
	s := NewScheduler(sink, func() time.Duration { return 0 })

	for i := 0; i < 5; i++ {
		s.Schedule(chunkOf(100 * time.Millisecond))
	}
	s.StopAll()

	if sink.drops != 1 {
		t.Fatalf("expected one sink drop, got %d", sink.drops)
	}
	if s.Pending() != 0 {
		t.Fatalf("expected empty registry, got %d", s.Pending())
	}
	if s.Cursor() != 0 {
		t.Fatalf("expected cursor reset to 0, got %v", s.Cursor())
	}
}

func TestStaleCompletionAfterStopAllIsNoOp(t *testing.T) {
	sink := &fakeSink{}
	s := NewScheduler(sink, func() time.Duration { return 0 })

	s.Schedule(chunkOf(100 * time.Millisecond))
	s.StopAll()
	// The sink may still fire done for a chunk that was mid-render when the
	// stop landed.
	sink.finishAll()

	if s.Pending() != 0 {
		t.Fatalf("expected empty registry, got %d", s.Pending())
	}
	if s.Cursor() != 0 {
		t.Fatalf("expected cursor still 0, got %v", s.Cursor())
	}
}

func TestScheduleAfterStopAllStartsFromClock(t *testing.T) {
	sink := &fakeSink{}
	clock := time.Duration(0)
	s := NewScheduler(sink, func() time.Duration { return clock })

	s.Schedule(chunkOf(time.Second))
	s.StopAll()

	clock = 250 * time.Millisecond
	start := s.Schedule(chunkOf(100 * time.Millisecond))
	if start != 250*time.Millisecond {
		t.Fatalf("expected fresh schedule from the clock, got %v", start)
	}
}
