package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Log is the append-only ordered sequence of session log entries. Entries are
// never mutated or removed once appended. Subscribers receive appended entries
// on buffered channels; a slow subscriber loses entries rather than blocking
// the session.
type Log struct {
	mu      sync.Mutex
	entries []LogEntry
	subs    map[int]chan LogEntry
	nextSub int
}

func NewLog() *Log {
	return &Log{subs: make(map[int]chan LogEntry)}
}

// Append records one entry and fans it out to subscribers. The message is
// stored as given; callers decide trimming policy.
func (l *Log) Append(sessionID string, sender Sender, message string) LogEntry {
	l.mu.Lock()
	entry := LogEntry{
		ID:        uuid.NewString(),
		Seq:       len(l.entries) + 1,
		SessionID: sessionID,
		At:        time.Now().UTC(),
		Sender:    sender,
		Message:   message,
	}
	l.entries = append(l.entries, entry)
	for _, ch := range l.subs {
		select {
		case ch <- entry:
		default:
		}
	}
	l.mu.Unlock()
	return entry
}

// Snapshot returns a copy of all entries in append order.
func (l *Log) Snapshot() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len reports the number of appended entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Subscribe registers a buffered listener for future appends. The returned
// cancel function must be called exactly once; it closes the channel.
func (l *Log) Subscribe(buffer int) (<-chan LogEntry, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan LogEntry, buffer)
	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch
	l.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// LastBySender returns the most recent entry from the given sender, if any.
func (l *Log) LastBySender(sender Sender) (LogEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].Sender == sender {
			return l.entries[i], true
		}
	}
	return LogEntry{}, false
}
