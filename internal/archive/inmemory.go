package archive

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// inMemoryCap bounds the in-process archive; the oldest records fall off.
const inMemoryCap = 4096

// InMemoryStore is a bounded in-process archive for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) SaveEntry(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.At.IsZero() {
		record.At = time.Now().UTC()
	}
	s.records = append(s.records, record)
	if len(s.records) > inMemoryCap {
		s.records = append([]Record(nil), s.records[len(s.records)-inMemoryCap:]...)
	}
	return nil
}

func (s *InMemoryStore) History(_ context.Context, sessionID string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, r := range s.records {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return tail(out, limit), nil
}

func (s *InMemoryStore) Recent(_ context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(append([]Record(nil), s.records...), limit), nil
}

func (s *InMemoryStore) Close() error { return nil }

func tail(records []Record, limit int) []Record {
	if limit <= 0 || limit >= len(records) {
		return records
	}
	return records[len(records)-limit:]
}
