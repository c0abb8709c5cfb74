package archive

import (
	"context"
	"time"

	"github.com/Ratata326/james-ia/internal/observability"
	"github.com/Ratata326/james-ia/internal/reliability"
	"github.com/Ratata326/james-ia/internal/session"
)

const (
	saveTimeout     = 5 * time.Second
	saveAttempts    = 3
	saveBackoffBase = 200 * time.Millisecond
	saveBackoffCap  = 2 * time.Second
)

// Archiver copies session log entries into the store as they are appended.
// Writes happen off the session's hot path; a store outage costs archived
// history, never the live session.
type Archiver struct {
	store   Store
	metrics *observability.Metrics
	cancel  func()
	done    chan struct{}
}

// StartArchiver subscribes to the log and begins forwarding entries.
func StartArchiver(log *session.Log, store Store, metrics *observability.Metrics) *Archiver {
	ch, cancel := log.Subscribe(256)
	a := &Archiver{store: store, metrics: metrics, cancel: cancel, done: make(chan struct{})}
	go a.run(ch)
	return a
}

func (a *Archiver) run(ch <-chan session.LogEntry) {
	defer close(a.done)
	for entry := range ch {
		a.save(entry)
	}
}

func (a *Archiver) save(entry session.LogEntry) {
	record := Record{
		ID:        entry.ID,
		SessionID: entry.SessionID,
		Seq:       entry.Seq,
		Sender:    string(entry.Sender),
		Message:   entry.Message,
		At:        entry.At,
	}
	for attempt := 0; attempt < saveAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(reliability.ExponentialBackoff(attempt-1, saveBackoffBase, saveBackoffCap))
			a.metrics.ArchiveWrites.WithLabelValues("retried").Inc()
		}
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		err := a.store.SaveEntry(ctx, record)
		cancel()
		if err == nil {
			a.metrics.ArchiveWrites.WithLabelValues("saved").Inc()
			return
		}
	}
	a.metrics.ArchiveWrites.WithLabelValues("dropped").Inc()
}

// Close stops forwarding and waits for any in-flight write to finish.
func (a *Archiver) Close() {
	a.cancel()
	<-a.done
}
