// Package archive persists the session log across restarts. The in-process
// log stays the source of truth for the active session; the archive is the
// durable copy served by the history endpoints.
package archive

import (
	"context"
	"time"
)

// Record is one archived session log entry.
type Record struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Seq       int       `json:"seq"`
	Sender    string    `json:"sender"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// Store persists and retrieves archived session log entries.
type Store interface {
	SaveEntry(ctx context.Context, record Record) error
	// History returns entries for one session in chronological order.
	History(ctx context.Context, sessionID string, limit int) ([]Record, error)
	// Recent returns the newest entries across all sessions in
	// chronological order.
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}
