package archive

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestInMemoryStoreHistoryFiltersBySession(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := store.SaveEntry(ctx, Record{SessionID: "s1", Seq: i + 1, Sender: "user", Message: fmt.Sprintf("a%d", i+1)})
		if err != nil {
			t.Fatalf("SaveEntry() error = %v", err)
		}
	}
	if err := store.SaveEntry(ctx, Record{SessionID: "s2", Seq: 1, Sender: "system", Message: "other"}); err != nil {
		t.Fatalf("SaveEntry() error = %v", err)
	}

	history, err := store.History(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	for i, r := range history {
		if r.Message != fmt.Sprintf("a%d", i+1) {
			t.Fatalf("history[%d].Message = %q, want chronological order", i, r.Message)
		}
		if r.ID == "" {
			t.Fatalf("history[%d] has no generated id", i)
		}
		if r.At.IsZero() {
			t.Fatalf("history[%d] has no timestamp", i)
		}
	}

	limited, err := store.History(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(limited) != 2 || limited[0].Message != "a2" {
		t.Fatalf("limited history = %+v, want newest two", limited)
	}
}

func TestInMemoryStoreRecentSpansSessions(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 4; i++ {
		sessionID := "s1"
		if i%2 == 1 {
			sessionID = "s2"
		}
		err := store.SaveEntry(ctx, Record{
			SessionID: sessionID,
			Seq:       i + 1,
			Sender:    "ai",
			Message:   fmt.Sprintf("m%d", i+1),
			At:        base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("SaveEntry() error = %v", err)
		}
	}

	recent, err := store.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("recent length = %d, want 3", len(recent))
	}
	if recent[0].Message != "m2" || recent[2].Message != "m4" {
		t.Fatalf("recent = %+v, want m2..m4 in order", recent)
	}
}

func TestInMemoryStoreDropsOldestPastCap(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	for i := 0; i < inMemoryCap+10; i++ {
		if err := store.SaveEntry(ctx, Record{SessionID: "s", Seq: i + 1, Message: fmt.Sprintf("m%d", i+1)}); err != nil {
			t.Fatalf("SaveEntry() error = %v", err)
		}
	}

	all, err := store.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(all) != inMemoryCap {
		t.Fatalf("stored records = %d, want cap %d", len(all), inMemoryCap)
	}
	if all[0].Message != "m11" {
		t.Fatalf("oldest surviving record = %q, want m11", all[0].Message)
	}
}
