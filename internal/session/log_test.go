package session

import (
	"testing"
	"time"
)

func TestLogAppendAssignsSequentialSeq(t *testing.T) {
	log := NewLog()

	first := log.Append("sess-1", SenderUser, "hello")
	second := log.Append("sess-1", SenderAI, "hi there")

	if first.Seq != 1 || second.Seq != 2 {
		t.Fatalf("expected seq 1 and 2, got %d and %d", first.Seq, second.Seq)
	}
	if first.ID == "" || second.ID == "" {
		t.Fatalf("expected non-empty entry IDs")
	}
	if first.ID == second.ID {
		t.Fatalf("expected distinct entry IDs, both were %q", first.ID)
	}
	if first.At.IsZero() {
		t.Fatalf("expected timestamp to be set")
	}
}

func TestLogSnapshotPreservesOrder(t *testing.T) {
	log := NewLog()
	log.Append("sess-1", SenderUser, "one")
	log.Append("sess-1", SenderAI, "two")
	log.Append("sess-1", SenderSystem, "three")

	entries := log.Snapshot()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	want := []string{"one", "two", "three"}
	for i, entry := range entries {
		if entry.Message != want[i] {
			t.Fatalf("entry %d: expected %q, got %q", i, want[i], entry.Message)
		}
		if entry.Seq != i+1 {
			t.Fatalf("entry %d: expected seq %d, got %d", i, i+1, entry.Seq)
		}
	}

	// Snapshot is a copy: mutating it must not touch the log.
	entries[0].Message = "mutated"
	if log.Snapshot()[0].Message != "one" {
		t.Fatalf("snapshot mutation leaked into the log")
	}
}

func TestLogSubscribeReceivesAppends(t *testing.T) {
	log := NewLog()
	ch, cancel := log.Subscribe(4)
	defer cancel()

	appended := log.Append("sess-1", SenderAI, "streamed")

	select {
	case got := <-ch:
		if got.ID != appended.ID {
			t.Fatalf("expected entry %q, got %q", appended.ID, got.ID)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for fanout")
	}
}

func TestLogSlowSubscriberDoesNotBlockAppend(t *testing.T) {
	log := NewLog()
	_, cancel := log.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			log.Append("sess-1", SenderUser, "burst")
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("append blocked on a full subscriber channel")
	}
	if log.Len() != 10 {
		t.Fatalf("expected 10 entries, got %d", log.Len())
	}
}

func TestLogCancelClosesChannel(t *testing.T) {
	log := NewLog()
	ch, cancel := log.Subscribe(1)
	cancel()
	cancel() // idempotent

	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel after cancel")
	}

	// Appends after cancel must not panic on the removed subscriber.
	log.Append("sess-1", SenderUser, "after cancel")
}

func TestLastBySender(t *testing.T) {
	log := NewLog()
	if _, ok := log.LastBySender(SenderUser); ok {
		t.Fatalf("expected no entry on empty log")
	}
	log.Append("sess-1", SenderUser, "first user")
	log.Append("sess-1", SenderAI, "assistant")
	log.Append("sess-1", SenderUser, "second user")

	entry, ok := log.LastBySender(SenderUser)
	if !ok || entry.Message != "second user" {
		t.Fatalf("expected most recent user entry, got %+v ok=%v", entry, ok)
	}
}

func TestParseProvider(t *testing.T) {
	cases := []struct {
		raw     string
		want    Provider
		wantErr bool
	}{
		{"live-model", ProviderLive, false},
		{"rest-completion", ProviderRest, false},
		{"", "", true},
		{"batch", "", true},
	}
	for _, tc := range cases {
		got, err := ParseProvider(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseProvider(%q): expected error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseProvider(%q): unexpected error %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("ParseProvider(%q): expected %q, got %q", tc.raw, tc.want, got)
		}
	}
}
