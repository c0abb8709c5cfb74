package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseClientMessageConnectControl(t *testing.T) {
	raw := []byte(`{"type":"client_control","action":"connect","provider":"live-model","model":"gemini-2.0-flash-live-001","voice":"Kore"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	control, ok := msg.(ClientControl)
	if !ok {
		t.Fatalf("message type = %T, want ClientControl", msg)
	}
	if control.Action != ActionConnect {
		t.Fatalf("Action = %q, want %q", control.Action, ActionConnect)
	}
	if control.Provider != "live-model" || control.Model != "gemini-2.0-flash-live-001" || control.Voice != "Kore" {
		t.Fatalf("unexpected connect control: %+v", control)
	}
}

func TestParseClientMessageBareDisconnect(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"client_control","action":"disconnect"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	control, ok := msg.(ClientControl)
	if !ok {
		t.Fatalf("message type = %T, want ClientControl", msg)
	}
	if control.Action != ActionDisconnect {
		t.Fatalf("Action = %q, want %q", control.Action, ActionDisconnect)
	}
	if control.Provider != "" || control.Model != "" || control.Voice != "" {
		t.Fatalf("disconnect control carried session fields: %+v", control)
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsMissingAction(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"client_control","provider":"live-model"}`))
	if err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestParseClientMessageRejectsMalformedJSON(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":`))
	if err == nil || !strings.Contains(err.Error(), "invalid envelope") {
		t.Fatalf("error = %v, want invalid envelope", err)
	}
}

func TestStatusEventOmitsIdleSessionFields(t *testing.T) {
	raw, err := json.Marshal(StatusEvent{Type: TypeStatusEvent, Status: "disconnected"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for _, field := range []string{"session_id", "provider", "model", "voice", "started_at_ms"} {
		if strings.Contains(string(raw), field) {
			t.Fatalf("idle status event leaked %q: %s", field, raw)
		}
	}
}

func BenchmarkParseClientMessageControl(b *testing.B) {
	raw := []byte(`{"type":"client_control","action":"connect","provider":"rest-completion","model":"gemini-2.0-flash"}`)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		msg, err := ParseClientMessage(raw)
		if err != nil {
			b.Fatalf("ParseClientMessage() error = %v", err)
		}
		if _, ok := msg.(ClientControl); !ok {
			b.Fatalf("message type = %T, want ClientControl", msg)
		}
	}
}
