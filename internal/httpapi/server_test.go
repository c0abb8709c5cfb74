package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/Ratata326/james-ia/internal/archive"
	"github.com/Ratata326/james-ia/internal/audio"
	"github.com/Ratata326/james-ia/internal/config"
	"github.com/Ratata326/james-ia/internal/observability"
	"github.com/Ratata326/james-ia/internal/session"
	"github.com/Ratata326/james-ia/internal/voice"
)

var testMetricsSeq atomic.Int64

func newTestMetrics() *observability.Metrics {
	return observability.NewMetrics(fmt.Sprintf("james_httpapi_test_%d", testMetricsSeq.Add(1)))
}

// fakeOrch satisfies the Orchestrator interface without touching hardware.
type fakeOrch struct {
	log        *session.Log
	connectErr error
	lastCfg    session.Config
	connects   int
	disconns   int
	status     session.Status
}

func newFakeOrch() *fakeOrch {
	return &fakeOrch{log: session.NewLog(), status: session.StatusDisconnected}
}

func (f *fakeOrch) Connect(cfg session.Config) error {
	f.connects++
	f.lastCfg = cfg
	if f.connectErr != nil {
		return f.connectErr
	}
	f.status = session.StatusConnecting
	return nil
}

func (f *fakeOrch) Disconnect() {
	f.disconns++
	f.status = session.StatusDisconnected
}

func (f *fakeOrch) Snapshot() voice.Snapshot  { return voice.Snapshot{Status: f.status} }
func (f *fakeOrch) Analyser() *audio.Analyser { return nil }
func (f *fakeOrch) Log() *session.Log         { return f.log }

func newTestServer(t *testing.T, orch Orchestrator) *httptest.Server {
	t.Helper()
	cfg := config.Config{
		DefaultProvider:   "rest-completion",
		LiveModel:         "gemini-2.0-flash-live-001",
		LiveVoice:         "Kore",
		CompletionModel:   "gemini-2.0-flash",
		SystemInstruction: "be brief",
		Locale:            "es-ES",
		HistoryLimit:      50,
	}
	srv := New(cfg, orch, voice.MockSynthesizer{}, archive.NewInMemoryStore(), newTestMetrics())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func TestConnectUsesConfiguredDefaults(t *testing.T) {
	orch := newFakeOrch()
	ts := newTestServer(t, orch)

	body, _ := json.Marshal(map[string]string{"credential": "key-123"})
	res, err := http.Post(ts.URL+"/v1/session/connect", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("connect request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("connect status = %d, want %d", res.StatusCode, http.StatusAccepted)
	}

	if orch.connects != 1 {
		t.Fatalf("connects = %d, want 1", orch.connects)
	}
	got := orch.lastCfg
	if got.Provider != session.ProviderRest {
		t.Fatalf("provider = %q, want %q", got.Provider, session.ProviderRest)
	}
	if got.Model != "gemini-2.0-flash" {
		t.Fatalf("model = %q, want configured completion default", got.Model)
	}
	if got.SystemInstruction != "be brief" {
		t.Fatalf("system instruction = %q, want configured default", got.SystemInstruction)
	}
	if got.Credential != "key-123" {
		t.Fatalf("credential = %q, want %q", got.Credential, "key-123")
	}
}

func TestConnectErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"missing credential", voice.ErrNoCredential, http.StatusBadRequest, "missing_credential"},
		{"already active", voice.ErrSessionActive, http.StatusConflict, "session_active"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			orch := newFakeOrch()
			orch.connectErr = tc.err
			ts := newTestServer(t, orch)

			res, err := http.Post(ts.URL+"/v1/session/connect", "application/json", bytes.NewReader([]byte("{}")))
			if err != nil {
				t.Fatalf("connect request error = %v", err)
			}
			defer res.Body.Close()
			if res.StatusCode != tc.wantStatus {
				t.Fatalf("status = %d, want %d", res.StatusCode, tc.wantStatus)
			}
			var out errorResponse
			if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if out.Code != tc.wantCode {
				t.Fatalf("code = %q, want %q", out.Code, tc.wantCode)
			}
		})
	}
}

func TestDisconnectAlwaysSucceeds(t *testing.T) {
	orch := newFakeOrch()
	ts := newTestServer(t, orch)

	for i := 0; i < 2; i++ {
		res, err := http.Post(ts.URL+"/v1/session/disconnect", "application/json", nil)
		if err != nil {
			t.Fatalf("disconnect request error = %v", err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("disconnect status = %d, want %d", res.StatusCode, http.StatusOK)
		}
	}
	if orch.disconns != 2 {
		t.Fatalf("disconnects = %d, want 2", orch.disconns)
	}
}

func TestSessionLogLimit(t *testing.T) {
	orch := newFakeOrch()
	for i := 0; i < 5; i++ {
		orch.log.Append("s1", session.SenderSystem, fmt.Sprintf("entry %d", i))
	}
	ts := newTestServer(t, orch)

	res, err := http.Get(ts.URL + "/v1/session/log?limit=2")
	if err != nil {
		t.Fatalf("log request error = %v", err)
	}
	defer res.Body.Close()
	var out struct {
		Entries []session.LogEntry `json:"entries"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode log response: %v", err)
	}
	if len(out.Entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(out.Entries))
	}
	if out.Entries[1].Message != "entry 4" {
		t.Fatalf("last entry = %q, want the newest", out.Entries[1].Message)
	}
}

func TestAnalyserAbsentIs204(t *testing.T) {
	ts := newTestServer(t, newFakeOrch())

	res, err := http.Get(ts.URL + "/v1/session/analyser")
	if err != nil {
		t.Fatalf("analyser request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("analyser status = %d, want %d", res.StatusCode, http.StatusNoContent)
	}
}

func TestListVoices(t *testing.T) {
	ts := newTestServer(t, newFakeOrch())

	res, err := http.Get(ts.URL + "/v1/voices")
	if err != nil {
		t.Fatalf("voices request error = %v", err)
	}
	defer res.Body.Close()
	var out listVoicesResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode voices response: %v", err)
	}
	if out.DefaultLiveVoice != "Kore" {
		t.Fatalf("default live voice = %q, want Kore", out.DefaultLiveVoice)
	}
	if len(out.Live) == 0 || len(out.Local) == 0 {
		t.Fatalf("expected both live and local voices, got %d live %d local", len(out.Live), len(out.Local))
	}
	// The mock inventory carries an es-ES voice; the cascade should pick it.
	if out.SelectedLocalID != "mock-es" {
		t.Fatalf("selected local voice = %q, want mock-es", out.SelectedLocalID)
	}
}

func TestCapabilities(t *testing.T) {
	ts := newTestServer(t, newFakeOrch())

	res, err := http.Get(ts.URL + "/v1/capabilities")
	if err != nil {
		t.Fatalf("capabilities request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("capabilities status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var out capabilitiesResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode capabilities response: %v", err)
	}
	if out.DefaultProvider != "rest-completion" {
		t.Fatalf("default provider = %q, want rest-completion", out.DefaultProvider)
	}
	if len(out.Checks) == 0 {
		t.Fatalf("expected capability checks, got none")
	}
}

func TestHistoryReadsArchive(t *testing.T) {
	orch := newFakeOrch()
	cfg := config.Config{DefaultProvider: "rest-completion", HistoryLimit: 50}
	store := archive.NewInMemoryStore()
	if err := store.SaveEntry(context.Background(), archive.Record{
		ID: "r1", SessionID: "s1", Seq: 1, Sender: "user", Message: "hola",
	}); err != nil {
		t.Fatalf("SaveEntry() error = %v", err)
	}
	srv := New(cfg, orch, nil, store, newTestMetrics())
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/v1/history?session_id=s1")
	if err != nil {
		t.Fatalf("history request error = %v", err)
	}
	defer res.Body.Close()
	var out struct {
		Records []archive.Record `json:"records"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode history response: %v", err)
	}
	if len(out.Records) != 1 || out.Records[0].Message != "hola" {
		t.Fatalf("records = %+v, want the archived entry", out.Records)
	}
}
