package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/Ratata326/james-ia/internal/archive"
	"github.com/Ratata326/james-ia/internal/audio"
	"github.com/Ratata326/james-ia/internal/config"
	"github.com/Ratata326/james-ia/internal/observability"
	"github.com/Ratata326/james-ia/internal/session"
	"github.com/Ratata326/james-ia/internal/voice"
)

const (
	defaultAnalyserBins = 32
	maxAnalyserBins     = 128
)

// Orchestrator is the session control surface the API exposes.
type Orchestrator interface {
	Connect(cfg session.Config) error
	Disconnect()
	Snapshot() voice.Snapshot
	Analyser() *audio.Analyser
	Log() *session.Log
}

type Server struct {
	cfg      config.Config
	orch     Orchestrator
	synth    voice.Synthesizer
	history  archive.Store
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, orch Orchestrator, synth voice.Synthesizer, history archive.Store, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		orch:    orch,
		synth:   synth,
		history: history,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the same origin.
				// This keeps other websites from driving the user's session if the
				// server is ever exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/session/connect", s.handleConnect)
	r.Post("/v1/session/disconnect", s.handleDisconnect)
	r.Get("/v1/session", s.handleSession)
	r.Get("/v1/session/log", s.handleSessionLog)
	r.Get("/v1/session/analyser", s.handleAnalyser)
	r.Get("/v1/session/events", s.handleSessionWS)
	r.Get("/v1/voices", s.handleListVoices)
	r.Get("/v1/capabilities", s.handleCapabilities)
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Get("/v1/history", s.handleHistory)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"archive_store": s.archiveStoreMode(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ready",
		"session_status": s.orch.Snapshot().Status,
	})
}

// ConnectRequest opens a session. Every field is optional; blanks fall back
// to the server's configured defaults.
type ConnectRequest struct {
	Provider          string `json:"provider"`
	Model             string `json:"model"`
	Voice             string `json:"voice"`
	SystemInstruction string `json:"system_instruction"`
	Credential        string `json:"credential"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	cfg := s.sessionConfig(req.Provider, req.Model, req.Voice, req.SystemInstruction, req.Credential)
	if err := s.orch.Connect(cfg); err != nil {
		switch {
		case errors.Is(err, voice.ErrSessionActive):
			respondError(w, http.StatusConflict, "session_active", err.Error())
		case errors.Is(err, voice.ErrNoCredential):
			respondError(w, http.StatusBadRequest, "missing_credential", err.Error())
		default:
			respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		}
		return
	}

	respondJSON(w, http.StatusAccepted, s.orch.Snapshot())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	s.orch.Disconnect()
	respondJSON(w, http.StatusOK, s.orch.Snapshot())
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.orch.Snapshot())
}

func (s *Server) handleSessionLog(w http.ResponseWriter, r *http.Request) {
	entries := s.orch.Log().Snapshot()
	if limit := queryInt(r, "limit"); limit > 0 && limit < len(entries) {
		entries = entries[len(entries)-limit:]
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleAnalyser(w http.ResponseWriter, r *http.Request) {
	an := s.orch.Analyser()
	if an == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	bins := queryInt(r, "bins")
	if bins <= 0 {
		bins = defaultAnalyserBins
	}
	if bins > maxAnalyserBins {
		bins = maxAnalyserBins
	}
	respondJSON(w, http.StatusOK, an.Snapshot(bins))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondJSON(w, http.StatusOK, map[string]any{"records": []archive.Record{}})
		return
	}

	max := s.cfg.HistoryLimit
	if max <= 0 {
		max = 200
	}
	limit := queryInt(r, "limit")
	if limit <= 0 || limit > max {
		limit = max
	}

	var (
		records []archive.Record
		err     error
	)
	if sessionID := strings.TrimSpace(r.URL.Query().Get("session_id")); sessionID != "" {
		records, err = s.history.History(r.Context(), sessionID, limit)
	} else {
		records, err = s.history.Recent(r.Context(), limit)
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "history_unavailable", err.Error())
		return
	}
	if records == nil {
		records = []archive.Record{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"records": records})
}

// sessionConfig merges client-supplied fields with the configured defaults.
// The credential fallback chain continues inside the orchestrator.
func (s *Server) sessionConfig(provider, model, voiceName, systemInstruction, credential string) session.Config {
	cfg := session.Config{
		Provider:          session.Provider(strings.ToLower(strings.TrimSpace(provider))),
		Model:             strings.TrimSpace(model),
		Voice:             strings.TrimSpace(voiceName),
		SystemInstruction: strings.TrimSpace(systemInstruction),
		Credential:        strings.TrimSpace(credential),
	}
	if cfg.Provider == "" {
		cfg.Provider = session.Provider(s.cfg.DefaultProvider)
	}
	if cfg.Model == "" {
		if cfg.Provider == session.ProviderLive {
			cfg.Model = s.cfg.LiveModel
		} else {
			cfg.Model = s.cfg.CompletionModel
		}
	}
	if cfg.Voice == "" && cfg.Provider == session.ProviderLive {
		cfg.Voice = s.cfg.LiveVoice
	}
	if cfg.SystemInstruction == "" {
		cfg.SystemInstruction = s.cfg.SystemInstruction
	}
	return cfg
}

func (s *Server) archiveStoreMode() string {
	if strings.TrimSpace(s.cfg.DatabaseURL) != "" {
		return "postgres"
	}
	return "in-memory"
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func queryInt(r *http.Request, key string) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
