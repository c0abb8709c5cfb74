package httpapi

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

type capabilityCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type capabilitiesResponse struct {
	DefaultProvider string            `json:"default_provider"`
	LiveReady       bool              `json:"live_ready"`
	TurnReady       bool              `json:"turn_ready"`
	ArchiveStore    string            `json:"archive_store"`
	Checks          []capabilityCheck `json:"checks"`
}

// handleCapabilities reports which transports the server can actually drive
// with its current environment: credentials for the remote backends, the
// local recognition engine, and the synthesis worker.
func (s *Server) handleCapabilities(w http.ResponseWriter, _ *http.Request) {
	checks := make([]capabilityCheck, 0, 8)

	liveReady := strings.TrimSpace(s.cfg.GeminiAPIKey) != ""
	if liveReady {
		checks = append(checks, capabilityCheck{
			ID:     "gemini_key",
			Status: "ok",
			Label:  "Gemini API key",
			Detail: "present",
		})
	} else {
		checks = append(checks, capabilityCheck{
			ID:     "gemini_key",
			Status: "warn",
			Label:  "Gemini API key",
			Detail: "GEMINI_API_KEY is not set",
			Fix:    "Set GEMINI_API_KEY or pass a credential at connect time.",
		})
	}

	if strings.TrimSpace(s.cfg.OpenAIAPIKey) != "" {
		checks = append(checks, capabilityCheck{
			ID:     "openai_key",
			Status: "ok",
			Label:  "OpenAI API key",
			Detail: "present",
		})
	} else {
		checks = append(checks, capabilityCheck{
			ID:     "openai_key",
			Status: "warn",
			Label:  "OpenAI API key",
			Detail: "OPENAI_API_KEY is not set",
			Fix:    "Set OPENAI_API_KEY to enable the openai completion backend.",
		})
	}

	turnReady := true
	checks = append(checks, s.recognizerChecks(&turnReady)...)
	checks = append(checks, s.synthesisChecks()...)

	respondJSON(w, http.StatusOK, capabilitiesResponse{
		DefaultProvider: s.cfg.DefaultProvider,
		LiveReady:       liveReady,
		TurnReady:       turnReady && (liveReady || strings.TrimSpace(s.cfg.OpenAIAPIKey) != ""),
		ArchiveStore:    s.archiveStoreMode(),
		Checks:          checks,
	})
}

func (s *Server) recognizerChecks(turnReady *bool) []capabilityCheck {
	checks := make([]capabilityCheck, 0, 2)

	cli := strings.TrimSpace(s.cfg.WhisperCLI)
	if cli == "" {
		cli = "whisper-cli"
	}
	serverPath, serverErr := exec.LookPath("whisper-server")
	cliPath, cliErr := exec.LookPath(cli)
	switch {
	case serverErr == nil:
		checks = append(checks, capabilityCheck{
			ID:     "whisper_binary",
			Status: "ok",
			Label:  "Whisper engine",
			Detail: "whisper-server at " + serverPath,
		})
	case cliErr == nil:
		checks = append(checks, capabilityCheck{
			ID:     "whisper_binary",
			Status: "ok",
			Label:  "Whisper engine",
			Detail: cli + " at " + cliPath,
		})
	default:
		*turnReady = false
		checks = append(checks, capabilityCheck{
			ID:     "whisper_binary",
			Status: "error",
			Label:  "Whisper engine",
			Detail: "neither whisper-server nor " + cli + " found in PATH",
			Fix:    "Install whisper.cpp or set LOCAL_WHISPER_CLI to the binary path.",
		})
	}

	modelPath := strings.TrimSpace(s.cfg.WhisperModelPath)
	if !filepath.IsAbs(modelPath) {
		if wd, err := os.Getwd(); err == nil {
			modelPath = filepath.Join(wd, modelPath)
		}
	}
	if _, err := os.Stat(modelPath); err != nil {
		*turnReady = false
		checks = append(checks, capabilityCheck{
			ID:     "whisper_model",
			Status: "error",
			Label:  "Whisper model",
			Detail: "not found: " + modelPath,
			Fix:    "Download a ggml model and set LOCAL_WHISPER_MODEL_PATH.",
		})
	} else {
		checks = append(checks, capabilityCheck{
			ID:     "whisper_model",
			Status: "ok",
			Label:  "Whisper model",
			Detail: modelPath,
		})
	}
	return checks
}

func (s *Server) synthesisChecks() []capabilityCheck {
	if s.synth == nil {
		return []capabilityCheck{{
			ID:     "synthesis",
			Status: "warn",
			Label:  "Speech synthesis",
			Detail: "worker not running; assistant replies stay text-only",
			Fix:    "Set LOCAL_SYNTH_WORKER_SCRIPT to a synthesis worker script.",
		}}
	}
	voices := s.synth.Voices(voicesInventoryTimeout)
	if len(voices) == 0 {
		return []capabilityCheck{{
			ID:     "synthesis",
			Status: "warn",
			Label:  "Speech synthesis",
			Detail: "worker running but reported no voices",
		}}
	}
	return []capabilityCheck{{
		ID:     "synthesis",
		Status: "ok",
		Label:  "Speech synthesis",
		Detail: fmt.Sprintf("%d voices installed (e.g. %s)", len(voices), voices[0].Name),
	}}
}
