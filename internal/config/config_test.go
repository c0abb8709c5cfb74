package config

import (
	"strings"
	"testing"
)

func TestLoadAppliesSpanishDefaults(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9090")
	}
	if cfg.Locale != "es-ES" {
		t.Fatalf("Locale = %q, want %q", cfg.Locale, "es-ES")
	}
	if cfg.VoiceGenderMarker != "female" {
		t.Fatalf("VoiceGenderMarker = %q, want %q", cfg.VoiceGenderMarker, "female")
	}
	if cfg.WhisperLanguage != "es" {
		t.Fatalf("WhisperLanguage = %q, want %q", cfg.WhisperLanguage, "es")
	}
	if !strings.Contains(cfg.SystemInstruction, "James") {
		t.Fatalf("SystemInstruction = %q, want persona prompt", cfg.SystemInstruction)
	}
	if cfg.DefaultProvider != "live-model" {
		t.Fatalf("DefaultProvider = %q, want %q", cfg.DefaultProvider, "live-model")
	}
	if cfg.CompletionBackend != "auto" {
		t.Fatalf("CompletionBackend = %q, want %q", cfg.CompletionBackend, "auto")
	}
	if cfg.GeminiAPIKey != "" {
		t.Fatalf("GeminiAPIKey = %q, want empty default", cfg.GeminiAPIKey)
	}
}

func TestLoadRejectsUnknownCompletionBackend(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("JAMES_COMPLETION_BACKEND", "carrier-pigeon")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() accepted an unknown completion backend")
	}
}

func TestLoadRejectsUnknownSpeechBackend(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("JAMES_SPEECH_BACKEND", "gramophone")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() accepted an unknown speech backend")
	}
}

func TestLoadTrimsCredentialWhitespace(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("GEMINI_API_KEY", "  secret-key \n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.GeminiAPIKey != "secret-key" {
		t.Fatalf("GeminiAPIKey = %q, want trimmed", cfg.GeminiAPIKey)
	}
}

func TestLoadParsesWhisperTuning(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("LOCAL_WHISPER_THREADS", "4")
	t.Setenv("LOCAL_WHISPER_BEAM_SIZE", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WhisperThreads != 4 {
		t.Fatalf("WhisperThreads = %d, want 4", cfg.WhisperThreads)
	}
	if cfg.WhisperBeamSize != 2 {
		t.Fatalf("WhisperBeamSize = %d, want 2", cfg.WhisperBeamSize)
	}

	t.Setenv("LOCAL_WHISPER_BEAM_SIZE", "0")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() accepted a zero beam size")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_FIRST_AUDIO_SLO",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"JAMES_LOCALE",
		"JAMES_SYSTEM_INSTRUCTION",
		"JAMES_PREFERRED_VOICE",
		"JAMES_VOICE_GENDER_MARKER",
		"JAMES_DEFAULT_PROVIDER",
		"JAMES_LIVE_MODEL",
		"JAMES_LIVE_VOICE",
		"JAMES_COMPLETION_MODEL",
		"JAMES_COMPLETION_BACKEND",
		"JAMES_CAPTURE_DEVICE",
		"JAMES_SPEECH_BACKEND",
		"JAMES_HISTORY_LIMIT",
		"GEMINI_API_KEY",
		"OPENAI_API_KEY",
		"OPENAI_BASE_URL",
		"LOCAL_WHISPER_CLI",
		"LOCAL_WHISPER_MODEL_PATH",
		"LOCAL_WHISPER_LANGUAGE",
		"LOCAL_WHISPER_THREADS",
		"LOCAL_WHISPER_BEAM_SIZE",
		"LOCAL_WHISPER_BEST_OF",
		"LOCAL_SYNTH_PYTHON",
		"LOCAL_SYNTH_WORKER_SCRIPT",
		"DATABASE_URL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
