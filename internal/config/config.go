package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the voice assistant service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	FirstAudioSLO    time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	Locale             string
	SystemInstruction  string
	PreferredVoiceName string
	VoiceGenderMarker  string

	DefaultProvider   string
	LiveModel         string
	LiveVoice         string
	CompletionModel   string
	CompletionBackend string

	GeminiAPIKey  string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	CaptureDevice string

	SpeechBackend    string
	WhisperCLI       string
	WhisperModelPath string
	WhisperLanguage  string
	WhisperThreads   int
	WhisperBeamSize  int
	WhisperBestOf    int

	SynthPython       string
	SynthWorkerScript string

	DatabaseURL  string
	HistoryLimit int
}

// defaultSystemInstruction is the persona prompt used when the operator does
// not supply one. Kept in Spanish: the assistant speaks Spanish by default.
const defaultSystemInstruction = "Eres James, un asistente de voz cercano y resolutivo. " +
	"Responde siempre en español, con frases breves y naturales, pensadas para leerse en voz alta."

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "james"),
		AllowAnyOrigin:   false,
		Locale:           envOrDefault("JAMES_LOCALE", "es-ES"),
		// Default to a warm female voice when several Spanish voices are
		// installed; the selection cascade handles the rest.
		PreferredVoiceName: envOrDefault("JAMES_PREFERRED_VOICE", ""),
		VoiceGenderMarker:  envOrDefault("JAMES_VOICE_GENDER_MARKER", "female"),
		SystemInstruction:  envOrDefault("JAMES_SYSTEM_INSTRUCTION", defaultSystemInstruction),
		DefaultProvider:    envOrDefault("JAMES_DEFAULT_PROVIDER", "live-model"),
		LiveModel:          envOrDefault("JAMES_LIVE_MODEL", "gemini-2.0-flash-live-001"),
		LiveVoice:          envOrDefault("JAMES_LIVE_VOICE", "Kore"),
		CompletionModel:    envOrDefault("JAMES_COMPLETION_MODEL", "gemini-2.0-flash"),
		CompletionBackend:  envOrDefault("JAMES_COMPLETION_BACKEND", "auto"),
		GeminiAPIKey:       stringsTrimSpace("GEMINI_API_KEY"),
		OpenAIAPIKey:       stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIBaseURL:      stringsTrimSpace("OPENAI_BASE_URL"),
		CaptureDevice:      envOrDefault("JAMES_CAPTURE_DEVICE", ""),
		SpeechBackend:      envOrDefault("JAMES_SPEECH_BACKEND", "auto"),
		WhisperCLI:         envOrDefault("LOCAL_WHISPER_CLI", "whisper-cli"),
		// Default to a fast multilingual Whisper model for local realtime use.
		WhisperModelPath: envOrDefault("LOCAL_WHISPER_MODEL_PATH", ".models/whisper/ggml-base.bin"),
		WhisperLanguage:  envOrDefault("LOCAL_WHISPER_LANGUAGE", "es"),
		// 0 means "auto" (picked based on CPU count).
		WhisperThreads:    0,
		WhisperBeamSize:   1,
		WhisperBestOf:     1,
		SynthPython:       envOrDefault("LOCAL_SYNTH_PYTHON", ""),
		SynthWorkerScript: envOrDefault("LOCAL_SYNTH_WORKER_SCRIPT", "scripts/synth_worker.py"),
		DatabaseURL:       stringsTrimSpace("DATABASE_URL"),
		HistoryLimit:      200,
		ShutdownTimeout:   15 * time.Second,
		FirstAudioSLO:     700 * time.Millisecond,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.FirstAudioSLO, err = durationFromEnv("APP_FIRST_AUDIO_SLO", cfg.FirstAudioSLO)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryLimit, err = intFromEnv("JAMES_HISTORY_LIMIT", cfg.HistoryLimit)
	if err != nil {
		return Config{}, err
	}

	cfg.WhisperThreads, err = intFromEnv("LOCAL_WHISPER_THREADS", cfg.WhisperThreads)
	if err != nil {
		return Config{}, err
	}
	cfg.WhisperBeamSize, err = intFromEnv("LOCAL_WHISPER_BEAM_SIZE", cfg.WhisperBeamSize)
	if err != nil {
		return Config{}, err
	}
	cfg.WhisperBestOf, err = intFromEnv("LOCAL_WHISPER_BEST_OF", cfg.WhisperBestOf)
	if err != nil {
		return Config{}, err
	}

	switch cfg.CompletionBackend {
	case "auto", "gemini", "openai", "mock":
	default:
		return Config{}, fmt.Errorf("JAMES_COMPLETION_BACKEND must be auto|gemini|openai|mock")
	}
	switch cfg.SpeechBackend {
	case "auto", "local", "mock":
	default:
		return Config{}, fmt.Errorf("JAMES_SPEECH_BACKEND must be auto|local|mock")
	}
	if cfg.HistoryLimit <= 0 {
		return Config{}, fmt.Errorf("JAMES_HISTORY_LIMIT must be positive")
	}
	if cfg.WhisperThreads < 0 {
		return Config{}, fmt.Errorf("LOCAL_WHISPER_THREADS must be >= 0")
	}
	if cfg.WhisperBeamSize <= 0 {
		return Config{}, fmt.Errorf("LOCAL_WHISPER_BEAM_SIZE must be positive")
	}
	if cfg.WhisperBestOf <= 0 {
		return Config{}, fmt.Errorf("LOCAL_WHISPER_BEST_OF must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
