package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/Ratata326/james-ia/internal/archive"
	"github.com/Ratata326/james-ia/internal/config"
	"github.com/Ratata326/james-ia/internal/httpapi"
	"github.com/Ratata326/james-ia/internal/observability"
	"github.com/Ratata326/james-ia/internal/session"
	"github.com/Ratata326/james-ia/internal/voice"
)

type SpeechInfo struct {
	Backend string
	Detail  string
}

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Orchestrator *voice.Orchestrator
	Log          *session.Log
	Metrics      *observability.Metrics
	Speech       SpeechInfo

	// Cleanup should be called on shutdown to release external resources
	// (DB, local worker processes).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := archive.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("archive store init failed: %w", err)
	}

	speech, err := resolveSpeechBackends(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	log := session.NewLog()
	archiver := archive.StartArchiver(log, store, metrics)

	dialLive := voice.DialGeminiLive
	newCompleter := completerFactory(cfg)
	if speech.backend == "mock" {
		// Mock speech means a fully offline development stack.
		dialLive = voice.DialMockLive
		newCompleter = func(context.Context, session.Config) (voice.Completer, error) {
			return voice.MockCompleter{}, nil
		}
	}

	orchestrator := voice.NewOrchestrator(voice.Deps{
		Log:                log,
		Metrics:            metrics,
		DialLive:           dialLive,
		NewCompleter:       newCompleter,
		NewRecognizer:      speech.newRecognizer,
		Synth:              speech.synth,
		FallbackCredential: fallbackCredential(cfg),
		CaptureDevice:      cfg.CaptureDevice,
		Locale:             cfg.Locale,
		PreferredVoiceName: cfg.PreferredVoiceName,
		VoiceGenderMarker:  cfg.VoiceGenderMarker,
	})

	api := httpapi.New(cfg, orchestrator, speech.synth, store, metrics)

	cleanup := func() error {
		var errs []string
		orchestrator.Disconnect()
		archiver.Close()
		if speech.cleanup != nil {
			if err := speech.cleanup(); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if err := store.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Orchestrator: orchestrator,
		Log:          log,
		Metrics:      metrics,
		Speech: SpeechInfo{
			Backend: speech.backend,
			Detail:  speech.detail,
		},
		Cleanup: cleanup,
	}, nil
}

// completerFactory builds a fresh completion client per connect so each
// session uses the credential it was configured with.
func completerFactory(cfg config.Config) func(context.Context, session.Config) (voice.Completer, error) {
	return func(ctx context.Context, sc session.Config) (voice.Completer, error) {
		backend := cfg.CompletionBackend
		if backend == "auto" {
			if strings.Contains(strings.ToLower(sc.Model), "gpt") {
				backend = "openai"
			} else {
				backend = "gemini"
			}
		}
		switch backend {
		case "openai":
			return voice.NewOpenAICompleter(sc.Credential, cfg.OpenAIBaseURL)
		case "mock":
			return voice.MockCompleter{}, nil
		default:
			return voice.NewGeminiCompleter(ctx, sc.Credential)
		}
	}
}

func fallbackCredential(cfg config.Config) string {
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		return cfg.GeminiAPIKey
	}
	return cfg.OpenAIAPIKey
}
