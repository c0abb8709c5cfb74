package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Ratata326/james-ia/internal/config"
	"github.com/Ratata326/james-ia/internal/voice"
)

type speechSetup struct {
	newRecognizer func() (voice.Recognizer, error)
	synth         voice.Synthesizer
	backend       string
	detail        string
	cleanup       func() error
}

// resolveSpeechBackends picks the local recognition and synthesis engines
// for the turn-based transport. "local" is strict and fails when an engine
// is missing; "auto" degrades (no synthesis means text-only replies, no
// recognizer means the rest-completion transport reports it at connect
// time); "mock" runs scripted engines for development.
func resolveSpeechBackends(cfg config.Config) (speechSetup, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.SpeechBackend))
	if mode == "" {
		mode = "auto"
	}

	whisperCfg := voice.WhisperConfig{
		ModelPath: cfg.WhisperModelPath,
		Language:  cfg.WhisperLanguage,
		Threads:   cfg.WhisperThreads,
		BeamSize:  cfg.WhisperBeamSize,
		BestOf:    cfg.WhisperBestOf,
		CLIPath:   cfg.WhisperCLI,
		Device:    cfg.CaptureDevice,
	}
	localRecognizer := func() (voice.Recognizer, error) {
		return voice.NewWhisperRecognizer(whisperCfg)
	}

	trySynth := func() (voice.Synthesizer, error) {
		if strings.TrimSpace(cfg.SynthWorkerScript) == "" {
			return nil, fmt.Errorf("LOCAL_SYNTH_WORKER_SCRIPT is not set")
		}
		return voice.StartSynthWorker(voice.SynthConfig{
			PythonPath: cfg.SynthPython,
			ScriptPath: cfg.SynthWorkerScript,
		})
	}

	switch mode {
	case "mock":
		return speechSetup{
			newRecognizer: func() (voice.Recognizer, error) { return voice.NewMockRecognizer(), nil },
			synth:         voice.MockSynthesizer{},
			backend:       "mock",
			detail:        "mock (scripted transcripts, tone bursts)",
		}, nil

	case "local":
		synth, err := trySynth()
		if err != nil {
			return speechSetup{}, fmt.Errorf("synthesis worker init failed: %w", err)
		}
		if !whisperModelPresent(cfg.WhisperModelPath) {
			_ = synth.Close()
			return speechSetup{}, fmt.Errorf("whisper model not found: %s", cfg.WhisperModelPath)
		}
		return speechSetup{
			newRecognizer: localRecognizer,
			synth:         synth,
			backend:       "local",
			detail:        "local (whisper + synth worker)",
			cleanup:       synth.Close,
		}, nil

	default: // auto
		setup := speechSetup{backend: "local"}
		details := make([]string, 0, 2)

		if whisperModelPresent(cfg.WhisperModelPath) {
			setup.newRecognizer = localRecognizer
			details = append(details, "whisper")
		} else {
			details = append(details, "no recognizer (model missing)")
		}

		if synth, err := trySynth(); err == nil {
			setup.synth = synth
			setup.cleanup = synth.Close
			details = append(details, "synth worker")
		} else {
			details = append(details, "no synthesis ("+err.Error()+")")
		}

		if setup.newRecognizer == nil && setup.synth == nil {
			return speechSetup{
				newRecognizer: func() (voice.Recognizer, error) { return voice.NewMockRecognizer(), nil },
				synth:         voice.MockSynthesizer{},
				backend:       "mock",
				detail:        "mock (no local engines available)",
			}, nil
		}
		setup.detail = "local (" + strings.Join(details, ", ") + ")"
		return setup, nil
	}
}

func whisperModelPresent(path string) bool {
	path = strings.TrimSpace(path)
	if path == "" {
		return false
	}
	if !filepath.IsAbs(path) {
		if wd, err := os.Getwd(); err == nil {
			path = filepath.Join(wd, path)
		}
	}
	_, err := os.Stat(path)
	return err == nil
}
