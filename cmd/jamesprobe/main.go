// jamesprobe checks whether the host can run the voice assistant: PulseAudio
// capture, the whisper recognition backends, the synthesis worker, and the
// remote credentials. With -record it also runs a short microphone smoke
// test and writes the captured audio to a WAV file.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/Ratata326/james-ia/internal/audio"
	"github.com/Ratata326/james-ia/internal/config"
	"github.com/Ratata326/james-ia/internal/voice"
)

type options struct {
	record     time.Duration
	recordPath string
	synthCheck bool
}

type probeResult struct {
	name   string
	ok     bool
	warn   bool
	detail string
}

func main() {
	opts := parseFlags()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "jamesprobe: config error: %v\n", err)
		os.Exit(2)
	}

	results := []probeResult{
		probeCredential("GEMINI_API_KEY", cfg.GeminiAPIKey, "live-model and gemini completion"),
		probeCredential("OPENAI_API_KEY", cfg.OpenAIAPIKey, "openai completion backend"),
		probeWhisperBinary(cfg.WhisperCLI),
		probeWhisperModel(cfg.WhisperModelPath),
		probePulse(cfg.CaptureDevice),
	}
	if opts.synthCheck {
		results = append(results, probeSynthWorker(cfg))
	}
	if opts.record > 0 {
		results = append(results, probeRecord(cfg.CaptureDevice, opts.record, opts.recordPath))
	}

	failed := 0
	for _, r := range results {
		status := "ok  "
		switch {
		case !r.ok && !r.warn:
			status = "FAIL"
			failed++
		case r.warn:
			status = "warn"
		}
		fmt.Printf("[%s] %-18s %s\n", status, r.name, r.detail)
	}

	if failed > 0 {
		fmt.Printf("\n%d check(s) failed\n", failed)
		os.Exit(1)
	}
	fmt.Println("\nall checks passed")
}

func parseFlags() options {
	var opts options
	var recordMS int
	flag.IntVar(&recordMS, "record-ms", 0, "record this many milliseconds from the microphone as a smoke test (0 disables)")
	flag.StringVar(&opts.recordPath, "record-path", "jamesprobe.wav", "where to write the recorded smoke-test audio")
	flag.BoolVar(&opts.synthCheck, "synth", false, "start the synthesis worker and list its voices")
	flag.Parse()
	opts.record = time.Duration(recordMS) * time.Millisecond
	return opts
}

func probeCredential(name, value, usedFor string) probeResult {
	if strings.TrimSpace(value) == "" {
		return probeResult{
			name:   name,
			warn:   true,
			ok:     true,
			detail: "not set; " + usedFor + " needs a credential at connect time",
		}
	}
	return probeResult{name: name, ok: true, detail: "present"}
}

func probeWhisperBinary(cli string) probeResult {
	cli = strings.TrimSpace(cli)
	if cli == "" {
		cli = "whisper-cli"
	}
	if path, err := exec.LookPath("whisper-server"); err == nil {
		return probeResult{name: "whisper binary", ok: true, detail: "whisper-server at " + path}
	}
	if path, err := exec.LookPath(cli); err == nil {
		return probeResult{name: "whisper binary", ok: true, detail: cli + " at " + path}
	}
	return probeResult{
		name:   "whisper binary",
		detail: "neither whisper-server nor " + cli + " in PATH",
	}
}

func probeWhisperModel(path string) probeResult {
	path = strings.TrimSpace(path)
	if path == "" {
		return probeResult{name: "whisper model", detail: "LOCAL_WHISPER_MODEL_PATH is empty"}
	}
	if !filepath.IsAbs(path) {
		if wd, err := os.Getwd(); err == nil {
			path = filepath.Join(wd, path)
		}
	}
	info, err := os.Stat(path)
	if err != nil {
		return probeResult{name: "whisper model", detail: "not found: " + path}
	}
	return probeResult{
		name:   "whisper model",
		ok:     true,
		detail: fmt.Sprintf("%s (%.1f MB)", path, float64(info.Size())/(1<<20)),
	}
}

func probePulse(device string) probeResult {
	capture, err := audio.StartCapture(device)
	if err != nil {
		return probeResult{name: "pulse capture", detail: err.Error()}
	}
	capture.Stop()
	detail := "default source opens at 16kHz mono"
	if device != "" {
		detail = device + " opens at 16kHz mono"
	}
	return probeResult{name: "pulse capture", ok: true, detail: detail}
}

func probeSynthWorker(cfg config.Config) probeResult {
	worker, err := voice.StartSynthWorker(voice.SynthConfig{
		PythonPath: cfg.SynthPython,
		ScriptPath: cfg.SynthWorkerScript,
	})
	if err != nil {
		return probeResult{name: "synth worker", detail: err.Error()}
	}
	defer worker.Close()

	voices := worker.Voices(5 * time.Second)
	if len(voices) == 0 {
		return probeResult{name: "synth worker", warn: true, ok: true, detail: "started but reported no voices"}
	}
	names := make([]string, 0, len(voices))
	for _, v := range voices {
		names = append(names, v.Name)
	}
	return probeResult{
		name:   "synth worker",
		ok:     true,
		detail: fmt.Sprintf("%d voices: %s", len(voices), strings.Join(names, ", ")),
	}
}

func probeRecord(device string, d time.Duration, path string) probeResult {
	capture, err := audio.StartCapture(device)
	if err != nil {
		return probeResult{name: "record smoke test", detail: err.Error()}
	}

	var samples []float32
	deadline := time.After(d)
collect:
	for {
		select {
		case frame, ok := <-capture.Frames():
			if !ok {
				break collect
			}
			samples = append(samples, frame...)
		case <-deadline:
			break collect
		}
	}
	capture.Stop()

	if len(samples) == 0 {
		return probeResult{name: "record smoke test", detail: "no frames arrived; is the source muted?"}
	}
	if err := audio.WriteWAVPCM16LEFile(path, samples, audio.CaptureRate); err != nil {
		return probeResult{name: "record smoke test", detail: "write wav: " + err.Error()}
	}
	level := peakLevel(samples)
	detail := fmt.Sprintf("%d samples written to %s (peak %.2f)", len(samples), path, level)
	if level < 0.01 {
		return probeResult{name: "record smoke test", ok: true, warn: true, detail: detail + "; signal looks silent"}
	}
	return probeResult{name: "record smoke test", ok: true, detail: detail}
}

func peakLevel(samples []float32) float64 {
	var peak float64
	for _, s := range samples {
		v := float64(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}
