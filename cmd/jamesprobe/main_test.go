package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPeakLevel(t *testing.T) {
	cases := []struct {
		name    string
		samples []float32
		want    float64
	}{
		{"empty", nil, 0},
		{"positive", []float32{0.1, 0.5, 0.3}, 0.5},
		{"negative dominates", []float32{0.2, -0.9, 0.4}, 0.9},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := peakLevel(tc.samples); got != tc.want {
				t.Fatalf("peakLevel() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestProbeWhisperModel(t *testing.T) {
	if got := probeWhisperModel(""); got.ok {
		t.Fatalf("probeWhisperModel(empty) ok = true, want false")
	}
	if got := probeWhisperModel(filepath.Join(t.TempDir(), "missing.bin")); got.ok {
		t.Fatalf("probeWhisperModel(missing) ok = true, want false")
	}

	path := filepath.Join(t.TempDir(), "ggml-test.bin")
	if err := os.WriteFile(path, make([]byte, 2048), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	got := probeWhisperModel(path)
	if !got.ok {
		t.Fatalf("probeWhisperModel(present) ok = false, detail = %q", got.detail)
	}
}

func TestProbeCredential(t *testing.T) {
	got := probeCredential("GEMINI_API_KEY", "  ", "live-model")
	if !got.warn {
		t.Fatalf("blank credential should warn, got %+v", got)
	}
	got = probeCredential("GEMINI_API_KEY", "abc123", "live-model")
	if got.warn || !got.ok {
		t.Fatalf("present credential should be ok, got %+v", got)
	}
}
