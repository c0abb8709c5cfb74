package audio

import (
	"math"
	"testing"
)

func pushSine(a *Analyser, freq float64, amplitude float64, samples int) {
	buf := make([]float32, samples)
	for i := range buf {
		buf[i] = float32(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(a.rate)))
	}
	a.Push(buf)
}

func TestAnalyserSilence(t *testing.T) {
	a := NewAnalyser(PlaybackRate)
	frame := a.Snapshot(16)
	if frame.RMS != 0 || frame.Peak != 0 {
		t.Fatalf("expected silence, got rms=%f peak=%f", frame.RMS, frame.Peak)
	}
	for i, b := range frame.Bins {
		if b != 0 {
			t.Fatalf("bin %d: expected 0 for silence, got %f", i, b)
		}
	}
	if frame.SampleRate != PlaybackRate {
		t.Fatalf("expected sample rate %d, got %d", PlaybackRate, frame.SampleRate)
	}
}

func TestAnalyserToneLevels(t *testing.T) {
	a := NewAnalyser(PlaybackRate)
	pushSine(a, 3000, 0.5, 2*analyserWindow)

	frame := a.Snapshot(16)
	wantRMS := 0.5 / math.Sqrt2
	if math.Abs(frame.RMS-wantRMS) > 0.02 {
		t.Fatalf("expected rms near %f, got %f", wantRMS, frame.RMS)
	}
	if frame.Peak < 0.48 || frame.Peak > 0.51 {
		t.Fatalf("expected peak near 0.5, got %f", frame.Peak)
	}
}

func TestAnalyserToneLandsInExpectedBin(t *testing.T) {
	a := NewAnalyser(PlaybackRate)
	pushSine(a, 3000, 0.5, 2*analyserWindow)

	frame := a.Snapshot(16)
	// 16 bins over 0..12kHz: 750Hz per bin, so 3kHz falls in bin 4.
	maxBin, maxVal := 0, 0.0
	for i, v := range frame.Bins {
		if v > maxVal {
			maxBin, maxVal = i, v
		}
	}
	if maxBin != 4 {
		t.Fatalf("expected tone energy in bin 4, strongest was bin %d (%f)", maxBin, maxVal)
	}
	if maxVal <= 0 || maxVal > 1 {
		t.Fatalf("bin magnitude out of range: %f", maxVal)
	}
}

func TestAnalyserBinCountFloor(t *testing.T) {
	a := NewAnalyser(PlaybackRate)
	frame := a.Snapshot(0)
	if len(frame.Bins) != 1 {
		t.Fatalf("expected bin count floored to 1, got %d", len(frame.Bins))
	}
}

func TestAnalyserWindowKeepsMostRecent(t *testing.T) {
	a := NewAnalyser(PlaybackRate)
	// Loud tone followed by more than a full window of silence: the loud
	// samples must have been overwritten.
	pushSine(a, 1000, 0.9, analyserWindow)
	a.Push(make([]float32, 2*analyserWindow))

	frame := a.Snapshot(8)
	if frame.Peak != 0 {
		t.Fatalf("expected old samples to be evicted, peak=%f", frame.Peak)
	}
}
