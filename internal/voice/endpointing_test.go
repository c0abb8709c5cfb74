package voice

import (
	"math"
	"testing"
)

func loudFrame(amplitude float64) []float32 {
	frame := make([]float32, 320)
	for i := range frame {
		frame[i] = float32(amplitude * math.Sin(float64(i)/4))
	}
	return frame
}

func silentFrame() []float32 {
	return make([]float32, 320)
}

func TestEndpointerDetectsUtteranceAfterSilenceHold(t *testing.T) {
	e := newEndpointer()

	for i := 0; i < 20; i++ {
		if d := e.feed(loudFrame(0.3)); d != endpointContinue {
			t.Fatalf("frame %d: expected continue during speech, got %d", i, d)
		}
	}

	var decided bool
	for i := 0; i < endpointHoldFrames; i++ {
		if d := e.feed(silentFrame()); d == endpointUtterance {
			decided = true
			break
		}
	}
	if !decided {
		t.Fatalf("expected utterance boundary after %d silent frames", endpointHoldFrames)
	}

	audio := e.take()
	if len(audio) == 0 {
		t.Fatalf("expected buffered utterance audio")
	}
	// After take the endpointer is fresh.
	if d := e.feed(silentFrame()); d != endpointContinue {
		t.Fatalf("expected continue after reset, got %d", d)
	}
}

func TestEndpointerIncludesPreroll(t *testing.T) {
	e := newEndpointer()
	for i := 0; i < endpointPrerollFrames+5; i++ {
		e.feed(silentFrame())
	}
	e.feed(loudFrame(0.3))
	for i := 0; e.feed(silentFrame()) != endpointUtterance && i < endpointHoldFrames+1; i++ {
	}

	audio := e.take()
	// Preroll frames plus the speech frame plus the silence hold.
	minSamples := (endpointPrerollFrames + 1) * 320
	if len(audio) < minSamples {
		t.Fatalf("expected at least %d samples with preroll, got %d", minSamples, len(audio))
	}
}

func TestEndpointerNoSpeechTimeout(t *testing.T) {
	e := newEndpointer()
	var decision endpointDecision
	for i := 0; i < endpointNoSpeechFrames; i++ {
		decision = e.feed(silentFrame())
		if decision == endpointNoSpeech {
			break
		}
	}
	if decision != endpointNoSpeech {
		t.Fatalf("expected no-speech after %d idle frames", endpointNoSpeechFrames)
	}
	if audio := e.take(); len(audio) != 0 {
		t.Fatalf("expected no buffered audio after no-speech, got %d samples", len(audio))
	}
}

func TestEndpointerHysteresisBridgesShortDips(t *testing.T) {
	e := newEndpointer()
	e.feed(loudFrame(0.3))
	// A dip shorter than the hold must not close the utterance.
	for i := 0; i < endpointHoldFrames-1; i++ {
		if d := e.feed(silentFrame()); d != endpointContinue {
			t.Fatalf("dip frame %d: expected continue, got %d", i, d)
		}
	}
	if d := e.feed(loudFrame(0.3)); d != endpointContinue {
		t.Fatalf("expected speech to resume within the same utterance")
	}
	// The silence counter was cleared by the resumed speech.
	for i := 0; i < endpointHoldFrames-1; i++ {
		if d := e.feed(silentFrame()); d != endpointContinue {
			t.Fatalf("post-resume frame %d: expected continue, got %d", i, d)
		}
	}
}

func TestEndpointerMaxLengthCap(t *testing.T) {
	e := newEndpointer()
	var decision endpointDecision
	for i := 0; i < endpointMaxFrames+1; i++ {
		decision = e.feed(loudFrame(0.3))
		if decision == endpointUtterance {
			break
		}
	}
	if decision != endpointUtterance {
		t.Fatalf("expected utterance close at the length cap")
	}
}

func TestFrameRMS(t *testing.T) {
	if rms := frameRMS(nil); rms != 0 {
		t.Fatalf("expected 0 for empty frame, got %f", rms)
	}
	frame := make([]float32, 320)
	for i := range frame {
		frame[i] = 0.5
	}
	if rms := frameRMS(frame); math.Abs(rms-0.5) > 1e-6 {
		t.Fatalf("expected rms 0.5 for constant frame, got %f", rms)
	}
}
