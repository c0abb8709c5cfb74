package voice

import "math"

// Endpointing thresholds, tuned for 20ms mono frames at the capture rate.
// The open threshold sits above the close threshold so brief dips inside a
// word do not split an utterance.
const (
	endpointOpenRMS  = 0.015
	endpointCloseRMS = 0.008

	endpointHoldFrames     = 30  // 600ms of silence closes an utterance
	endpointMaxFrames      = 750 // 15s hard cap per utterance
	endpointNoSpeechFrames = 400 // 8s of idle before giving up
	endpointPrerollFrames  = 8   // 160ms of audio kept before speech onset
)

type endpointDecision int

const (
	endpointContinue endpointDecision = iota
	endpointUtterance
	endpointNoSpeech
)

// endpointer turns a stream of fixed-size capture frames into utterance
// boundaries by tracking frame energy with open/close hysteresis. Not safe
// for concurrent use; the recognizer feeds it from one goroutine.
type endpointer struct {
	speaking bool
	silent   int
	idle     int

	preroll [][]float32
	utter   []float32
	frames  int
}

func newEndpointer() *endpointer {
	return &endpointer{}
}

// feed consumes one capture frame and reports whether an utterance boundary
// was reached. After endpointUtterance the caller takes the audio with take;
// after endpointNoSpeech the endpointer has already reset.
func (e *endpointer) feed(frame []float32) endpointDecision {
	rms := frameRMS(frame)

	if !e.speaking {
		if rms >= endpointOpenRMS {
			e.speaking = true
			e.silent = 0
			e.idle = 0
			for _, pre := range e.preroll {
				e.utter = append(e.utter, pre...)
			}
			e.preroll = nil
			e.utter = append(e.utter, frame...)
			e.frames = 1
			return endpointContinue
		}

		e.preroll = append(e.preroll, frame)
		if len(e.preroll) > endpointPrerollFrames {
			e.preroll = e.preroll[1:]
		}
		e.idle++
		if e.idle >= endpointNoSpeechFrames {
			e.reset()
			return endpointNoSpeech
		}
		return endpointContinue
	}

	e.utter = append(e.utter, frame...)
	e.frames++
	if rms < endpointCloseRMS {
		e.silent++
	} else {
		e.silent = 0
	}
	if e.silent >= endpointHoldFrames || e.frames >= endpointMaxFrames {
		return endpointUtterance
	}
	return endpointContinue
}

// take returns the buffered utterance audio and resets for the next one.
func (e *endpointer) take() []float32 {
	audio := e.utter
	e.reset()
	return audio
}

func (e *endpointer) reset() {
	e.speaking = false
	e.silent = 0
	e.idle = 0
	e.preroll = nil
	e.utter = nil
	e.frames = 0
}

func frameRMS(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(frame)))
}
