package audio

import (
	"math"
	"sync"
)

// analyserWindow is the number of recent output samples retained for
// spectrum snapshots. Power of two, roughly 85ms at the playback rate.
const analyserWindow = 2048

// Analyser taps rendered output audio and serves frequency/level snapshots
// to the visualizer endpoint. Pushes arrive from the output stream's render
// goroutine; snapshots are computed on demand from HTTP handlers.
type Analyser struct {
	rate int

	mu   sync.Mutex
	ring []float32
	pos  int
}

func NewAnalyser(sampleRate int) *Analyser {
	return &Analyser{
		rate: sampleRate,
		ring: make([]float32, analyserWindow),
	}
}

// Push appends rendered samples to the analysis window, overwriting the
// oldest. Must not block: it runs on the audio render path.
func (a *Analyser) Push(samples []float32) {
	a.mu.Lock()
	for _, s := range samples {
		a.ring[a.pos] = s
		a.pos++
		if a.pos == len(a.ring) {
			a.pos = 0
		}
	}
	a.mu.Unlock()
}

// Frame is one analysis snapshot: overall level plus binned spectrum
// magnitudes normalized to [0, 1].
type Frame struct {
	SampleRate int       `json:"sample_rate"`
	RMS        float64   `json:"rms"`
	Peak       float64   `json:"peak"`
	Bins       []float64 `json:"bins"`
}

// Snapshot computes a Frame over the most recent window with the requested
// number of spectrum bins.
func (a *Analyser) Snapshot(binCount int) Frame {
	if binCount < 1 {
		binCount = 1
	}

	window := make([]float64, analyserWindow)
	a.mu.Lock()
	for i := range window {
		window[i] = float64(a.ring[(a.pos+i)%analyserWindow])
	}
	a.mu.Unlock()

	frame := Frame{SampleRate: a.rate, Bins: make([]float64, binCount)}

	var sumSq float64
	for _, s := range window {
		sumSq += s * s
		if abs := math.Abs(s); abs > frame.Peak {
			frame.Peak = abs
		}
	}
	frame.RMS = math.Sqrt(sumSq / float64(len(window)))

	// Hann window, then in-place FFT.
	spectrum := make([]complex128, analyserWindow)
	for i, s := range window {
		w := 0.5 * (1.0 - math.Cos(2*math.Pi*float64(i)/float64(analyserWindow-1)))
		spectrum[i] = complex(s*w, 0)
	}
	fft(spectrum)

	// Fold the positive-frequency half into binCount groups of dB-scaled
	// magnitudes, normalized against a [-100, -30] dB range.
	half := analyserWindow / 2
	perBin := half / binCount
	if perBin < 1 {
		perBin = 1
	}
	for b := 0; b < binCount; b++ {
		var sum float64
		n := 0
		for k := b * perBin; k < (b+1)*perBin && k < half; k++ {
			re := real(spectrum[k])
			im := imag(spectrum[k])
			sum += math.Sqrt(re*re+im*im) / float64(half)
			n++
		}
		if n == 0 {
			continue
		}
		db := 20 * math.Log10(sum/float64(n)+1e-12)
		frame.Bins[b] = clamp01((db + 100) / 70)
	}
	return frame
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// fft performs an in-place iterative radix-2 FFT. len(x) must be a power of
// two.
func fft(x []complex128) {
	n := len(x)
	if n <= 1 {
		return
	}

	for i, j := 0, 0; i < n-1; i++ {
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
		k := n >> 1
		for k <= j {
			j -= k
			k >>= 1
		}
		j += k
	}

	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		w := complex(math.Cos(-2*math.Pi/float64(size)), math.Sin(-2*math.Pi/float64(size)))
		for start := 0; start < n; start += size {
			t := complex(1, 0)
			for k := 0; k < half; k++ {
				u := start + k
				v := u + half
				tmp := t * x[v]
				x[v] = x[u] - tmp
				x[u] += tmp
				t *= w
			}
		}
	}
}
