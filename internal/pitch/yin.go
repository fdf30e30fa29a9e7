// Package pitch estimates the fundamental frequency of mono audio frames
// using the YIN algorithm (de Cheveigné & Kawahara, 2002).
package pitch

import (
	"math"
	"time"

	"github.com/mjibson/go-dsp/fft"
)

// Sample is one pitch observation produced per audio frame. A zero
// Frequency means the frame was silent, unvoiced, or unreliable; that is
// data, not an error.
type Sample struct {
	Frequency  float64   // Hz, 0 when unvoiced
	Confidence float64   // 0-1
	Time       time.Time // capture timestamp
}

// Voiced reports whether the sample carries a usable pitch.
func (s Sample) Voiced() bool {
	return s.Frequency > 0
}

// YIN is a pitch estimator for fixed-size frames. The difference function
// is computed through the FFT (Wiener-Khinchin), which keeps the per-frame
// cost well under a frame period at 44.1 kHz. Scratch buffers are
// preallocated and reused across calls; an estimator is not safe for
// concurrent use.
type YIN struct {
	sampleRate  int
	frameSize   int
	threshold   float64 // CMNDF absolute threshold
	minFreq     float64
	maxFreq     float64
	sensitivity float64 // RMS floor below which the frame is silence

	tauMin int
	tauMax int

	// Scratch, reused every frame.
	frame  []float64
	padded []float64
	d      []float64
	cmndf  []float64
}

// fallbackCeiling rejects the global-minimum fallback when even the best
// lag is a poor period candidate.
const fallbackCeiling = 0.5

// NewYIN creates an estimator for frames of frameSize samples at the given
// rate. Frequencies outside [minFreq, maxFreq] are reported as unvoiced.
func NewYIN(sampleRate, frameSize int, threshold, minFreq, maxFreq, sensitivity float64) *YIN {
	tauMax := frameSize / 2
	if lag := int(float64(sampleRate) / minFreq); lag < tauMax {
		tauMax = lag
	}
	tauMin := int(float64(sampleRate) / maxFreq)
	if tauMin < 2 {
		tauMin = 2
	}
	return &YIN{
		sampleRate:  sampleRate,
		frameSize:   frameSize,
		threshold:   threshold,
		minFreq:     minFreq,
		maxFreq:     maxFreq,
		sensitivity: sensitivity,
		tauMin:      tauMin,
		tauMax:      tauMax,
		frame:       make([]float64, frameSize),
		padded:      make([]float64, 2*frameSize),
		d:           make([]float64, tauMax),
		cmndf:       make([]float64, tauMax),
	}
}

// FrameSize returns the expected frame length in samples.
func (y *YIN) FrameSize() int {
	return y.frameSize
}

// Estimate analyzes one frame and returns the fundamental frequency and a
// confidence in [0,1]. voiced is false for silence, noise, and estimates
// outside the configured vocal range.
func (y *YIN) Estimate(frame []float32) (freq, confidence float64, voiced bool) {
	if len(frame) != y.frameSize {
		return 0, 0, false
	}

	sumSquares := 0.0
	for i, s := range frame {
		v := float64(s)
		y.frame[i] = v
		sumSquares += v * v
	}
	rms := math.Sqrt(sumSquares / float64(y.frameSize))
	if rms < y.sensitivity {
		return 0, 0, false
	}

	y.differenceFunction()

	// Cumulative mean normalized difference, d'(0) := 1.
	y.cmndf[0] = 1
	running := 0.0
	for tau := 1; tau < y.tauMax; tau++ {
		running += y.d[tau]
		if running > 0 {
			y.cmndf[tau] = y.d[tau] * float64(tau) / running
		} else {
			y.cmndf[tau] = 1
		}
	}

	// First dip under the threshold, walked down to its local minimum.
	tauEst := -1
	for tau := y.tauMin; tau < y.tauMax; tau++ {
		if y.cmndf[tau] < y.threshold {
			for tau+1 < y.tauMax && y.cmndf[tau+1] < y.cmndf[tau] {
				tau++
			}
			tauEst = tau
			break
		}
	}
	if tauEst == -1 {
		// No dip: fall back to the global minimum, but reject weak ones.
		min := math.Inf(1)
		for tau := y.tauMin; tau < y.tauMax; tau++ {
			if y.cmndf[tau] < min {
				min = y.cmndf[tau]
				tauEst = tau
			}
		}
		if tauEst == -1 || y.cmndf[tauEst] > fallbackCeiling {
			return 0, 0, false
		}
	}

	tauF := y.interpolate(tauEst)
	if tauF <= 0 {
		return 0, 0, false
	}
	freq = float64(y.sampleRate) / tauF
	if freq < y.minFreq || freq > y.maxFreq {
		return 0, 0, false
	}

	confidence = 1 - y.cmndf[tauEst]
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}
	return freq, confidence, true
}

// differenceFunction fills y.d with d(tau) = sum (x[i]-x[i+tau])^2 using
// the autocorrelation identity d(tau) = p(0,N-tau) + p(tau,N) - 2*r(tau),
// with r computed via a zero-padded FFT.
func (y *YIN) differenceFunction() {
	n := y.frameSize
	copy(y.padded[:n], y.frame)
	for i := n; i < len(y.padded); i++ {
		y.padded[i] = 0
	}

	spectrum := fft.FFTReal(y.padded)
	for i, c := range spectrum {
		re := real(c)
		im := imag(c)
		spectrum[i] = complex(re*re+im*im, 0)
	}
	acf := fft.IFFT(spectrum)

	// Suffix power sums: head(tau) = sum_{i<n-tau} x^2, tail(tau) = sum_{i>=tau} x^2.
	total := 0.0
	for _, v := range y.frame {
		total += v * v
	}
	head := total
	tail := total
	y.d[0] = 0
	for tau := 1; tau < y.tauMax; tau++ {
		head -= y.frame[n-tau] * y.frame[n-tau]
		tail -= y.frame[tau-1] * y.frame[tau-1]
		y.d[tau] = head + tail - 2*real(acf[tau])
		if y.d[tau] < 0 {
			y.d[tau] = 0 // numerical noise
		}
	}
}

// interpolate refines the lag estimate with a parabola through the CMNDF
// values around tau.
func (y *YIN) interpolate(tau int) float64 {
	if tau <= 0 || tau >= y.tauMax-1 {
		return float64(tau)
	}
	s0 := y.cmndf[tau-1]
	s1 := y.cmndf[tau]
	s2 := y.cmndf[tau+1]
	denom := 2 * (2*s1 - s0 - s2)
	if math.Abs(denom) < 1e-12 {
		return float64(tau)
	}
	adj := (s2 - s0) / denom
	if adj > 0.5 {
		adj = 0.5
	} else if adj < -0.5 {
		adj = -0.5
	}
	return float64(tau) + adj
}
