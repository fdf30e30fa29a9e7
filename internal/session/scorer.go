// Package session scores sung pitch against target notes: the free
// practice scoring window and the guided Riyaaz state machine.
package session

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/0xlemi/riyaaz/internal/notes"
	"github.com/0xlemi/riyaaz/internal/pitch"
)

// Config holds the scoring tunables.
type Config struct {
	ToleranceCents float64 // on-pitch window around the target
	MinConfidence  float64 // samples below this never score
	StabilityCents float64 // band around the rolling median
	HistorySize    int     // rolling frequency buffer length
}

// stabilitySpan is how many recent samples the stability measure inspects.
// Kept even so an alternating signal centers its median between the two
// clusters instead of on one of them.
const stabilitySpan = 20

// Window accumulates scoring state for one active target note. A Window
// belongs to a single consumer goroutine; the engine guarantees at most
// one window listens at a time.
type Window struct {
	cfg    Config
	target int            // semitone offset of the target
	tonic  func() float64 // live tonic, never cached

	onPitch int
	total   int
	cents   []float64 // deviations of confident samples, pass or fail
	history []float64 // recent voiced frequencies for stability
}

// NewWindow creates a scoring window for the given target offset. The
// tonic is re-read on every observation so retuning applies instantly.
func NewWindow(cfg Config, target int, tonic func() float64) *Window {
	return &Window{
		cfg:     cfg,
		target:  target,
		tonic:   tonic,
		cents:   make([]float64, 0, cfg.HistorySize),
		history: make([]float64, 0, cfg.HistorySize),
	}
}

// Target returns the window's semitone offset.
func (w *Window) Target() int {
	return w.target
}

// Observe classifies one pitch sample. Unvoiced samples keep the history
// and tallies untouched: silence is not singing, so it neither helps nor
// hurts accuracy.
func (w *Window) Observe(s pitch.Sample) {
	if !s.Voiced() {
		return
	}

	if len(w.history) == w.cfg.HistorySize {
		copy(w.history, w.history[1:])
		w.history = w.history[:len(w.history)-1]
	}
	w.history = append(w.history, s.Frequency)

	if s.Confidence < w.cfg.MinConfidence {
		return
	}

	targetFreq := notes.Frequency(w.tonic(), w.target)
	cents := notes.Cents(s.Frequency, targetFreq)
	w.cents = append(w.cents, cents)
	w.total++
	if cents >= -w.cfg.ToleranceCents && cents <= w.cfg.ToleranceCents {
		w.onPitch++
	}
}

// Counts returns the on-pitch and total confident sample tallies.
func (w *Window) Counts() (onPitch, total int) {
	return w.onPitch, w.total
}

// Accuracy returns the on-pitch percentage, 0 when nothing was sung.
func (w *Window) Accuracy() float64 {
	if w.total == 0 {
		return 0
	}
	return float64(w.onPitch) / float64(w.total) * 100
}

// AvgCents returns the mean signed deviation of all confident samples,
// reporting which direction the singer drifts. Zero when nothing was sung.
func (w *Window) AvgCents() float64 {
	if len(w.cents) == 0 {
		return 0
	}
	return stat.Mean(w.cents, nil)
}

// Stability measures steadiness, not correctness: the percentage of recent
// voiced samples within the stability band of their own rolling median.
func (w *Window) Stability() float64 {
	return stability(w.history, w.cfg.StabilityCents)
}

// stability computes the steadiness percentage over the tail of freqs.
func stability(freqs []float64, bandCents float64) float64 {
	span := len(freqs)
	if span > stabilitySpan {
		span = stabilitySpan
	}
	if span < 2 {
		return 0
	}
	recent := freqs[len(freqs)-span:]

	sorted := make([]float64, span)
	copy(sorted, recent)
	sort.Float64s(sorted)
	var median float64
	if span%2 == 1 {
		median = sorted[span/2]
	} else {
		median = (sorted[span/2-1] + sorted[span/2]) / 2
	}
	if median <= 0 {
		return 0
	}

	within := 0
	for _, f := range recent {
		c := notes.Cents(f, median)
		if c >= -bandCents && c <= bandCents {
			within++
		}
	}
	return float64(within) / float64(span) * 100
}
