package synth

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/0xlemi/riyaaz/internal/audio"
	"github.com/0xlemi/riyaaz/internal/log"
)

// Errors
var (
	ErrInvalidBPM      = errors.New("bpm out of range")
	ErrInvalidBeats    = errors.New("beats per bar out of range")
	ErrMetroRunning    = errors.New("metronome already running")
	ErrMetroNotRunning = errors.New("metronome not running")
)

// Click pitches and levels: beat one is accented.
const (
	accentFreq    = 1100.0
	accentVolume  = 0.85
	regularFreq   = 800.0
	regularVolume = 0.60
	clickSecs     = 0.05
	clickDecay    = 50.0 // exponential decay rate, 1/s
)

// BPM limits.
const (
	minBPM = 20
	maxBPM = 300
)

// Click renders one metronome click: a short sine burst with an
// exponential decay envelope.
func Click(freq, volume float64, sampleRate int) []float32 {
	n := int(clickSecs * float64(sampleRate))
	out := make([]float32, n)
	for i := range out {
		ti := float64(i) / float64(sampleRate)
		out[i] = float32(math.Sin(2*math.Pi*freq*ti) * math.Exp(-ti*clickDecay) * volume)
	}
	return out
}

// Metronome emits accented and unaccented clicks on a steady grid. Beat
// times are scheduled against the start time, not accumulated sleeps, so
// the pulse does not drift over long runs.
type Metronome struct {
	sampleRate int
	newSink    SinkFactory

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewMetronome creates a metronome rendering at the given rate.
func NewMetronome(sampleRate int, newSink SinkFactory) *Metronome {
	return &Metronome{
		sampleRate: sampleRate,
		newSink:    newSink,
	}
}

// Start validates the tempo and begins clicking. The first beat of each
// bar is accented.
func (m *Metronome) Start(bpm, beatsPerBar int) error {
	if bpm < minBPM || bpm > maxBPM {
		return fmt.Errorf("%w: %d (want %d-%d)", ErrInvalidBPM, bpm, minBPM, maxBPM)
	}
	if beatsPerBar < 1 || beatsPerBar > 16 {
		return fmt.Errorf("%w: %d (want 1-16)", ErrInvalidBeats, beatsPerBar)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrMetroRunning
	}
	sink, err := m.newSink()
	if err != nil {
		return err
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.running = true
	go m.loop(sink, bpm, beatsPerBar, m.stop, m.done)
	return nil
}

// Stop halts the click loop and releases the sink.
func (m *Metronome) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrMetroNotRunning
	}
	stop, done := m.stop, m.done
	m.running = false
	m.mu.Unlock()

	close(stop)
	<-done
	return nil
}

// IsRunning reports whether the metronome is clicking.
func (m *Metronome) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Metronome) loop(sink audio.Sink, bpm, beatsPerBar int, stop, done chan struct{}) {
	defer close(done)
	defer func() {
		if err := sink.Close(); err != nil {
			log.Warn("metronome sink close failed", "error", err)
		}
	}()

	accent := Click(accentFreq, accentVolume, m.sampleRate)
	regular := Click(regularFreq, regularVolume, m.sampleRate)

	interval := time.Minute / time.Duration(bpm)
	start := time.Now()
	for n := 0; ; n++ {
		// Absolute schedule: beat n fires at start + n*interval.
		next := start.Add(time.Duration(n) * interval)
		wait := time.Until(next)
		if wait > 0 {
			select {
			case <-stop:
				return
			case <-time.After(wait):
			}
		} else {
			select {
			case <-stop:
				return
			default:
			}
		}

		click := regular
		if n%beatsPerBar == 0 {
			click = accent
		}
		if err := sink.Write(click); err != nil {
			log.Error("metronome playback failed", "error", err)
			return
		}
	}
}

// NextBeats returns the first count beat deadlines for a tempo starting at
// start. Exposed for drift tests.
func NextBeats(start time.Time, bpm, count int) []time.Time {
	interval := time.Minute / time.Duration(bpm)
	beats := make([]time.Time, count)
	for n := range beats {
		beats[n] = start.Add(time.Duration(n) * interval)
	}
	return beats
}
