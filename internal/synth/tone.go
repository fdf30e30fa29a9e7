// Package synth renders harmonium-style tones, the tanpura-like drone, and
// the metronome. Every playing voice owns its output sink exclusively and
// runs on its own goroutine, so synthesis never touches the capture path.
package synth

import (
	"errors"
	"math"
	"sync"

	"github.com/0xlemi/riyaaz/internal/audio"
	"github.com/0xlemi/riyaaz/internal/log"
)

// Errors
var (
	ErrInvalidFrequency = errors.New("frequency must be positive")
	ErrInvalidDuration  = errors.New("duration must be positive")
)

// SinkFactory opens a fresh playback sink for one voice.
type SinkFactory func() (audio.Sink, error)

// harmonicWeights is the additive-harmonic recipe of the harmonium tone:
// fundamental plus five overtones at falling amplitude.
var harmonicWeights = []float64{1.0, 0.50, 0.25, 0.13, 0.07, 0.04}

// Envelope fractions, in seconds, applied to every tone.
const (
	attackSecs   = 0.04
	decaySecs    = 0.10
	sustainLevel = 0.80
	releaseSecs  = 0.14
)

// HarmoniumWave renders an additive-harmonic, ADSR-enveloped tone buffer.
func HarmoniumWave(freq, duration, volume float64, sampleRate int) []float32 {
	n := int(float64(sampleRate) * duration)
	wave := make([]float64, n)
	peak := 0.0
	for i := range wave {
		ti := float64(i) / float64(sampleRate)
		v := 0.0
		for h, a := range harmonicWeights {
			v += a * math.Sin(2*math.Pi*freq*float64(h+1)*ti)
		}
		wave[i] = v
		if av := math.Abs(v); av > peak {
			peak = av
		}
	}
	if peak < 1e-9 {
		peak = 1e-9
	}

	atk := int(attackSecs * float64(sampleRate))
	dec := int(decaySecs * float64(sampleRate))
	rel := int(releaseSecs * float64(sampleRate))

	out := make([]float32, n)
	for i := range wave {
		env := sustainLevel
		switch {
		case i < atk:
			env = float64(i) / float64(atk)
		case i < atk+dec:
			env = 1 - (1-sustainLevel)*float64(i-atk)/float64(dec)
		}
		if i >= n-rel {
			env *= float64(n-i) / float64(rel)
		}
		out[i] = float32(wave[i] / peak * volume * env)
	}
	return out
}

// Tones plays independent harmonium tones; overlapping requests each get
// their own goroutine and sink.
type Tones struct {
	sampleRate int
	volume     float64
	newSink    SinkFactory
	wg         sync.WaitGroup
}

// NewTones creates a tone player rendering at the given rate and volume.
func NewTones(sampleRate int, volume float64, newSink SinkFactory) *Tones {
	return &Tones{
		sampleRate: sampleRate,
		volume:     volume,
		newSink:    newSink,
	}
}

// Play validates the request, then renders and streams the tone in the
// background. Playback errors are logged; they never reach the caller or
// any other voice.
func (t *Tones) Play(freq, duration float64) error {
	if freq <= 0 {
		return ErrInvalidFrequency
	}
	if duration <= 0 {
		return ErrInvalidDuration
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		sink, err := t.newSink()
		if err != nil {
			log.Error("tone sink open failed", "error", err)
			return
		}
		defer func() {
			if err := sink.Close(); err != nil {
				log.Warn("tone sink close failed", "error", err)
			}
		}()
		wave := HarmoniumWave(freq, duration, t.volume, t.sampleRate)
		if err := sink.Write(wave); err != nil {
			log.Error("tone playback failed", "error", err, "freq", freq)
		}
	}()
	return nil
}

// Wait blocks until all in-flight tones finish. Used on shutdown.
func (t *Tones) Wait() {
	t.wg.Wait()
}
