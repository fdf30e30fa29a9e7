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
	ErrDroneRunning    = errors.New("drone already running")
	ErrDroneNotRunning = errors.New("drone not running")
)

// droneChunk is the render block size in samples; one chunk is also the
// ramp length for click-free starts and stops.
const droneChunk = 2048

// dronePartial is one component of the drone chord, as a ratio of the
// tonic with a fixed amplitude.
type dronePartial struct {
	ratio float64
	amp   float64
}

// The drone voices the tonic, its octave, the fifth above the octave, and
// a faint double octave.
var dronePartials = []dronePartial{
	{1.0, 0.40},
	{2.0, 0.20},
	{1.5, 0.18},
	{4.0, 0.06},
}

const droneVolume = 0.45

// Drone loops the tonic chord until stopped. It re-reads the tonic every
// chunk, so retuning Sa retunes the drone live, and it keeps per-partial
// phase so frequency changes do not click.
type Drone struct {
	sampleRate int
	tonic      func() float64
	newSink    SinkFactory

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewDrone creates a drone engine. tonic is sampled once per chunk.
func NewDrone(sampleRate int, tonic func() float64, newSink SinkFactory) *Drone {
	return &Drone{
		sampleRate: sampleRate,
		tonic:      tonic,
		newSink:    newSink,
	}
}

// Start opens a sink and begins the loop.
func (d *Drone) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return ErrDroneRunning
	}
	sink, err := d.newSink()
	if err != nil {
		return err
	}
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	d.running = true
	go d.loop(sink, d.stop, d.done)
	return nil
}

// Stop signals the loop, which ramps down and releases the sink before
// returning. Blocks until playback has fully ceased.
func (d *Drone) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return ErrDroneNotRunning
	}
	stop, done := d.stop, d.done
	d.running = false
	d.mu.Unlock()

	close(stop)
	<-done
	return nil
}

// IsRunning reports whether the drone is playing.
func (d *Drone) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *Drone) loop(sink audio.Sink, stop, done chan struct{}) {
	defer close(done)
	defer func() {
		if err := sink.Close(); err != nil {
			log.Warn("drone sink close failed", "error", err)
		}
	}()

	phases := make([]float64, len(dronePartials))
	buf := make([]float32, droneChunk)

	// Ramp in on the first chunk, loop at full gain, ramp out on the last.
	d.render(buf, phases, rampUp)
	if err := sink.Write(buf); err != nil {
		log.Error("drone playback failed", "error", err)
		return
	}
	for {
		select {
		case <-stop:
			d.render(buf, phases, rampDown)
			if err := sink.Write(buf); err != nil {
				log.Warn("drone ramp-out failed", "error", err)
			}
			return
		default:
			d.render(buf, phases, rampNone)
			if err := sink.Write(buf); err != nil {
				log.Error("drone playback failed", "error", err)
				return
			}
		}
	}
}

type rampMode int

const (
	rampNone rampMode = iota
	rampUp
	rampDown
)

// render fills buf with one chunk of the drone chord, advancing phases.
func (d *Drone) render(buf []float32, phases []float64, ramp rampMode) {
	sa := d.tonic()
	n := len(buf)
	peak := 0.0
	tmp := make([]float64, n)
	for i := 0; i < n; i++ {
		v := 0.0
		for p, part := range dronePartials {
			v += part.amp * math.Sin(phases[p])
			phases[p] += 2 * math.Pi * sa * part.ratio / float64(d.sampleRate)
			if phases[p] > 2*math.Pi {
				phases[p] -= 2 * math.Pi
			}
		}
		tmp[i] = v
		if av := math.Abs(v); av > peak {
			peak = av
		}
	}
	if peak < 1e-9 {
		peak = 1e-9
	}
	for i := 0; i < n; i++ {
		gain := 1.0
		switch ramp {
		case rampUp:
			gain = float64(i) / float64(n)
		case rampDown:
			gain = float64(n-i) / float64(n)
		}
		buf[i] = float32(tmp[i] / peak * droneVolume * gain)
	}
}
