// Package engine wires the pipeline together: microphone frames through
// the YIN estimator into a bounded sample ring, scored against the active
// target, with the synthesizers and the results store at its sides. It is
// the in-process API the UI layers talk to.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/0xlemi/riyaaz/internal/audio"
	"github.com/0xlemi/riyaaz/internal/config"
	"github.com/0xlemi/riyaaz/internal/log"
	"github.com/0xlemi/riyaaz/internal/notes"
	"github.com/0xlemi/riyaaz/internal/pitch"
	"github.com/0xlemi/riyaaz/internal/session"
	"github.com/0xlemi/riyaaz/internal/store"
	"github.com/0xlemi/riyaaz/internal/synth"
)

// Errors
var (
	ErrInvalidTonic = errors.New("tonic must be positive")
	ErrUnknownRaga  = errors.New("unknown raga")
	ErrNoTarget     = errors.New("no active target")
)

// sampleRingDepth bounds how many pitch samples may queue between the
// capture goroutine and a consumer.
const sampleRingDepth = 16

// Tuning is the atomically-swapped configuration snapshot read by the
// scoring path. Readers always see tonic and note set together; a change
// is never observed half-applied.
type Tuning struct {
	Tonic   float64
	Allowed []int
}

// Option configures an Engine.
type Option func(*Engine)

// WithCapturer substitutes the audio input, e.g. a mock for tests.
func WithCapturer(c audio.Capturer) Option {
	return func(e *Engine) { e.capturer = c }
}

// WithSinkFactory substitutes the playback output for all synth voices.
func WithSinkFactory(f synth.SinkFactory) Option {
	return func(e *Engine) { e.newSink = f }
}

// WithStore attaches a results store; completed guided sessions are
// appended to it. The store's lifecycle belongs to the caller.
func WithStore(s *store.Store) Option {
	return func(e *Engine) { e.results = s }
}

// Engine is the practice core. One capture goroutine produces samples;
// API calls may come from any goroutine.
type Engine struct {
	cfg    config.Config
	tuning atomic.Pointer[Tuning]

	capturer audio.Capturer
	newSink  synth.SinkFactory
	results  *store.Store

	ring   *sampleRing
	latest atomic.Pointer[pitch.Sample]

	tones *synth.Tones
	drone *synth.Drone
	metro *synth.Metronome

	mu          sync.Mutex
	capturing   bool
	captureDone chan struct{}
	free        *session.Window
	guided      *guidedRun
	nextHandle  GuidedHandle
}

// New creates an engine from the configuration. No devices are opened
// until capture or playback actually starts.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg}
	e.tuning.Store(&Tuning{Tonic: cfg.Tonic, Allowed: notes.AllOffsets()})
	for _, opt := range opts {
		opt(e)
	}
	if e.newSink == nil {
		rate := cfg.Audio.SampleRate
		e.newSink = func() (audio.Sink, error) { return audio.NewPlayer(rate) }
	}
	e.tones = synth.NewTones(cfg.Audio.SampleRate, cfg.Synth.Volume, e.newSink)
	e.drone = synth.NewDrone(cfg.Audio.SampleRate, e.Tonic, e.newSink)
	e.metro = synth.NewMetronome(cfg.Audio.SampleRate, e.newSink)
	return e, nil
}

// SetTonic retunes Sa. Takes effect on the very next frequency lookup;
// already-finalized session results are untouched.
func (e *Engine) SetTonic(hz float64) error {
	if hz <= 0 {
		return fmt.Errorf("%w: %.2f", ErrInvalidTonic, hz)
	}
	old := e.tuning.Load()
	e.tuning.Store(&Tuning{Tonic: hz, Allowed: old.Allowed})
	log.Info("tonic set", "hz", hz, "western", notes.WesternName(hz))
	return nil
}

// Tonic returns the current Sa in Hz.
func (e *Engine) Tonic() float64 {
	return e.tuning.Load().Tonic
}

// NoteFrequency computes a scale degree's frequency from the live tonic.
// Never cached.
func (e *Engine) NoteFrequency(semitones int) float64 {
	return notes.Frequency(e.Tonic(), semitones)
}

// SetRaga restricts note matching to a named raga's degrees. The empty
// name restores the full chromatic set.
func (e *Engine) SetRaga(name string) error {
	allowed := notes.AllOffsets()
	if name != "" {
		raga, ok := notes.Ragas[name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownRaga, name)
		}
		allowed = raga
	}
	old := e.tuning.Load()
	e.tuning.Store(&Tuning{Tonic: old.Tonic, Allowed: allowed})
	return nil
}

// Allowed returns the active note-set restriction.
func (e *Engine) Allowed() []int {
	return append([]int(nil), e.tuning.Load().Allowed...)
}

// Nearest snaps a frequency to the closest allowed note under the current
// tuning snapshot.
func (e *Engine) Nearest(freq float64) (notes.Match, error) {
	t := e.tuning.Load()
	return notes.Nearest(freq, t.Tonic, t.Allowed)
}

// StartCapture opens the microphone and starts the analysis pipeline.
// Failure to open the device is fatal and surfaced here.
func (e *Engine) StartCapture() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.capturing {
		return audio.ErrAlreadyCapturing
	}
	if e.capturer == nil {
		c, err := audio.NewPortAudioCapturer(
			e.cfg.Audio.SampleRate, e.cfg.Audio.FrameSize, e.cfg.Audio.Channels)
		if err != nil {
			return fmt.Errorf("create capturer: %w", err)
		}
		e.capturer = c
	}
	if err := e.capturer.Start(); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}

	e.ring = newSampleRing(sampleRingDepth)
	e.captureDone = make(chan struct{})
	e.capturing = true

	estimator := pitch.NewYIN(
		e.cfg.Audio.SampleRate,
		e.cfg.Audio.FrameSize,
		e.cfg.Detection.YinThreshold,
		e.cfg.Detection.MinFrequency,
		e.cfg.Detection.MaxFrequency,
		e.cfg.Audio.Sensitivity,
	)
	smoother := pitch.NewSmoother(e.cfg.Detection.SmoothWindow)
	go e.captureLoop(e.capturer, estimator, smoother, e.ring, e.captureDone)
	log.Info("capture started",
		"rate", e.cfg.Audio.SampleRate, "frame", e.cfg.Audio.FrameSize)
	return nil
}

// captureLoop runs until the capturer's frame channel closes. Estimation
// is bounded-time and the ring never blocks, so nothing here can stall
// the device.
func (e *Engine) captureLoop(src audio.Capturer, estimator *pitch.YIN,
	smoother *pitch.Smoother, ring *sampleRing, done chan struct{}) {
	defer close(done)

	for frame := range src.Frames() {
		freq, conf, voiced := estimator.Estimate(frame.Samples)
		s := pitch.Sample{Time: frame.Time}
		if voiced {
			s.Frequency = smoother.Smooth(freq)
			s.Confidence = conf
		}

		ring.push(s)
		snapshot := s
		e.latest.Store(&snapshot)
		e.observe(s)
	}

	if err := src.Err(); err != nil {
		log.Error("capture terminated", "error", err)
	}
}

// observe routes a sample into whichever window is listening.
func (e *Engine) observe(s pitch.Sample) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.free != nil {
		e.free.Observe(s)
	}
	if e.guided != nil {
		e.guided.session.Observe(s)
	}
}

// StopCapture stops the microphone and waits for the pipeline to drain.
func (e *Engine) StopCapture() error {
	e.mu.Lock()
	if !e.capturing {
		e.mu.Unlock()
		return audio.ErrNotCapturing
	}
	e.capturing = false
	done := e.captureDone
	src := e.capturer
	e.mu.Unlock()

	err := src.Stop()
	<-done
	log.Info("capture stopped")
	return err
}

// Subscribe returns the ordered pitch-sample stream. Valid after
// StartCapture; intended for a single consumer.
func (e *Engine) Subscribe() <-chan pitch.Sample {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ring == nil {
		return nil
	}
	return e.ring.C()
}

// Latest returns the most recent pitch sample, for polling consumers.
func (e *Engine) Latest() (pitch.Sample, bool) {
	p := e.latest.Load()
	if p == nil {
		return pitch.Sample{}, false
	}
	return *p, true
}

// SetActiveTarget opens a free-practice scoring window against one scale
// degree, atomically replacing any previous window. toleranceCents <= 0
// uses the configured default.
func (e *Engine) SetActiveTarget(semitones int, toleranceCents float64) error {
	if notes.Name(semitones) == "" {
		return fmt.Errorf("%w: offset %d", session.ErrUnknownNote, semitones)
	}
	cfg := e.scoringConfig()
	if toleranceCents > 0 {
		cfg.ToleranceCents = toleranceCents
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.free = session.NewWindow(cfg, semitones, e.Tonic)
	return nil
}

// ClearActiveTarget destroys the free-practice window.
func (e *Engine) ClearActiveTarget() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.free = nil
}

// Accuracy returns the active window's on-pitch percentage.
func (e *Engine) Accuracy() (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.free == nil {
		return 0, ErrNoTarget
	}
	return e.free.Accuracy(), nil
}

// Stability returns the active window's steadiness percentage.
func (e *Engine) Stability() (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.free == nil {
		return 0, ErrNoTarget
	}
	return e.free.Stability(), nil
}

// PlayTone plays a raw frequency for the given duration.
func (e *Engine) PlayTone(freq, durationSecs float64) error {
	return e.tones.Play(freq, durationSecs)
}

// PlayNote plays a scale degree at the current tonic.
func (e *Engine) PlayNote(semitones int) error {
	return e.tones.Play(e.NoteFrequency(semitones), e.cfg.Synth.ToneSecs)
}

// StartDrone starts the tonic drone.
func (e *Engine) StartDrone() error {
	return e.drone.Start()
}

// StopDrone stops the tonic drone.
func (e *Engine) StopDrone() error {
	return e.drone.Stop()
}

// StartMetronome starts clicking at the given tempo.
func (e *Engine) StartMetronome(bpm, beatsPerBar int) error {
	return e.metro.Start(bpm, beatsPerBar)
}

// StopMetronome stops the click.
func (e *Engine) StopMetronome() error {
	return e.metro.Stop()
}

// Close shuts everything down: guided session, capture, drone, metronome,
// and in-flight tones. Device handles are released on every path.
func (e *Engine) Close() error {
	var firstErr error

	e.mu.Lock()
	run := e.guided
	e.mu.Unlock()
	if run != nil {
		if err := e.AbortGuidedSession(run.handle); err != nil && !errors.Is(err, ErrNoSession) {
			firstErr = err
		}
	}

	e.mu.Lock()
	capturing := e.capturing
	e.mu.Unlock()
	if capturing {
		if err := e.StopCapture(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.drone.IsRunning() {
		if err := e.drone.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.metro.IsRunning() {
		if err := e.metro.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.tones.Wait()

	if c, ok := e.capturer.(*audio.PortAudioCapturer); ok {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// scoringConfig builds the session config from the engine tunables.
func (e *Engine) scoringConfig() session.Config {
	return session.Config{
		ToleranceCents: e.cfg.Scoring.ToleranceCents,
		MinConfidence:  e.cfg.Detection.MinConfidence,
		StabilityCents: e.cfg.Scoring.StabilityCents,
		HistorySize:    e.cfg.Scoring.HistorySize,
	}
}
