package audio

import (
	"math"
	"sync"
	"time"
)

// MockCapturer is a Capturer for tests. It generates synthetic frames
// (silence or a sine wave) at roughly real-time pace without touching any
// device.
type MockCapturer struct {
	sampleRate int
	frameSize  int
	frequency  float64 // Hz, 0 = silence
	amplitude  float64

	mu        sync.Mutex
	capturing bool
	frames    chan Frame
	stop      chan struct{}
	done      chan struct{}
	phase     float64
}

// MockOption configures a MockCapturer.
type MockOption func(*MockCapturer)

// WithSine configures the mock to generate a sine wave.
func WithSine(frequency, amplitude float64) MockOption {
	return func(m *MockCapturer) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// NewMockCapturer creates a mock capturer producing frameSize-sample frames.
func NewMockCapturer(sampleRate, frameSize int, opts ...MockOption) *MockCapturer {
	m := &MockCapturer{
		sampleRate: sampleRate,
		frameSize:  frameSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetTone changes the generated frequency for subsequent frames.
func (m *MockCapturer) SetTone(frequency, amplitude float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frequency = frequency
	m.amplitude = amplitude
}

// Start begins generating frames.
func (m *MockCapturer) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.capturing {
		return ErrAlreadyCapturing
	}
	m.frames = make(chan Frame, frameQueueDepth)
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.capturing = true
	go m.loop(m.frames, m.stop, m.done)
	return nil
}

func (m *MockCapturer) loop(frames chan Frame, stop, done chan struct{}) {
	defer close(done)
	defer close(frames)

	period := time.Duration(float64(m.frameSize) / float64(m.sampleRate) * float64(time.Second))
	// Generate a touch faster than real time so consumers never starve.
	ticker := time.NewTicker(period / 2)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			frame := Frame{
				Samples:    m.generate(),
				SampleRate: m.sampleRate,
				Time:       time.Now(),
			}
			select {
			case frames <- frame:
			default:
				select {
				case <-frames:
				default:
				}
				select {
				case frames <- frame:
				default:
				}
			}
		}
	}
}

func (m *MockCapturer) generate() []float32 {
	m.mu.Lock()
	freq, amp := m.frequency, m.amplitude
	phase := m.phase
	step := 2 * math.Pi * freq / float64(m.sampleRate)
	m.phase = math.Mod(phase+step*float64(m.frameSize), 2*math.Pi)
	m.mu.Unlock()

	out := make([]float32, m.frameSize)
	if freq <= 0 || amp <= 0 {
		return out
	}
	for i := range out {
		out[i] = float32(amp * math.Sin(phase+step*float64(i)))
	}
	return out
}

// Stop ends frame generation and closes the frame channel.
func (m *MockCapturer) Stop() error {
	m.mu.Lock()
	if !m.capturing {
		m.mu.Unlock()
		return ErrNotCapturing
	}
	stop, done := m.stop, m.done
	m.capturing = false
	m.mu.Unlock()

	close(stop)
	<-done
	return nil
}

// Frames returns the channel of generated frames.
func (m *MockCapturer) Frames() <-chan Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames
}

// Err always returns nil; the mock never fails.
func (m *MockCapturer) Err() error {
	return nil
}

// IsCapturing returns true if currently generating frames.
func (m *MockCapturer) IsCapturing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capturing
}
