// Package audio owns the sound device layer: microphone capture and
// playback streams, plus a mock capturer for tests.
package audio

import (
	"errors"
	"math"
	"time"
)

// Errors
var (
	ErrAlreadyCapturing = errors.New("audio capture already started")
	ErrNotCapturing     = errors.New("audio capture not started")
	ErrDeviceFailed     = errors.New("audio device failed")
)

// Frame is one fixed-size block of mono samples read from the input device.
type Frame struct {
	Samples    []float32
	SampleRate int
	Time       time.Time
}

// Level calculates the RMS and dB level of the frame.
func (f Frame) Level() (rms, db float64) {
	if len(f.Samples) == 0 {
		return 0, -100
	}
	sumSquares := 0.0
	for _, sample := range f.Samples {
		v := float64(sample)
		sumSquares += v * v
	}
	rms = math.Sqrt(sumSquares / float64(len(f.Samples)))
	if rms > 1e-7 {
		db = 20 * math.Log10(rms)
	} else {
		db = -100
	}
	return rms, db
}

// Capturer defines the interface for audio capture. Frames are delivered
// on the Frames channel in capture order; when the consumer lags, the
// oldest pending frame is dropped rather than stalling the device. The
// channel is closed when capture stops, after which Err reports whether
// the stop was clean or a device failure.
type Capturer interface {
	// Start begins audio capture.
	Start() error

	// Stop ends audio capture and closes the frame channel.
	Stop() error

	// Frames returns the channel of captured frames.
	Frames() <-chan Frame

	// Err returns the device error that terminated capture, if any.
	Err() error

	// IsCapturing returns true if currently capturing audio.
	IsCapturing() bool
}
