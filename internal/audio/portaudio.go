package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/0xlemi/riyaaz/internal/log"
)

// maxReadErrors is the number of consecutive failed reads tolerated before
// capture escalates to a device failure.
const maxReadErrors = 10

// frameQueueDepth bounds how many captured frames may wait for the
// consumer before the oldest is dropped.
const frameQueueDepth = 8

var (
	paMu   sync.Mutex
	paRefs int
)

// Initialize acquires the PortAudio runtime. Calls are reference counted
// so capture and playback can share it.
func Initialize() error {
	paMu.Lock()
	defer paMu.Unlock()
	if paRefs == 0 {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("portaudio initialize: %w", err)
		}
	}
	paRefs++
	return nil
}

// Terminate releases the PortAudio runtime once the last user is done.
func Terminate() error {
	paMu.Lock()
	defer paMu.Unlock()
	if paRefs == 0 {
		return nil
	}
	paRefs--
	if paRefs == 0 {
		if err := portaudio.Terminate(); err != nil {
			return fmt.Errorf("portaudio terminate: %w", err)
		}
	}
	return nil
}

// PortAudioCapturer implements Capturer on the default input device using
// blocking reads on a dedicated goroutine, so nothing downstream can stall
// the microphone.
type PortAudioCapturer struct {
	sampleRate int
	frameSize  int
	channels   int

	mu        sync.Mutex
	capturing bool
	stream    *portaudio.Stream
	inBuf     []float32
	frames    chan Frame
	stop      chan struct{}
	done      chan struct{}
	err       error
}

// NewPortAudioCapturer creates a capturer reading frameSize-sample mono
// frames from the default input device.
func NewPortAudioCapturer(sampleRate, frameSize, channels int) (*PortAudioCapturer, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	return &PortAudioCapturer{
		sampleRate: sampleRate,
		frameSize:  frameSize,
		channels:   channels,
		inBuf:      make([]float32, frameSize*channels),
	}, nil
}

// Start opens the default input stream and begins the read loop.
func (c *PortAudioCapturer) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capturing {
		return ErrAlreadyCapturing
	}

	stream, err := portaudio.OpenDefaultStream(
		c.channels, // input channels
		0,          // no output
		float64(c.sampleRate),
		c.frameSize,
		&c.inBuf,
	)
	if err != nil {
		return fmt.Errorf("open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		if cerr := stream.Close(); cerr != nil {
			log.Warn("closing failed input stream", "error", cerr)
		}
		return fmt.Errorf("start input stream: %w", err)
	}

	c.stream = stream
	c.frames = make(chan Frame, frameQueueDepth)
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.err = nil
	c.capturing = true
	go c.loop(stream, c.frames, c.stop, c.done)
	return nil
}

// loop reads frames until stopped or the device fails repeatedly.
func (c *PortAudioCapturer) loop(stream *portaudio.Stream, frames chan Frame, stop, done chan struct{}) {
	defer close(done)
	defer close(frames)

	readErrors := 0
	for {
		select {
		case <-stop:
			return
		default:
		}

		if err := stream.Read(); err != nil {
			readErrors++
			log.Warn("transient capture read error", "error", err, "consecutive", readErrors)
			if readErrors >= maxReadErrors {
				c.mu.Lock()
				c.err = fmt.Errorf("%w: %d consecutive read errors: %v",
					ErrDeviceFailed, readErrors, err)
				c.mu.Unlock()
				return
			}
			continue
		}
		readErrors = 0

		frame := Frame{
			Samples:    mixToMono(c.inBuf, c.channels),
			SampleRate: c.sampleRate,
			Time:       time.Now(),
		}
		// Drop the oldest pending frame rather than blocking the device.
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

// Stop ends the read loop and releases the stream on every path.
func (c *PortAudioCapturer) Stop() error {
	c.mu.Lock()
	if !c.capturing {
		c.mu.Unlock()
		return ErrNotCapturing
	}
	stop, done, stream := c.stop, c.done, c.stream
	c.capturing = false
	c.stream = nil
	c.mu.Unlock()

	close(stop)
	<-done

	var firstErr error
	if err := stream.Stop(); err != nil {
		firstErr = fmt.Errorf("stop input stream: %w", err)
	}
	if err := stream.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close input stream: %w", err)
	}
	return firstErr
}

// Frames returns the channel of captured frames.
func (c *PortAudioCapturer) Frames() <-chan Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// Err returns the device error that terminated capture, if any.
func (c *PortAudioCapturer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// IsCapturing returns true if currently capturing audio.
func (c *PortAudioCapturer) IsCapturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}

// Close releases the PortAudio runtime reference held by this capturer.
func (c *PortAudioCapturer) Close() error {
	if c.IsCapturing() {
		if err := c.Stop(); err != nil {
			log.Warn("stopping capture during close", "error", err)
		}
	}
	return Terminate()
}

// mixToMono averages interleaved channels into a fresh mono slice.
func mixToMono(in []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}
	out := make([]float32, len(in)/channels)
	for i := range out {
		sum := float32(0)
		for ch := 0; ch < channels; ch++ {
			sum += in[i*channels+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out
}
