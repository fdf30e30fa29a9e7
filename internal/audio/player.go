package audio

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// ErrPlayerClosed is returned by writes after Close.
var ErrPlayerClosed = errors.New("audio player closed")

// Sink receives rendered samples for playback. Synth voices write whole
// waveforms through a Sink so tests can swap the device for memory.
type Sink interface {
	// Write streams samples to the output, blocking until consumed.
	Write(samples []float32) error

	// Close releases the output resources.
	Close() error
}

// playerChunk is the output stream buffer length in samples.
const playerChunk = 2048

// Player is a Sink backed by the default PortAudio output device. Each
// player owns its stream exclusively, so concurrent voices each open
// their own.
type Player struct {
	sampleRate int
	stream     *portaudio.Stream
	outBuf     []float32
	closed     bool
}

// NewPlayer opens a mono output stream on the default device.
func NewPlayer(sampleRate int) (*Player, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	p := &Player{
		sampleRate: sampleRate,
		outBuf:     make([]float32, playerChunk),
	}
	stream, err := portaudio.OpenDefaultStream(
		0, // no input
		1, // mono output
		float64(sampleRate),
		playerChunk,
		&p.outBuf,
	)
	if err != nil {
		if terr := Terminate(); terr != nil {
			return nil, errors.Join(err, terr)
		}
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		cerr := stream.Close()
		terr := Terminate()
		return nil, errors.Join(fmt.Errorf("start output stream: %w", err), cerr, terr)
	}
	p.stream = stream
	return p, nil
}

// Write streams samples to the device in chunks, zero-padding the tail.
func (p *Player) Write(samples []float32) error {
	if p.closed {
		return ErrPlayerClosed
	}
	for off := 0; off < len(samples); off += playerChunk {
		end := off + playerChunk
		if end > len(samples) {
			end = len(samples)
		}
		n := copy(p.outBuf, samples[off:end])
		for i := n; i < playerChunk; i++ {
			p.outBuf[i] = 0
		}
		if err := p.stream.Write(); err != nil {
			return fmt.Errorf("%w: write: %v", ErrDeviceFailed, err)
		}
	}
	return nil
}

// Close stops the stream and releases the device on every path.
func (p *Player) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	var firstErr error
	if err := p.stream.Stop(); err != nil {
		firstErr = fmt.Errorf("stop output stream: %w", err)
	}
	if err := p.stream.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close output stream: %w", err)
	}
	if err := Terminate(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
