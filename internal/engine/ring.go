package engine

import "github.com/0xlemi/riyaaz/internal/pitch"

// sampleRing is the single-producer bounded hand-off between the capture
// goroutine and its consumer. When the consumer lags, pushing drops the
// oldest pending sample instead of blocking: capture prefers bounded
// staleness over backpressure. Samples are never reordered.
type sampleRing struct {
	ch chan pitch.Sample
}

func newSampleRing(capacity int) *sampleRing {
	return &sampleRing{ch: make(chan pitch.Sample, capacity)}
}

// push delivers a sample without ever blocking the producer.
func (r *sampleRing) push(s pitch.Sample) {
	select {
	case r.ch <- s:
	default:
		select {
		case <-r.ch:
		default:
		}
		select {
		case r.ch <- s:
		default:
		}
	}
}

// C returns the consumer side of the ring.
func (r *sampleRing) C() <-chan pitch.Sample {
	return r.ch
}
