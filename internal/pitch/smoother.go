package pitch

import "sort"

// Smoother suppresses single-frame octave glitches by reporting the median
// of the most recent voiced frequencies. With fewer than three observations
// it passes the input through unchanged.
type Smoother struct {
	buf    []float64
	sorted []float64
	size   int
}

// NewSmoother creates a median smoother over the last size voiced
// frequencies. A size below 3 disables smoothing.
func NewSmoother(size int) *Smoother {
	return &Smoother{
		buf:    make([]float64, 0, size),
		sorted: make([]float64, 0, size),
		size:   size,
	}
}

// Smooth records freq (if voiced) and returns the smoothed estimate.
func (s *Smoother) Smooth(freq float64) float64 {
	if s.size < 3 {
		return freq
	}
	if freq > 0 {
		if len(s.buf) == s.size {
			copy(s.buf, s.buf[1:])
			s.buf = s.buf[:s.size-1]
		}
		s.buf = append(s.buf, freq)
	}
	if len(s.buf) < 3 {
		return freq
	}
	s.sorted = append(s.sorted[:0], s.buf...)
	sort.Float64s(s.sorted)
	mid := len(s.sorted) / 2
	if len(s.sorted)%2 == 1 {
		return s.sorted[mid]
	}
	return (s.sorted[mid-1] + s.sorted[mid]) / 2
}

// Reset clears the history.
func (s *Smoother) Reset() {
	s.buf = s.buf[:0]
}
