package pointer

import "github.com/ayusman/mukha/internal/landmark"

// Smoother is a fixed-length ring of recent deltas whose output is their
// weighted average, with weights rising linearly from oldest to newest.
type Smoother struct {
	buf  []landmark.Point
	next int
	n    int
}

// NewSmoother creates a smoother holding up to size samples (minimum 1).
func NewSmoother(size int) *Smoother {
	if size < 1 {
		size = 1
	}
	return &Smoother{buf: make([]landmark.Point, size)}
}

// Cap returns the ring length.
func (s *Smoother) Cap() int { return len(s.buf) }

// Len returns the number of samples currently held.
func (s *Smoother) Len() int { return s.n }

// Resize changes the ring length, discarding history when it changes.
func (s *Smoother) Resize(size int) {
	if size < 1 {
		size = 1
	}
	if size == len(s.buf) {
		return
	}
	s.buf = make([]landmark.Point, size)
	s.Reset()
}

// Reset discards all samples.
func (s *Smoother) Reset() {
	s.next = 0
	s.n = 0
}

// Push adds v and returns the new weighted average.
func (s *Smoother) Push(v landmark.Point) landmark.Point {
	s.buf[s.next] = v
	s.next = (s.next + 1) % len(s.buf)
	if s.n < len(s.buf) {
		s.n++
	}
	return s.Value()
}

// Value returns the weighted average of the held samples.
func (s *Smoother) Value() landmark.Point {
	if s.n == 0 {
		return landmark.Point{}
	}
	var sum landmark.Point
	var total float64
	// oldest sample gets weight 1, newest gets weight n
	start := (s.next - s.n + len(s.buf)) % len(s.buf)
	for i := 0; i < s.n; i++ {
		w := float64(i + 1)
		sum = sum.Add(s.buf[(start+i)%len(s.buf)].Scale(w))
		total += w
	}
	return sum.Scale(1 / total)
}
