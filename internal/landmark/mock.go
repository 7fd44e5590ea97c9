package landmark

import (
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// MockSource is a test implementation of the Source interface. Queued frames
// are returned in order; once the queue is empty the last frame repeats.
type MockSource struct {
	mu     sync.Mutex
	queue  []Frame
	last   Frame
	err    error
	closed bool
}

// NewMockSource creates a MockSource that reports no face until fed.
func NewMockSource() *MockSource {
	return &MockSource{}
}

// Push queues frames to be returned by Detect.
func (m *MockSource) Push(frames ...Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, frames...)
}

// SetError sets the error that will be returned by Detect.
func (m *MockSource) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect returns the next queued frame, stamped with the current time.
func (m *MockSource) Detect(_ *gocv.Mat) (Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return Frame{}, m.err
	}
	if len(m.queue) > 0 {
		m.last = m.queue[0]
		m.queue = m.queue[1:]
	}
	f := m.last
	f.Timestamp = time.Now()
	return f, nil
}

// Close marks the mock closed.
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockSource) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Fixture geometry, in pixels relative to the nose tip.
const (
	fixtureEyeSpread = 30.0 // nose to eye center, horizontal
	fixtureEyeRise   = 40.0 // nose to eye center, vertical
	fixtureEyeWidth  = 30.0
	fixtureEyeGap    = 9.0 // openness 0.30
	fixtureClosedGap = 1.5 // openness 0.05
	fixtureBrowLift  = 20.0
	fixtureMouthDrop = 45.0
	fixtureMouthW    = 50.0
	fixtureMouthGap  = 5.0 // openness 0.10
)

// NeutralFace returns a relaxed face with the nose tip at nose: eyes open
// (openness 0.30), mouth closed (0.10) and brows at rest (raise 0.33).
func NeutralFace(nose Point) Frame {
	f := Frame{Present: true, Timestamp: time.Time{}}
	p := &f.Points
	p[NoseTip] = nose

	for _, side := range []Side{Left, Right} {
		dir := -1.0
		top, bottom, outer, inner, brow := LeftEyeTop, LeftEyeBottom, LeftEyeOuter, LeftEyeInner, LeftBrow
		if side == Right {
			dir = 1.0
			top, bottom, outer, inner, brow = RightEyeTop, RightEyeBottom, RightEyeOuter, RightEyeInner, RightBrow
		}
		center := Point{X: nose.X + dir*fixtureEyeSpread, Y: nose.Y - fixtureEyeRise}
		p[outer] = Point{X: center.X + dir*fixtureEyeWidth/2, Y: center.Y}
		p[inner] = Point{X: center.X - dir*fixtureEyeWidth/2, Y: center.Y}
		p[top] = Point{X: center.X, Y: center.Y - fixtureEyeGap/2}
		p[bottom] = Point{X: center.X, Y: center.Y + fixtureEyeGap/2}
		p[brow] = Point{X: center.X, Y: p[top].Y - fixtureBrowLift}
	}

	mouthY := nose.Y + fixtureMouthDrop
	p[MouthLeft] = Point{X: nose.X - fixtureMouthW/2, Y: mouthY}
	p[MouthRight] = Point{X: nose.X + fixtureMouthW/2, Y: mouthY}
	p[MouthTop] = Point{X: nose.X, Y: mouthY - fixtureMouthGap/2}
	p[MouthBottom] = Point{X: nose.X, Y: mouthY + fixtureMouthGap/2}
	return f
}

// WithEyesClosed closes the selected eyes of f.
func WithEyesClosed(f Frame, left, right bool) Frame {
	closeEye := func(top, bottom Name) {
		mid := f.Points[top].Mid(f.Points[bottom])
		f.Points[top] = Point{X: mid.X, Y: mid.Y - fixtureClosedGap/2}
		f.Points[bottom] = Point{X: mid.X, Y: mid.Y + fixtureClosedGap/2}
	}
	if left {
		closeEye(LeftEyeTop, LeftEyeBottom)
	}
	if right {
		closeEye(RightEyeTop, RightEyeBottom)
	}
	return f
}

// WithMouthOpen drops the lower lip so the mouth openness becomes ratio.
func WithMouthOpen(f Frame, ratio float64) Frame {
	width := f.Points[MouthLeft].Dist(f.Points[MouthRight])
	f.Points[MouthBottom] = Point{X: f.Points[MouthTop].X, Y: f.Points[MouthTop].Y + ratio*width}
	return f
}

// WithBrowsRaised lifts both brows by dy pixels.
func WithBrowsRaised(f Frame, dy float64) Frame {
	f.Points[LeftBrow].Y -= dy
	f.Points[RightBrow].Y -= dy
	return f
}

// Translate shifts every point of f by (dx, dy).
func Translate(f Frame, dx, dy float64) Frame {
	for i := range f.Points {
		f.Points[i] = f.Points[i].Add(Point{X: dx, Y: dy})
	}
	return f
}

// At returns f stamped with ts.
func At(f Frame, ts time.Time) Frame {
	f.Timestamp = ts
	return f
}
