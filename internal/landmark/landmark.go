// Package landmark defines the per-frame facial landmark contract consumed by
// the engine and the sources that produce it.
package landmark

import (
	"math"
	"time"
)

// Name identifies one landmark in the subset the engine consumes.
// Left and right are from the user's point of view in a mirrored preview.
type Name int

const (
	NoseTip Name = iota
	LeftEyeTop
	LeftEyeBottom
	LeftEyeOuter
	LeftEyeInner
	RightEyeTop
	RightEyeBottom
	RightEyeOuter
	RightEyeInner
	MouthTop
	MouthBottom
	MouthLeft
	MouthRight
	LeftBrow
	RightBrow
	NumNames
)

var names = [NumNames]string{
	"nose_tip",
	"left_eye_top", "left_eye_bottom", "left_eye_outer", "left_eye_inner",
	"right_eye_top", "right_eye_bottom", "right_eye_outer", "right_eye_inner",
	"mouth_top", "mouth_bottom", "mouth_left", "mouth_right",
	"left_brow", "right_brow",
}

func (n Name) String() string {
	if n < 0 || n >= NumNames {
		return "unknown"
	}
	return names[n]
}

// Tracking is the landmark used as the movement reference.
const Tracking = NoseTip

// Point is a 2D image coordinate in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Add(q Point) Point     { return Point{p.X + q.X, p.Y + q.Y} }
func (p Point) Sub(q Point) Point     { return Point{p.X - q.X, p.Y - q.Y} }
func (p Point) Scale(s float64) Point { return Point{p.X * s, p.Y * s} }
func (p Point) Len() float64          { return math.Hypot(p.X, p.Y) }
func (p Point) Dist(q Point) float64  { return p.Sub(q).Len() }
func (p Point) Mid(q Point) Point     { return Point{(p.X + q.X) / 2, (p.Y + q.Y) / 2} }
func (p Point) IsFinite() bool        { return !math.IsNaN(p.X+p.Y) && !math.IsInf(p.X+p.Y, 0) }

// Frame is the landmark set observed at one capture tick. When Present is
// false the points carry no meaning.
type Frame struct {
	Present   bool            `json:"present"`
	Points    [NumNames]Point `json:"points"`
	Timestamp time.Time       `json:"timestamp"`
}

// Absent returns a frame with no face in it.
func Absent(ts time.Time) Frame {
	return Frame{Timestamp: ts}
}

// Tracking returns the movement reference point.
func (f Frame) Tracking() Point {
	return f.Points[Tracking]
}

// Side selects one eye or brow.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

// minSpan is the smallest reference length a ratio may be divided by.
const minSpan = 1e-6

// EyeOpenness returns the lid gap divided by the eye width for one eye.
// Typical open eyes sit around 0.25 to 0.35; closed eyes fall below 0.1.
func EyeOpenness(f Frame, side Side) (float64, bool) {
	top, bottom, outer, inner := LeftEyeTop, LeftEyeBottom, LeftEyeOuter, LeftEyeInner
	if side == Right {
		top, bottom, outer, inner = RightEyeTop, RightEyeBottom, RightEyeOuter, RightEyeInner
	}
	return ratio(f, top, bottom, outer, inner)
}

// MouthOpenness returns the lip gap divided by the mouth width.
func MouthOpenness(f Frame) (float64, bool) {
	return ratio(f, MouthTop, MouthBottom, MouthLeft, MouthRight)
}

// BrowRaise returns the mean brow-to-upper-lid distance divided by the
// distance between the eye centers.
func BrowRaise(f Frame) (float64, bool) {
	if !f.Present {
		return 0, false
	}
	p := f.Points
	leftCenter := p[LeftEyeOuter].Mid(p[LeftEyeInner])
	rightCenter := p[RightEyeOuter].Mid(p[RightEyeInner])
	interocular := leftCenter.Dist(rightCenter)
	if interocular < minSpan || math.IsNaN(interocular) {
		return 0, false
	}
	lift := (p[LeftBrow].Dist(p[LeftEyeTop]) + p[RightBrow].Dist(p[RightEyeTop])) / 2
	return lift / interocular, true
}

func ratio(f Frame, a, b, c, d Name) (float64, bool) {
	if !f.Present {
		return 0, false
	}
	span := f.Points[c].Dist(f.Points[d])
	if span < minSpan || math.IsNaN(span) {
		return 0, false
	}
	return f.Points[a].Dist(f.Points[b]) / span, true
}
