package pointer

import (
	"math"

	"github.com/ayusman/mukha/internal/calibration"
	"github.com/ayusman/mukha/internal/config"
	"github.com/ayusman/mukha/internal/landmark"
)

// CommandKind classifies a mapper output.
type CommandKind int

const (
	None CommandKind = iota
	Move
	Scroll
)

func (k CommandKind) String() string {
	switch k {
	case Move:
		return "move"
	case Scroll:
		return "scroll"
	}
	return "none"
}

// Command is one frame's pointer output. For Move, X and Y are the new
// absolute cursor position and DX, DY the movement applied. For Scroll, DY
// is the scroll amount (positive scrolls down) and the cursor stays put.
type Command struct {
	Kind CommandKind `json:"kind"`
	X    int         `json:"x"`
	Y    int         `json:"y"`
	DX   float64     `json:"dx"`
	DY   float64     `json:"dy"`
}

// Mapper converts tracking points into cursor movement in either relative
// (joystick) or absolute (direct) mode. Parameters are read from the
// configuration on every call.
type Mapper struct {
	cfg    *config.Config
	smooth *Smoother
	mode   config.PointerMode

	filtered    landmark.Point
	hasFiltered bool
}

// NewMapper creates a mapper bound to cfg.
func NewMapper(cfg *config.Config) *Mapper {
	return &Mapper{
		cfg:    cfg,
		smooth: NewSmoother(cfg.Pointer.SmoothingWindow),
		mode:   cfg.Pointer.Mode,
	}
}

// Reset clears the smoothing ring and the absolute-mode filter.
func (m *Mapper) Reset() {
	m.smooth.Reset()
	m.hasFiltered = false
}

// Outside reports whether point lies outside the deadzone around center.
func (m *Mapper) Outside(point, center landmark.Point) bool {
	return point.Sub(center).Len() >= m.cfg.Pointer.DeadzoneRadius
}

// Map computes the command for one frame and updates cur for Move output.
// When scroll is true the vertical joystick output becomes a scroll amount
// in either mode and the cursor is left untouched.
func (m *Mapper) Map(point landmark.Point, cal calibration.Result, cur *Cursor, scroll bool) Command {
	pc := m.cfg.Pointer
	if pc.Mode != m.mode {
		m.mode = pc.Mode
		m.Reset()
	}
	m.smooth.Resize(pc.SmoothingWindow)

	if scroll {
		m.hasFiltered = false
		delta, ok := m.joystick(point, cal.Center)
		if !ok || delta.Y == 0 {
			return Command{Kind: None}
		}
		return Command{Kind: Scroll, DY: delta.Y * pc.ScrollSensitivity}
	}

	if pc.Mode == config.ModeAbsolute {
		return m.absolute(point, cal.Range, cur)
	}

	delta, ok := m.joystick(point, cal.Center)
	if !ok {
		return Command{Kind: None}
	}
	return moveCursor(cur, delta)
}

// moveCursor applies delta to cur. Sub-pixel movement still accumulates in
// the cursor but only a change of the rounded position is reported as Move.
func moveCursor(cur *Cursor, delta landmark.Point) Command {
	px, py := cur.Pixel()
	applied := cur.MoveBy(delta.X, delta.Y)
	x, y := cur.Pixel()
	if x == px && y == py {
		return Command{Kind: None}
	}
	return Command{Kind: Move, X: x, Y: y, DX: applied.X, DY: applied.Y}
}

// joystick returns the smoothed relative-mode delta. Inside the deadzone it
// returns ok=false and empties the ring so movement stops at once.
func (m *Mapper) joystick(point, center landmark.Point) (landmark.Point, bool) {
	pc := m.cfg.Pointer
	effective, accel, unit, ok := Shape(point.Sub(center), pc.DeadzoneRadius, pc.MaxAccelerationDistance, pc.AccelerationGain)
	if !ok {
		m.smooth.Reset()
		return landmark.Point{}, false
	}
	speed := pc.BaseSensitivity * accel * effective
	delta := landmark.Point{X: unit.X * speed * pc.SensitivityX, Y: unit.Y * speed * pc.SensitivityY}
	return m.smooth.Push(delta), true
}

func (m *Mapper) absolute(point landmark.Point, rng calibration.Range, cur *Cursor) Command {
	pc := m.cfg.Pointer
	target, ok := Interpolate(point, rng, cur.W, cur.H)
	if !ok {
		return Command{Kind: None}
	}

	if !m.hasFiltered {
		m.filtered = cur.Pos()
		m.hasFiltered = true
	}
	alpha := pc.FilterStrength
	m.filtered = m.filtered.Scale(1 - alpha).Add(target.Scale(alpha))

	gap := m.filtered.Sub(cur.Pos())
	effective, accel, unit, ok := Shape(gap, pc.DeadzoneRadius, pc.MaxAccelerationDistance, pc.AccelerationGain)
	if !ok {
		return Command{Kind: None}
	}
	speed := pc.BaseSensitivity * accel * effective
	// never step past the filtered position
	step := landmark.Point{
		X: capMagnitude(unit.X*speed*pc.SensitivityX, gap.X),
		Y: capMagnitude(unit.Y*speed*pc.SensitivityY, gap.Y),
	}
	if step.Len() < minAbsoluteStep {
		return Command{Kind: None}
	}
	return moveCursor(cur, step)
}

// minAbsoluteStep stops the geometric creep toward the deadzone edge once
// the remaining steps can no longer move the cursor visibly.
const minAbsoluteStep = 0.5

func capMagnitude(v, limit float64) float64 {
	limit = math.Abs(limit)
	return math.Max(-limit, math.Min(limit, v))
}

// Interpolate maps point from the calibrated range onto a w by h screen,
// clamped to the screen. ok is false for a degenerate range.
func Interpolate(point landmark.Point, rng calibration.Range, w, h int) (landmark.Point, bool) {
	if rng.Width() <= 0 || rng.Height() <= 0 || !point.IsFinite() {
		return landmark.Point{}, false
	}
	maxX := float64(w - 1)
	maxY := float64(h - 1)
	x := (point.X - rng.MinX) / rng.Width() * maxX
	y := (point.Y - rng.MinY) / rng.Height() * maxY
	return landmark.Point{
		X: math.Max(0, math.Min(maxX, x)),
		Y: math.Max(0, math.Min(maxY, y)),
	}, true
}
