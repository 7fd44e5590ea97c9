package pointer

import (
	"math"

	"github.com/ayusman/mukha/internal/landmark"
)

// Cursor is the virtual pointer position. It is always kept inside
// [0,W-1]x[0,H-1].
type Cursor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W int     `json:"w"`
	H int     `json:"h"`
}

// NewCursor returns a cursor centered on a w by h screen.
func NewCursor(w, h int) Cursor {
	c := Cursor{W: w, H: h}
	c.Center()
	return c
}

// Center moves the cursor to the middle of the screen.
func (c *Cursor) Center() {
	c.X = float64(c.W-1) / 2
	c.Y = float64(c.H-1) / 2
	c.Clamp()
}

// Clamp pulls the position back inside the screen.
func (c *Cursor) Clamp() {
	maxX := math.Max(0, float64(c.W-1))
	maxY := math.Max(0, float64(c.H-1))
	if math.IsNaN(c.X) {
		c.X = maxX / 2
	}
	if math.IsNaN(c.Y) {
		c.Y = maxY / 2
	}
	c.X = math.Max(0, math.Min(maxX, c.X))
	c.Y = math.Max(0, math.Min(maxY, c.Y))
}

// MoveBy shifts the cursor and returns the movement actually applied.
func (c *Cursor) MoveBy(dx, dy float64) landmark.Point {
	before := c.Pos()
	c.X += dx
	c.Y += dy
	c.Clamp()
	return c.Pos().Sub(before)
}

// MoveTo places the cursor at (x, y), clamped.
func (c *Cursor) MoveTo(x, y float64) {
	c.X, c.Y = x, y
	c.Clamp()
}

// Resize changes the screen bounds and re-clamps.
func (c *Cursor) Resize(w, h int) {
	c.W, c.H = w, h
	c.Clamp()
}

// Pos returns the position as a point.
func (c Cursor) Pos() landmark.Point {
	return landmark.Point{X: c.X, Y: c.Y}
}

// Pixel returns the position rounded to whole pixels.
func (c Cursor) Pixel() (int, int) {
	return int(math.Round(c.X)), int(math.Round(c.Y))
}

// NearEdge reports whether the cursor is within margin pixels of any border.
func (c Cursor) NearEdge(margin float64) bool {
	return c.X <= margin || c.Y <= margin ||
		c.X >= float64(c.W-1)-margin || c.Y >= float64(c.H-1)-margin
}
