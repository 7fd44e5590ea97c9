package gesture

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/ayusman/mukha/internal/landmark"
)

// DwellParams configure the stillness recognizer for one update.
type DwellParams struct {
	Duration  time.Duration
	Threshold float64 // pixels
	Window    int     // trailing samples used for the spread
	Cooldown  time.Duration
}

// DwellRecognizer fires once when the tracked point holds still. It tracks
// the spread sqrt(varX+varY) of a trailing window of points; after firing it
// re-arms only once the spread exceeds the threshold again.
type DwellRecognizer struct {
	xs, ys []float64

	stillSince time.Time
	fired      bool
	lastFire   time.Time
	spread     float64
}

// NewDwellRecognizer creates an idle dwell recognizer.
func NewDwellRecognizer() *DwellRecognizer {
	return &DwellRecognizer{}
}

// Spread returns the last computed spread in pixels.
func (d *DwellRecognizer) Spread() float64 { return d.spread }

// Reset discards the window and re-arms.
func (d *DwellRecognizer) Reset() {
	d.xs = d.xs[:0]
	d.ys = d.ys[:0]
	d.stillSince = time.Time{}
	d.fired = false
	d.spread = 0
}

// Break ends the current hold after visible cursor movement. The point is
// still added to the window, so the recognizer re-arms only when the spread
// itself exceeds the threshold.
func (d *DwellRecognizer) Break(p landmark.Point, params DwellParams) {
	d.stillSince = time.Time{}
	d.observe(p, params)
}

// Update feeds one tracked point.
func (d *DwellRecognizer) Update(p landmark.Point, now time.Time, params DwellParams) (Event, bool) {
	if !d.observe(p, params) {
		return Event{}, false
	}
	if d.spread >= params.Threshold {
		d.stillSince = time.Time{}
		return Event{}, false
	}

	if d.stillSince.IsZero() {
		d.stillSince = now
	}
	if d.fired {
		return Event{}, false
	}
	held := now.Sub(d.stillSince)
	if held < params.Duration {
		return Event{}, false
	}
	if !d.lastFire.IsZero() && now.Sub(d.lastFire) < params.Cooldown {
		return Event{}, false
	}

	d.fired = true
	d.lastFire = now
	return Event{Name: Dwell, At: now, Value: d.spread, Held: held}, true
}

// observe appends p to the window and recomputes the spread. It reports
// false until the window is full. A spread at or over the threshold re-arms.
func (d *DwellRecognizer) observe(p landmark.Point, params DwellParams) bool {
	window := params.Window
	if window < 2 {
		window = 2
	}
	d.xs = appendBounded(d.xs, p.X, window)
	d.ys = appendBounded(d.ys, p.Y, window)
	if len(d.xs) < window {
		return false
	}

	_, varX := stat.PopMeanVariance(d.xs, nil)
	_, varY := stat.PopMeanVariance(d.ys, nil)
	d.spread = math.Sqrt(varX + varY)
	if d.spread >= params.Threshold {
		d.fired = false
	}
	return true
}

func appendBounded(s []float64, v float64, n int) []float64 {
	s = append(s, v)
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s
}
