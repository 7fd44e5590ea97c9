// Package calibration runs the guided calibration sequence that establishes
// the user's neutral head position, comfortable movement range and, when
// enabled, personal eye and mouth thresholds.
package calibration

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ayusman/mukha/internal/config"
	"github.com/ayusman/mukha/internal/landmark"
	"github.com/ayusman/mukha/internal/logging"
)

// ErrInsufficientData is returned when a calibration attempt cannot produce
// a usable center and range.
var ErrInsufficientData = errors.New("insufficient calibration data")

const (
	minBlinkThreshold = 0.05
	maxBlinkThreshold = 0.40
	minMouthThreshold = 0.10
	maxMouthThreshold = 1.20

	// minRangeSpan is the smallest usable movement range per axis, in pixels.
	minRangeSpan = 1.0
)

// Range is an axis-aligned box in landmark (camera pixel) space.
type Range struct {
	MinX float64 `json:"min_x"`
	MaxX float64 `json:"max_x"`
	MinY float64 `json:"min_y"`
	MaxY float64 `json:"max_y"`
}

func (r Range) Width() float64  { return r.MaxX - r.MinX }
func (r Range) Height() float64 { return r.MaxY - r.MinY }

// Mid returns the center of the box.
func (r Range) Mid() landmark.Point {
	return landmark.Point{X: (r.MinX + r.MaxX) / 2, Y: (r.MinY + r.MaxY) / 2}
}

// Translate shifts the box by d.
func (r Range) Translate(d landmark.Point) Range {
	return Range{MinX: r.MinX + d.X, MaxX: r.MaxX + d.X, MinY: r.MinY + d.Y, MaxY: r.MaxY + d.Y}
}

// Result is the outcome of a completed calibration. A zero threshold means
// the stage was not collected and the configured constant applies.
type Result struct {
	Center         landmark.Point `json:"center"`
	Range          Range          `json:"range"`
	BlinkThreshold float64        `json:"blink_threshold,omitempty"`
	MouthThreshold float64        `json:"mouth_threshold,omitempty"`
	CompletedAt    time.Time      `json:"completed_at"`
}

// Status describes the controller after an Update.
type Status struct {
	Stage       Stage  `json:"stage"`
	Instruction string `json:"instruction"`
	Collected   int    `json:"collected"`
	Target      int    `json:"target"`
	Done        bool   `json:"done"`
	// Err is set after a failed attempt until the next one succeeds.
	Err error `json:"-"`
}

// Progress returns the completed fraction of the current stage.
func (s Status) Progress() float64 {
	if s.Done {
		return 1
	}
	if s.Target == 0 {
		return 0
	}
	return float64(s.Collected) / float64(s.Target)
}

// Controller is the calibration state machine. It is not safe for
// concurrent use; the engine drives it from the control loop.
type Controller struct {
	cfg *config.Config
	log logrus.FieldLogger

	stage     Stage
	prepStart time.Time
	settled   int

	points map[Stage][]landmark.Point
	eyes   []float64
	mouth  []float64

	live    landmark.Frame
	hasLive bool

	result  Result
	lastErr error
}

// New creates a controller in the PREP stage. cfg is read on every Update.
func New(cfg *config.Config, log logrus.FieldLogger) *Controller {
	c := &Controller{
		cfg: cfg,
		log: logging.Component(log, "calibration"),
	}
	c.clear()
	return c
}

func (c *Controller) clear() {
	c.stage = StagePrep
	c.prepStart = time.Time{}
	c.settled = 0
	c.points = make(map[Stage][]landmark.Point, 5)
	c.eyes = nil
	c.mouth = nil
	c.hasLive = false
	c.live = landmark.Frame{}
	c.result = Result{}
}

// Stage returns the current stage.
func (c *Controller) Stage() Stage { return c.stage }

// Done reports whether a calibration result is in effect.
func (c *Controller) Done() bool { return c.stage == StageDone }

// Result returns the calibration result once DONE.
func (c *Controller) Result() (Result, bool) {
	if c.stage != StageDone {
		return Result{}, false
	}
	return c.result, true
}

// Status returns the current status without advancing the machine.
func (c *Controller) Status() Status {
	st := Status{
		Stage:       c.stage,
		Instruction: c.stage.Instruction(),
		Done:        c.stage == StageDone,
		Err:         c.lastErr,
	}
	if c.stage.collecting() {
		st.Target = c.cfg.Calibration.StageFrameCount
		st.Collected = c.collected(c.stage)
	}
	return st
}

// Update feeds one frame to the machine and returns the resulting status.
// Frames without a face neither count toward nor reset stage progress.
func (c *Controller) Update(frame landmark.Frame, now time.Time) Status {
	switch {
	case c.stage == StageDone:
		return c.Status()

	case c.stage == StagePrep:
		if c.prepStart.IsZero() {
			c.prepStart = now
		}
		if now.Sub(c.prepStart) >= c.cfg.Calibration.PrepDelay.Std() {
			c.enter(StageCenter)
		}
		return c.Status()
	}

	if !frame.Present {
		return c.Status()
	}
	c.live = frame
	c.hasLive = true

	if c.settled < c.cfg.Calibration.SettleFrames {
		c.settled++
		return c.Status()
	}

	c.record(frame)
	if c.collected(c.stage) >= c.cfg.Calibration.StageFrameCount {
		c.advance(now)
	}
	return c.Status()
}

// Skip ends the current stage early. Skipping PREP starts collection
// immediately; skipping a collecting stage keeps what was gathered so far.
func (c *Controller) Skip(now time.Time) Status {
	switch {
	case c.stage == StagePrep:
		c.enter(StageCenter)
	case c.stage.collecting():
		c.log.WithFields(logrus.Fields{
			"stage":     c.stage.String(),
			"collected": c.collected(c.stage),
		}).Info("Calibration stage skipped")
		c.advance(now)
	}
	return c.Status()
}

// Reset discards all samples and any result and returns to PREP.
func (c *Controller) Reset() {
	c.clear()
	c.lastErr = nil
	c.log.WithField("stage", c.stage.String()).Info("Calibration reset")
}

// Recenter moves the calibrated center to p and shifts the range with it.
// It has no effect before calibration completes.
func (c *Controller) Recenter(p landmark.Point) {
	if c.stage != StageDone || !p.IsFinite() {
		return
	}
	shift := p.Sub(c.result.Center)
	c.result.Center = p
	c.result.Range = c.result.Range.Translate(shift)
	c.log.WithFields(logrus.Fields{
		"x": p.X,
		"y": p.Y,
	}).Debug("Calibration recentered")
}

// Restore loads a previously saved result and jumps straight to DONE.
func (c *Controller) Restore(r Result) error {
	if r.Range.Width() < minRangeSpan || r.Range.Height() < minRangeSpan || !r.Center.IsFinite() {
		return fmt.Errorf("restore calibration: %w", ErrInsufficientData)
	}
	c.clear()
	c.result = r
	c.stage = StageDone
	c.lastErr = nil
	c.log.WithField("stage", c.stage.String()).Info("Calibration restored from profile")
	return nil
}

func (c *Controller) enter(s Stage) {
	c.stage = s
	c.settled = 0
	c.log.WithField("stage", s.String()).Info(s.Instruction())
}

func (c *Controller) advance(now time.Time) {
	next := c.stage + 1
	if next == StageEyesClosed && !c.cfg.Calibration.CollectGestureThresholds {
		next = StageProcess
	}
	if next != StageProcess {
		c.enter(next)
		return
	}

	c.stage = StageProcess
	result, err := c.process(now)
	if err != nil {
		c.log.WithError(err).Warn("Calibration failed, restarting")
		c.clear()
		c.lastErr = err
		return
	}
	c.result = result
	c.lastErr = nil
	c.stage = StageDone
	c.log.WithFields(logrus.Fields{
		"stage":    c.stage.String(),
		"center_x": result.Center.X,
		"center_y": result.Center.Y,
		"width":    result.Range.Width(),
		"height":   result.Range.Height(),
		"blink":    result.BlinkThreshold,
		"mouth":    result.MouthThreshold,
	}).Info("Calibration complete")
}

func (c *Controller) collected(s Stage) int {
	switch s {
	case StageEyesClosed:
		return len(c.eyes)
	case StageMouthOpen:
		return len(c.mouth)
	}
	return len(c.points[s])
}

func (c *Controller) record(frame landmark.Frame) {
	switch c.stage {
	case StageEyesClosed:
		l, lok := landmark.EyeOpenness(frame, landmark.Left)
		r, rok := landmark.EyeOpenness(frame, landmark.Right)
		if lok && rok {
			c.eyes = append(c.eyes, (l+r)/2)
		}
	case StageMouthOpen:
		if m, ok := landmark.MouthOpenness(frame); ok {
			c.mouth = append(c.mouth, m)
		}
	default:
		if p := frame.Tracking(); p.IsFinite() {
			c.points[c.stage] = append(c.points[c.stage], p)
		}
	}
}

func (c *Controller) process(now time.Time) (Result, error) {
	cal := c.cfg.Calibration
	var res Result

	centerSamples := c.points[StageCenter]
	if len(centerSamples) == 0 {
		if !c.hasLive {
			return Result{}, fmt.Errorf("no center samples: %w", ErrInsufficientData)
		}
		c.log.WithField("stage", StageCenter.String()).Warn("Empty stage buffer, using live sample")
		centerSamples = []landmark.Point{c.live.Tracking()}
	}
	res.Center = MedianPoint(centerSamples)

	var xs, ys []float64
	empty := 0
	for s := StageCenter; s.collecting(); s++ {
		if !s.directional() {
			continue
		}
		samples := c.points[s]
		if len(samples) == 0 {
			empty++
			continue
		}
		for _, p := range samples {
			xs = append(xs, p.X)
			ys = append(ys, p.Y)
		}
	}
	if empty == 4 {
		return Result{}, fmt.Errorf("no directional samples: %w", ErrInsufficientData)
	}
	if empty > 0 && c.hasLive {
		c.log.WithField("empty_stages", empty).Warn("Empty directional buffer, using live sample")
		live := c.live.Tracking()
		xs = append(xs, live.X)
		ys = append(ys, live.Y)
	}

	box := Range{MinX: floats.Min(xs), MaxX: floats.Max(xs), MinY: floats.Min(ys), MaxY: floats.Max(ys)}
	if box.Width() < minRangeSpan || box.Height() < minRangeSpan {
		return Result{}, fmt.Errorf("movement range %.1fx%.1f px: %w", box.Width(), box.Height(), ErrInsufficientData)
	}
	res.Range = ExpandAndCenter(box, cal.MarginFactor, res.Center)

	if cal.CollectGestureThresholds {
		if len(c.eyes) > 0 {
			res.BlinkThreshold = clamp(stat.Mean(c.eyes, nil)+cal.BlinkMargin, minBlinkThreshold, maxBlinkThreshold)
		} else {
			c.log.WithField("stage", StageEyesClosed.String()).Warn("Empty stage buffer, keeping configured blink threshold")
		}
		if len(c.mouth) > 0 {
			res.MouthThreshold = clamp(stat.Mean(c.mouth, nil)*cal.MouthFactor, minMouthThreshold, maxMouthThreshold)
		} else {
			c.log.WithField("stage", StageMouthOpen.String()).Warn("Empty stage buffer, keeping configured mouth threshold")
		}
	}

	res.CompletedAt = now
	return res, nil
}

// ExpandAndCenter grows box by margin times its span on every side, then
// translates it so its midpoint sits on center.
func ExpandAndCenter(box Range, margin float64, center landmark.Point) Range {
	padX := box.Width() * margin
	padY := box.Height() * margin
	grown := Range{
		MinX: box.MinX - padX,
		MaxX: box.MaxX + padX,
		MinY: box.MinY - padY,
		MaxY: box.MaxY + padY,
	}
	return grown.Translate(center.Sub(grown.Mid()))
}

// MedianPoint returns the per-axis median of points. For an even count the
// two middle values are averaged.
func MedianPoint(points []landmark.Point) landmark.Point {
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.X
		ys[i] = p.Y
	}
	return landmark.Point{X: Median(xs), Y: Median(ys)}
}

// Median returns the exact median of values without modifying them.
// It returns NaN for an empty slice.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
