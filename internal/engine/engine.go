// Package engine composes calibration, pointer mapping, gesture recognition,
// action dispatch and drift monitoring behind a single Step call. Step does
// no I/O: the driver feeds it frames and carries out what it returns.
package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/mukha/internal/action"
	"github.com/ayusman/mukha/internal/calibration"
	"github.com/ayusman/mukha/internal/config"
	"github.com/ayusman/mukha/internal/gesture"
	"github.com/ayusman/mukha/internal/landmark"
	"github.com/ayusman/mukha/internal/logging"
	"github.com/ayusman/mukha/internal/pointer"
	"github.com/ayusman/mukha/internal/recalibration"
)

// openSentinel is fed to a wink recognizer while the other eye is closed, so
// closing both eyes never registers as a wink.
const openSentinel = 1.0

// Engine owns all per-session state. It is not safe for concurrent use;
// the driver calls it from one goroutine.
type Engine struct {
	cfg *config.Config
	log logrus.FieldLogger

	cal        *calibration.Controller
	mapper     *pointer.Mapper
	cursor     pointer.Cursor
	dispatcher *action.Dispatcher
	monitor    *recalibration.Monitor

	leftWink  *gesture.Recognizer
	rightWink *gesture.Recognizer
	bothEyes  *gesture.Recognizer
	mouth     *gesture.Recognizer
	brow      *gesture.Recognizer
	dwell     *gesture.DwellRecognizer
	path      *gesture.PathMatcher

	paused   bool
	scroll   bool
	frozen   pointer.Cursor
	lastFace time.Time
	faceLost bool
	present  bool
	metrics  Metrics
}

// New creates an engine for a w by h screen. cfg is shared and re-read on
// every Step; change it only between Steps.
func New(cfg *config.Config, w, h int, log logrus.FieldLogger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	bindings, err := action.FromConfig(cfg.Bindings)
	if err != nil {
		return nil, fmt.Errorf("engine bindings: %w", err)
	}

	log = logging.Component(log, "engine")
	window := cfg.Gestures.MetricWindow
	return &Engine{
		cfg:        cfg,
		log:        log,
		cal:        calibration.New(cfg, log),
		mapper:     pointer.NewMapper(cfg),
		cursor:     pointer.NewCursor(w, h),
		dispatcher: action.NewDispatcher(cfg, bindings, log),
		monitor:    recalibration.New(),
		leftWink:   gesture.NewRecognizer(gesture.LeftWink, gesture.Below, window),
		rightWink:  gesture.NewRecognizer(gesture.RightWink, gesture.Below, window),
		bothEyes:   gesture.NewRecognizer(gesture.BothEyesClosed, gesture.Below, window),
		mouth:      gesture.NewRecognizer(gesture.MouthOpen, gesture.Above, window),
		brow:       gesture.NewRecognizer(gesture.BrowRaise, gesture.Above, window),
		dwell:      gesture.NewDwellRecognizer(),
		path:       gesture.NewPathMatcher(),
	}, nil
}

// Config returns the shared configuration.
func (e *Engine) Config() *config.Config { return e.cfg }

// UpdateConfig validates next and copies it into the shared configuration.
func (e *Engine) UpdateConfig(next *config.Config) error {
	if err := next.Validate(); err != nil {
		return err
	}
	bindings, err := action.FromConfig(next.Bindings)
	if err != nil {
		return err
	}
	*e.cfg = *next.Clone()
	e.dispatcher.SetBindings(bindings)
	e.log.Info("Configuration updated")
	return nil
}

// Bindings returns a copy of the active binding table.
func (e *Engine) Bindings() action.Bindings { return e.dispatcher.Bindings() }

// SetBindings replaces the binding table and mirrors it into the config.
func (e *Engine) SetBindings(b action.Bindings) {
	e.dispatcher.SetBindings(b)
	e.cfg.Bindings = b.ToConfig()
}

// SetScreen updates the screen bounds.
func (e *Engine) SetScreen(w, h int) {
	e.cursor.Resize(w, h)
}

// Restore loads a saved calibration and skips the guided sequence.
func (e *Engine) Restore(r calibration.Result) error {
	if err := e.cal.Restore(r); err != nil {
		return err
	}
	e.afterCalibration()
	return nil
}

// Recalibrate restarts the guided calibration sequence.
func (e *Engine) Recalibrate() {
	e.cal.Reset()
	e.scroll = false
	e.clearTracking()
}

// SkipStage ends the current calibration stage early.
func (e *Engine) SkipStage(now time.Time) calibration.Status {
	st := e.cal.Skip(now)
	if st.Done {
		e.afterCalibration()
	}
	return st
}

// SetPaused pauses or resumes pointer control.
func (e *Engine) SetPaused(paused bool) {
	if e.paused == paused {
		return
	}
	e.paused = paused
	e.mapper.Reset()
	e.dwell.Reset()
	e.monitor.Reset()
	e.log.WithField("paused", paused).Info("Pause toggled")
}

// SetScroll enters or leaves scroll mode, returning the command that
// restores the cursor when leaving.
func (e *Engine) SetScroll(scroll bool) *pointer.Command {
	if e.scroll == scroll {
		return nil
	}
	e.scroll = scroll
	e.mapper.Reset()
	e.dwell.Reset()
	e.monitor.Reset()
	e.log.WithField("scroll", scroll).Info("Scroll mode toggled")

	if scroll {
		e.frozen = e.cursor
		return nil
	}
	e.cursor.MoveTo(e.frozen.X, e.frozen.Y)
	return e.moveCommand()
}

// Reset discards calibration and all tracking state.
func (e *Engine) Reset() {
	e.Recalibrate()
	e.paused = false
	e.dispatcher.Reset()
	e.cursor.Center()
	e.lastFace = time.Time{}
	e.faceLost = false
	e.present = false
	e.metrics = Metrics{}
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() State {
	st := State{
		Stage:       e.cal.Stage(),
		Calibrated:  e.cal.Done(),
		Mode:        e.cfg.Pointer.Mode,
		Paused:      e.paused,
		Scroll:      e.scroll,
		FacePresent: e.present,
		FaceLost:    e.faceLost,
		LastFaceAt:  e.lastFace,
		Cursor:      e.cursor,
		Metrics:     e.metrics,
	}
	if res, ok := e.cal.Result(); ok {
		st.Calibration = &res
	}
	return st
}

// Step advances the engine by one frame. Frames must arrive in capture order.
func (e *Engine) Step(frame landmark.Frame, now time.Time) Output {
	var out Output
	e.present = frame.Present

	if !e.cal.Done() {
		out.Calibration = e.cal.Update(frame, now)
		if frame.Present {
			e.lastFace = now
		}
		if out.Calibration.Done {
			e.afterCalibration()
			out.Move = e.moveCommand()
		}
		out.State = e.Snapshot()
		return out
	}
	out.Calibration = e.cal.Status()

	if !frame.Present {
		e.handleMissing(now)
		out.State = e.Snapshot()
		return out
	}
	e.lastFace = now
	e.faceLost = false

	res, _ := e.cal.Result()
	point := frame.Tracking()

	out.Gestures = e.recognize(frame, res, now)

	if !e.paused {
		cmd := e.mapper.Map(point, res, &e.cursor, e.scroll)
		if cmd.Kind != pointer.None {
			out.Move = &cmd
		}
		e.observeStillness(point, cmd, now, &out)

		if e.observeDrift(point, res, now) {
			out.Recalibrated = true
			out.Move = e.moveCommand()
		}
	}

	if e.cfg.HeadGestures.Enabled {
		hg := e.cfg.HeadGestures
		if ev, ok := e.path.Update(point, now, gesture.PathParams{Window: hg.WindowFrames, MinExtent: hg.MinExtent, Tolerance: hg.Tolerance}); ok {
			out.Gestures = append(out.Gestures, ev)
		}
	}

	out.Actions = e.dispatcher.Dispatch(out.Gestures, now, e.paused)
	for _, a := range out.Actions {
		if move := e.apply(a); move != nil {
			out.Move = move
		}
	}

	out.State = e.Snapshot()
	return out
}

// apply carries out mode actions. Click and plugin actions are left to the
// driver.
func (e *Engine) apply(a action.Event) *pointer.Command {
	switch a.Kind {
	case action.TogglePause:
		e.SetPaused(!e.paused)
	case action.ToggleScroll:
		return e.SetScroll(!e.scroll)
	case action.Recalibrate:
		e.Recalibrate()
	}
	return nil
}

func (e *Engine) recognize(frame landmark.Frame, res calibration.Result, now time.Time) []gesture.Event {
	g := e.cfg.Gestures
	e.setWindows(g.MetricWindow)

	var events []gesture.Event
	emit := func(ev gesture.Event, ok bool) {
		if ok {
			events = append(events, ev)
		}
	}

	l, lok := landmark.EyeOpenness(frame, landmark.Left)
	r, rok := landmark.EyeOpenness(frame, landmark.Right)
	if lok && rok {
		e.metrics.LeftEye, e.metrics.RightEye = l, r
		blink := e.blinkParams(res)

		if g.Winks {
			leftIn, rightIn := l, r
			if r < blink.Trigger {
				leftIn = openSentinel
			}
			if l < blink.Trigger {
				rightIn = openSentinel
			}
			emit(e.leftWink.Update(leftIn, now, blink))
			emit(e.rightWink.Update(rightIn, now, blink))
		}
		if g.BothEyes {
			both := blink
			both.MinDuration = g.BothEyesMinDuration.Std()
			emit(e.bothEyes.Update(math.Max(l, r), now, both))
		}
	}

	if m, ok := landmark.MouthOpenness(frame); ok {
		e.metrics.Mouth = m
		if g.Mouth {
			emit(e.mouth.Update(m, now, e.mouthParams(res)))
		}
	}

	if b, ok := landmark.BrowRaise(frame); ok {
		e.metrics.Brow = b
		if g.Brows {
			emit(e.brow.Update(b, now, gesture.Params{
				Trigger:     g.BrowRaiseThreshold,
				Release:     g.BrowRelease,
				MinDuration: g.BrowMinDuration.Std(),
				Cooldown:    g.RecognizerCooldown.Std(),
			}))
		}
	}
	return events
}

// blinkParams resolves the eye thresholds. A calibrated trigger keeps the
// configured hysteresis gap above it.
func (e *Engine) blinkParams(res calibration.Result) gesture.Params {
	g := e.cfg.Gestures
	p := gesture.Params{
		Trigger:     g.BlinkThreshold,
		Release:     g.BlinkRelease,
		MinDuration: g.BlinkMinDuration.Std(),
		Cooldown:    g.RecognizerCooldown.Std(),
	}
	if g.ThresholdSource == config.ThresholdsCalibrated && res.BlinkThreshold > 0 {
		p.Trigger = res.BlinkThreshold
		if g.BlinkRelease > 0 {
			p.Release = res.BlinkThreshold + (g.BlinkRelease - g.BlinkThreshold)
		}
	}
	return p
}

// mouthParams resolves the mouth thresholds the same way, with the release
// gap below the trigger.
func (e *Engine) mouthParams(res calibration.Result) gesture.Params {
	g := e.cfg.Gestures
	p := gesture.Params{
		Trigger:     g.MouthOpenThreshold,
		Release:     g.MouthRelease,
		MinDuration: g.MouthMinDuration.Std(),
		Cooldown:    g.RecognizerCooldown.Std(),
	}
	if g.ThresholdSource == config.ThresholdsCalibrated && res.MouthThreshold > 0 {
		p.Trigger = res.MouthThreshold
		if g.MouthRelease > 0 {
			p.Release = math.Max(0, res.MouthThreshold-(g.MouthOpenThreshold-g.MouthRelease))
		}
	}
	return p
}

func (e *Engine) observeStillness(point landmark.Point, cmd pointer.Command, now time.Time, out *Output) {
	d := e.cfg.Dwell
	if !d.Enabled || e.scroll {
		return
	}
	params := gesture.DwellParams{
		Duration:  d.DwellDuration.Std(),
		Threshold: d.StillnessPixelThreshold,
		Window:    d.WindowFrames,
		Cooldown:  d.Cooldown.Std(),
	}
	if cmd.Kind == pointer.Move {
		e.dwell.Break(point, params)
		e.metrics.DwellSpread = e.dwell.Spread()
		return
	}
	ev, ok := e.dwell.Update(point, now, params)
	e.metrics.DwellSpread = e.dwell.Spread()
	if ok {
		out.Gestures = append(out.Gestures, ev)
	}
}

// observeDrift feeds the recalibration monitor and recenters when it fires.
// Offset from center is how absolute mode addresses the screen, so only the
// edge timer applies there.
func (e *Engine) observeDrift(point landmark.Point, res calibration.Result, now time.Time) bool {
	rc := e.cfg.Recalibration
	if !rc.Enabled || e.scroll {
		e.monitor.Reset()
		return false
	}
	params := recalibration.Params{
		EdgeTimeout: rc.EdgeRecalibrationTimeout.Std(),
		EdgeMargin:  rc.EdgeMargin,
	}
	if e.cfg.Pointer.Mode == config.ModeRelative {
		params.DeadzoneTimeout = rc.DeadzoneTimeout.Std()
	}
	obs := recalibration.Observation{
		OutsideDeadzone: e.mapper.Outside(point, res.Center),
		Cursor:          e.cursor,
	}
	if !e.monitor.Observe(obs, now, params) {
		return false
	}

	e.cal.Recenter(point)
	e.cursor.Center()
	e.mapper.Reset()
	e.dwell.Reset()
	e.log.WithFields(logrus.Fields{
		"reason": string(e.monitor.LastReason()),
		"x":      point.X,
		"y":      point.Y,
	}).Info("Auto recalibration")
	return true
}

func (e *Engine) handleMissing(now time.Time) {
	timeout := e.cfg.Gestures.FaceLossTimeout.Std()
	for _, r := range e.recognizers() {
		r.Missing(now, timeout)
	}
	if e.faceLost || e.lastFace.IsZero() || now.Sub(e.lastFace) < timeout {
		return
	}
	e.faceLost = true
	e.mapper.Reset()
	e.dwell.Reset()
	e.path.Reset()
	e.monitor.Reset()
	e.log.WithField("since", e.lastFace).Debug("Face lost, tracking state cleared")
}

func (e *Engine) afterCalibration() {
	e.cursor.Center()
	e.clearTracking()
}

func (e *Engine) clearTracking() {
	for _, r := range e.recognizers() {
		r.Reset()
	}
	e.mapper.Reset()
	e.dwell.Reset()
	e.path.Reset()
	e.monitor.Reset()
}

func (e *Engine) recognizers() []*gesture.Recognizer {
	return []*gesture.Recognizer{e.leftWink, e.rightWink, e.bothEyes, e.mouth, e.brow}
}

func (e *Engine) setWindows(n int) {
	for _, r := range e.recognizers() {
		r.SetWindow(n)
	}
}

func (e *Engine) moveCommand() *pointer.Command {
	x, y := e.cursor.Pixel()
	return &pointer.Command{Kind: pointer.Move, X: x, Y: y}
}
