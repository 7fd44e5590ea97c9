package gesture

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Direction says which side of the trigger threshold arms a recognizer.
type Direction int

const (
	// Below arms when the metric falls under the trigger (eye closing).
	Below Direction = iota
	// Above arms when the metric rises over the trigger (mouth opening).
	Above
)

// Phase is the recognizer state.
type Phase int

const (
	Open Phase = iota
	Armed
	Confirmed
)

func (p Phase) String() string {
	switch p {
	case Armed:
		return "armed"
	case Confirmed:
		return "confirmed"
	}
	return "open"
}

// Params are the thresholds for one update. They are resolved by the caller
// each frame, from fixed configuration or from calibration, so a recognizer
// never cares where they came from. A zero Release means no hysteresis.
type Params struct {
	Trigger     float64
	Release     float64
	MinDuration time.Duration
	Cooldown    time.Duration
}

// Recognizer is an edge-triggered state machine over a smoothed scalar
// metric. It confirms at most once per armed episode.
type Recognizer struct {
	name      EventName
	direction Direction
	window    int

	history []float64
	scratch []float64

	phase       Phase
	armedAt     time.Time
	lastConfirm time.Time
	lastSeen    time.Time
	smoothed    float64
}

// NewRecognizer creates a recognizer that smooths over a rolling median of
// window samples (minimum 1).
func NewRecognizer(name EventName, direction Direction, window int) *Recognizer {
	r := &Recognizer{name: name, direction: direction}
	r.SetWindow(window)
	return r
}

// Name returns the event emitted on confirmation.
func (r *Recognizer) Name() EventName { return r.name }

// Phase returns the current phase.
func (r *Recognizer) Phase() Phase { return r.phase }

// Smoothed returns the last smoothed metric value.
func (r *Recognizer) Smoothed() float64 { return r.smoothed }

// SetWindow changes the smoothing window, discarding history on change.
func (r *Recognizer) SetWindow(window int) {
	if window < 1 {
		window = 1
	}
	if window == cap(r.history) {
		return
	}
	r.history = make([]float64, 0, window)
	r.scratch = make([]float64, 0, window)
}

// Reset returns the recognizer to OPEN with empty history. The cooldown
// clock survives so a reset cannot be used to fire twice in a row.
func (r *Recognizer) Reset() {
	r.history = r.history[:0]
	r.phase = Open
	r.armedAt = time.Time{}
	r.lastSeen = time.Time{}
	r.smoothed = 0
}

// Missing notes a frame without a usable metric. Once nothing has been seen
// for timeout the recognizer resets; it reports whether it did.
func (r *Recognizer) Missing(now time.Time, timeout time.Duration) bool {
	if r.lastSeen.IsZero() || now.Sub(r.lastSeen) < timeout {
		return false
	}
	r.Reset()
	return true
}

// Update feeds one metric sample and returns the event when this sample
// confirms the gesture.
func (r *Recognizer) Update(value float64, now time.Time, p Params) (Event, bool) {
	r.lastSeen = now
	r.smoothed = r.push(value)

	release := p.Release
	if release == 0 {
		release = p.Trigger
	}

	var crossed, released bool
	if r.direction == Below {
		crossed = r.smoothed < p.Trigger
		released = r.smoothed >= release
	} else {
		crossed = r.smoothed > p.Trigger
		released = r.smoothed <= release
	}

	switch r.phase {
	case Open:
		if !crossed {
			return Event{}, false
		}
		r.phase = Armed
		r.armedAt = now
	case Armed, Confirmed:
		if released {
			r.phase = Open
			r.armedAt = time.Time{}
			return Event{}, false
		}
	}

	if r.phase != Armed {
		return Event{}, false
	}
	held := now.Sub(r.armedAt)
	if held < p.MinDuration {
		return Event{}, false
	}
	if !r.lastConfirm.IsZero() && now.Sub(r.lastConfirm) < p.Cooldown {
		return Event{}, false
	}

	r.phase = Confirmed
	r.lastConfirm = now
	return Event{Name: r.name, At: now, Value: r.smoothed, Held: held}, true
}

// push appends value to the rolling window and returns the window median.
func (r *Recognizer) push(value float64) float64 {
	if len(r.history) == cap(r.history) {
		copy(r.history, r.history[1:])
		r.history = r.history[:len(r.history)-1]
	}
	r.history = append(r.history, value)
	if len(r.history) == 1 {
		return value
	}

	r.scratch = append(r.scratch[:0], r.history...)
	sort.Float64s(r.scratch)
	return stat.Quantile(0.5, stat.Empirical, r.scratch, nil)
}
