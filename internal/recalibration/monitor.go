// Package recalibration watches for posture drift during long sessions.
package recalibration

import (
	"time"

	"github.com/ayusman/mukha/internal/pointer"
)

// Observation is what the monitor sees each frame.
type Observation struct {
	// OutsideDeadzone is true when the tracking point is outside the
	// deadzone around the calibrated center.
	OutsideDeadzone bool
	Cursor          pointer.Cursor
}

// Params configure the monitor for one observation.
type Params struct {
	DeadzoneTimeout time.Duration
	EdgeTimeout     time.Duration
	EdgeMargin      float64
}

// Reason says which timer fired.
type Reason string

const (
	ReasonDeadzone Reason = "outside_deadzone"
	ReasonEdge     Reason = "edge_dwell"
)

// Monitor tracks two continuous durations: time spent outside the deadzone
// and time the cursor has rested near a screen edge. When either exceeds its
// timeout the monitor asks for a recenter and both timers restart.
type Monitor struct {
	outsideSince time.Time
	edgeSince    time.Time
	last         Reason
}

// New creates an idle monitor.
func New() *Monitor {
	return &Monitor{}
}

// Reset clears both timers.
func (m *Monitor) Reset() {
	m.outsideSince = time.Time{}
	m.edgeSince = time.Time{}
}

// LastReason returns why the most recent recenter was requested.
func (m *Monitor) LastReason() Reason { return m.last }

// Observe records one frame and reports whether a recenter is due.
func (m *Monitor) Observe(obs Observation, now time.Time, p Params) bool {
	if obs.OutsideDeadzone {
		if m.outsideSince.IsZero() {
			m.outsideSince = now
		}
	} else {
		m.outsideSince = time.Time{}
	}

	if obs.Cursor.NearEdge(p.EdgeMargin) {
		if m.edgeSince.IsZero() {
			m.edgeSince = now
		}
	} else {
		m.edgeSince = time.Time{}
	}

	switch {
	case !m.outsideSince.IsZero() && p.DeadzoneTimeout > 0 && now.Sub(m.outsideSince) >= p.DeadzoneTimeout:
		m.last = ReasonDeadzone
	case !m.edgeSince.IsZero() && p.EdgeTimeout > 0 && now.Sub(m.edgeSince) >= p.EdgeTimeout:
		m.last = ReasonEdge
	default:
		return false
	}
	m.Reset()
	return true
}
