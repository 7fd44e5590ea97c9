// Package gesture recognizes discrete facial gestures from per-frame metrics.
package gesture

import "time"

// EventName identifies a confirmed gesture.
type EventName string

const (
	LeftWink       EventName = "left_wink"
	RightWink      EventName = "right_wink"
	BothEyesClosed EventName = "both_eyes_closed"
	MouthOpen      EventName = "mouth_open"
	BrowRaise      EventName = "brow_raise"
	Dwell          EventName = "dwell"
	HeadNod        EventName = "head_nod"
	HeadShake      EventName = "head_shake"
)

// EventNames lists every event the engine can emit.
var EventNames = []EventName{
	LeftWink, RightWink, BothEyesClosed, MouthOpen, BrowRaise, Dwell, HeadNod, HeadShake,
}

// Valid reports whether e is a known event name.
func (e EventName) Valid() bool {
	for _, n := range EventNames {
		if n == e {
			return true
		}
	}
	return false
}

// Event is one confirmed gesture.
type Event struct {
	Name EventName `json:"name"`
	At   time.Time `json:"at"`
	// Value is the smoothed metric (or spread, or match distance) at confirmation.
	Value float64 `json:"value"`
	// Held is how long the gesture was held before confirming.
	Held time.Duration `json:"held"`
}
