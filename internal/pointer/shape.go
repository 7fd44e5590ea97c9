// Package pointer turns tracking-point positions into cursor movement.
package pointer

import (
	"math"

	"github.com/ayusman/mukha/internal/landmark"
)

// Shape applies the deadzone and quadratic acceleration curve to offset.
//
// ok is false when the offset lies inside the deadzone (including a zero
// offset); the other results are then zero. Otherwise effective is the
// distance beyond the deadzone, unit the direction of offset, and accel the
// multiplier 1 + gain*n^2 where n is effective normalized over the
// acceleration band and clamped to [0,1].
func Shape(offset landmark.Point, deadzone, maxAccel, gain float64) (effective, accel float64, unit landmark.Point, ok bool) {
	distance := offset.Len()
	if math.IsNaN(distance) || math.IsInf(distance, 0) || distance == 0 || distance < deadzone {
		return 0, 0, landmark.Point{}, false
	}

	effective = distance - deadzone
	normalized := 1.0
	if band := maxAccel - deadzone; band > 0 {
		normalized = math.Max(0, math.Min(1, effective/band))
	}
	accel = 1 + gain*normalized*normalized
	unit = offset.Scale(1 / distance)
	return effective, accel, unit, true
}
