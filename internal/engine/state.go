package engine

import (
	"time"

	"github.com/ayusman/mukha/internal/action"
	"github.com/ayusman/mukha/internal/calibration"
	"github.com/ayusman/mukha/internal/config"
	"github.com/ayusman/mukha/internal/gesture"
	"github.com/ayusman/mukha/internal/pointer"
)

// Metrics are the raw per-frame gesture metrics, for telemetry.
type Metrics struct {
	LeftEye     float64 `json:"left_eye"`
	RightEye    float64 `json:"right_eye"`
	Mouth       float64 `json:"mouth"`
	Brow        float64 `json:"brow"`
	DwellSpread float64 `json:"dwell_spread"`
}

// State is a snapshot of the engine.
type State struct {
	Stage       calibration.Stage   `json:"stage"`
	Calibrated  bool                `json:"calibrated"`
	Calibration *calibration.Result `json:"calibration,omitempty"`
	Mode        config.PointerMode  `json:"mode"`
	Paused      bool                `json:"paused"`
	Scroll      bool                `json:"scroll"`
	FacePresent bool                `json:"face_present"`
	FaceLost    bool                `json:"face_lost"`
	LastFaceAt  time.Time           `json:"last_face_at"`
	Cursor      pointer.Cursor      `json:"cursor"`
	Metrics     Metrics             `json:"metrics"`
}

// Output is everything one Step produced. Move is nil when the cursor
// should not be touched this frame.
type Output struct {
	Move         *pointer.Command   `json:"move,omitempty"`
	Gestures     []gesture.Event    `json:"gestures,omitempty"`
	Actions      []action.Event     `json:"actions,omitempty"`
	Calibration  calibration.Status `json:"calibration"`
	Recalibrated bool               `json:"recalibrated"`
	State        State              `json:"state"`
}
