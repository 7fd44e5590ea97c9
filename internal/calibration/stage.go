package calibration

import "fmt"

// Stage is one step of the guided calibration sequence.
type Stage int

const (
	StagePrep Stage = iota
	StageCenter
	StageLeft
	StageRight
	StageUp
	StageDown
	StageEyesClosed
	StageMouthOpen
	StageProcess
	StageDone
)

var stageNames = map[Stage]string{
	StagePrep:       "prep",
	StageCenter:     "center",
	StageLeft:       "left",
	StageRight:      "right",
	StageUp:         "up",
	StageDown:       "down",
	StageEyesClosed: "eyes_closed",
	StageMouthOpen:  "mouth_open",
	StageProcess:    "process",
	StageDone:       "done",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the stage by name.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a stage name.
func (s *Stage) UnmarshalText(b []byte) error {
	for stage, name := range stageNames {
		if name == string(b) {
			*s = stage
			return nil
		}
	}
	return fmt.Errorf("unknown calibration stage %q", b)
}

// Instruction is the prompt shown to the user while the stage is active.
func (s Stage) Instruction() string {
	switch s {
	case StagePrep:
		return "Get comfortable and face the camera"
	case StageCenter:
		return "Look straight at the center of the screen"
	case StageLeft:
		return "Turn your head to the left edge"
	case StageRight:
		return "Turn your head to the right edge"
	case StageUp:
		return "Tilt your head up to the top edge"
	case StageDown:
		return "Tilt your head down to the bottom edge"
	case StageEyesClosed:
		return "Close both eyes"
	case StageMouthOpen:
		return "Open your mouth wide"
	case StageProcess:
		return "Processing"
	case StageDone:
		return "Calibration complete"
	}
	return ""
}

// collecting reports whether the stage accumulates samples.
func (s Stage) collecting() bool {
	return s >= StageCenter && s <= StageMouthOpen
}

// directional reports whether the stage samples head excursion.
func (s Stage) directional() bool {
	return s >= StageLeft && s <= StageDown
}
