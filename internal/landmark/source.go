package landmark

import (
	"time"

	"gocv.io/x/gocv"
)

// Source turns a captured video frame into a landmark Frame.
type Source interface {
	// Detect analyzes a video frame. A frame without a face is returned with
	// Present set to false and a nil error.
	Detect(frame *gocv.Mat) (Frame, error)

	// Close releases any resources held by the source.
	Close() error
}

// Config holds options for landmark detection.
type Config struct {
	// MinConfidence is the minimum face detection confidence (0.0-1.0).
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence (0.0-1.0).
	MinTrackingConf float64

	// IdleTimeout stops the model process after this long without frames.
	IdleTimeout time.Duration

	// ScriptPath overrides the face mesh service location.
	ScriptPath string
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
		IdleTimeout:     30 * time.Second,
	}
}
