// Package config holds every tunable of the mukha engine and driver.
//
// The engine keeps a pointer to a Config and re-reads it on every frame, so
// edits made between frames (tray, HTTP API) take effect at the next frame
// boundary without restarting anything.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PointerMode selects how the tracking point drives the cursor.
type PointerMode string

const (
	// ModeRelative treats head offset from center as a joystick deflection.
	ModeRelative PointerMode = "relative"
	// ModeAbsolute maps the calibrated head range directly onto the screen.
	ModeAbsolute PointerMode = "absolute"
)

// ThresholdSource selects where gesture thresholds come from.
type ThresholdSource string

const (
	// ThresholdsCalibrated uses per-user thresholds derived during calibration,
	// falling back to the fixed values when calibration skipped those stages.
	ThresholdsCalibrated ThresholdSource = "calibrated"
	// ThresholdsFixed always uses the configured constants.
	ThresholdsFixed ThresholdSource = "fixed"
)

// Duration is a time.Duration that reads and writes as a Go duration string
// ("250ms", "5s") in JSON.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler. Bare numbers are read as milliseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var ms float64
		if err := json.Unmarshal(b, &ms); err != nil {
			return fmt.Errorf("duration must be a string like \"250ms\" or a number of milliseconds")
		}
		*d = Duration(time.Duration(ms * float64(time.Millisecond)))
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// PointerConfig tunes the pointer mapper.
type PointerConfig struct {
	Mode                    PointerMode `json:"mode" validate:"oneof=relative absolute"`
	DeadzoneRadius          float64     `json:"deadzone_radius" validate:"gt=0"`
	MaxAccelerationDistance float64     `json:"max_acceleration_distance" validate:"gtfield=DeadzoneRadius"`
	AccelerationGain        float64     `json:"acceleration_gain" validate:"gte=0,lte=20"`
	BaseSensitivity         float64     `json:"base_sensitivity" validate:"gt=0"`
	SensitivityX            float64     `json:"sensitivity_x" validate:"gt=0"`
	SensitivityY            float64     `json:"sensitivity_y" validate:"gt=0"`
	ScrollSensitivity       float64     `json:"scroll_sensitivity" validate:"gt=0"`
	SmoothingWindow         int         `json:"smoothing_window" validate:"min=1,max=32"`
	FilterStrength          float64     `json:"filter_strength" validate:"gt=0,lte=1"`
}

// GestureConfig tunes the facial gesture recognizers.
type GestureConfig struct {
	ThresholdSource     ThresholdSource `json:"threshold_source" validate:"oneof=calibrated fixed"`
	MetricWindow        int             `json:"metric_window" validate:"min=1,max=15"`
	Winks               bool            `json:"winks"`
	BothEyes            bool            `json:"both_eyes"`
	Mouth               bool            `json:"mouth"`
	Brows               bool            `json:"brows"`
	BlinkThreshold      float64         `json:"blink_threshold" validate:"gt=0,lt=1"`
	BlinkRelease        float64         `json:"blink_release" validate:"gte=0,lt=1"`
	BlinkMinDuration    Duration        `json:"blink_min_duration" validate:"gt=0"`
	BothEyesMinDuration Duration        `json:"both_eyes_min_duration" validate:"gt=0"`
	MouthOpenThreshold  float64         `json:"mouth_open_threshold" validate:"gt=0"`
	MouthRelease        float64         `json:"mouth_release" validate:"gte=0"`
	MouthMinDuration    Duration        `json:"mouth_min_duration" validate:"gt=0"`
	BrowRaiseThreshold  float64         `json:"brow_raise_threshold" validate:"gt=0"`
	BrowRelease         float64         `json:"brow_release" validate:"gte=0"`
	BrowMinDuration     Duration        `json:"brow_min_duration" validate:"gt=0"`
	RecognizerCooldown  Duration        `json:"recognizer_cooldown" validate:"gte=0"`
	FaceLossTimeout     Duration        `json:"face_loss_timeout" validate:"gt=0"`
}

// DwellConfig tunes the stillness (dwell click) recognizer.
type DwellConfig struct {
	Enabled                 bool     `json:"enabled"`
	DwellDuration           Duration `json:"dwell_duration" validate:"gt=0"`
	StillnessPixelThreshold float64  `json:"stillness_pixel_threshold" validate:"gt=0"`
	WindowFrames            int      `json:"window_frames" validate:"min=2,max=120"`
	Cooldown                Duration `json:"cooldown" validate:"gte=0"`
}

// HeadGestureConfig tunes nod/shake detection on the tracking path.
type HeadGestureConfig struct {
	Enabled      bool    `json:"enabled"`
	WindowFrames int     `json:"window_frames" validate:"min=8,max=240"`
	MinExtent    float64 `json:"min_extent" validate:"gt=0"`
	Tolerance    float64 `json:"tolerance" validate:"gt=0"`
}

// CalibrationConfig tunes the guided calibration sequence.
type CalibrationConfig struct {
	StageFrameCount          int      `json:"stage_frame_count" validate:"min=1,max=600"`
	SettleFrames             int      `json:"settle_frames" validate:"min=0,max=120"`
	MarginFactor             float64  `json:"margin_factor" validate:"gte=0,lte=0.5"`
	PrepDelay                Duration `json:"prep_delay" validate:"gte=0"`
	CollectGestureThresholds bool     `json:"collect_gesture_thresholds"`
	BlinkMargin              float64  `json:"blink_margin" validate:"gte=0,lte=0.2"`
	MouthFactor              float64  `json:"mouth_factor" validate:"gte=0.75,lte=0.85"`
}

// RecalibrationConfig tunes the auto-recalibration monitor.
type RecalibrationConfig struct {
	Enabled                  bool     `json:"enabled"`
	EdgeRecalibrationTimeout Duration `json:"edge_recalibration_timeout" validate:"gt=0"`
	DeadzoneTimeout          Duration `json:"deadzone_timeout" validate:"gt=0"`
	EdgeMargin               float64  `json:"edge_margin" validate:"gte=0"`
}

// ActionConfig tunes the dispatcher cooldowns and plugin execution.
type ActionConfig struct {
	ClickCooldown  Duration `json:"click_cooldown" validate:"gte=0"`
	ModeCooldown   Duration `json:"mode_cooldown" validate:"gte=0"`
	PluginCooldown Duration `json:"plugin_cooldown" validate:"gte=0"`
	PluginTimeout  Duration `json:"plugin_timeout" validate:"gt=0"`
}

// Binding maps one gesture event to one action. An event may appear in
// several bindings and several events may share an action.
type Binding struct {
	Event   string `json:"event" validate:"oneof=left_wink right_wink both_eyes_closed mouth_open brow_raise dwell head_nod head_shake"`
	Action  string `json:"action" validate:"oneof=left_click right_click double_click toggle_pause toggle_scroll recalibrate plugin"`
	Plugin  string `json:"plugin,omitempty" validate:"required_if=Action plugin"`
	Command string `json:"command,omitempty" validate:"required_if=Action plugin"`
}

// RuntimeConfig holds driver-level settings.
type RuntimeConfig struct {
	FPS            int    `json:"fps" validate:"min=5,max=120"`
	CameraID       int    `json:"camera_id" validate:"gte=0"`
	RestoreProfile bool   `json:"restore_profile"`
	DryRun         bool   `json:"dry_run"`
	PluginDir      string `json:"plugin_dir"`
	LogLevel       string `json:"log_level" validate:"omitempty,oneof=trace debug info warn warning error"`
}

// Config is the full configuration surface.
type Config struct {
	Pointer       PointerConfig       `json:"pointer"`
	Gestures      GestureConfig       `json:"gestures"`
	Dwell         DwellConfig         `json:"dwell"`
	HeadGestures  HeadGestureConfig   `json:"head_gestures"`
	Calibration   CalibrationConfig   `json:"calibration"`
	Recalibration RecalibrationConfig `json:"recalibration"`
	Actions       ActionConfig        `json:"actions"`
	Bindings      []Binding           `json:"bindings" validate:"dive"`
	Runtime       RuntimeConfig       `json:"runtime"`
}

// Default returns the recommended configuration.
func Default() *Config {
	return &Config{
		Pointer: PointerConfig{
			Mode:                    ModeRelative,
			DeadzoneRadius:          10,
			MaxAccelerationDistance: 50,
			AccelerationGain:        3,
			BaseSensitivity:         0.25,
			SensitivityX:            1.0,
			SensitivityY:            1.0,
			ScrollSensitivity:       0.5,
			SmoothingWindow:         5,
			FilterStrength:          0.3,
		},
		Gestures: GestureConfig{
			ThresholdSource:     ThresholdsCalibrated,
			MetricWindow:        3,
			Winks:               true,
			BothEyes:            true,
			Mouth:               true,
			Brows:               false,
			BlinkThreshold:      0.18,
			BlinkRelease:        0.22,
			BlinkMinDuration:    Duration(250 * time.Millisecond),
			BothEyesMinDuration: Duration(800 * time.Millisecond),
			MouthOpenThreshold:  0.35,
			MouthRelease:        0.30,
			MouthMinDuration:    Duration(300 * time.Millisecond),
			BrowRaiseThreshold:  0.45,
			BrowRelease:         0.42,
			BrowMinDuration:     Duration(300 * time.Millisecond),
			RecognizerCooldown:  Duration(500 * time.Millisecond),
			FaceLossTimeout:     Duration(time.Second),
		},
		Dwell: DwellConfig{
			Enabled:                 false,
			DwellDuration:           Duration(1500 * time.Millisecond),
			StillnessPixelThreshold: 2.0,
			WindowFrames:            10,
			Cooldown:                Duration(time.Second),
		},
		HeadGestures: HeadGestureConfig{
			Enabled:      false,
			WindowFrames: 30,
			MinExtent:    15,
			Tolerance:    0.25,
		},
		Calibration: CalibrationConfig{
			StageFrameCount:          60,
			SettleFrames:             10,
			MarginFactor:             0.12,
			PrepDelay:                Duration(3 * time.Second),
			CollectGestureThresholds: true,
			BlinkMargin:              0.03,
			MouthFactor:              0.8,
		},
		Recalibration: RecalibrationConfig{
			Enabled:                  true,
			EdgeRecalibrationTimeout: Duration(5 * time.Second),
			DeadzoneTimeout:          Duration(5 * time.Second),
			EdgeMargin:               5,
		},
		Actions: ActionConfig{
			ClickCooldown:  Duration(600 * time.Millisecond),
			ModeCooldown:   Duration(time.Second),
			PluginCooldown: Duration(time.Second),
			PluginTimeout:  Duration(5 * time.Second),
		},
		Bindings: []Binding{
			{Event: "left_wink", Action: "left_click"},
			{Event: "right_wink", Action: "right_click"},
			{Event: "dwell", Action: "left_click"},
			{Event: "brow_raise", Action: "double_click"},
			{Event: "mouth_open", Action: "toggle_scroll"},
			{Event: "both_eyes_closed", Action: "toggle_pause"},
			{Event: "head_shake", Action: "recalibrate"},
		},
		Runtime: RuntimeConfig{
			FPS:            30,
			CameraID:       0,
			RestoreProfile: true,
			LogLevel:       "info",
		},
	}
}

// Clone returns a deep copy that is safe to hand to another goroutine.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.Bindings = append([]Binding(nil), c.Bindings...)
	return &out
}

// Load reads a JSON configuration file on top of Default(). Fields omitted
// from the file keep their default values, so partial files are fine.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := strings.ToLower(filepath.Ext(cleanPath)); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 << 20
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := cfg.Merge(data); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Merge overlays a JSON document onto c and validates the result. On error c
// is left unchanged.
func (c *Config) Merge(data []byte) error {
	next := c.Clone()
	if err := json.Unmarshal(data, next); err != nil {
		return fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	*c = *next
	return nil
}

// Save writes the configuration as indented JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
