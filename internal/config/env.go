package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "MUKHA_"

// ApplyEnv loads envFile (when it exists) into the process environment and
// then applies MUKHA_* overrides on top of c. Variables already present in
// the environment win over the file.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	next := c.Clone()
	overrides := []struct {
		key   string
		apply func(string) error
	}{
		{"POINTER_MODE", func(v string) error { next.Pointer.Mode = PointerMode(v); return nil }},
		{"DEADZONE_RADIUS", floatInto(&next.Pointer.DeadzoneRadius)},
		{"MAX_ACCELERATION_DISTANCE", floatInto(&next.Pointer.MaxAccelerationDistance)},
		{"BASE_SENSITIVITY", floatInto(&next.Pointer.BaseSensitivity)},
		{"SENSITIVITY_X", floatInto(&next.Pointer.SensitivityX)},
		{"SENSITIVITY_Y", floatInto(&next.Pointer.SensitivityY)},
		{"FILTER_STRENGTH", floatInto(&next.Pointer.FilterStrength)},
		{"THRESHOLD_SOURCE", func(v string) error { next.Gestures.ThresholdSource = ThresholdSource(v); return nil }},
		{"BLINK_THRESHOLD", floatInto(&next.Gestures.BlinkThreshold)},
		{"BLINK_MIN_DURATION", durationInto(&next.Gestures.BlinkMinDuration)},
		{"MOUTH_OPEN_THRESHOLD", floatInto(&next.Gestures.MouthOpenThreshold)},
		{"CLICK_COOLDOWN", durationInto(&next.Actions.ClickCooldown)},
		{"DWELL_ENABLED", boolInto(&next.Dwell.Enabled)},
		{"DWELL_DURATION", durationInto(&next.Dwell.DwellDuration)},
		{"EDGE_RECALIBRATION_TIMEOUT", durationInto(&next.Recalibration.EdgeRecalibrationTimeout)},
		{"CALIBRATION_STAGE_FRAME_COUNT", intInto(&next.Calibration.StageFrameCount)},
		{"CAMERA_ID", intInto(&next.Runtime.CameraID)},
		{"FPS", intInto(&next.Runtime.FPS)},
		{"DRY_RUN", boolInto(&next.Runtime.DryRun)},
		{"PLUGIN_DIR", func(v string) error { next.Runtime.PluginDir = v; return nil }},
		{"LOG_LEVEL", func(v string) error { next.Runtime.LogLevel = v; return nil }},
	}

	for _, o := range overrides {
		v, ok := os.LookupEnv(EnvPrefix + o.key)
		if !ok || v == "" {
			continue
		}
		if err := o.apply(v); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, o.key, err)
		}
	}

	if err := next.Validate(); err != nil {
		return fmt.Errorf("invalid configuration after environment overrides: %w", err)
	}
	*c = *next
	return nil
}

func floatInto(dst *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
}

func intInto(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func boolInto(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func durationInto(dst *Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = Duration(d)
		return nil
	}
}
