package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ModeRelative, cfg.Pointer.Mode)
	assert.Greater(t, cfg.Pointer.MaxAccelerationDistance, cfg.Pointer.DeadzoneRadius)
	assert.Equal(t, 3, cfg.Gestures.MetricWindow)
	assert.Equal(t, 30, cfg.Runtime.FPS)
	assert.NotEmpty(t, cfg.Bindings)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeFile(t, "mukha.json", `{
		"pointer": {"mode": "absolute", "deadzone_radius": 6},
		"gestures": {"blink_min_duration": "400ms"},
		"actions": {"click_cooldown": 750}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModeAbsolute, cfg.Pointer.Mode)
	assert.Equal(t, 6.0, cfg.Pointer.DeadzoneRadius)
	assert.Equal(t, 400*time.Millisecond, cfg.Gestures.BlinkMinDuration.Std())
	assert.Equal(t, 750*time.Millisecond, cfg.Actions.ClickCooldown.Std())

	// untouched fields keep their defaults
	def := Default()
	assert.Equal(t, def.Pointer.MaxAccelerationDistance, cfg.Pointer.MaxAccelerationDistance)
	assert.Equal(t, def.Calibration, cfg.Calibration)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"wrong extension", "mukha.yaml", `{}`},
		{"bad json", "mukha.json", `{"pointer":`},
		{"bad duration", "mukha.json", `{"gestures": {"blink_min_duration": "soon"}}`},
		{"unknown mode", "mukha.json", `{"pointer": {"mode": "teleport"}}`},
		{"accel inside deadzone", "mukha.json", `{"pointer": {"deadzone_radius": 60, "max_acceleration_distance": 50}}`},
		{"plugin binding without command", "mukha.json", `{"bindings": [{"event": "dwell", "action": "plugin", "plugin": "media"}]}`},
		{"unknown event", "mukha.json", `{"bindings": [{"event": "sneeze", "action": "left_click"}]}`},
		{"mouth factor out of range", "mukha.json", `{"calibration": {"mouth_factor": 0.5}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMergeLeavesConfigOnError(t *testing.T) {
	cfg := Default()
	before := cfg.Clone()

	err := cfg.Merge([]byte(`{"pointer": {"filter_strength": 2}}`))
	require.Error(t, err)

	if diff := cmp.Diff(before, cfg); diff != "" {
		t.Errorf("config changed after failed merge (-want +got):\n%s", diff)
	}
}

func TestValidateReleaseOrdering(t *testing.T) {
	cfg := Default()
	cfg.Gestures.BlinkRelease = cfg.Gestures.BlinkThreshold - 0.05
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Gestures.BlinkRelease = 0
	assert.NoError(t, cfg.Validate(), "zero release means no hysteresis")

	cfg = Default()
	cfg.Gestures.MouthRelease = cfg.Gestures.MouthOpenThreshold + 0.1
	assert.Error(t, cfg.Validate())
}

func TestCloneIsDeep(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	clone.Bindings[0].Action = "double_click"
	clone.Pointer.BaseSensitivity = 9

	assert.Equal(t, "left_click", cfg.Bindings[0].Action)
	assert.Equal(t, 0.25, cfg.Pointer.BaseSensitivity)
}

func TestDurationJSON(t *testing.T) {
	data, err := json.Marshal(Duration(1500 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, `"1.5s"`, string(data))

	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"2s"`), &d))
	assert.Equal(t, 2*time.Second, d.Std())

	require.NoError(t, json.Unmarshal([]byte(`250`), &d))
	assert.Equal(t, 250*time.Millisecond, d.Std())

	assert.Error(t, json.Unmarshal([]byte(`true`), &d))
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Pointer.Mode = ModeAbsolute
	cfg.Dwell.Enabled = true

	path := filepath.Join(t.TempDir(), "nested", "mukha.json")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyEnv(t *testing.T) {
	envFile := writeFile(t, ".env", "MUKHA_DEADZONE_RADIUS=14\nMUKHA_DWELL_ENABLED=true\n")
	t.Setenv("MUKHA_POINTER_MODE", "absolute")
	t.Setenv("MUKHA_CLICK_COOLDOWN", "900ms")
	// set explicitly so the process environment wins over the file
	t.Setenv("MUKHA_FPS", "24")
	t.Cleanup(func() {
		os.Unsetenv("MUKHA_DEADZONE_RADIUS")
		os.Unsetenv("MUKHA_DWELL_ENABLED")
	})

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(envFile))

	assert.Equal(t, ModeAbsolute, cfg.Pointer.Mode)
	assert.Equal(t, 14.0, cfg.Pointer.DeadzoneRadius)
	assert.True(t, cfg.Dwell.Enabled)
	assert.Equal(t, 900*time.Millisecond, cfg.Actions.ClickCooldown.Std())
	assert.Equal(t, 24, cfg.Runtime.FPS)
}

func TestApplyEnvInvalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"MUKHA_DEADZONE_RADIUS", "wide"},
		{"MUKHA_FPS", "1000"},
		{"MUKHA_BLINK_MIN_DURATION", "later"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			cfg := Default()
			before := cfg.Clone()
			assert.Error(t, cfg.ApplyEnv(""))
			assert.Equal(t, before, cfg)
		})
	}
}

func TestApplyEnvMissingFileIgnored(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.ApplyEnv(filepath.Join(t.TempDir(), "nope.env")))
}
