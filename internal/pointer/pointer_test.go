package pointer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/mukha/internal/calibration"
	"github.com/ayusman/mukha/internal/config"
	"github.com/ayusman/mukha/internal/landmark"
)

func pt(x, y float64) landmark.Point { return landmark.Point{X: x, Y: y} }

func relativeConfig() *config.Config {
	cfg := config.Default()
	cfg.Pointer.Mode = config.ModeRelative
	cfg.Pointer.DeadzoneRadius = 10
	cfg.Pointer.MaxAccelerationDistance = 50
	cfg.Pointer.AccelerationGain = 3
	cfg.Pointer.BaseSensitivity = 0.5
	cfg.Pointer.SensitivityX = 1
	cfg.Pointer.SensitivityY = 1
	cfg.Pointer.SmoothingWindow = 1
	return cfg
}

func calAt(x, y float64) calibration.Result {
	return calibration.Result{
		Center: pt(x, y),
		Range:  calibration.Range{MinX: x - 50, MaxX: x + 50, MinY: y - 40, MaxY: y + 40},
	}
}

func TestShape(t *testing.T) {
	t.Run("scenario A inside deadzone", func(t *testing.T) {
		_, _, _, ok := Shape(pt(105, 103).Sub(pt(100, 100)), 10, 50, 3)
		assert.False(t, ok)
	})

	t.Run("scenario B at max acceleration", func(t *testing.T) {
		effective, accel, unit, ok := Shape(pt(150, 100).Sub(pt(100, 100)), 10, 50, 3)
		require.True(t, ok)
		assert.InDelta(t, 40, effective, 1e-9)
		assert.InDelta(t, 4, accel, 1e-9)
		assert.Equal(t, pt(1, 0), unit)
	})

	t.Run("zero offset", func(t *testing.T) {
		_, _, _, ok := Shape(pt(0, 0), 0, 50, 3)
		assert.False(t, ok)
	})

	t.Run("NaN offset", func(t *testing.T) {
		_, _, _, ok := Shape(pt(math.NaN(), 1), 10, 50, 3)
		assert.False(t, ok)
	})

	t.Run("beyond band clamps", func(t *testing.T) {
		_, accel, _, ok := Shape(pt(0, 400), 10, 50, 3)
		require.True(t, ok)
		assert.InDelta(t, 4, accel, 1e-9)
	})

	t.Run("empty band is full acceleration", func(t *testing.T) {
		_, accel, _, ok := Shape(pt(20, 0), 10, 10, 3)
		require.True(t, ok)
		assert.InDelta(t, 4, accel, 1e-9)
	})

	t.Run("quadratic ease in", func(t *testing.T) {
		_, accel, _, _ := Shape(pt(30, 0), 10, 50, 3)
		// normalized 0.5
		assert.InDelta(t, 1.75, accel, 1e-9)
	})
}

func TestRelativeDeadzoneProducesNoMovement(t *testing.T) {
	cfg := relativeConfig()
	m := NewMapper(cfg)
	cur := NewCursor(1920, 1080)
	start := cur

	for angle := 0.0; angle < 2*math.Pi; angle += math.Pi / 16 {
		for _, r := range []float64{0, 1, 5, 9.99} {
			p := pt(100+r*math.Cos(angle), 100+r*math.Sin(angle))
			cmd := m.Map(p, calAt(100, 100), &cur, false)
			assert.Equal(t, None, cmd.Kind, "r=%v angle=%v", r, angle)
		}
	}
	assert.Equal(t, start, cur)
}

func TestRelativeMonotonicAcceleration(t *testing.T) {
	cfg := relativeConfig()
	dirs := []landmark.Point{pt(1, 0), pt(0, -1), pt(0.6, 0.8), pt(-0.8, 0.6)}

	for _, dir := range dirs {
		prev := 0.0
		for d := 10.0; d <= 120; d += 2.5 {
			m := NewMapper(cfg)
			cur := NewCursor(100000, 100000)
			cmd := m.Map(pt(500, 500).Add(dir.Scale(d)), calAt(500, 500), &cur, false)
			mag := math.Hypot(cmd.DX, cmd.DY)
			assert.GreaterOrEqual(t, mag, prev, "dir=%v d=%v", dir, d)
			prev = mag
		}
	}
}

func TestRelativeScenarioBDirection(t *testing.T) {
	cfg := relativeConfig()
	m := NewMapper(cfg)
	cur := NewCursor(1920, 1080)
	x0 := cur.X

	cmd := m.Map(pt(150, 100), calAt(100, 100), &cur, false)
	require.Equal(t, Move, cmd.Kind)
	// 0.5 * 4 * 40
	assert.InDelta(t, 80, cmd.DX, 1e-9)
	assert.InDelta(t, 0, cmd.DY, 1e-9)
	assert.InDelta(t, x0+80, cur.X, 1e-9)
}

func TestRelativeSmoothingAndCrispStop(t *testing.T) {
	cfg := relativeConfig()
	cfg.Pointer.SmoothingWindow = 3
	m := NewMapper(cfg)
	cur := NewCursor(100000, 100000)
	cal := calAt(0, 0)

	// 0.5 * accel(10)=1.1875 * 10
	far := m.Map(pt(20, 0), cal, &cur, false)
	first := far.DX
	require.InDelta(t, 5.9375, first, 1e-9)

	// a jitter frame is averaged with history, weighted toward the newest
	jitter := m.Map(pt(-20, 0), cal, &cur, false)
	assert.InDelta(t, (1*first+2*-first)/3, jitter.DX, 1e-9)

	stop := m.Map(pt(1, 1), cal, &cur, false)
	assert.Equal(t, None, stop.Kind)

	// history was cleared: the next push is unsmoothed
	again := m.Map(pt(20, 0), cal, &cur, false)
	assert.InDelta(t, first, again.DX, 1e-9)
}

func TestRelativeSensitivityPerAxis(t *testing.T) {
	cfg := relativeConfig()
	cfg.Pointer.SensitivityX = 2
	cfg.Pointer.SensitivityY = 0.5
	m := NewMapper(cfg)
	cur := NewCursor(100000, 100000)

	cmd := m.Map(pt(30, 40), calAt(0, 0), &cur, false)
	// distance 50, effective 40, accel 4, base 0.5 -> speed 80
	assert.InDelta(t, 0.6*80*2, cmd.DX, 1e-9)
	assert.InDelta(t, 0.8*80*0.5, cmd.DY, 1e-9)
}

func TestCursorAlwaysClamped(t *testing.T) {
	cfg := relativeConfig()
	cfg.Pointer.BaseSensitivity = 50
	m := NewMapper(cfg)
	cur := NewCursor(800, 600)

	for i := 0; i < 20; i++ {
		m.Map(pt(1000, -1000), calAt(0, 0), &cur, false)
		assert.True(t, cur.X >= 0 && cur.X <= 799, "x=%v", cur.X)
		assert.True(t, cur.Y >= 0 && cur.Y <= 599, "y=%v", cur.Y)
	}
	assert.Equal(t, 799.0, cur.X)
	assert.Equal(t, 0.0, cur.Y)

	// pinned in the corner, pushing further is no movement
	cmd := m.Map(pt(1000, -1000), calAt(0, 0), &cur, false)
	assert.Equal(t, None, cmd.Kind)
}

func TestScrollMode(t *testing.T) {
	cfg := relativeConfig()
	cfg.Pointer.ScrollSensitivity = 0.25
	m := NewMapper(cfg)
	cur := NewCursor(1920, 1080)
	before := cur

	cmd := m.Map(pt(100, 150), calAt(100, 100), &cur, true)
	require.Equal(t, Scroll, cmd.Kind)
	assert.InDelta(t, 80*0.25, cmd.DY, 1e-9)
	assert.Equal(t, before, cur, "cursor frozen while scrolling")

	cmd = m.Map(pt(150, 100), calAt(100, 100), &cur, true)
	assert.Equal(t, None, cmd.Kind, "horizontal head movement does not scroll")
}

func TestInterpolate(t *testing.T) {
	rng := calibration.Range{MinX: 100, MaxX: 200, MinY: 50, MaxY: 150}

	tests := []struct {
		name  string
		point landmark.Point
		want  landmark.Point
	}{
		{"min corner", pt(100, 50), pt(0, 0)},
		{"max corner", pt(200, 150), pt(1000, 500)},
		{"middle", pt(150, 100), pt(500, 250)},
		{"clamped", pt(500, -50), pt(1000, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Interpolate(tt.point, rng, 1001, 501)
			require.True(t, ok)
			assert.InDelta(t, tt.want.X, got.X, 1e-9)
			assert.InDelta(t, tt.want.Y, got.Y, 1e-9)
		})
	}

	_, ok := Interpolate(pt(1, 1), calibration.Range{}, 100, 100)
	assert.False(t, ok)
}

func TestAbsoluteMode(t *testing.T) {
	cfg := relativeConfig()
	cfg.Pointer.Mode = config.ModeAbsolute
	cfg.Pointer.FilterStrength = 1
	m := NewMapper(cfg)
	cur := NewCursor(1001, 501)
	cal := calibration.Result{Center: pt(150, 100), Range: calibration.Range{MinX: 100, MaxX: 200, MinY: 50, MaxY: 150}}

	t.Run("small jitter is absorbed", func(t *testing.T) {
		cmd := m.Map(pt(150.5, 100.5), cal, &cur, false)
		assert.Equal(t, None, cmd.Kind)
		assert.InDelta(t, 500, cur.X, 1e-9)
	})

	t.Run("large jump lands without overshoot", func(t *testing.T) {
		cmd := m.Map(pt(200, 100), cal, &cur, false)
		require.Equal(t, Move, cmd.Kind)
		assert.InDelta(t, 1000, cur.X, 1e-9)
		assert.Equal(t, 1000, cmd.X)
	})

	t.Run("filter lags the target", func(t *testing.T) {
		cfg.Pointer.FilterStrength = 0.5
		m.Reset()
		cur.MoveTo(0, 250)
		m.Map(pt(200, 100), cal, &cur, false)
		assert.Less(t, cur.X, 1000.0)
		assert.Greater(t, cur.X, 0.0)
	})
}

func TestAbsoluteModeShaping(t *testing.T) {
	cal := calibration.Result{Center: pt(150, 100), Range: calibration.Range{MinX: 100, MaxX: 200, MinY: 50, MaxY: 150}}

	step := func(sensX float64) Command {
		cfg := relativeConfig()
		cfg.Pointer.Mode = config.ModeAbsolute
		cfg.Pointer.FilterStrength = 1
		cfg.Pointer.BaseSensitivity = 0.1
		cfg.Pointer.SensitivityX = sensX
		cur := NewCursor(1001, 501)
		return NewMapper(cfg).Map(pt(170, 100), cal, &cur, false)
	}

	// gap 200, effective 190, accel 4, base 0.1 -> 76
	one := step(1)
	require.Equal(t, Move, one.Kind)
	assert.InDelta(t, 76, one.DX, 1e-9)

	two := step(2)
	require.Equal(t, Move, two.Kind)
	assert.InDelta(t, 152, two.DX, 1e-9)

	// the step is capped at the remaining gap
	assert.InDelta(t, 200, step(5).DX, 1e-9)
}

func TestAbsoluteModeSettles(t *testing.T) {
	cfg := config.Default()
	cfg.Pointer.Mode = config.ModeAbsolute
	m := NewMapper(cfg)
	cur := NewCursor(1001, 501)
	cal := calibration.Result{Center: pt(150, 100), Range: calibration.Range{MinX: 100, MaxX: 200, MinY: 50, MaxY: 150}}

	last := -1
	px, py := cur.Pixel()
	for i := 0; i < 200; i++ {
		cmd := m.Map(pt(160, 100), cal, &cur, false)
		if cmd.Kind != Move {
			continue
		}
		assert.False(t, cmd.X == px && cmd.Y == py, "frame %d: move without a pixel change", i)
		px, py = cmd.X, cmd.Y
		last = i
	}
	require.NotEqual(t, -1, last)
	assert.Less(t, last, 60, "cursor still creeping at frame %d", last)
	assert.InDelta(t, 600, cur.X, cfg.Pointer.DeadzoneRadius+3)
}

func TestRelativeSubPixelMovement(t *testing.T) {
	cfg := relativeConfig()
	cfg.Pointer.BaseSensitivity = 0.05
	m := NewMapper(cfg)
	cur := NewCursor(1001, 501)
	start := cur.X

	// speed 0.05 * 1.0075 * 2 is about 0.1 px per frame
	moves := 0
	for i := 0; i < 20; i++ {
		if m.Map(pt(12, 0), calAt(0, 0), &cur, false).Kind == Move {
			moves++
		}
	}
	assert.Greater(t, cur.X-start, 1.5, "sub-pixel steps accumulate")
	assert.Greater(t, moves, 0)
	assert.Less(t, moves, 5, "only visible pixel changes are reported")
}

func TestModeChangeResetsState(t *testing.T) {
	cfg := relativeConfig()
	cfg.Pointer.SmoothingWindow = 4
	m := NewMapper(cfg)
	cur := NewCursor(100000, 100000)

	m.Map(pt(30, 0), calAt(0, 0), &cur, false)
	require.Equal(t, 1, m.smooth.Len())

	cfg.Pointer.Mode = config.ModeAbsolute
	m.Map(pt(30, 0), calAt(0, 0), &cur, false)
	cfg.Pointer.Mode = config.ModeRelative
	m.Map(pt(30, 0), calAt(0, 0), &cur, false)
	assert.Equal(t, 1, m.smooth.Len())
}

func TestSmoother(t *testing.T) {
	s := NewSmoother(3)
	assert.Equal(t, pt(0, 0), s.Value())

	assert.Equal(t, pt(3, 0), s.Push(pt(3, 0)))
	// weights 1,2
	assert.InDelta(t, (3+2*6)/3.0, s.Push(pt(6, 0)).X, 1e-9)
	// weights 1,2,3
	assert.InDelta(t, (3+2*6+3*9)/6.0, s.Push(pt(9, 0)).X, 1e-9)
	// ring drops the oldest
	assert.InDelta(t, (6+2*9+3*12)/6.0, s.Push(pt(12, 0)).X, 1e-9)
	assert.Equal(t, 3, s.Len())

	s.Resize(5)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 5, s.Cap())

	assert.Equal(t, 1, NewSmoother(0).Cap())
}

func TestCursor(t *testing.T) {
	c := NewCursor(101, 51)
	assert.Equal(t, pt(50, 25), c.Pos())

	applied := c.MoveBy(-80, 10)
	assert.Equal(t, pt(-50, 10), applied)
	assert.Equal(t, pt(0, 35), c.Pos())
	assert.True(t, c.NearEdge(5))

	c.MoveTo(50, 25)
	assert.False(t, c.NearEdge(5))

	c.Resize(20, 20)
	assert.Equal(t, pt(19, 19), c.Pos())

	x, y := c.Pixel()
	assert.Equal(t, 19, x)
	assert.Equal(t, 19, y)
}
