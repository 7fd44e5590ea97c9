package gesture

import (
	"math"
	"sort"
	"time"

	"github.com/ayusman/mukha/internal/landmark"
)

// Template is a reference head-movement path.
type Template struct {
	Name EventName
	Path []landmark.Point
	// Tolerance is the largest normalized DTW distance that still matches.
	Tolerance float64
}

// Match is a template matched against the recent path.
type Match struct {
	Template *Template
	Score    float64 // 0-1, higher is better
	Distance float64
}

// PathParams configure head-gesture matching for one update.
type PathParams struct {
	Window    int
	MinExtent float64 // pixels the head must travel on the dominant axis
	Tolerance float64 // overrides template tolerance when > 0
}

// templateLength is the resampled length of the built-in templates.
const templateLength = 24

// DefaultTemplates returns the nod (down, up, down) and shake (right, left,
// right) templates, both one and a half cycles.
func DefaultTemplates() []*Template {
	nod := make([]landmark.Point, templateLength)
	shake := make([]landmark.Point, templateLength)
	for i := range nod {
		phase := 3 * math.Pi * float64(i) / float64(templateLength-1)
		nod[i] = landmark.Point{Y: math.Sin(phase)}
		shake[i] = landmark.Point{X: math.Sin(phase)}
	}
	return []*Template{
		{Name: HeadNod, Path: nod, Tolerance: 0.25},
		{Name: HeadShake, Path: shake, Tolerance: 0.25},
	}
}

// PathMatcher matches the trailing tracking path against head-gesture
// templates using dynamic time warping.
type PathMatcher struct {
	templates []*Template
	buf       []landmark.Point
}

// NewPathMatcher creates a matcher with the default templates.
func NewPathMatcher() *PathMatcher {
	return &PathMatcher{templates: DefaultTemplates()}
}

// AddTemplate adds a template to the matcher.
func (m *PathMatcher) AddTemplate(t *Template) {
	if t == nil || len(t.Path) == 0 {
		return
	}
	m.templates = append(m.templates, t)
}

// RemoveTemplate removes every template emitting name.
func (m *PathMatcher) RemoveTemplate(name EventName) {
	kept := m.templates[:0]
	for _, t := range m.templates {
		if t.Name != name {
			kept = append(kept, t)
		}
	}
	m.templates = kept
}

// Reset empties the path buffer.
func (m *PathMatcher) Reset() {
	m.buf = m.buf[:0]
}

// Update appends p to the trailing path and, once the window is full,
// matches it. The buffer is cleared after a match so one movement fires once.
func (m *PathMatcher) Update(p landmark.Point, now time.Time, params PathParams) (Event, bool) {
	window := params.Window
	if window < 2 {
		window = 2
	}
	m.buf = append(m.buf, p)
	if len(m.buf) > window {
		m.buf = m.buf[len(m.buf)-window:]
	}
	if len(m.buf) < window || extent(m.buf) < params.MinExtent {
		return Event{}, false
	}

	matches := m.Match(m.buf, params.Tolerance)
	if len(matches) == 0 {
		return Event{}, false
	}
	m.Reset()
	best := matches[0]
	return Event{Name: best.Template.Name, At: now, Value: best.Distance}, true
}

// Match returns the templates within tolerance of path, best first. The
// path is resampled to the template length first so cost does not grow with
// the window.
func (m *PathMatcher) Match(path []landmark.Point, tolerance float64) []Match {
	input := normalizePath(Resample(path, templateLength))
	if len(input) == 0 {
		return nil
	}

	var matches []Match
	for _, t := range m.templates {
		distance := DTWDistance(input, normalizePath(t.Path))
		if math.IsInf(distance, 1) {
			continue
		}
		tol := t.Tolerance
		if tolerance > 0 {
			tol = tolerance
		}
		if distance <= tol {
			matches = append(matches, Match{Template: t, Score: 1 / (1 + distance), Distance: distance})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

// DTWDistance returns the dynamic time warping distance between two paths,
// normalized by the longer length. Empty paths are infinitely far apart.
func DTWDistance(a, b []landmark.Point) float64 {
	n, m := len(a), len(b)
	if n == 0 || m == 0 {
		return math.Inf(1)
	}

	prev := make([]float64, m+1)
	curr := make([]float64, m+1)
	for j := range prev {
		prev[j] = math.Inf(1)
	}
	prev[0] = 0

	for i := 1; i <= n; i++ {
		curr[0] = math.Inf(1)
		for j := 1; j <= m; j++ {
			cost := a[i-1].Dist(b[j-1])
			curr[j] = cost + min(prev[j], curr[j-1], prev[j-1])
		}
		prev, curr = curr, prev
	}
	return prev[m] / float64(max(n, m))
}

// normalizePath centers path on its mean and scales it by its larger axis
// extent, keeping the aspect ratio so a nod stays vertical.
func normalizePath(path []landmark.Point) []landmark.Point {
	if len(path) == 0 {
		return nil
	}
	var mean landmark.Point
	for _, p := range path {
		mean = mean.Add(p)
	}
	mean = mean.Scale(1 / float64(len(path)))

	scale := extent(path)
	out := make([]landmark.Point, len(path))
	for i, p := range path {
		d := p.Sub(mean)
		if scale > 0 {
			d = d.Scale(1 / scale)
		}
		out[i] = d
	}
	return out
}

// extent returns the larger of the path's width and height.
func extent(path []landmark.Point) float64 {
	if len(path) == 0 {
		return 0
	}
	minX, maxX := path[0].X, path[0].X
	minY, maxY := path[0].Y, path[0].Y
	for _, p := range path[1:] {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	return math.Max(maxX-minX, maxY-minY)
}

// Resample returns path resampled to n points by linear interpolation.
func Resample(path []landmark.Point, n int) []landmark.Point {
	if len(path) == 0 {
		return nil
	}
	if len(path) == 1 || n <= 1 {
		return []landmark.Point{path[0]}
	}

	out := make([]landmark.Point, n)
	for i := 0; i < n; i++ {
		pos := float64(i) / float64(n-1) * float64(len(path)-1)
		idx := int(pos)
		if idx >= len(path)-1 {
			idx = len(path) - 2
		}
		frac := pos - float64(idx)
		out[i] = path[idx].Add(path[idx+1].Sub(path[idx]).Scale(frac))
	}
	return out
}
