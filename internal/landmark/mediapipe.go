package landmark

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// ErrServiceNotFound is returned when the face mesh service script is missing.
var ErrServiceNotFound = errors.New("face_mesh_service.py not found")

// meshIndex maps each Name to its index in the 468-point face mesh.
var meshIndex = [NumNames]int{
	NoseTip:        1,
	LeftEyeTop:     159,
	LeftEyeBottom:  145,
	LeftEyeOuter:   33,
	LeftEyeInner:   133,
	RightEyeTop:    386,
	RightEyeBottom: 374,
	RightEyeOuter:  263,
	RightEyeInner:  362,
	MouthTop:       13,
	MouthBottom:    14,
	MouthLeft:      61,
	MouthRight:     291,
	LeftBrow:       105,
	RightBrow:      334,
}

// MediaPipeSource implements Source using a Python MediaPipe face mesh
// subprocess. Frames go out as a 4-byte big-endian length followed by JPEG
// bytes; each reply is one JSON line.
type MediaPipeSource struct {
	config    Config
	script    string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	idleTimer *time.Timer
}

// NewMediaPipeSource creates a new face mesh source.
// The Python process is started lazily on first detection.
func NewMediaPipeSource(config Config) (*MediaPipeSource, error) {
	script := config.ScriptPath
	if script == "" {
		script = findServiceScript()
	}
	if script == "" {
		return nil, ErrServiceNotFound
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultConfig().IdleTimeout
	}
	return &MediaPipeSource{config: config, script: script}, nil
}

// Detect sends the frame to the face mesh service and returns the first face.
func (s *MediaPipeSource) Detect(frame *gocv.Mat) (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if frame == nil || frame.Empty() {
		return Absent(now), nil
	}

	if err := s.ensureStarted(); err != nil {
		return Frame{}, err
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return Frame{}, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := s.stdin.Write(length); err != nil {
		return Frame{}, fmt.Errorf("write length: %w", err)
	}
	if _, err := s.stdin.Write(data); err != nil {
		return Frame{}, fmt.Errorf("write data: %w", err)
	}

	line, err := s.stdout.ReadBytes('\n')
	if err != nil {
		return Frame{}, fmt.Errorf("read response: %w", err)
	}

	var resp meshResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return Frame{}, fmt.Errorf("parse response: %w", err)
	}

	s.resetIdleTimer()
	return resp.toFrame(float64(frame.Cols()), float64(frame.Rows()), now), nil
}

// Close shuts down the Python process.
func (s *MediaPipeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown()
}

func (s *MediaPipeSource) ensureStarted() error {
	if s.started {
		return nil
	}

	pythonPath := findVenvPython()
	if pythonPath == "" {
		pythonPath = "python3"
	}

	s.cmd = exec.Command(pythonPath, s.script,
		"--min-detection-confidence", strconv.FormatFloat(s.config.MinConfidence, 'f', 2, 64),
		"--min-tracking-confidence", strconv.FormatFloat(s.config.MinTrackingConf, 'f', 2, 64),
	)

	stdin, err := s.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	s.cmd.Stderr = os.Stderr

	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("start face mesh service: %w", err)
	}

	s.stdin = stdin
	s.stdout = bufio.NewReader(stdout)
	s.started = true
	return nil
}

func (s *MediaPipeSource) shutdown() error {
	if !s.started {
		return nil
	}
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
	if s.stdin != nil {
		s.stdin.Close()
	}

	err := s.cmd.Wait()
	s.started = false
	s.cmd = nil
	s.stdin = nil
	s.stdout = nil
	return err
}

func (s *MediaPipeSource) resetIdleTimer() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.idleTimer = time.AfterFunc(s.config.IdleTimeout, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.shutdown()
	})
}

func findServiceScript() string {
	return firstExisting("scripts/face_mesh_service.py", ".mukha/scripts/face_mesh_service.py")
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	return firstExisting("venv/bin/python", ".mukha/venv/bin/python")
}

// firstExisting checks rel against the working directory, its parent and
// the executable directory, then homeRel under the home directory.
func firstExisting(rel, homeRel string) string {
	candidates := []string{rel, filepath.Join("..", rel)}
	if execPath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(execPath), rel))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, homeRel))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				return abs
			}
			return path
		}
	}
	return ""
}

// meshResponse is the JSON structure from the Python service. Coordinates
// are normalized to [0,1] of the image size.
type meshResponse struct {
	Faces []struct {
		Points []struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
		} `json:"points"`
	} `json:"faces"`
}

func (r meshResponse) toFrame(width, height float64, ts time.Time) Frame {
	if len(r.Faces) == 0 {
		return Absent(ts)
	}
	face := r.Faces[0]

	f := Frame{Present: true, Timestamp: ts}
	for name, idx := range meshIndex {
		if idx >= len(face.Points) {
			return Absent(ts)
		}
		f.Points[name] = Point{X: face.Points[idx].X * width, Y: face.Points[idx].Y * height}
	}
	return f
}
