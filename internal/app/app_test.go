package app

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ayusman/mukha/internal/action"
	"github.com/ayusman/mukha/internal/actuator"
	"github.com/ayusman/mukha/internal/calibration"
	"github.com/ayusman/mukha/internal/capture"
	"github.com/ayusman/mukha/internal/config"
	"github.com/ayusman/mukha/internal/engine"
	"github.com/ayusman/mukha/internal/gesture"
	"github.com/ayusman/mukha/internal/landmark"
	"github.com/ayusman/mukha/internal/logging"
	"github.com/ayusman/mukha/internal/store"
)

const frameInterval = 33 * time.Millisecond

func face(x, y float64) landmark.Frame {
	return landmark.NeutralFace(landmark.Point{X: x, Y: y})
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Calibration.StageFrameCount = 2
	cfg.Calibration.SettleFrames = 0
	cfg.Calibration.PrepDelay = 0
	return cfg
}

type recordingHub struct {
	states int
	events map[string]int
}

func (h *recordingHub) PublishState(any) { h.states++ }
func (h *recordingHub) PublishEvent(kind string, _ any) {
	if h.events == nil {
		h.events = make(map[string]int)
	}
	h.events[kind]++
}

type harness struct {
	t     *testing.T
	app   *App
	src   *landmark.MockSource
	cam   *capture.MockCamera
	rec   *actuator.Recorder
	store *store.Store
	hub   *recordingHub
	now   time.Time
	ctx   context.Context
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newHarness(t *testing.T, cfg *config.Config, s *store.Store) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		src:   landmark.NewMockSource(),
		cam:   capture.NewBlankCamera(64, 48),
		rec:   actuator.NewRecorder(),
		store: s,
		hub:   &recordingHub{},
		now:   time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	a, err := New(Config{
		Config:   cfg,
		Store:    s,
		Camera:   h.cam,
		Source:   h.src,
		Actuator: h.rec,
		Hub:      h.hub,
		ScreenW:  1920,
		ScreenH:  1080,
		Log:      logging.Discard(),
		Clock:    func() time.Time { return h.now },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.app = a

	if err := h.cam.Open(); err != nil {
		t.Fatalf("camera Open() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h.ctx = ctx
	go a.worker.Run(ctx)
	return h
}

// feed runs one frame through the loop body.
func (h *harness) feed(f landmark.Frame, n int) {
	for i := 0; i < n; i++ {
		h.src.Push(f)
		h.now = h.now.Add(frameInterval)
		h.app.tick(h.ctx)
	}
}

func (h *harness) calibrate() {
	h.t.Helper()
	for h.app.Status().Stage == calibration.StagePrep {
		h.feed(face(320, 240), 1)
	}
	for _, f := range []landmark.Frame{
		face(320, 240),
		face(280, 240),
		face(360, 240),
		face(320, 200),
		face(320, 280),
		landmark.WithEyesClosed(face(320, 240), true, true),
		landmark.WithMouthOpen(face(320, 240), 0.6),
	} {
		h.feed(f, 2)
	}
	if !h.app.Status().Calibrated {
		h.t.Fatalf("not calibrated, stage %v", h.app.Status().Stage)
	}
}

// waitCalls polls the recorder until pred holds.
func (h *harness) waitCalls(pred func([]actuator.Call) bool) []actuator.Call {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		calls := h.rec.Calls()
		if pred(calls) {
			return calls
		}
		if time.Now().After(deadline) {
			h.t.Fatalf("timed out waiting for actuator calls, have %v", calls)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func hasOp(op actuator.Op) func([]actuator.Call) bool {
	return func(calls []actuator.Call) bool {
		for _, c := range calls {
			if c.Op == op {
				return true
			}
		}
		return false
	}
}

func TestApp_RequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() without camera, source and actuator should fail")
	}
}

func TestApp_CalibrationSavesProfile(t *testing.T) {
	s := newTestStore(t)
	h := newHarness(t, testConfig(), s)
	h.calibrate()

	p, err := s.Profiles().Latest()
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if p.Result.Center != (landmark.Point{X: 320, Y: 240}) {
		t.Errorf("saved center = %+v", p.Result.Center)
	}
	if p.ScreenW != 1920 || p.ScreenH != 1080 {
		t.Errorf("saved screen = %dx%d", p.ScreenW, p.ScreenH)
	}

	// the centering move reaches the actuator
	h.waitCalls(func(calls []actuator.Call) bool {
		return len(calls) > 0 && calls[len(calls)-1] == actuator.Call{Op: actuator.OpMove, X: 960, Y: 540}
	})
	if h.hub.states == 0 {
		t.Error("no telemetry state frames published")
	}
}

func TestApp_RestoresLatestProfile(t *testing.T) {
	s := newTestStore(t)
	s.Profiles().Save(&store.Profile{
		Result: calibration.Result{
			Center: landmark.Point{X: 300, Y: 250},
			Range:  calibration.Range{MinX: 250, MaxX: 350, MinY: 200, MaxY: 300},
		},
		ScreenW: 1920,
		ScreenH: 1080,
	})

	h := newHarness(t, testConfig(), s)
	st := h.app.Status()
	if !st.Calibrated || st.Calibration == nil || st.Calibration.Center.X != 300 {
		t.Errorf("restored state = %+v", st)
	}

	cfg := testConfig()
	cfg.Runtime.RestoreProfile = false
	if newHarness(t, cfg, s).app.Status().Calibrated {
		t.Error("RestoreProfile=false should start uncalibrated")
	}
}

func TestApp_SkipsProfileForOtherScreen(t *testing.T) {
	s := newTestStore(t)
	s.Profiles().Save(&store.Profile{
		Result: calibration.Result{
			Center: landmark.Point{X: 300, Y: 250},
			Range:  calibration.Range{MinX: 250, MaxX: 350, MinY: 200, MaxY: 300},
		},
		ScreenW: 2560,
		ScreenH: 1440,
	})
	if newHarness(t, testConfig(), s).app.Status().Calibrated {
		t.Error("profile for a different screen should not be restored")
	}
}

func TestApp_WinkClicksAndLogsEvent(t *testing.T) {
	s := newTestStore(t)
	h := newHarness(t, testConfig(), s)
	h.calibrate()
	h.feed(face(320, 240), 5)

	h.feed(landmark.WithEyesClosed(face(320, 240), true, false), 30)
	h.feed(face(320, 240), 5)

	h.waitCalls(hasOp(actuator.OpClickLeft))

	events, err := s.Events().List(h.app.Session(), 10)
	if err != nil {
		t.Fatalf("Events().List() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("logged %d events, want 1", len(events))
	}
	got := events[0]
	if got.Event != gesture.LeftWink || got.Action != action.LeftClick || got.Error != "" {
		t.Errorf("logged event = %+v", got)
	}
	if h.hub.events["action"] != 1 || h.hub.events["gesture"] == 0 {
		t.Errorf("telemetry events = %v", h.hub.events)
	}
}

func writePlugin(t *testing.T, dir, name, script string) {
	t.Helper()
	pdir := filepath.Join(dir, name)
	if err := os.MkdirAll(pdir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := `{"name":"` + name + `","executable":"run.sh","commands":["go"]}`
	if err := os.WriteFile(filepath.Join(pdir, "plugin.json"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(pdir, "run.sh"), []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestApp_PluginAction(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell plugins need a POSIX shell")
	}
	pluginDir := t.TempDir()
	marker := filepath.Join(t.TempDir(), "ran")
	writePlugin(t, pluginDir, "marker", "cat > "+marker+"\necho '{\"success\":true}'\n")

	cfg := testConfig()
	cfg.Runtime.PluginDir = pluginDir
	cfg.Bindings = []config.Binding{{Event: "mouth_open", Action: "plugin", Plugin: "marker", Command: "go"}}

	s := newTestStore(t)
	h := newHarness(t, cfg, s)
	if err := h.app.Plugins().Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	h.calibrate()
	h.feed(face(320, 240), 5)
	h.feed(landmark.WithMouthOpen(face(320, 240), 0.7), 20)
	h.feed(face(320, 240), 5)
	h.app.pending.Wait()

	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("plugin did not run: %v", err)
	}
	if !strings.Contains(string(data), `"command":"go"`) || !strings.Contains(string(data), h.app.Session()) {
		t.Errorf("plugin request = %s", data)
	}

	events, _ := s.Events().List(h.app.Session(), 10)
	if len(events) != 1 || events[0].Plugin != "marker" || events[0].Error != "" {
		t.Errorf("logged events = %+v", events)
	}
}

func TestApp_PluginMissingIsLogged(t *testing.T) {
	cfg := testConfig()
	cfg.Bindings = []config.Binding{{Event: "mouth_open", Action: "plugin", Plugin: "ghost", Command: "go"}}
	s := newTestStore(t)
	h := newHarness(t, cfg, s)
	h.calibrate()
	h.feed(landmark.WithMouthOpen(face(320, 240), 0.7), 20)
	h.app.pending.Wait()

	events, _ := s.Events().List(h.app.Session(), 10)
	if len(events) != 1 || events[0].Error == "" {
		t.Errorf("logged events = %+v, want one with an error", events)
	}
}

func TestApp_BindingsSeededAndReloaded(t *testing.T) {
	s := newTestStore(t)
	h := newHarness(t, testConfig(), s)

	n, _ := s.Bindings().Count()
	if n != len(config.Default().Bindings) {
		t.Fatalf("seeded %d bindings, want %d", n, len(config.Default().Bindings))
	}

	err := s.Bindings().Create(&store.Binding{
		Event:   gesture.HeadNod,
		Action:  action.Spec{Kind: action.DoubleClick},
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := h.app.ReloadBindings(); err != nil {
		t.Fatalf("ReloadBindings() error = %v", err)
	}
	got := h.app.Bindings()[gesture.HeadNod]
	if diff := cmp.Diff([]action.Spec{{Kind: action.DoubleClick}}, got); diff != "" {
		t.Errorf("head_nod bindings mismatch (-want +got):\n%s", diff)
	}

	// a second app over the same store keeps the stored table
	cfg := testConfig()
	cfg.Bindings = nil
	h2 := newHarness(t, cfg, s)
	if len(h2.app.Bindings()[gesture.HeadNod]) != 1 {
		t.Error("stored bindings should win over configuration")
	}
}

func TestApp_CommandsWithoutLoop(t *testing.T) {
	s := newTestStore(t)
	h := newHarness(t, testConfig(), s)
	h.calibrate()

	h.app.SetPaused(true)
	if !h.app.Status().Paused {
		t.Error("SetPaused(true) not reflected in Status()")
	}
	h.app.SetPaused(false)

	h.app.SetScroll(true)
	if !h.app.Status().Scroll {
		t.Error("SetScroll(true) not reflected in Status()")
	}
	h.app.SetScroll(false)

	h.app.Recalibrate()
	if st := h.app.Status(); st.Calibrated || st.Stage != calibration.StagePrep {
		t.Errorf("after Recalibrate state = %+v", st)
	}
	st := h.app.SkipCalibrationStage()
	if st.Stage == calibration.StagePrep {
		t.Errorf("SkipCalibrationStage() stayed in prep")
	}
}

func TestApp_UpdateConfig(t *testing.T) {
	s := newTestStore(t)
	h := newHarness(t, testConfig(), s)

	bad := h.app.Config()
	bad.Pointer.DeadzoneRadius = -1
	if err := h.app.UpdateConfig(bad); err == nil {
		t.Error("UpdateConfig() accepted an invalid config")
	}

	next := h.app.Config()
	next.Pointer.DeadzoneRadius = 14
	next.Bindings = nil
	if err := h.app.UpdateConfig(next); err != nil {
		t.Fatalf("UpdateConfig() error = %v", err)
	}
	if got := h.app.Config().Pointer.DeadzoneRadius; got != 14 {
		t.Errorf("deadzone = %v, want 14", got)
	}
	if len(h.app.Config().Bindings) == 0 {
		t.Error("stored bindings should survive a config update")
	}

	persisted := config.Default()
	ok, err := s.Settings().LoadConfig(persisted)
	if err != nil || !ok {
		t.Fatalf("LoadConfig() = %v, %v", ok, err)
	}
	if persisted.Pointer.DeadzoneRadius != 14 {
		t.Errorf("persisted deadzone = %v, want 14", persisted.Pointer.DeadzoneRadius)
	}
}

type stateObserver struct {
	states chan engine.State
}

func (o *stateObserver) ActionDispatched(action.Event) {}
func (o *stateObserver) StateChanged(st engine.State) {
	select {
	case o.states <- st:
	default:
	}
}

func TestApp_Run(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping loop test")
	}
	src := landmark.NewMockSource()
	src.Push(face(320, 240))
	cam := capture.NewBlankCamera(64, 48)
	obs := &stateObserver{states: make(chan engine.State, 1)}

	cfg := testConfig()
	cfg.Runtime.FPS = 60
	a, err := New(Config{
		Config:   cfg,
		Camera:   cam,
		Source:   src,
		Actuator: actuator.NewRecorder(),
		Observer: obs,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case <-obs.states:
	case <-time.After(2 * time.Second):
		t.Fatal("loop produced no frames")
	}
	if err := a.Run(ctx); err != ErrRunning {
		t.Errorf("second Run() error = %v, want ErrRunning", err)
	}

	a.SetPaused(true)
	if !a.Status().Paused {
		t.Error("command not applied by the running loop")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if cam.IsOpen() {
		t.Error("camera left open after Run returned")
	}
	if cam.Reads() == 0 {
		t.Error("camera was never read")
	}
}
