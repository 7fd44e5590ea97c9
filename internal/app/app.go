// Package app drives the mukha control loop: it reads camera frames, turns
// them into landmarks, steps the engine and carries out what the engine
// returns.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ayusman/mukha/internal/action"
	"github.com/ayusman/mukha/internal/actuator"
	"github.com/ayusman/mukha/internal/calibration"
	"github.com/ayusman/mukha/internal/capture"
	"github.com/ayusman/mukha/internal/config"
	"github.com/ayusman/mukha/internal/engine"
	"github.com/ayusman/mukha/internal/landmark"
	"github.com/ayusman/mukha/internal/logging"
	"github.com/ayusman/mukha/internal/plugin"
	"github.com/ayusman/mukha/internal/pointer"
	"github.com/ayusman/mukha/internal/store"
)

// ErrRunning is returned by Run when the loop is already running.
var ErrRunning = errors.New("app: already running")

// profileHistory is how many calibration profiles are kept in the store.
const profileHistory = 20

// Publisher receives telemetry. Implementations must not block.
type Publisher interface {
	PublishState(data any)
	PublishEvent(kind string, data any)
}

// Telemetry is the per-frame payload sent to the Publisher.
type Telemetry struct {
	State       engine.State       `json:"state"`
	Calibration calibration.Status `json:"calibration"`
	Move        *pointer.Command   `json:"move,omitempty"`
}

// Observer is notified from the loop goroutine. Implementations must not
// block or call back into the App.
type Observer interface {
	ActionDispatched(ev action.Event)
	StateChanged(st engine.State)
}

// Config holds the collaborators of an App. Camera, Source and Actuator are
// required.
type Config struct {
	Config   *config.Config
	Store    *store.Store
	Camera   capture.Camera
	Source   landmark.Source
	Actuator actuator.Actuator
	Plugins  *plugin.Manager
	Hub      Publisher
	Observer Observer

	ScreenW, ScreenH int

	Log   logrus.FieldLogger
	Clock func() time.Time
}

// App is the running application. Its exported methods are safe for
// concurrent use; the engine itself is only touched by the loop goroutine.
type App struct {
	config  Config
	log     logrus.FieldLogger
	now     func() time.Time
	session string

	engine  *engine.Engine
	worker  *actuator.Worker
	plugins *plugin.Manager
	exec    *plugin.Executor

	cmds chan func(time.Time)

	runMu    sync.Mutex
	running  bool
	loopDone chan struct{}
	pending  sync.WaitGroup

	snapMu sync.RWMutex
	status engine.State
	cfg    *config.Config

	calibrated bool
	faceLost   bool
	readLog    rate.Sometimes
	detectLog  rate.Sometimes
	faceLog    rate.Sometimes
}

// New builds an App. The configuration is owned by the App afterwards.
func New(cfg Config) (*App, error) {
	if cfg.Camera == nil || cfg.Source == nil || cfg.Actuator == nil {
		return nil, errors.New("app: camera, source and actuator are required")
	}
	if cfg.Config == nil {
		cfg.Config = config.Default()
	}
	if cfg.Log == nil {
		cfg.Log = logging.Discard()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.ScreenW <= 0 || cfg.ScreenH <= 0 {
		cfg.ScreenW, cfg.ScreenH = 1920, 1080
	}

	log := logging.Component(cfg.Log, "app")
	eng, err := engine.New(cfg.Config, cfg.ScreenW, cfg.ScreenH, cfg.Log)
	if err != nil {
		return nil, err
	}

	plugins := cfg.Plugins
	if plugins == nil {
		plugins = plugin.NewManager(cfg.Config.Runtime.PluginDir, cfg.Log)
	}

	a := &App{
		config:    cfg,
		log:       log,
		now:       cfg.Clock,
		session:   uuid.NewString(),
		engine:    eng,
		worker:    actuator.NewWorker(cfg.Actuator, actuator.DefaultClickQueue, cfg.Log),
		plugins:   plugins,
		exec:      plugin.NewExecutor(cfg.Config.Actions.PluginTimeout.Std()),
		cmds:      make(chan func(time.Time)),
		readLog:   rate.Sometimes{First: 1, Interval: 5 * time.Second},
		detectLog: rate.Sometimes{First: 1, Interval: 5 * time.Second},
		faceLog:   rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}

	if err := a.loadBindings(); err != nil {
		return nil, err
	}
	if cfg.Config.Runtime.RestoreProfile {
		a.restoreProfile()
	}
	a.snapshot()
	log.WithField("session", a.session).Info("Session created")
	return a, nil
}

// loadBindings seeds an empty binding table from the configuration, then
// makes the stored table authoritative.
func (a *App) loadBindings() error {
	st := a.config.Store
	if st == nil {
		return nil
	}
	seeded, err := st.Bindings().Seed(a.engine.Bindings())
	if err != nil {
		return fmt.Errorf("seed bindings: %w", err)
	}
	if seeded {
		a.log.Info("Seeded binding table from configuration")
	}
	table, err := st.Bindings().Table()
	if err != nil {
		return fmt.Errorf("load bindings: %w", err)
	}
	a.engine.SetBindings(table)
	return nil
}

func (a *App) restoreProfile() {
	st := a.config.Store
	if st == nil {
		return
	}
	p, err := st.Profiles().Latest()
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		a.log.WithError(err).Warn("Failed to load calibration profile")
		return
	}
	if p.ScreenW != a.config.ScreenW || p.ScreenH != a.config.ScreenH {
		a.log.WithFields(logrus.Fields{
			"profile_screen": fmt.Sprintf("%dx%d", p.ScreenW, p.ScreenH),
			"screen":         fmt.Sprintf("%dx%d", a.config.ScreenW, a.config.ScreenH),
		}).Info("Saved profile is for a different screen, calibrating")
		return
	}
	if err := a.engine.Restore(p.Result); err != nil {
		a.log.WithError(err).Warn("Saved calibration profile rejected")
		return
	}
	a.calibrated = true
	a.log.WithField("profile", p.ID).Info("Restored calibration profile")
}

// SetObserver attaches o. Call it before Run.
func (a *App) SetObserver(o Observer) {
	a.config.Observer = o
}

// Session returns the id stamped on every logged event.
func (a *App) Session() string { return a.session }

// Worker returns the actuator worker.
func (a *App) Worker() *actuator.Worker { return a.worker }

// Plugins returns the plugin manager.
func (a *App) Plugins() *plugin.Manager { return a.plugins }

// Run opens the camera and processes frames at the configured rate until
// ctx is done.
func (a *App) Run(ctx context.Context) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return ErrRunning
	}
	if err := a.config.Camera.Open(); err != nil {
		a.runMu.Unlock()
		return fmt.Errorf("open camera: %w", err)
	}
	if err := a.plugins.Discover(); err != nil {
		a.log.WithError(err).Warn("Plugin discovery failed")
	}
	a.running = true
	a.loopDone = make(chan struct{})
	a.runMu.Unlock()

	workerCtx, stopWorker := context.WithCancel(ctx)
	var workerDone sync.WaitGroup
	workerDone.Add(1)
	go func() {
		defer workerDone.Done()
		a.worker.Run(workerCtx)
	}()

	defer func() {
		a.runMu.Lock()
		a.running = false
		close(a.loopDone)
		a.runMu.Unlock()

		a.pending.Wait()
		stopWorker()
		workerDone.Wait()
		if err := a.config.Camera.Close(); err != nil {
			a.log.WithError(err).Warn("Error closing camera")
		}
		a.log.Info("Control loop stopped")
	}()

	fps := a.engine.Config().Runtime.FPS
	a.config.Camera.SetFPS(fps)
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()
	a.log.WithFields(logrus.Fields{"fps": fps, "session": a.session}).Info("Control loop started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-a.cmds:
			cmd(a.now())
			a.snapshot()
		case <-ticker.C:
			a.tick(ctx)
			if next := a.engine.Config().Runtime.FPS; next != fps {
				fps = next
				a.config.Camera.SetFPS(fps)
				ticker.Reset(time.Second / time.Duration(fps))
				a.log.WithField("fps", fps).Info("Frame rate changed")
			}
		}
	}
}

// tick reads and processes one camera frame.
func (a *App) tick(ctx context.Context) {
	now := a.now()
	mat, err := a.config.Camera.ReadFrame()
	if err != nil {
		a.readLog.Do(func() { a.log.WithError(err).Warn("Failed to read frame") })
		return
	}
	frame, err := a.config.Source.Detect(mat)
	mat.Close()
	if err != nil {
		a.detectLog.Do(func() { a.log.WithError(err).Warn("Landmark detection failed") })
		frame = landmark.Absent(now)
	}
	a.handle(ctx, a.engine.Step(frame, now))
}

// handle carries out one engine output.
func (a *App) handle(ctx context.Context, out engine.Output) {
	if out.Move != nil {
		a.worker.Submit(*out.Move)
	}

	st := out.State
	if st.FaceLost != a.faceLost {
		a.faceLost = st.FaceLost
		if st.FaceLost {
			a.faceLog.Do(func() { a.log.Warn("Face lost") })
		}
	}

	if st.Calibrated && (!a.calibrated || out.Recalibrated) {
		a.saveProfile(st.Calibration)
	}
	a.calibrated = st.Calibrated

	if a.config.Hub != nil {
		for _, g := range out.Gestures {
			a.config.Hub.PublishEvent("gesture", g)
		}
	}

	for _, ev := range out.Actions {
		a.dispatch(ctx, ev)
	}

	a.setStatus(st)
	if a.config.Hub != nil {
		a.config.Hub.PublishState(Telemetry{State: st, Calibration: out.Calibration, Move: out.Move})
	}
	if a.config.Observer != nil {
		a.config.Observer.StateChanged(st)
	}
}

// dispatch performs the side effect of one action. Mode actions were already
// applied by the engine.
func (a *App) dispatch(ctx context.Context, ev action.Event) {
	a.log.WithFields(logrus.Fields{
		"event":  string(ev.Trigger.Name),
		"action": string(ev.Kind),
	}).Info("Action dispatched")

	if a.config.Hub != nil {
		a.config.Hub.PublishEvent("action", ev)
	}
	if a.config.Observer != nil {
		a.config.Observer.ActionDispatched(ev)
	}

	rec := store.NewEventRecord(a.session, ev)
	switch {
	case ev.Kind.IsClick():
		if !a.worker.Click(ev.Kind) {
			rec.Error = "click queue full"
		}
	case ev.Kind == action.Plugin:
		timeout := a.engine.Config().Actions.PluginTimeout.Std()
		a.pending.Add(1)
		go func() {
			defer a.pending.Done()
			a.runPlugin(ctx, ev, timeout, rec)
		}()
		return
	}
	a.record(rec)
}

func (a *App) runPlugin(ctx context.Context, ev action.Event, timeout time.Duration, rec store.EventRecord) {
	log := a.log.WithFields(logrus.Fields{"plugin": ev.Plugin, "command": ev.Command})

	p, err := a.plugins.Resolve(ev.Plugin, ev.Command)
	if err == nil {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		req := plugin.NewRequest(ev.Command, ev.Trigger, nil)
		req.SessionID = a.session
		_, err = a.exec.Execute(ctx, p, req)
		cancel()
	}
	if err != nil {
		log.WithError(err).Warn("Plugin action failed")
		rec.Error = err.Error()
	} else {
		log.Debug("Plugin action completed")
	}
	a.record(rec)
}

func (a *App) record(rec store.EventRecord) {
	if a.config.Store == nil {
		return
	}
	if err := a.config.Store.Events().Append(&rec); err != nil {
		a.log.WithError(err).Warn("Failed to record event")
	}
}

func (a *App) saveProfile(res *calibration.Result) {
	if a.config.Store == nil || res == nil {
		return
	}
	p := &store.Profile{
		Name:    "session " + a.session[:8],
		Result:  *res,
		ScreenW: a.config.ScreenW,
		ScreenH: a.config.ScreenH,
	}
	profiles := a.config.Store.Profiles()
	if err := profiles.Save(p); err != nil {
		a.log.WithError(err).Warn("Failed to save calibration profile")
		return
	}
	if err := profiles.Prune(profileHistory); err != nil {
		a.log.WithError(err).Warn("Failed to prune calibration profiles")
	}
	a.log.WithField("profile", p.ID).Debug("Calibration profile saved")
}

func (a *App) setStatus(st engine.State) {
	a.snapMu.Lock()
	a.status = st
	a.snapMu.Unlock()
}

// snapshot refreshes the copies served to other goroutines.
func (a *App) snapshot() {
	st := a.engine.Snapshot()
	cfg := a.engine.Config().Clone()
	a.snapMu.Lock()
	a.status = st
	a.cfg = cfg
	a.snapMu.Unlock()
}
