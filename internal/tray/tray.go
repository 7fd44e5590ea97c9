// Package tray provides the system tray menu for mukha.
package tray

import (
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/mukha/internal/action"
	"github.com/ayusman/mukha/internal/calibration"
	"github.com/ayusman/mukha/internal/engine"
)

// Controller is the part of the application the menu drives.
type Controller interface {
	Status() engine.State
	SetPaused(paused bool)
	SetScroll(scroll bool)
	Recalibrate()
}

// menuState is what the menu currently shows.
type menuState struct {
	paused     bool
	scroll     bool
	calibrated bool
	stage      calibration.Stage
	lastAction string
}

// Tray is the system tray menu. It implements app.Observer so the loop can
// keep the menu in sync with the engine.
type Tray struct {
	ctrl       Controller
	onSettings func()
	onQuit     func()
	mu         sync.RWMutex
	shown      menuState

	// Menu items stored for later updates
	menuStatus     *systray.MenuItem
	menuPause      *systray.MenuItem
	menuScroll     *systray.MenuItem
	menuLastAction *systray.MenuItem
}

// New creates a Tray driving ctrl.
func New(ctrl Controller) *Tray {
	return &Tray{ctrl: ctrl}
}

// OnSettings sets the callback function to be called when the settings menu item is clicked.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application. It blocks until Quit is called
// and must run on the main goroutine on macOS.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Quit closes the tray, ending Run.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("Mukha")
	systray.SetTooltip("Mukha hands-free pointer")

	t.mu.Lock()
	t.menuStatus = systray.AddMenuItem(statusTitle(t.shown), "Calibration status")
	t.menuStatus.Disable()
	systray.AddSeparator()
	t.menuPause = systray.AddMenuItem(pauseTitle(false), "Pause or resume pointer control")
	t.menuScroll = systray.AddMenuItem(scrollTitle(false), "Switch between pointing and scrolling")
	menuRecalibrate := systray.AddMenuItem("Recalibrate", "Run calibration again")
	systray.AddSeparator()
	t.menuLastAction = systray.AddMenuItem(lastActionTitle(""), "Last dispatched action")
	t.menuLastAction.Disable()
	systray.AddSeparator()
	menuSettings := systray.AddMenuItem("Open Settings...", "Open settings in browser")
	menuQuit := systray.AddMenuItem("Quit", "Quit Mukha")
	t.mu.Unlock()

	go func() {
		for {
			select {
			case <-t.menuPause.ClickedCh:
				t.ctrl.SetPaused(!t.ctrl.Status().Paused)
			case <-t.menuScroll.ClickedCh:
				t.ctrl.SetScroll(!t.ctrl.Status().Scroll)
			case <-menuRecalibrate.ClickedCh:
				t.ctrl.Recalibrate()
			case <-menuSettings.ClickedCh:
				t.callback(func() func() { return t.onSettings })
			case <-menuQuit.ClickedCh:
				t.callback(func() func() { return t.onQuit })
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) callback(get func() func()) {
	t.mu.RLock()
	fn := get()
	t.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// StateChanged updates the menu when the engine state differs from what is
// shown.
func (t *Tray) StateChanged(st engine.State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := t.shown
	next.paused, next.scroll = st.Paused, st.Scroll
	next.calibrated, next.stage = st.Calibrated, st.Stage
	if next == t.shown {
		return
	}
	t.shown = next
	if t.menuPause == nil {
		return
	}
	t.menuStatus.SetTitle(statusTitle(next))
	t.menuPause.SetTitle(pauseTitle(next.paused))
	t.menuScroll.SetTitle(scrollTitle(next.scroll))
}

// ActionDispatched shows the latest action.
func (t *Tray) ActionDispatched(ev action.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.shown.lastAction = actionLabel(ev)
	if t.menuLastAction != nil {
		t.menuLastAction.SetTitle(lastActionTitle(t.shown.lastAction))
	}
}

// LastAction returns the label of the latest action.
func (t *Tray) LastAction() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.shown.lastAction
}

func actionLabel(ev action.Event) string {
	label := string(ev.Kind)
	if ev.Kind == action.Plugin {
		label = ev.Plugin + "/" + ev.Command
	}
	return label + " (" + string(ev.Trigger.Name) + ")"
}

func statusTitle(s menuState) string {
	if s.calibrated {
		return "Calibrated"
	}
	return "Calibrating: " + s.stage.Instruction()
}

func pauseTitle(paused bool) string {
	if paused {
		return "○ Paused"
	}
	return "● Active"
}

func scrollTitle(scroll bool) string {
	if scroll {
		return "Mode: Scroll"
	}
	return "Mode: Pointer"
}

func lastActionTitle(label string) string {
	if label == "" {
		return "Last: none"
	}
	return "Last: " + label
}
