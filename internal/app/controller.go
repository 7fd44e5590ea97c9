package app

import (
	"fmt"
	"time"

	"github.com/ayusman/mukha/internal/action"
	"github.com/ayusman/mukha/internal/calibration"
	"github.com/ayusman/mukha/internal/config"
	"github.com/ayusman/mukha/internal/engine"
)

// post runs fn on the loop goroutine at the next frame boundary and waits
// for it. When the loop is not running fn runs on the caller's goroutine.
func (a *App) post(fn func(now time.Time)) {
	a.runMu.Lock()
	if !a.running {
		defer a.runMu.Unlock()
		fn(a.now())
		a.snapshot()
		return
	}
	loopDone := a.loopDone
	a.runMu.Unlock()

	done := make(chan struct{})
	select {
	case a.cmds <- func(now time.Time) { fn(now); close(done) }:
	case <-loopDone:
		return
	}
	select {
	case <-done:
	case <-loopDone:
	}
}

// Status returns the engine state as of the last frame or command.
func (a *App) Status() engine.State {
	a.snapMu.RLock()
	defer a.snapMu.RUnlock()
	return a.status
}

// Config returns a copy of the active configuration.
func (a *App) Config() *config.Config {
	a.snapMu.RLock()
	defer a.snapMu.RUnlock()
	return a.cfg.Clone()
}

// Recalibrate restarts guided calibration.
func (a *App) Recalibrate() {
	a.post(func(time.Time) {
		a.engine.Recalibrate()
		a.log.Info("Recalibration requested")
	})
}

// SkipCalibrationStage ends the current calibration stage early.
func (a *App) SkipCalibrationStage() calibration.Status {
	var st calibration.Status
	a.post(func(now time.Time) {
		st = a.engine.SkipStage(now)
	})
	return st
}

// SetPaused pauses or resumes pointer control.
func (a *App) SetPaused(paused bool) {
	a.post(func(time.Time) { a.engine.SetPaused(paused) })
}

// SetScroll enters or leaves scroll mode.
func (a *App) SetScroll(scroll bool) {
	a.post(func(time.Time) {
		if move := a.engine.SetScroll(scroll); move != nil {
			a.worker.Submit(*move)
		}
	})
}

// UpdateConfig validates and applies cfg. With a store attached the stored
// binding table stays authoritative and the merged configuration is
// persisted.
func (a *App) UpdateConfig(cfg *config.Config) error {
	next := cfg.Clone()
	if err := next.Validate(); err != nil {
		return err
	}

	var err error
	a.post(func(time.Time) {
		if a.config.Store != nil {
			next.Bindings = a.engine.Bindings().ToConfig()
		}
		err = a.engine.UpdateConfig(next)
	})
	if err != nil {
		return err
	}

	if a.config.Store != nil {
		if err := a.config.Store.Settings().SaveConfig(a.Config()); err != nil {
			return fmt.Errorf("persist config: %w", err)
		}
	}
	return nil
}

// ReloadBindings reloads the binding table from the store.
func (a *App) ReloadBindings() error {
	if a.config.Store == nil {
		return nil
	}
	table, err := a.config.Store.Bindings().Table()
	if err != nil {
		return fmt.Errorf("load bindings: %w", err)
	}
	a.post(func(time.Time) { a.engine.SetBindings(table) })
	a.log.WithField("events", len(table)).Info("Bindings reloaded")
	return nil
}

// Bindings returns the active binding table.
func (a *App) Bindings() action.Bindings {
	var b action.Bindings
	a.post(func(time.Time) { b = a.engine.Bindings() })
	return b
}
