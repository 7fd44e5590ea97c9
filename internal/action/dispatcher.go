package action

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/mukha/internal/config"
	"github.com/ayusman/mukha/internal/gesture"
	"github.com/ayusman/mukha/internal/logging"
)

// Dispatcher routes gesture events through the binding table. It applies a
// cooldown per action key that is separate from the recognizers' own
// cooldowns, so two gestures bound to the same action inside one window
// yield a single action.
type Dispatcher struct {
	cfg      *config.Config
	log      logrus.FieldLogger
	bindings Bindings
	last     map[string]time.Time
}

// NewDispatcher creates a dispatcher using bindings. Cooldowns are read
// from cfg on every dispatch.
func NewDispatcher(cfg *config.Config, bindings Bindings, log logrus.FieldLogger) *Dispatcher {
	if bindings == nil {
		bindings = Bindings{}
	}
	return &Dispatcher{
		cfg:      cfg,
		log:      logging.Component(log, "dispatcher"),
		bindings: bindings,
		last:     make(map[string]time.Time),
	}
}

// Bindings returns a copy of the active table.
func (d *Dispatcher) Bindings() Bindings {
	return d.bindings.Clone()
}

// SetBindings replaces the table. Cooldown history is kept.
func (d *Dispatcher) SetBindings(b Bindings) {
	if b == nil {
		b = Bindings{}
	}
	d.bindings = b.Clone()
}

// Reset forgets cooldown history.
func (d *Dispatcher) Reset() {
	d.last = make(map[string]time.Time)
}

// Cooldown returns the cooldown that applies to kind.
func (d *Dispatcher) Cooldown(kind Kind) time.Duration {
	ac := d.cfg.Actions
	switch {
	case kind.IsClick():
		return ac.ClickCooldown.Std()
	case kind.IsMode():
		return ac.ModeCooldown.Std()
	}
	return ac.PluginCooldown.Std()
}

// Dispatch maps events to actions in order. While paused only toggle_pause
// actions pass, so the user can always resume.
func (d *Dispatcher) Dispatch(events []gesture.Event, now time.Time, paused bool) []Event {
	var out []Event
	for _, ev := range events {
		for _, spec := range d.bindings[ev.Name] {
			if paused && spec.Kind != TogglePause {
				continue
			}
			key := spec.Key()
			if last, ok := d.last[key]; ok && now.Sub(last) < d.Cooldown(spec.Kind) {
				d.log.WithFields(logrus.Fields{
					"event":  string(ev.Name),
					"action": key,
				}).Debug("Action suppressed by cooldown")
				continue
			}
			d.last[key] = now
			out = append(out, Event{Spec: spec, Trigger: ev, At: now})
		}
	}
	return out
}
