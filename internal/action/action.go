// Package action maps confirmed gestures to actions and enforces the
// per-action cooldown.
package action

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ayusman/mukha/internal/config"
	"github.com/ayusman/mukha/internal/gesture"
)

// Kind is the type of an action.
type Kind string

const (
	LeftClick    Kind = "left_click"
	RightClick   Kind = "right_click"
	DoubleClick  Kind = "double_click"
	TogglePause  Kind = "toggle_pause"
	ToggleScroll Kind = "toggle_scroll"
	Recalibrate  Kind = "recalibrate"
	Plugin       Kind = "plugin"
)

// Kinds lists every action kind.
var Kinds = []Kind{LeftClick, RightClick, DoubleClick, TogglePause, ToggleScroll, Recalibrate, Plugin}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, v := range Kinds {
		if v == k {
			return true
		}
	}
	return false
}

// IsClick reports whether k injects a mouse button press.
func (k Kind) IsClick() bool {
	return k == LeftClick || k == RightClick || k == DoubleClick
}

// IsMode reports whether k changes engine mode.
func (k Kind) IsMode() bool {
	return k == TogglePause || k == ToggleScroll || k == Recalibrate
}

// ErrInvalidBinding is returned for bindings with unknown events or actions.
var ErrInvalidBinding = errors.New("invalid binding")

// Spec is one configured action.
type Spec struct {
	Kind    Kind   `json:"kind"`
	Plugin  string `json:"plugin,omitempty"`
	Command string `json:"command,omitempty"`
}

// Key identifies the action for cooldown purposes. Plugin actions are keyed
// by plugin and command so different plugin actions do not block each other.
func (s Spec) Key() string {
	if s.Kind == Plugin {
		return fmt.Sprintf("%s:%s/%s", s.Kind, s.Plugin, s.Command)
	}
	return string(s.Kind)
}

// Validate checks that the spec can be dispatched.
func (s Spec) Validate() error {
	if !s.Kind.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidBinding, s.Kind)
	}
	if s.Kind == Plugin && (s.Plugin == "" || s.Command == "") {
		return fmt.Errorf("%w: plugin action needs plugin and command", ErrInvalidBinding)
	}
	return nil
}

// Bindings is the event to action table. An event may map to several actions
// and several events may share one action.
type Bindings map[gesture.EventName][]Spec

// FromConfig builds a table from configuration bindings.
func FromConfig(list []config.Binding) (Bindings, error) {
	b := make(Bindings, len(list))
	for _, cb := range list {
		if err := b.Add(gesture.EventName(cb.Event), Spec{Kind: Kind(cb.Action), Plugin: cb.Plugin, Command: cb.Command}); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// ToConfig flattens the table into configuration bindings, sorted by event.
func (b Bindings) ToConfig() []config.Binding {
	events := make([]string, 0, len(b))
	for e := range b {
		events = append(events, string(e))
	}
	sort.Strings(events)

	var out []config.Binding
	for _, e := range events {
		for _, s := range b[gesture.EventName(e)] {
			out = append(out, config.Binding{Event: e, Action: string(s.Kind), Plugin: s.Plugin, Command: s.Command})
		}
	}
	return out
}

// Add binds event to spec. Duplicate bindings are ignored.
func (b Bindings) Add(event gesture.EventName, spec Spec) error {
	if !event.Valid() {
		return fmt.Errorf("%w: unknown event %q", ErrInvalidBinding, event)
	}
	if err := spec.Validate(); err != nil {
		return err
	}
	for _, existing := range b[event] {
		if existing == spec {
			return nil
		}
	}
	b[event] = append(b[event], spec)
	return nil
}

// Clone returns a deep copy.
func (b Bindings) Clone() Bindings {
	out := make(Bindings, len(b))
	for e, specs := range b {
		out[e] = append([]Spec(nil), specs...)
	}
	return out
}

// Event is an action ready to be carried out.
type Event struct {
	Spec
	Trigger gesture.Event `json:"trigger"`
	At      time.Time     `json:"at"`
}
