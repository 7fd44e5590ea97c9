// Package plugin runs external action plugins bound to gestures. A plugin is
// a directory holding a plugin.json manifest and an executable that reads one
// JSON Request on stdin and writes one JSON Response on stdout.
package plugin

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/ayusman/mukha/internal/gesture"
)

// ManifestFile is the manifest name looked up in each plugin directory.
const ManifestFile = "plugin.json"

// Manifest describes a plugin and the commands it accepts.
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Executable  string          `json:"executable"`
	Commands    []string        `json:"commands"`
	Params      json.RawMessage `json:"params,omitempty"`
}

// Supports reports whether the manifest lists command.
func (m Manifest) Supports(command string) bool {
	return slices.Contains(m.Commands, command)
}

// Request is written to the plugin's stdin.
type Request struct {
	Command   string            `json:"command"`
	Event     gesture.EventName `json:"event"`
	Value     float64           `json:"value"`
	At        time.Time         `json:"at"`
	SessionID string            `json:"session_id,omitempty"`
	Params    json.RawMessage   `json:"params,omitempty"`
}

// NewRequest builds the request for a confirmed gesture.
func NewRequest(command string, ev gesture.Event, params json.RawMessage) Request {
	return Request{
		Command: command,
		Event:   ev.Name,
		Value:   ev.Value,
		At:      ev.At,
		Params:  params,
	}
}

// Response is read from the plugin's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin is a discovered plugin.
type Plugin struct {
	Manifest   Manifest `json:"manifest"`
	Path       string   `json:"path"`
	Executable string   `json:"executable"`
}
