// Command keyboard is a mukha plugin that sends key presses and typed text
// through robotgo.
//
// Commands:
//
//	keystroke  {"key": "space"}
//	shortcut   {"key": "c", "modifiers": ["ctrl"]}
//	type       {"text": "hello"}
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-vgo/robotgo"
)

type request struct {
	Command string          `json:"command"`
	Event   string          `json:"event"`
	Params  json.RawMessage `json:"params"`
}

type response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type keyParams struct {
	Key       string   `json:"key"`
	Modifiers []string `json:"modifiers"`
	Text      string   `json:"text"`
}

// modifierAliases maps accepted names onto robotgo modifier keys.
var modifierAliases = map[string]string{
	"command": "cmd",
	"cmd":     "cmd",
	"option":  "alt",
	"alt":     "alt",
	"control": "ctrl",
	"ctrl":    "ctrl",
	"shift":   "shift",
}

func main() {
	var req request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		reply(fmt.Errorf("decode request: %w", err))
		return
	}
	reply(run(req))
}

func run(req request) error {
	var p keyParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return fmt.Errorf("parse params: %w", err)
		}
	}

	switch req.Command {
	case "keystroke", "shortcut":
		if p.Key == "" {
			return errors.New("key is required")
		}
		mods, err := modifiers(p.Modifiers)
		if err != nil {
			return err
		}
		return robotgo.KeyTap(p.Key, mods...)
	case "type":
		if p.Text == "" {
			return errors.New("text is required")
		}
		robotgo.TypeStr(p.Text)
		return nil
	}
	return fmt.Errorf("unknown command: %s", req.Command)
}

func modifiers(names []string) ([]interface{}, error) {
	out := make([]interface{}, 0, len(names))
	for _, n := range names {
		m, ok := modifierAliases[strings.ToLower(n)]
		if !ok {
			return nil, fmt.Errorf("unknown modifier: %s", n)
		}
		out = append(out, m)
	}
	return out, nil
}

func reply(err error) {
	resp := response{Success: err == nil}
	if err != nil {
		resp.Error = err.Error()
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
