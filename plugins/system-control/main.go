// Command system-control is a mukha plugin for volume, brightness and media
// keys. It taps the platform media keys through robotgo.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-vgo/robotgo"
)

type request struct {
	Command string `json:"command"`
	Event   string `json:"event"`
}

type response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// mediaKeys maps commands onto robotgo key names.
var mediaKeys = map[string]string{
	"volume-up":        "audio_vol_up",
	"volume-down":      "audio_vol_down",
	"volume-mute":      "audio_mute",
	"brightness-up":    "lights_mon_up",
	"brightness-down":  "lights_mon_down",
	"media-play-pause": "audio_play",
	"media-next":       "audio_next",
	"media-prev":       "audio_prev",
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
	key, ok := mediaKeys[req.Command]
	if !ok {
		return fmt.Errorf("unknown command: %s", req.Command)
	}
	return robotgo.KeyTap(key)
}

func reply(err error) {
	resp := response{Success: err == nil}
	if err != nil {
		resp.Error = err.Error()
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
