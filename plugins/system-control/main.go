// Package main provides a macOS system control plugin for attention hooks.
// It lowers the volume while the user looks away, pauses media or locks the
// screen when they leave, dims the display when they are drowsy and restores
// everything once they are attentive again.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action   string          `json:"action"`
	Event    string          `json:"event"`
	Previous string          `json:"previous"`
	Config   json.RawMessage `json:"config"`
	Params   json.RawMessage `json:"params"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config is the per-hook configuration.
type Config struct {
	// DuckVolume is the output volume in percent while the user looks away.
	DuckVolume int `json:"duck_volume"`
	// DimSteps is how many brightness key presses a dim applies.
	DimSteps     int  `json:"dim_steps"`
	LockOnAbsent bool `json:"lock_on_absent"`
}

func defaultConfig() Config {
	return Config{DuckVolume: 20, DimSteps: 4}
}

// state survives between invocations so a later attentive event can undo
// what earlier events changed.
type state struct {
	// Volume is the level saved before ducking; -1 when nothing is ducked.
	Volume int `json:"volume"`
	Dimmed int `json:"dimmed"`
}

// Overridden in tests.
var (
	osascript = runAppleScript
	statePath = filepath.Join(os.TempDir(), "drishti-system-control.json")
)

// controller applies actions against the saved state.
type controller struct {
	cfg   Config
	state state
	done  []string
}

// actionHandlers maps action names to their handlers. "notify" picks the
// reaction from the event.
var actionHandlers = map[string]func(*controller, Request) error{
	"notify":      (*controller).react,
	"duck":        func(c *controller, _ Request) error { return c.duck() },
	"restore":     func(c *controller, _ Request) error { return c.restore() },
	"dim":         func(c *controller, _ Request) error { return c.dim() },
	"pause-media": func(c *controller, _ Request) error { return c.pauseMedia() },
	"lock-screen": func(c *controller, _ Request) error { return c.lockScreen() },
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	done, err := handle(req)
	if err != nil {
		writeErrorResponse(err.Error())
		return
	}
	data, _ := json.Marshal(map[string][]string{"done": done})
	json.NewEncoder(os.Stdout).Encode(Response{Success: true, Data: data})
}

// handle runs req against the saved state and returns the steps taken.
func handle(req Request) ([]string, error) {
	handler, ok := actionHandlers[req.Action]
	if !ok {
		return nil, fmt.Errorf("unknown action: %s", req.Action)
	}

	cfg := defaultConfig()
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}

	c := &controller{cfg: cfg, state: loadState()}
	err := handler(c, req)
	if serr := saveState(c.state); serr != nil && err == nil {
		err = serr
	}
	if err != nil {
		return c.done, fmt.Errorf("action %s failed: %w", req.Action, err)
	}
	return c.done, nil
}

func (c *controller) react(req Request) error {
	switch req.Event {
	case "looking_away":
		return c.duck()
	case "absent":
		if err := c.pauseMedia(); err != nil {
			return err
		}
		if c.cfg.LockOnAbsent {
			return c.lockScreen()
		}
		return nil
	case "drowsy":
		return c.dim()
	case "attentive":
		return errors.Join(c.restore(), c.brighten())
	default:
		return fmt.Errorf("no reaction for event %q", req.Event)
	}
}

func (c *controller) duck() error {
	if c.state.Volume >= 0 {
		return nil
	}
	out, err := osascript(`output volume of (get volume settings)`)
	if err != nil {
		return err
	}
	current, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return fmt.Errorf("unexpected volume %q", out)
	}
	if current <= c.cfg.DuckVolume {
		return nil
	}
	if _, err := osascript(fmt.Sprintf("set volume output volume %d", c.cfg.DuckVolume)); err != nil {
		return err
	}
	c.state.Volume = current
	c.done = append(c.done, "duck")
	return nil
}

func (c *controller) restore() error {
	if c.state.Volume < 0 {
		return nil
	}
	if _, err := osascript(fmt.Sprintf("set volume output volume %d", c.state.Volume)); err != nil {
		return err
	}
	c.state.Volume = -1
	c.done = append(c.done, "restore")
	return nil
}

func (c *controller) dim() error {
	if c.state.Dimmed > 0 {
		return nil
	}
	if err := pressKey(145, c.cfg.DimSteps); err != nil {
		return err
	}
	c.state.Dimmed = c.cfg.DimSteps
	c.done = append(c.done, "dim")
	return nil
}

func (c *controller) brighten() error {
	if c.state.Dimmed <= 0 {
		return nil
	}
	if err := pressKey(144, c.state.Dimmed); err != nil {
		return err
	}
	c.state.Dimmed = 0
	c.done = append(c.done, "brighten")
	return nil
}

// pauseMedia pauses the Music app if it is running. It never resumes playback.
func (c *controller) pauseMedia() error {
	_, err := osascript(`if application "Music" is running then
	tell application "Music" to pause
end if`)
	if err == nil {
		c.done = append(c.done, "pause-media")
	}
	return err
}

// lockScreen locks the session with the Control-Command-Q shortcut.
func (c *controller) lockScreen() error {
	_, err := osascript(`tell application "System Events"
	keystroke "q" using {control down, command down}
end tell`)
	if err == nil {
		c.done = append(c.done, "lock-screen")
	}
	return err
}

// pressKey sends a System Events key code n times in one script.
func pressKey(code, n int) error {
	if n <= 0 {
		return nil
	}
	_, err := osascript(fmt.Sprintf(`tell application "System Events"
	repeat %d times
		key code %d
	end repeat
end tell`, n, code))
	return err
}

func loadState() state {
	s := state{Volume: -1}
	data, err := os.ReadFile(statePath)
	if err != nil {
		return s
	}
	if json.Unmarshal(data, &s) != nil {
		return state{Volume: -1}
	}
	return s
}

func saveState(s state) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(statePath, data, 0600)
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	resp := Response{
		Success: false,
		Error:   errMsg,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

// runAppleScript executes an AppleScript command and returns its output.
func runAppleScript(script string) (string, error) {
	cmd := exec.Command("osascript", "-e", script)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%w: %s", err, string(output))
	}
	return string(output), nil
}
