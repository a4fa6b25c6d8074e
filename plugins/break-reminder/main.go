// Package main provides a break reminder plugin.
// It reads the attention session carried by a transition and suggests a break
// when the user is drowsy, has worked too long, or keeps drifting away.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action   string          `json:"action"`
	Event    string          `json:"event"`
	Previous string          `json:"previous"`
	Stats    *Stats          `json:"stats"`
	Config   json.RawMessage `json:"config"`
	Params   json.RawMessage `json:"params"`
}

// Stats mirrors the attention session accounting sent by drishti.
type Stats struct {
	State        string        `json:"state"`
	Total        time.Duration `json:"total"`
	Attentive    time.Duration `json:"attentive"`
	Streak       time.Duration `json:"streak"`
	Distractions int           `json:"distractions"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config is the per-hook configuration.
type Config struct {
	MaxSessionMinutes float64 `json:"max_session_minutes"`
	MinFocusRatio     float64 `json:"min_focus_ratio"`
}

// Advice is returned in the response data of every action.
type Advice struct {
	TakeBreak bool    `json:"take_break"`
	Message   string  `json:"message"`
	Focus     float64 `json:"focus"`
}

// minFocusWindow is how much session time must pass before a low focus ratio
// counts.
const minFocusWindow = 10 * time.Minute

func defaultConfig() Config {
	return Config{MaxSessionMinutes: 50, MinFocusRatio: 0.5}
}

func main() {
	// Read request from stdin
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	cfg := defaultConfig()
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeErrorResponse(fmt.Sprintf("invalid config: %v", err))
			return
		}
	}

	switch req.Action {
	case "advise":
		writeAdvice(advise(req, cfg))
	case "notify":
		advice := advise(req, cfg)
		if advice.TakeBreak {
			if err := notify("drishti", advice.Message); err != nil {
				writeErrorResponse(fmt.Sprintf("notification failed: %v", err))
				return
			}
		}
		writeAdvice(advice)
	default:
		writeErrorResponse(fmt.Sprintf("unknown action: %s", req.Action))
	}
}

// advise decides whether a break is due.
func advise(req Request, cfg Config) Advice {
	var s Stats
	if req.Stats != nil {
		s = *req.Stats
	}

	var focus float64
	if s.Total > 0 {
		focus = float64(s.Attentive) / float64(s.Total)
	}
	limit := time.Duration(cfg.MaxSessionMinutes * float64(time.Minute))

	a := Advice{Focus: focus}
	switch {
	case req.Event == "drowsy":
		a.TakeBreak = true
		a.Message = "You look tired. Stand up and rest your eyes for a few minutes."
	case limit > 0 && s.Total >= limit:
		a.TakeBreak = true
		a.Message = fmt.Sprintf("You have been at the screen for %d minutes. Time for a short break.", int(s.Total.Minutes()))
	case s.Total >= minFocusWindow && focus < cfg.MinFocusRatio:
		a.TakeBreak = true
		a.Message = fmt.Sprintf("Focus is down to %.0f%%. A short break may help.", focus*100)
	default:
		a.Message = "Keep going."
	}
	return a
}

// notify shows a desktop notification.
func notify(title, message string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("osascript", "-e", fmt.Sprintf("display notification %q with title %q", message, title))
	case "linux":
		cmd = exec.Command("notify-send", title, message)
	default:
		return fmt.Errorf("notifications not supported on %s", runtime.GOOS)
	}
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

// writeAdvice writes a success response carrying a.
func writeAdvice(a Advice) {
	data, _ := json.Marshal(a)
	json.NewEncoder(os.Stdout).Encode(Response{Success: true, Data: data})
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	resp := Response{
		Success: false,
		Error:   errMsg,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
