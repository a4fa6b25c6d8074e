// Package plugin discovers and runs external programs that react to attention
// transitions.
package plugin

import (
	"encoding/json"
	"slices"

	"github.com/ayusman/drishti/internal/attention"
)

// Manifest describes a plugin's metadata and capabilities.
type Manifest struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Executable  string   `json:"executable"`
	Actions     []string `json:"actions"`
	// Events lists the attention states whose entry the plugin wants to hear
	// about without an explicit hook.
	Events       []string        `json:"events,omitempty"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// Subscribes reports whether the manifest lists event.
func (m Manifest) Subscribes(event string) bool {
	return slices.Contains(m.Events, event)
}

// HasAction reports whether the manifest lists action.
func (m Manifest) HasAction(action string) bool {
	return slices.Contains(m.Actions, action)
}

// Request is written as JSON to the plugin's stdin.
type Request struct {
	Action string `json:"action"`
	// Event is the attention state just entered; Previous is the one left.
	Event    string           `json:"event"`
	Previous string           `json:"previous,omitempty"`
	Stats    *attention.Stats `json:"stats,omitempty"`
	Config   json.RawMessage  `json:"config,omitempty"`
	Params   json.RawMessage  `json:"params,omitempty"`
}

// NewRequest builds the request for an attention transition.
func NewRequest(action string, tr attention.Transition) *Request {
	stats := tr.Stats
	return &Request{
		Action:   action,
		Event:    tr.To.String(),
		Previous: tr.From.String(),
		Stats:    &stats,
	}
}

// Response is read as JSON from the plugin's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}
