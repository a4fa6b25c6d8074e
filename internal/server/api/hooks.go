package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/ayusman/drishti/internal/attention"
	"github.com/ayusman/drishti/internal/plugin"
	"github.com/ayusman/drishti/internal/store"
)

// HookHandler handles HTTP requests for attention hooks and lists plugins.
type HookHandler struct {
	store   *store.Store
	plugins *plugin.Manager
}

// NewHookHandler creates a new HookHandler. When plugins is nil, hooks are
// accepted without checking that the plugin is installed.
func NewHookHandler(s *store.Store, plugins *plugin.Manager) *HookHandler {
	return &HookHandler{store: s, plugins: plugins}
}

// Register adds the hook and plugin routes to r.
func (h *HookHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/hooks", h.list).Methods(http.MethodGet)
	r.HandleFunc("/api/hooks", h.create).Methods(http.MethodPost)
	r.HandleFunc("/api/hooks/{id}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/api/hooks/{id}", h.update).Methods(http.MethodPut)
	r.HandleFunc("/api/hooks/{id}", h.delete).Methods(http.MethodDelete)
	r.HandleFunc("/api/plugins", h.listPlugins).Methods(http.MethodGet)
}

// Request and response types

type createHookRequest struct {
	Event      string          `json:"event"`
	PluginName string          `json:"plugin_name"`
	ActionName string          `json:"action_name"`
	Config     json.RawMessage `json:"config"`
}

type updateHookRequest struct {
	Event      string          `json:"event"`
	PluginName string          `json:"plugin_name"`
	ActionName string          `json:"action_name"`
	Config     json.RawMessage `json:"config"`
	Enabled    *bool           `json:"enabled"`
}

type hookResponse struct {
	ID         string          `json:"id"`
	Event      string          `json:"event"`
	PluginName string          `json:"plugin_name"`
	ActionName string          `json:"action_name"`
	Config     json.RawMessage `json:"config"`
	Enabled    bool            `json:"enabled"`
	CreatedAt  string          `json:"created_at"`
}

type listHooksResponse struct {
	Hooks []hookResponse `json:"hooks"`
}

type pluginResponse struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Actions     []string `json:"actions"`
	Events      []string `json:"events"`
}

type listPluginsResponse struct {
	Plugins []pluginResponse `json:"plugins"`
}

func toHookResponse(hk *store.Hook) hookResponse {
	config := hk.Config
	if config == nil {
		config = json.RawMessage("{}")
	}
	return hookResponse{
		ID:         hk.ID,
		Event:      hk.Event,
		PluginName: hk.PluginName,
		ActionName: hk.ActionName,
		Config:     config,
		Enabled:    hk.Enabled,
		CreatedAt:  hk.CreatedAt.Format(timeFormat),
	}
}

// list handles GET /api/hooks, optionally filtered by ?event=.
func (h *HookHandler) list(w http.ResponseWriter, r *http.Request) {
	var (
		hooks []*store.Hook
		err   error
	)
	if event := r.URL.Query().Get("event"); event != "" {
		hooks, err = h.store.Hooks().ListByEvent(event)
	} else {
		hooks, err = h.store.Hooks().List()
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list hooks")
		return
	}

	response := listHooksResponse{
		Hooks: make([]hookResponse, 0, len(hooks)),
	}
	for _, hk := range hooks {
		response.Hooks = append(response.Hooks, toHookResponse(hk))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/hooks/{id}.
func (h *HookHandler) get(w http.ResponseWriter, r *http.Request) {
	hk, ok := h.lookup(w, mux.Vars(r)["id"])
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toHookResponse(hk))
}

// create handles POST /api/hooks and binds a plugin action to an attention event.
func (h *HookHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createHookRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Event == "" {
		writeError(w, http.StatusBadRequest, "event is required")
		return
	}
	if req.PluginName == "" {
		writeError(w, http.StatusBadRequest, "plugin_name is required")
		return
	}
	if req.ActionName == "" {
		writeError(w, http.StatusBadRequest, "action_name is required")
		return
	}
	if !h.validate(w, req.Event, req.PluginName, req.ActionName) {
		return
	}

	config := req.Config
	if config == nil {
		config = json.RawMessage("{}")
	}

	hk := &store.Hook{
		ID:         uuid.New().String(),
		Event:      req.Event,
		PluginName: req.PluginName,
		ActionName: req.ActionName,
		Config:     config,
		Enabled:    true,
	}

	if err := h.store.Hooks().Create(hk); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create hook")
		return
	}

	writeJSON(w, http.StatusCreated, toHookResponse(hk))
}

// update handles PUT /api/hooks/{id}.
func (h *HookHandler) update(w http.ResponseWriter, r *http.Request) {
	hk, ok := h.lookup(w, mux.Vars(r)["id"])
	if !ok {
		return
	}

	var req updateHookRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	// Update fields if provided
	if req.Event != "" {
		hk.Event = req.Event
	}
	if req.PluginName != "" {
		hk.PluginName = req.PluginName
	}
	if req.ActionName != "" {
		hk.ActionName = req.ActionName
	}
	if req.Config != nil {
		hk.Config = req.Config
	}
	if req.Enabled != nil {
		hk.Enabled = *req.Enabled
	}
	if !h.validate(w, hk.Event, hk.PluginName, hk.ActionName) {
		return
	}

	if err := h.store.Hooks().Update(hk); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update hook")
		return
	}

	writeJSON(w, http.StatusOK, toHookResponse(hk))
}

// delete handles DELETE /api/hooks/{id}.
func (h *HookHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Hooks().Delete(mux.Vars(r)["id"]); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Hook not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete hook")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// listPlugins handles GET /api/plugins.
func (h *HookHandler) listPlugins(w http.ResponseWriter, r *http.Request) {
	response := listPluginsResponse{Plugins: []pluginResponse{}}
	if h.plugins != nil {
		for _, p := range h.plugins.List() {
			response.Plugins = append(response.Plugins, pluginResponse{
				Name:        p.Manifest.Name,
				Version:     p.Manifest.Version,
				Description: p.Manifest.Description,
				Actions:     p.Manifest.Actions,
				Events:      p.Manifest.Events,
			})
		}
	}
	writeJSON(w, http.StatusOK, response)
}

// validate checks that event names an attention state and that the plugin
// exposes action.
func (h *HookHandler) validate(w http.ResponseWriter, event, pluginName, action string) bool {
	if _, err := attention.ParseState(event); err != nil {
		writeError(w, http.StatusBadRequest, "Unknown event")
		return false
	}
	if h.plugins == nil {
		return true
	}

	p, err := h.plugins.Get(pluginName)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Plugin not found")
		return false
	}
	if !p.Manifest.HasAction(action) {
		writeError(w, http.StatusBadRequest, "Plugin does not provide this action")
		return false
	}
	return true
}

func (h *HookHandler) lookup(w http.ResponseWriter, id string) (*store.Hook, bool) {
	hk, err := h.store.Hooks().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Hook not found")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, "Failed to get hook")
		return nil, false
	}
	return hk, true
}
