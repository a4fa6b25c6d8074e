package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/ayusman/drishti/internal/app"
	"github.com/ayusman/drishti/internal/calibration"
	"github.com/ayusman/drishti/internal/store"
)

// ProfileHandler handles HTTP requests for calibration profiles.
type ProfileHandler struct {
	store *store.Store
	app   *app.App
}

// NewProfileHandler creates a new ProfileHandler. a supplies the transform
// saved by create and receives activated profiles; it may be nil.
func NewProfileHandler(s *store.Store, a *app.App) *ProfileHandler {
	return &ProfileHandler{store: s, app: a}
}

// Register adds the profile routes to r.
func (h *ProfileHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/profiles", h.list).Methods(http.MethodGet)
	r.HandleFunc("/api/profiles", h.create).Methods(http.MethodPost)
	r.HandleFunc("/api/profiles/active", h.active).Methods(http.MethodGet)
	r.HandleFunc("/api/profiles/{id}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/api/profiles/{id}", h.update).Methods(http.MethodPut)
	r.HandleFunc("/api/profiles/{id}", h.delete).Methods(http.MethodDelete)
	r.HandleFunc("/api/profiles/{id}/activate", h.activate).Methods(http.MethodPost)
}

// Request and response types

type createProfileRequest struct {
	Name string `json:"name"`
	// Transform is optional; the app's active transform is saved when omitted.
	Transform *calibration.Transform `json:"transform,omitempty"`
	Schema    string                 `json:"schema,omitempty"`
	Accuracy  float64                `json:"accuracy,omitempty"`
}

type updateProfileRequest struct {
	Name string `json:"name"`
}

type profileResponse struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Schema       string           `json:"schema"`
	Mode         calibration.Mode `json:"mode"`
	FeatureCount int              `json:"feature_count"`
	Samples      int              `json:"samples"`
	Accuracy     float64          `json:"accuracy"`
	CreatedAt    string           `json:"created_at"`
	UpdatedAt    string           `json:"updated_at"`
}

type listProfilesResponse struct {
	Profiles []profileResponse `json:"profiles"`
}

func toProfileResponse(p *store.Profile) profileResponse {
	return profileResponse{
		ID:           p.ID,
		Name:         p.Name,
		Schema:       p.Schema,
		Mode:         p.Transform.Mode,
		FeatureCount: p.Transform.FeatureCount,
		Samples:      p.Transform.Samples,
		Accuracy:     p.Accuracy,
		CreatedAt:    p.CreatedAt.Format(timeFormat),
		UpdatedAt:    p.UpdatedAt.Format(timeFormat),
	}
}

// list handles GET /api/profiles and returns all profiles.
func (h *ProfileHandler) list(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.store.Profiles().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list profiles")
		return
	}

	response := listProfilesResponse{
		Profiles: make([]profileResponse, 0, len(profiles)),
	}
	for _, p := range profiles {
		response.Profiles = append(response.Profiles, toProfileResponse(p))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/profiles/{id}.
func (h *ProfileHandler) get(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, mux.Vars(r)["id"])
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

// active handles GET /api/profiles/active.
func (h *ProfileHandler) active(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.ActiveProfile()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "No active profile")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get active profile")
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

// create handles POST /api/profiles and saves a transform under a name.
func (h *ProfileHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	p := &store.Profile{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Schema:    req.Schema,
		Transform: req.Transform,
		Accuracy:  req.Accuracy,
	}
	if p.Transform == nil && h.app != nil {
		p.Transform = h.app.Transform()
		p.Schema = h.app.Schema().Name
		if acc := h.app.Accuracy(); acc != nil {
			p.Accuracy = acc.Mean
		}
	}
	if p.Transform == nil {
		writeError(w, http.StatusBadRequest, "No calibration to save")
		return
	}
	if p.Schema == "" {
		writeError(w, http.StatusBadRequest, "schema is required")
		return
	}
	if err := p.Transform.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid transform: "+err.Error())
		return
	}

	if _, err := h.store.Profiles().GetByName(p.Name); err == nil {
		writeError(w, http.StatusConflict, "Profile name already exists")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "Failed to check existing profile")
		return
	}

	if err := h.store.Profiles().Create(p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create profile")
		return
	}

	writeJSON(w, http.StatusCreated, toProfileResponse(p))
}

// update handles PUT /api/profiles/{id} and renames a profile.
func (h *ProfileHandler) update(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, mux.Vars(r)["id"])
	if !ok {
		return
	}

	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		p.Name = name
	}

	if err := h.store.Profiles().Update(p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update profile")
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

// delete handles DELETE /api/profiles/{id}.
func (h *ProfileHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Profiles().Delete(mux.Vars(r)["id"]); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Profile not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete profile")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// activate handles POST /api/profiles/{id}/activate. The profile is loaded
// into the running pipeline and remembered for the next start.
func (h *ProfileHandler) activate(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, mux.Vars(r)["id"])
	if !ok {
		return
	}

	if h.app != nil {
		if err := h.app.ActivateProfile(p); err != nil {
			writeError(w, http.StatusConflict, "Profile does not match the running feature schema")
			return
		}
	}
	if err := h.store.SetActiveProfile(p.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to activate profile")
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

func (h *ProfileHandler) lookup(w http.ResponseWriter, id string) (*store.Profile, bool) {
	p, err := h.store.Profiles().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Profile not found")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, "Failed to get profile")
		return nil, false
	}
	return p, true
}
