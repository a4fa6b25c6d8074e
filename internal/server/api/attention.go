package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ayusman/drishti/internal/app"
	"github.com/ayusman/drishti/internal/attention"
)

// AttentionHandler exposes the attention session and the latest estimate.
type AttentionHandler struct {
	app *app.App
}

// NewAttentionHandler creates a new AttentionHandler.
func NewAttentionHandler(a *app.App) *AttentionHandler {
	return &AttentionHandler{app: a}
}

// Register adds the attention routes to r.
func (h *AttentionHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/attention", h.stats).Methods(http.MethodGet)
	r.HandleFunc("/api/attention/reset", h.reset).Methods(http.MethodPost)
	r.HandleFunc("/api/estimate", h.estimate).Methods(http.MethodGet)
	r.HandleFunc("/api/tracking", h.tracking).Methods(http.MethodGet, http.MethodPut)
}

type attentionResponse struct {
	attention.Stats
	FocusRatio float64 `json:"focus_ratio"`
}

type trackingRequest struct {
	Enabled bool `json:"enabled"`
}

func toAttentionResponse(s attention.Stats) attentionResponse {
	return attentionResponse{Stats: s, FocusRatio: s.FocusRatio()}
}

// stats handles GET /api/attention.
func (h *AttentionHandler) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toAttentionResponse(h.app.AttentionStats()))
}

// reset handles POST /api/attention/reset and starts a new session.
func (h *AttentionHandler) reset(w http.ResponseWriter, r *http.Request) {
	h.app.ResetAttention()
	writeJSON(w, http.StatusOK, toAttentionResponse(h.app.AttentionStats()))
}

// estimate handles GET /api/estimate.
func (h *AttentionHandler) estimate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Last())
}

// tracking handles GET and PUT /api/tracking to pause or resume processing.
func (h *AttentionHandler) tracking(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPut {
		var req trackingRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		h.app.SetEnabled(req.Enabled)
	}
	writeJSON(w, http.StatusOK, trackingRequest{Enabled: h.app.IsEnabled()})
}
