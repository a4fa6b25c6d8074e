package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ayusman/drishti/internal/app"
	"github.com/ayusman/drishti/internal/calibration"
)

// CalibrationHandler drives the calibration session of the running app.
type CalibrationHandler struct {
	app *app.App
}

// NewCalibrationHandler creates a new CalibrationHandler.
func NewCalibrationHandler(a *app.App) *CalibrationHandler {
	return &CalibrationHandler{app: a}
}

// Register adds the calibration routes to r.
func (h *CalibrationHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/calibration", h.status).Methods(http.MethodGet)
	r.HandleFunc("/api/calibration/start", h.start).Methods(http.MethodPost)
	r.HandleFunc("/api/calibration/sample", h.sample).Methods(http.MethodPost)
	r.HandleFunc("/api/calibration/fit", h.fit).Methods(http.MethodPost)
	r.HandleFunc("/api/calibration/refine", h.refine).Methods(http.MethodPost)
	r.HandleFunc("/api/calibration/validate", h.validate).Methods(http.MethodPost)
}

type startCalibrationRequest struct {
	Mode calibration.Mode `json:"mode"`
}

type calibrationStatus struct {
	SessionID    string                `json:"session_id,omitempty"`
	Schema       string                `json:"schema"`
	FeatureCount int                   `json:"feature_count"`
	Mode         calibration.Mode      `json:"mode,omitempty"`
	Samples      int                   `json:"samples"`
	MinSamples   int                   `json:"min_samples"`
	Calibrated   bool                  `json:"calibrated"`
	Accuracy     *calibration.Accuracy `json:"accuracy,omitempty"`
}

type sampleResponse struct {
	Samples int `json:"samples"`
}

type fitResponse struct {
	Transform *calibration.Transform `json:"transform"`
	Accuracy  *calibration.Accuracy  `json:"accuracy,omitempty"`
}

func (h *CalibrationHandler) currentStatus() calibrationStatus {
	schema := h.app.Schema()
	st := calibrationStatus{
		Schema:       schema.Name,
		FeatureCount: schema.Dim(),
		Calibrated:   h.app.Transform() != nil,
		Accuracy:     h.app.Accuracy(),
	}
	if s, err := h.app.Session(); err == nil {
		st.SessionID = s.ID()
		st.Mode = s.Engine().Config().Mode
		st.Samples = s.Len()
		st.MinSamples = s.Engine().MinSamples()
	}
	return st
}

// status handles GET /api/calibration.
func (h *CalibrationHandler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.currentStatus())
}

// start handles POST /api/calibration/start. An empty body starts a ridge session.
func (h *CalibrationHandler) start(w http.ResponseWriter, r *http.Request) {
	req := startCalibrationRequest{Mode: calibration.ModeRidge}
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	switch req.Mode {
	case "":
		req.Mode = calibration.ModeRidge
	case calibration.ModeRidge:
	case calibration.ModeAffine:
		if h.app.Schema().Dim() != 2 {
			writeError(w, http.StatusBadRequest, "Affine calibration needs a two-value feature schema")
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "Unknown calibration mode")
		return
	}

	h.app.StartCalibration(req.Mode)
	writeJSON(w, http.StatusCreated, h.currentStatus())
}

// sample handles POST /api/calibration/sample with the screen point the user
// is looking at.
func (h *CalibrationHandler) sample(w http.ResponseWriter, r *http.Request) {
	var target calibration.Point
	if !decodeJSON(w, r, &target) {
		return
	}

	n, err := h.app.CaptureSample(target)
	if err != nil {
		writeCalibrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sampleResponse{Samples: n})
}

// fit handles POST /api/calibration/fit.
func (h *CalibrationHandler) fit(w http.ResponseWriter, r *http.Request) {
	t, acc, err := h.app.FitCalibration(r.Context())
	if err != nil {
		writeCalibrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fitResponse{Transform: t, Accuracy: &acc})
}

// refine handles POST /api/calibration/refine.
func (h *CalibrationHandler) refine(w http.ResponseWriter, r *http.Request) {
	var target calibration.Point
	if !decodeJSON(w, r, &target) {
		return
	}

	t, err := h.app.RefineCalibration(target)
	if err != nil {
		writeCalibrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fitResponse{Transform: t})
}

// validate handles POST /api/calibration/validate.
func (h *CalibrationHandler) validate(w http.ResponseWriter, r *http.Request) {
	var target calibration.Point
	if !decodeJSON(w, r, &target) {
		return
	}

	v, err := h.app.Validate(target)
	if err != nil {
		writeCalibrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// writeCalibrationError maps calibration failures to HTTP statuses.
func writeCalibrationError(w http.ResponseWriter, err error) {
	var dimErr *calibration.DimensionError
	switch {
	case errors.Is(err, app.ErrNoSession), errors.Is(err, app.ErrNotCalibrated):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrNoFace):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, calibration.ErrNoTransform), errors.As(err, &dimErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
