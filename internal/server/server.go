// Package server provides the HTTP server for drishti.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ayusman/drishti/internal/app"
	"github.com/ayusman/drishti/internal/log"
	"github.com/ayusman/drishti/internal/plugin"
	"github.com/ayusman/drishti/internal/server/api"
	"github.com/ayusman/drishti/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	App       *app.App
	// Screen size reported to the dashboard for laying out calibration targets.
	ScreenWidth  int
	ScreenHeight int
}

// Server represents the HTTP server for the drishti application.
type Server struct {
	config Config
	router *mux.Router
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		router: mux.NewRouter(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)

	if s.config.Store != nil {
		api.NewProfileHandler(s.config.Store, s.config.App).Register(s.router)

		var plugins *plugin.Manager
		if s.config.App != nil {
			plugins = s.config.App.PluginManager()
		}
		api.NewHookHandler(s.config.Store, plugins).Register(s.router)
	}

	if s.config.App != nil {
		api.NewCalibrationHandler(s.config.App).Register(s.router)
		api.NewAttentionHandler(s.config.App).Register(s.router)
		s.router.Handle("/api/stream", NewEstimateStream(s.config.App))
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.App != nil {
		response["schema"] = s.config.App.Schema().Name
		response["calibrated"] = s.config.App.Transform() != nil
		response["tracking"] = s.config.App.IsEnabled()
	}
	if s.config.ScreenWidth > 0 && s.config.ScreenHeight > 0 {
		response["screen"] = map[string]int{"width": s.config.ScreenWidth, "height": s.config.ScreenHeight}
	}
	writeJSON(w, http.StatusOK, response)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Handler:     s,
		Addr:        addr,
		ReadTimeout: 60 * time.Second,
	}
	log.Info("http server listening", "addr", addr)
	return srv.ListenAndServe()
}
