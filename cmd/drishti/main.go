package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/ayusman/drishti/internal/app"
	"github.com/ayusman/drishti/internal/capture"
	"github.com/ayusman/drishti/internal/config"
	"github.com/ayusman/drishti/internal/features"
	"github.com/ayusman/drishti/internal/log"
	"github.com/ayusman/drishti/internal/server"
	"github.com/ayusman/drishti/internal/store"
	"github.com/ayusman/drishti/internal/tray"
)

func main() {
	if err := run(); err != nil {
		log.Error("drishti stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log.Init(cfg.LogLevel)
	log.Info("drishti - gaze and attention tracking")

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	st, err := store.New(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer st.Close()

	schema, err := features.SchemaByName(cfg.Schema)
	if err != nil {
		return err
	}

	camera := capture.DefaultConfig()
	camera.DeviceID = cfg.CameraID

	application := app.New(app.Config{
		Store:     st,
		PluginDir: cfg.PluginDir,
		Camera:    camera,
		Schema:    schema,
		Lambda:    cfg.Lambda,
	})
	defer application.Close()

	if err := application.DiscoverPlugins(); err != nil {
		log.Warn("plugin discovery failed", "dir", cfg.PluginDir, "error", err)
	}
	if err := application.LoadActiveProfile(); err != nil {
		log.Warn("active profile not loaded", "error", err)
	}
	if err := application.Start(); err != nil {
		log.Warn("camera not started, API only", "error", err)
	}

	webDir := cfg.WebDir
	if webDir == "" {
		webDir = findWebDir(cfg.DataDir)
	}
	if webDir != "" {
		log.Info("serving static files", "dir", webDir)
	}

	srv := server.New(server.Config{
		StaticDir:    webDir,
		Store:        st,
		App:          application,
		ScreenWidth:  cfg.ScreenWidth,
		ScreenHeight: cfg.ScreenHeight,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			errCh <- err
		}
	}()

	if cfg.Tray {
		return runTray(application, dashboardURL(cfg.Addr), errCh)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}

// runTray blocks on the tray loop, which must own the main thread.
func runTray(application *app.App, dashboard string, errCh <-chan error) error {
	t := tray.New()
	t.OnToggle(application.SetEnabled)
	t.OnReset(application.ResetAttention)
	t.OnSettings(func() {
		if err := openBrowser(dashboard); err != nil {
			log.Warn("open dashboard failed", "url", dashboard, "error", err)
		}
	})

	estimates, cancel := application.Subscribe()
	defer cancel()
	go func() {
		var last string
		for est := range estimates {
			// Titles only change with the state or the rounded focus.
			title := tray.Title(est.Stats) + tray.StateLine(est.Stats)
			if title == last {
				continue
			}
			last = title
			t.SetStats(est.Stats)
		}
	}()

	t.Run()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func dashboardURL(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and <dataDir>/web.
// Returns the first existing directory or empty string if none found.
func findWebDir(dataDir string) string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	dataWebDir := filepath.Join(dataDir, "web")
	if info, err := os.Stat(dataWebDir); err == nil && info.IsDir() {
		return dataWebDir
	}

	return ""
}
