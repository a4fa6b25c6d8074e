package app

import (
	"context"
	"time"

	"github.com/ayusman/drishti/internal/attention"
	"github.com/ayusman/drishti/internal/capture"
	"github.com/ayusman/drishti/internal/features"
	"github.com/ayusman/drishti/internal/log"
	"github.com/ayusman/drishti/internal/plugin"
)

// runPipeline is the main loop that processes frames from the camera.
//
// Pipeline logic:
// 1. Start at IdleFPS
// 2. While nobody is present, only frames passing the motion gate reach the detector
// 3. Detect the face, extract features, classify and predict the gaze point
// 4. Switch to ActiveFPS as soon as a face is found
// 5. After IdleTimeout without a face, switch back to IdleFPS
func (a *App) runPipeline(camera capture.Camera, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	activeMode := false
	lastSeen := time.Now()

	ticker := time.NewTicker(frameInterval(capture.IdleFPS))
	defer ticker.Stop()

	setRate := func(active bool) {
		fps := capture.IdleFPS
		if active {
			fps = capture.ActiveFPS
		}
		activeMode = active
		camera.SetFPS(fps)
		ticker.Reset(frameInterval(fps))
		log.Debug("frame rate changed", "fps", fps)
	}

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if !a.IsEnabled() {
				continue
			}

			frame, err := camera.ReadFrame()
			if err != nil {
				log.Warn("reading frame", "error", err)
				continue
			}

			ts := time.Since(a.epoch)

			var est Estimate
			if a.classifierState() == attention.Absent && !a.gate.Allow(frame) {
				est = a.Observe(features.Extract(nil, nil, a.config.Schema), ts)
			} else {
				est, err = a.Process(frame, ts)
			}
			frame.Close()

			if err != nil {
				log.Warn("detecting face", "error", err)
				continue
			}

			if est.FacePresent {
				lastSeen = time.Now()
				if !activeMode {
					setRate(true)
				}
			} else if activeMode && time.Since(lastSeen) > IdleTimeout {
				setRate(false)
				a.gate.Reset()
			}
		}
	}
}

func frameInterval(fps int) time.Duration {
	return time.Second / time.Duration(fps)
}

func (a *App) classifierState() attention.State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.classifier.State()
}

// dispatchHooks runs the stored hooks and the manifest subscribers for the
// state just entered. It is called with a.mu held and must not block.
func (a *App) dispatchHooks(tr attention.Transition) {
	log.Info("attention changed", "from", tr.From, "to", tr.To, "focus", tr.Stats.FocusRatio())

	a.hooks.Add(1)
	go func() {
		defer a.hooks.Done()
		a.runHooks(context.Background(), tr)
	}()
}

func (a *App) runHooks(ctx context.Context, tr attention.Transition) {
	event := tr.To.String()
	hooked := make(map[string]bool)

	if a.config.Store != nil {
		hooks, err := a.config.Store.Hooks().ListByEvent(event)
		if err != nil {
			log.Error("loading hooks", "event", event, "error", err)
		}
		for _, h := range hooks {
			p, err := a.pluginMgr.Get(h.PluginName)
			if err != nil {
				log.Warn("hook references missing plugin", "hook", h.ID, "plugin", h.PluginName)
				continue
			}
			hooked[h.PluginName] = true

			req := plugin.NewRequest(h.ActionName, tr)
			req.Config = h.Config
			a.execute(ctx, p, req)
		}
	}

	for _, p := range a.pluginMgr.Subscribers(event) {
		if hooked[p.Manifest.Name] || !p.Manifest.HasAction(NotifyAction) {
			continue
		}
		a.execute(ctx, p, plugin.NewRequest(NotifyAction, tr))
	}
}

func (a *App) execute(ctx context.Context, p *plugin.Plugin, req *plugin.Request) {
	resp, err := a.pluginExec.ExecuteContext(ctx, p, req)
	if err != nil {
		log.Error("plugin failed", "plugin", p.Manifest.Name, "action", req.Action, "error", err)
		return
	}
	if !resp.Success {
		log.Warn("plugin reported failure", "plugin", p.Manifest.Name, "action", req.Action, "error", resp.Error)
	}
}
