// Package tray provides a system tray interface showing the attention state.
package tray

import (
	"fmt"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/ayusman/drishti/internal/attention"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle   func(enabled bool)
	onReset    func()
	onSettings func()
	onQuit     func()
	enabled    bool
	stats      attention.Stats
	mu         sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuState  *systray.MenuItem
	menuFocus  *systray.MenuItem
}

// New creates a new Tray instance with enabled state set to true by default.
func New() *Tray {
	return &Tray{
		enabled: true,
	}
}

// OnToggle sets the callback function to be called when tracking is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnReset sets the callback function to be called when the session is reset.
func (t *Tray) OnReset(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onReset = fn
}

// OnSettings sets the callback function to be called when the settings menu item is clicked.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle(Title(attention.Stats{}))
	systray.SetTooltip("drishti attention tracking")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle attention tracking")
	systray.AddSeparator()

	t.menuState = systray.AddMenuItem(StateLine(t.stats), "Current attention state")
	t.menuState.Disable()
	t.menuFocus = systray.AddMenuItem(FocusLine(t.stats), "Session focus")
	t.menuFocus.Disable()
	t.mu.Unlock()

	menuReset := systray.AddMenuItem("Reset Session", "Start a new attention session")
	systray.AddSeparator()

	menuSettings := systray.AddMenuItem("Open Dashboard...", "Open calibration and settings in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit drishti")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuReset.ClickedCh:
				t.call(func() func() { return t.onReset })
			case <-menuSettings.ClickedCh:
				t.call(func() func() { return t.onSettings })
			case <-menuQuit.ClickedCh:
				t.call(func() func() { return t.onQuit })
				systray.Quit()
				return
			}
		}
	}()
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	t.menuToggle.SetTitle(toggleTitle(enabled))
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

// call runs the callback returned by get outside the lock.
func (t *Tray) call(get func() func()) {
	t.mu.RLock()
	callback := get()
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// SetStats updates the title and the status lines.
func (t *Tray) SetStats(s attention.Stats) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats = s
	if t.menuState == nil {
		return
	}
	systray.SetTitle(Title(s))
	t.menuState.SetTitle(StateLine(s))
	t.menuFocus.SetTitle(FocusLine(s))
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

var stateIcons = map[attention.State]string{
	attention.Absent:      "○",
	attention.Attentive:   "●",
	attention.LookingAway: "◐",
	attention.Drowsy:      "◌",
}

// Title is the short tray title for s.
func Title(s attention.Stats) string {
	if s.Total <= 0 {
		return stateIcons[s.State] + " drishti"
	}
	return fmt.Sprintf("%s %.0f%%", stateIcons[s.State], s.FocusRatio()*100)
}

// StateLine describes the state and the current focus streak.
func StateLine(s attention.Stats) string {
	if s.State == attention.Attentive {
		return fmt.Sprintf("State: attentive for %s", s.Streak.Truncate(time.Second))
	}
	return "State: " + s.State.String()
}

// FocusLine summarizes the session.
func FocusLine(s attention.Stats) string {
	return fmt.Sprintf("Focus: %.0f%% of %s, %d distractions",
		s.FocusRatio()*100, s.Total.Truncate(time.Minute), s.Distractions)
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Tracking"
	}
	return "○ Paused"
}
