package ui

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/getlantern/systray"

	"github.com/cuedeck/cuedeck-agent/internal/production"
)

// Tray mirrors the show state in the menu bar and offers the transport
// actions an operator needs without the browser: run/pause the timeline,
// step moments and silence every effect.
type Tray struct {
	store  *production.Store
	logger *slog.Logger

	statusItem  *systray.MenuItem
	momentItem  *systray.MenuItem
	libraryItem *systray.MenuItem
	runItem     *systray.MenuItem

	mu sync.Mutex

	onOpenUI func() error
	onQuit   func()
}

type TrayConfig struct {
	Store    *production.Store
	Logger   *slog.Logger
	OnOpenUI func() error
	OnQuit   func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		store:    cfg.Store,
		logger:   cfg.Logger,
		onOpenUI: cfg.OnOpenUI,
		onQuit:   cfg.OnQuit,
	}
}

// Run blocks until the tray exits. ctx stops the state refresh loop.
func (t *Tray) Run(ctx context.Context) {
	systray.Run(func() { t.onReady(ctx) }, t.onExit)
}

func (t *Tray) onReady(ctx context.Context) {
	systray.SetIcon(iconBytes)
	systray.SetTitle("CueDeck")
	systray.SetTooltip("CueDeck Agent")

	t.statusItem = systray.AddMenuItem("Timeline: stopped 00:00", "Show clock")
	t.statusItem.Disable()
	t.momentItem = systray.AddMenuItem("Moment: -", "Current moment")
	t.momentItem.Disable()
	t.libraryItem = systray.AddMenuItem("Library: no folder", "Local audio library")
	t.libraryItem.Disable()

	systray.AddSeparator()

	t.runItem = systray.AddMenuItem("Start", "Start or pause the timeline")
	prevItem := systray.AddMenuItem("Previous Moment", "Go to the previous moment")
	nextItem := systray.AddMenuItem("Next Moment", "Go to the next moment")
	stopAllItem := systray.AddMenuItem("Stop All Sounds", "Silence every effect and preview")

	systray.AddSeparator()

	openItem := systray.AddMenuItem("Open CueDeck...", "Open the control surface")
	quitItem := systray.AddMenuItem("Quit", "Quit CueDeck Agent")

	listener := t.store.Broadcaster().Subscribe()
	t.refresh()

	go func() {
		defer t.store.Broadcaster().Unsubscribe(listener)
		for {
			select {
			case <-ctx.Done():
				return
			case <-listener.C:
				t.refresh()
			case <-t.runItem.ClickedCh:
				t.toggleRun()
			case <-prevItem.ClickedCh:
				t.store.PreviousMoment()
			case <-nextItem.ClickedCh:
				t.store.NextMoment()
			case <-stopAllItem.ClickedCh:
				t.store.StopAllSounds()
			case <-openItem.ClickedCh:
				t.handleOpenUI()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) toggleRun() {
	if t.store.Snapshot().Timeline.IsPlaying {
		t.store.PauseTimeline()
	} else {
		t.store.StartTimeline()
	}
}

func (t *Tray) handleOpenUI() {
	if t.onOpenUI != nil {
		if err := t.onOpenUI(); err != nil {
			t.logger.Error("failed to open control surface", "error", err)
		}
	}
}

func (t *Tray) refresh() {
	l := labelsFor(t.store.Snapshot())

	t.mu.Lock()
	defer t.mu.Unlock()
	t.statusItem.SetTitle(l.status)
	t.momentItem.SetTitle(l.moment)
	t.libraryItem.SetTitle(l.library)
	t.runItem.SetTitle(l.run)
}

func (t *Tray) Quit() {
	systray.Quit()
}

type labels struct {
	status  string
	moment  string
	library string
	run     string
}

func labelsFor(s production.State) labels {
	l := labels{
		status:  fmt.Sprintf("Timeline: %s %s", s.Timeline.Status, s.FormattedTime),
		moment:  "Moment: -",
		library: "Library: no folder",
		run:     "Start",
	}
	if s.Timeline.IsPlaying {
		l.run = "Pause"
	} else if s.Timeline.IsPaused {
		l.run = "Resume"
	}
	if m := s.CurrentMoment; m != nil {
		l.moment = fmt.Sprintf("Moment %d: %s", s.Timeline.CurrentMomentIndex+1, m.Title)
	}
	switch {
	case s.Library.IsScanning:
		l.library = "Library: scanning..."
	case s.Library.RootName != "" || len(s.Library.Files) > 0:
		name := s.Library.RootName
		if name == "" {
			name = "selected files"
		}
		l.library = fmt.Sprintf("Library: %s (%d files, %s)", name, len(s.Library.Files), humanize.Bytes(s.Library.TotalBytes))
	}
	return l
}
