package ui

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/timelinecraft/studio/internal/generation"
	"github.com/timelinecraft/studio/internal/project"
	"github.com/timelinecraft/studio/internal/segment"
)

//go:embed icon.png
var iconBytes []byte

const refreshInterval = 2 * time.Second

// StatusSource is the part of project.Manager the tray reads.
type StatusSource interface {
	Status() project.Status
	Workspaces() []*project.Workspace
}

// SpawnFunc runs fn outside the tray's event loop.
type SpawnFunc func(name string, fn func(ctx context.Context))

type Tray struct {
	projects StatusSource
	spawn    SpawnFunc
	logger   *slog.Logger

	statusItem   *systray.MenuItem
	projectsItem *systray.MenuItem
	compileItem  *systray.MenuItem

	mu sync.Mutex

	onQuit func()
	done   chan struct{}
}

type TrayConfig struct {
	Projects StatusSource
	Spawn    SpawnFunc
	Logger   *slog.Logger
	OnQuit   func()
}

func NewTray(cfg TrayConfig) *Tray {
	spawn := cfg.Spawn
	if spawn == nil {
		spawn = func(_ string, fn func(ctx context.Context)) { go fn(context.Background()) }
	}
	return &Tray{
		projects: cfg.Projects,
		spawn:    spawn,
		logger:   cfg.Logger,
		onQuit:   cfg.OnQuit,
		done:     make(chan struct{}),
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Timeline Craft")
	systray.SetTooltip("Timeline Craft Studio")

	t.statusItem = systray.AddMenuItem("Status: Idle", "Current studio status")
	t.statusItem.Disable()

	t.projectsItem = systray.AddMenuItem("Open projects: 0", "Projects loaded in memory")
	t.projectsItem.Disable()

	systray.AddSeparator()

	t.compileItem = systray.AddMenuItem("Compile Ready Projects", "Compile every open project with ready segments")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Timeline Craft Studio")

	go t.refreshLoop()

	go func() {
		for {
			select {
			case <-t.compileItem.ClickedCh:
				t.compileReady()
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
	close(t.done)
	t.logger.Info("system tray exiting")
}

func (t *Tray) refreshLoop() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	t.refresh()
	for {
		select {
		case <-ticker.C:
			t.refresh()
		case <-t.done:
			return
		}
	}
}

func (t *Tray) refresh() {
	st := t.projects.Status()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.statusItem.SetTitle(StatusLine(st))
	t.projectsItem.SetTitle(fmt.Sprintf("Open projects: %d", st.OpenProjects))
	if CompileCandidates(t.projects.Workspaces()) > 0 {
		t.compileItem.Enable()
	} else {
		t.compileItem.Disable()
	}
}

// compileReady starts a compile for every open project that can take one.
func (t *Tray) compileReady() {
	started := 0
	for _, ws := range t.projects.Workspaces() {
		if ws.Orchestrator().CheckCompile() != nil {
			continue
		}
		ws := ws
		started++
		t.spawn("tray-compile", func(ctx context.Context) {
			if _, err := ws.Compile(ctx); err != nil && !errors.Is(err, generation.ErrAlreadyInProgress) {
				t.logger.Error("compile from tray failed", "project_id", ws.ID(), "error", err)
			}
		})
	}
	t.logger.Info("compile requested from tray", "projects", started)
}

// StatusLine summarises a studio status for the tray menu.
func StatusLine(st project.Status) string {
	switch {
	case st.Compiling > 0 && st.Generating > 0:
		return fmt.Sprintf("Status: Compiling %d, generating %d", st.Compiling, st.Generating)
	case st.Compiling > 0:
		return fmt.Sprintf("Status: Compiling %d", st.Compiling)
	case st.Generating > 0:
		return fmt.Sprintf("Status: Generating %d", st.Generating)
	case st.Segments[segment.StatusError] > 0:
		return fmt.Sprintf("Status: %d failed", st.Segments[segment.StatusError])
	}
	return "Status: Idle"
}

// CompileCandidates counts workspaces a compile request would be accepted for.
func CompileCandidates(workspaces []*project.Workspace) int {
	n := 0
	for _, ws := range workspaces {
		if ws.Orchestrator().CheckCompile() == nil {
			n++
		}
	}
	return n
}

func (t *Tray) Quit() {
	systray.Quit()
}
