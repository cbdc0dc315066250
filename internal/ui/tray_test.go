package ui

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/timelinecraft/studio/internal/compiler"
	"github.com/timelinecraft/studio/internal/db"
	"github.com/timelinecraft/studio/internal/generation"
	"github.com/timelinecraft/studio/internal/imagegen"
	"github.com/timelinecraft/studio/internal/project"
	"github.com/timelinecraft/studio/internal/segment"
)

func TestStatusLine(t *testing.T) {
	tests := []struct {
		name string
		st   project.Status
		want string
	}{
		{"idle", project.Status{}, "Status: Idle"},
		{"generating", project.Status{Generating: 2}, "Status: Generating 2"},
		{"compiling", project.Status{Compiling: 1}, "Status: Compiling 1"},
		{"both", project.Status{Compiling: 1, Generating: 3}, "Status: Compiling 1, generating 3"},
		{"failed", project.Status{Segments: map[segment.Status]int{segment.StatusError: 2}}, "Status: 2 failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusLine(tt.st); got != tt.want {
				t.Errorf("StatusLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCompileCandidates_Empty(t *testing.T) {
	if n := CompileCandidates(nil); n != 0 {
		t.Errorf("CompileCandidates(nil) = %d, want 0", n)
	}
}

func setupManager(t *testing.T) *project.Manager {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return project.NewManager(project.Deps{
		Repo:     project.NewRepository(database.Conn()),
		Images:   imagegen.NewStubGenerator(0, logger),
		Compiler: compiler.NewStubCompiler(0, logger),
		Logger:   logger,
	})
}

func describeAndGenerate(t *testing.T, ws *project.Workspace, id, text string) {
	t.Helper()
	ctx := context.Background()
	if _, err := ws.UpdateDescription(ctx, id, text); err != nil {
		t.Fatalf("UpdateDescription() error = %v", err)
	}
	if _, err := ws.Orchestrator().RequestImages(ctx, id, generation.Options{}); err != nil {
		t.Fatalf("RequestImages() error = %v", err)
	}
}

func TestCompileReady_SkipsPartiallyGeneratedProjects(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()
	p, err := m.Create(ctx, "Tray")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	ws, err := m.Open(ctx, p.ID)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	a, _ := ws.CreateSegment(ctx, 3)
	b, _ := ws.CreateSegment(ctx, 4)
	describeAndGenerate(t, ws, a.ID, "a lighthouse")

	var spawned []string
	tray := NewTray(TrayConfig{
		Projects: m,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Spawn: func(name string, fn func(ctx context.Context)) {
			spawned = append(spawned, name)
			fn(context.Background())
		},
	})

	if n := CompileCandidates(m.Workspaces()); n != 0 {
		t.Errorf("CompileCandidates() with an empty segment = %d, want 0", n)
	}
	tray.compileReady()
	if len(spawned) != 0 || ws.Orchestrator().VideoRef() != "" {
		t.Fatalf("compile started for a partial timeline: spawned %v, video %q", spawned, ws.Orchestrator().VideoRef())
	}
	if got, _ := ws.Store().Get(a.ID); got.Status != segment.StatusReady {
		t.Errorf("ready segment status = %s, want ready", got.Status)
	}

	describeAndGenerate(t, ws, b.ID, "the beam sweeps the sea")
	if n := CompileCandidates(m.Workspaces()); n != 1 {
		t.Errorf("CompileCandidates() with every segment ready = %d, want 1", n)
	}
	tray.compileReady()
	if len(spawned) != 1 || ws.Orchestrator().VideoRef() != compiler.SampleVideoURL {
		t.Errorf("spawned %v, video %q", spawned, ws.Orchestrator().VideoRef())
	}
}

func TestIconIsPNG(t *testing.T) {
	if !bytes.HasPrefix(iconBytes, []byte("\x89PNG\r\n\x1a\n")) {
		t.Fatal("embedded icon is not a PNG")
	}
}
