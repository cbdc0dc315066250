package api

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/timelinecraft/studio/internal/export"
)

func TestExport_Manifest(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject("Launch Film")
	a := env.createSegment(p.ID, 2)
	env.createSegment(p.ID, 3)
	env.describe(p.ID, a.ID, "Opening shot")

	outDir := t.TempDir()
	var resp export.ExportResponse
	env.call(http.MethodPost, "/projects/"+p.ID+"/export",
		export.ExportRequest{OutputDir: outDir}, http.StatusOK, &resp)

	if resp.Format != export.FormatYAML || resp.SegmentCount != 2 {
		t.Fatalf("response = %+v", resp)
	}
	if filepath.Dir(resp.OutputPath) != outDir || !strings.HasPrefix(filepath.Base(resp.OutputPath), "Launch Film-") {
		t.Errorf("output path = %q", resp.OutputPath)
	}

	m, err := export.ReadManifest(resp.OutputPath)
	if err != nil {
		t.Fatalf("ReadManifest() error = %v", err)
	}
	if m.Project.ID != p.ID || m.TotalDuration != 5 || len(m.Segments) != 2 {
		t.Fatalf("manifest = %+v", m)
	}
	if m.Segments[0].Description != "Opening shot" || m.Segments[1].Offset != 2 {
		t.Errorf("segments = %+v", m.Segments)
	}
}

func TestExport_EDL(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject("Cut")
	seg := env.createSegment(p.ID, 2)
	env.describe(p.ID, seg.ID, "Sunrise")
	env.call(http.MethodPost, "/projects/"+p.ID+"/segments/"+seg.ID+"/generate", nil, http.StatusAccepted, nil)
	env.waitFor(p.ID, allStatus("ready"))

	var resp export.ExportResponse
	env.call(http.MethodPost, "/projects/"+p.ID+"/export",
		export.ExportRequest{Format: "edl", OutputDir: t.TempDir(), Title: "Rough Cut", FrameRate: 25}, http.StatusOK, &resp)

	data, err := os.ReadFile(resp.OutputPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	edl := string(data)
	if !strings.HasPrefix(edl, "TITLE: Rough Cut") {
		t.Errorf("edl header = %q", strings.SplitN(edl, "\n", 2)[0])
	}
	if !strings.Contains(edl, "01 Sunrise (start)") || !strings.Contains(edl, "01 Sunrise (end)") {
		t.Errorf("edl missing clip names:\n%s", edl)
	}
}

func TestExport_IncludeVideo(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject("With Video")
	env.createSegment(p.ID, 2)

	outDir := t.TempDir()
	if code := env.errorCode(http.MethodPost, "/projects/"+p.ID+"/export",
		export.ExportRequest{OutputDir: outDir, IncludeVideo: true}, http.StatusConflict); code != "NOT_READY" {
		t.Errorf("code = %q, want NOT_READY", code)
	}
	if entries, _ := os.ReadDir(outDir); len(entries) != 0 {
		t.Errorf("rejected export wrote %d files", len(entries))
	}

	video := filepath.Join(t.TempDir(), "compiled.mp4")
	if err := os.WriteFile(video, []byte("mp4"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	ws, err := env.manager.Open(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	ws.Orchestrator().SetVideoRef(video)

	var resp export.ExportResponse
	env.call(http.MethodPost, "/projects/"+p.ID+"/export",
		export.ExportRequest{OutputDir: outDir, IncludeVideo: true}, http.StatusOK, &resp)
	if resp.VideoPath == "" || filepath.Dir(resp.VideoPath) != outDir {
		t.Fatalf("video path = %q", resp.VideoPath)
	}
	if data, err := os.ReadFile(resp.VideoPath); err != nil || string(data) != "mp4" {
		t.Errorf("exported video = %q, %v", data, err)
	}
}

func TestExport_InvalidRequests(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject("Invalid")
	empty := env.createProject("Empty")
	env.createSegment(p.ID, 2)

	tests := []struct {
		name    string
		project string
		req     export.ExportRequest
	}{
		{"missing dir", p.ID, export.ExportRequest{}},
		{"relative traversal", p.ID, export.ExportRequest{OutputDir: "../out"}},
		{"nonexistent dir", p.ID, export.ExportRequest{OutputDir: filepath.Join(t.TempDir(), "nope")}},
		{"unknown format", p.ID, export.ExportRequest{OutputDir: t.TempDir(), Format: "xml"}},
		{"no segments", empty.ID, export.ExportRequest{OutputDir: t.TempDir()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := env.errorCode(http.MethodPost, "/projects/"+tt.project+"/export", tt.req, http.StatusBadRequest); code != "BAD_REQUEST" {
				t.Errorf("code = %q, want BAD_REQUEST", code)
			}
		})
	}
}
