package compiler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/timelinecraft/studio/internal/generation"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestCompiler(t *testing.T) *FFmpegCompiler {
	t.Helper()
	c, err := NewFFmpegCompiler(Config{OutputDir: t.TempDir(), Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewFFmpegCompiler() error = %v", err)
	}
	return c
}

func outputArg(args []string) string {
	for _, a := range args {
		if strings.HasSuffix(a, ".mp4") {
			return a
		}
	}
	return ""
}

func TestBuildConcatList(t *testing.T) {
	got := BuildConcatList([]ConcatEntry{
		{Path: "/tmp/a.png", Duration: 1.5},
		{Path: "/tmp/it's.png", Duration: 2},
	})
	want := "ffconcat version 1.0\n" +
		"file '/tmp/a.png'\nduration 1.500\n" +
		"file '/tmp/it'\\''s.png'\nduration 2.000\n" +
		"file '/tmp/it'\\''s.png'\n"
	if got != want {
		t.Errorf("BuildConcatList() =\n%s\nwant\n%s", got, want)
	}
	if BuildConcatList(nil) != "" {
		t.Error("empty list should render nothing")
	}
}

func TestFrameExt(t *testing.T) {
	tests := map[string]string{
		"https://picsum.photos/800/600?random=abc": ".jpg",
		"https://cdn.example.com/f/1.PNG":          ".png",
		"/local/frames/x.webp":                     ".webp",
		"file:///tmp/y.jpeg":                       ".jpeg",
		"weird.bin":                                ".jpg",
	}
	for in, want := range tests {
		if got := frameExt(in); got != want {
			t.Errorf("frameExt(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCompile_FetchesFramesAndRunsFFmpeg(t *testing.T) {
	var served atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served.Add(1)
		w.Write([]byte("png-bytes:" + r.URL.Path))
	}))
	defer server.Close()

	localFrame := filepath.Join(t.TempDir(), "local.png")
	os.WriteFile(localFrame, []byte("local-bytes"), 0644)

	c := newTestCompiler(t)
	var gotArgs []string
	var gotList string
	c.run = func(ctx context.Context, binary string, args []string) RunResult {
		gotArgs = args
		for i, a := range args {
			if a == "-i" && i+1 < len(args) {
				data, _ := os.ReadFile(args[i+1])
				gotList = string(data)
			}
		}
		os.WriteFile(outputArg(args), []byte("mp4"), 0644)
		return RunResult{}
	}

	ref, err := c.Compile(context.Background(), []generation.Clip{
		{SegmentID: "a", StartFrame: server.URL + "/a-start.png", EndFrame: server.URL + "/a-end.png", Duration: 4},
		{SegmentID: "b", StartFrame: localFrame, EndFrame: "file://" + localFrame, Duration: 2},
	})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	if served.Load() != 2 {
		t.Errorf("served %d remote frames, want 2", served.Load())
	}
	if filepath.Dir(ref) != c.cfg.OutputDir || filepath.Ext(ref) != ".mp4" {
		t.Errorf("ref = %q", ref)
	}
	if _, err := os.Stat(ref); err != nil {
		t.Errorf("output missing: %v", err)
	}

	joined := strings.Join(gotArgs, " ")
	for _, want := range []string{"-f concat", "-safe 0", "libx264", "yuv420p"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %s", want, joined)
		}
	}
	if strings.Count(gotList, "duration 2.000") != 2 || strings.Count(gotList, "duration 1.000") != 2 {
		t.Errorf("concat list durations wrong:\n%s", gotList)
	}

	entries, _ := os.ReadDir(c.cfg.OutputDir)
	for _, e := range entries {
		if e.IsDir() {
			t.Errorf("work dir %s not cleaned up", e.Name())
		}
	}
}

func TestCompile_FetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	c := newTestCompiler(t)
	called := false
	c.run = func(context.Context, string, []string) RunResult {
		called = true
		return RunResult{}
	}

	_, err := c.Compile(context.Background(), []generation.Clip{
		{SegmentID: "a", StartFrame: server.URL + "/s.png", EndFrame: server.URL + "/e.png", Duration: 1},
	})
	if err == nil {
		t.Fatal("expected fetch error")
	}
	if called {
		t.Error("ffmpeg must not run when frames are missing")
	}
}

func TestCompile_FFmpegFailure(t *testing.T) {
	frame := filepath.Join(t.TempDir(), "f.png")
	os.WriteFile(frame, []byte("x"), 0644)

	c := newTestCompiler(t)
	c.run = func(context.Context, string, []string) RunResult {
		return RunResult{ExitCode: 1, StderrTail: "Invalid data found when processing input"}
	}

	_, err := c.Compile(context.Background(), []generation.Clip{
		{SegmentID: "a", StartFrame: frame, EndFrame: frame, Duration: 1},
	})
	if err == nil || !strings.Contains(err.Error(), "Invalid data") {
		t.Errorf("err = %v", err)
	}
}

func TestCompile_RejectsBadClips(t *testing.T) {
	c := newTestCompiler(t)
	tests := []struct {
		name  string
		clips []generation.Clip
	}{
		{"no clips", nil},
		{"missing frames", []generation.Clip{{SegmentID: "a", Duration: 1}}},
		{"zero duration", []generation.Clip{{SegmentID: "a", StartFrame: "x", EndFrame: "y"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.Compile(context.Background(), tt.clips); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestStubCompiler(t *testing.T) {
	c := NewStubCompiler(0, testLogger())
	ref, err := c.Compile(context.Background(), []generation.Clip{{SegmentID: "a"}})
	if err != nil || ref != SampleVideoURL {
		t.Errorf("Compile() = %q, %v", ref, err)
	}
}

func TestLimitedWriter(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 4}
	n, err := lw.Write([]byte("abcdef"))
	if n != 6 || err != nil {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	lw.Write([]byte("gh"))
	if buf.String() != "efgh" {
		t.Errorf("kept %q, want the last 4 bytes", buf.String())
	}
}
