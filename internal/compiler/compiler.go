// Package compiler turns generated frames into a video. FFmpegCompiler builds
// a still-image slideshow with ffmpeg; StubCompiler returns a sample video.
package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/timelinecraft/studio/internal/generation"
)

const (
	maxStderrBytes    = 8 * 1024
	defaultFetchLimit = 4
)

type Config struct {
	Binary    string
	OutputDir string
	FPS       int
	Width     int
	Height    int
	Logger    *slog.Logger
}

// RunResult captures a finished ffmpeg process.
type RunResult struct {
	ExitCode   int
	StderrTail string
	Duration   time.Duration
}

func (r RunResult) IsSuccess() bool {
	return r.ExitCode == 0
}

// runFunc executes binary with args. Replaced in tests.
type runFunc func(ctx context.Context, binary string, args []string) RunResult

type FFmpegCompiler struct {
	cfg        Config
	httpClient *http.Client
	run        runFunc
	fetchLimit int
}

func NewFFmpegCompiler(cfg Config) (*FFmpegCompiler, error) {
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 25
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 1280, 720
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.OutputDir == "" {
		return nil, errors.New("compiler output dir is required")
	}
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	c := &FFmpegCompiler{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		fetchLimit: defaultFetchLimit,
	}
	c.run = c.exec
	return c, nil
}

// Available reports whether the ffmpeg binary can be found.
func (c *FFmpegCompiler) Available() error {
	if _, err := exec.LookPath(c.cfg.Binary); err != nil {
		return fmt.Errorf("ffmpeg binary %q not found: %w", c.cfg.Binary, err)
	}
	return nil
}

// Compile renders each clip as its start frame for the first half of its
// duration and its end frame for the second half.
func (c *FFmpegCompiler) Compile(ctx context.Context, clips []generation.Clip) (string, error) {
	if len(clips) == 0 {
		return "", errors.New("no clips to compile")
	}

	workDir, err := os.MkdirTemp(c.cfg.OutputDir, "work-*")
	if err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	jobs := make([]frameJob, 0, len(clips)*2)
	entries := make([]ConcatEntry, 0, len(clips)*2)
	for i, clip := range clips {
		if clip.StartFrame == "" || clip.EndFrame == "" {
			return "", fmt.Errorf("clip %d (%s) has no frames", i, clip.SegmentID)
		}
		if !(clip.Duration > 0) {
			return "", fmt.Errorf("clip %d (%s) has invalid duration %v", i, clip.SegmentID, clip.Duration)
		}
		startPath := framePath(workDir, i, "start", clip.StartFrame)
		endPath := framePath(workDir, i, "end", clip.EndFrame)
		jobs = append(jobs, frameJob{ref: clip.StartFrame, dest: startPath}, frameJob{ref: clip.EndFrame, dest: endPath})
		entries = append(entries,
			ConcatEntry{Path: startPath, Duration: clip.Duration / 2},
			ConcatEntry{Path: endPath, Duration: clip.Duration / 2},
		)
	}

	if err := c.fetchFrames(ctx, jobs, c.fetchLimit); err != nil {
		return "", err
	}

	listPath := filepath.Join(workDir, "frames.ffconcat")
	if err := os.WriteFile(listPath, []byte(BuildConcatList(entries)), 0644); err != nil {
		return "", fmt.Errorf("write concat list: %w", err)
	}

	outPath := filepath.Join(c.cfg.OutputDir, uuid.NewString()+".mp4")
	args := c.buildArgs(listPath, outPath)

	result := c.run(ctx, c.cfg.Binary, args)
	if !result.IsSuccess() {
		os.Remove(outPath)
		return "", fmt.Errorf("ffmpeg exited %d: %s", result.ExitCode, truncate(result.StderrTail, 512))
	}
	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("ffmpeg produced no output: %w", err)
	}

	c.cfg.Logger.Info("video compiled",
		"clips", len(clips),
		"output", filepath.Base(outPath),
		"duration_ms", result.Duration.Milliseconds(),
	)
	return outPath, nil
}

func (c *FFmpegCompiler) buildArgs(listPath, outPath string) []string {
	w, h := c.cfg.Width, c.cfg.Height
	scale := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1", w, h, w, h)

	return ffmpeg.Input(listPath, ffmpeg.KwArgs{"f": "concat", "safe": "0"}).
		Output(outPath, ffmpeg.KwArgs{
			"vf":       scale,
			"r":        c.cfg.FPS,
			"c:v":      "libx264",
			"pix_fmt":  "yuv420p",
			"preset":   "fast",
			"movflags": "+faststart",
		}).
		OverWriteOutput().
		GetArgs()
}

func (c *FFmpegCompiler) exec(ctx context.Context, binary string, args []string) RunResult {
	start := time.Now()
	cmd := exec.CommandContext(ctx, binary, args...)

	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}
	cmd.Stdout = io.Discard

	c.cfg.Logger.Info("executing ffmpeg", "args", args)

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
			stderrBuf.WriteString(err.Error())
		}
	}

	elapsed := time.Since(start)
	if exitCode != 0 {
		c.cfg.Logger.Warn("ffmpeg failed",
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderrBuf.String(), 512),
		)
	}
	return RunResult{ExitCode: exitCode, StderrTail: stderrBuf.String(), Duration: elapsed}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter keeps only the last limit bytes written to it.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
