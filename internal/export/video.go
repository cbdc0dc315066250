package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/timelinecraft/studio/internal/segment"
)

var (
	ErrNoVideo        = errors.New("no compiled video")
	ErrInvalidRequest = errors.New("invalid export request")
)

// VideoFilename is the download name of a compiled video exported at now.
func VideoFilename(now time.Time) string {
	return fmt.Sprintf("timeline-craft-video-%d.mp4", now.UnixMilli())
}

// Exporter copies compiled videos out of the studio, either to a stream or
// into a directory on disk.
type Exporter struct {
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

func NewExporter(logger *slog.Logger) *Exporter {
	return &Exporter{
		client: &http.Client{Timeout: 10 * time.Minute},
		logger: logger,
		now:    time.Now,
	}
}

// IsRemoteVideo reports whether ref points at an http(s) URL.
func IsRemoteVideo(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// LocalVideoPath turns a file:// URL or plain path into a filesystem path.
func LocalVideoPath(ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", ErrNoVideo
	}
	if !strings.HasPrefix(ref, "file://") {
		return ref, nil
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse video ref: %w", err)
	}
	return u.Path, nil
}

// OpenVideo returns a reader for ref, which may be an http(s) URL, a file://
// URL or a local path. size is -1 when unknown.
func (e *Exporter) OpenVideo(ctx context.Context, ref string) (io.ReadCloser, int64, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, 0, ErrNoVideo
	}

	if IsRemoteVideo(ref) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("build request: %w", err)
		}
		resp, err := e.client.Do(req)
		if err != nil {
			return nil, 0, fmt.Errorf("download video: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, 0, fmt.Errorf("download video: status %d", resp.StatusCode)
		}
		return resp.Body, resp.ContentLength, nil
	}

	path, err := LocalVideoPath(ref)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNoVideo, path)
		}
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

// SaveVideo writes the video behind ref into dir and returns the new path.
// A partially written file is removed on failure.
func (e *Exporter) SaveVideo(ctx context.Context, ref, dir string) (string, error) {
	rc, _, err := e.OpenVideo(ctx, ref)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	dest := filepath.Join(dir, VideoFilename(e.now()))
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}

	n, copyErr := io.Copy(f, rc)
	closeErr := f.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(dest)
		return "", fmt.Errorf("write export file: %w", copyErr)
	}

	e.logger.Info("video exported", "path", dest, "bytes", n)
	return dest, nil
}

// ExportTimeline writes a manifest or edit list for layout into req.OutputDir.
func (e *Exporter) ExportTimeline(req ExportRequest, project ManifestProject, layout []segment.Placement, videoRef string) (ExportResponse, error) {
	if err := ValidateOutputDir(req.OutputDir); err != nil {
		return ExportResponse{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	format := strings.ToLower(strings.TrimSpace(req.Format))
	if format == "" {
		format = FormatYAML
	}

	base := SanitizeName(project.Name, 64)
	if base == "" {
		base = "timeline"
	}
	stamp := e.now().UnixMilli()

	var path string
	switch format {
	case FormatYAML:
		path = filepath.Join(req.OutputDir, fmt.Sprintf("%s-%d.yaml", base, stamp))
		if err := WriteManifest(path, BuildManifest(project, layout, videoRef)); err != nil {
			return ExportResponse{}, err
		}
	case FormatEDL:
		title := SanitizeName(req.Title, 80)
		if title == "" {
			title = base
		}
		path = filepath.Join(req.OutputDir, fmt.Sprintf("%s-%d.edl", base, stamp))
		if err := os.WriteFile(path, []byte(GenerateEDL(layout, title, req.FrameRate)), 0o644); err != nil {
			return ExportResponse{}, fmt.Errorf("write edl: %w", err)
		}
	default:
		return ExportResponse{}, fmt.Errorf("%w: unsupported format %q", ErrInvalidRequest, req.Format)
	}

	e.logger.Info("timeline exported", "format", format, "path", path, "segments", len(layout))
	return ExportResponse{
		Status:       "ok",
		Format:       format,
		OutputPath:   path,
		SegmentCount: len(layout),
	}, nil
}
