package compiler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

const maxFrameBytes = 32 * 1024 * 1024

type frameJob struct {
	ref  string
	dest string
}

// fetchFrames copies every referenced frame into place, at most limit at a
// time. The first failure cancels the rest.
func (c *FFmpegCompiler) fetchFrames(ctx context.Context, jobs []frameJob, limit int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, job := range jobs {
		g.Go(func() error {
			if err := c.fetchFrame(ctx, job.ref, job.dest); err != nil {
				return fmt.Errorf("fetch %s: %w", job.ref, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (c *FFmpegCompiler) fetchFrame(ctx context.Context, ref, dest string) error {
	u, err := url.Parse(ref)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return c.download(ctx, ref, dest)
	}

	src := ref
	if err == nil && u.Scheme == "file" {
		src = u.Path
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	return writeFile(dest, io.LimitReader(in, maxFrameBytes))
}

func (c *FFmpegCompiler) download(ctx context.Context, ref, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return writeFile(dest, io.LimitReader(resp.Body, maxFrameBytes))
}

func writeFile(dest string, r io.Reader) error {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// frameExt picks a file extension for a frame ref, defaulting to .jpg when
// the ref has none (e.g. query-string placeholder URLs).
func frameExt(ref string) string {
	p := ref
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp", ".gif", ".bmp":
		return ext
	}
	return ".jpg"
}

func framePath(dir string, index int, which, ref string) string {
	return filepath.Join(dir, fmt.Sprintf("%03d-%s%s", index, which, frameExt(ref)))
}
