package refstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// LocalBackend stores objects as files under a root directory. References are
// file:// URLs so frame fetchers can read them directly.
type LocalBackend struct {
	root string
}

func NewLocalBackend(root string) (*LocalBackend, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create reference dir: %w", err)
	}
	return &LocalBackend{root: abs}, nil
}

func (b *LocalBackend) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	path, err := b.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String(), nil
}

func (b *LocalBackend) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	path, err := b.pathOf(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

func (b *LocalBackend) Delete(_ context.Context, ref string) error {
	path, err := b.pathOf(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	// Drop the per-segment directory once it is empty.
	os.Remove(filepath.Dir(path))
	return nil
}

func (b *LocalBackend) Owns(ref string) bool {
	_, err := b.pathOf(ref)
	return err == nil
}

func (b *LocalBackend) pathOf(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "file" {
		return "", fmt.Errorf("%w: not a local reference", ErrNotFound)
	}
	path := filepath.Clean(filepath.FromSlash(u.Path))
	if !b.within(path) {
		return "", fmt.Errorf("%w: outside reference dir", ErrNotFound)
	}
	return path, nil
}

func (b *LocalBackend) resolve(key string) (string, error) {
	path := filepath.Clean(filepath.Join(b.root, filepath.FromSlash(key)))
	if !b.within(path) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return path, nil
}

func (b *LocalBackend) within(path string) bool {
	rel, err := filepath.Rel(b.root, path)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}
