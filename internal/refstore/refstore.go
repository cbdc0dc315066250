// Package refstore stores user-supplied reference images. Uploads are
// validated before they reach a backend; replaced or removed images are
// released so their objects do not linger.
package refstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// MaxUploadBytes is the largest reference image accepted.
const MaxUploadBytes = 5 * 1024 * 1024

var (
	ErrInvalidUpload = errors.New("invalid upload")
	ErrNotFound      = errors.New("reference image not found")
)

// UploadError carries a message suitable for showing to the user.
type UploadError struct {
	Message string
}

func (e *UploadError) Error() string        { return e.Message }
func (e *UploadError) Is(target error) bool { return target == ErrInvalidUpload }

var (
	errNotImage = &UploadError{Message: "please choose an image file"}
	errTooLarge = &UploadError{Message: "image must be 5MB or smaller"}
	errEmpty    = &UploadError{Message: "image file is empty"}
)

// Backend persists objects and hands back an opaque reference.
type Backend interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Delete(ctx context.Context, ref string) error
	Owns(ref string) bool
}

type Store struct {
	backend Backend
	logger  *slog.Logger
}

func New(backend Backend, logger *slog.Logger) *Store {
	return &Store{backend: backend, logger: logger}
}

// Validate checks size and type. The declared content type, when present,
// must be an image type and so must the sniffed one.
func Validate(data []byte, declaredType string) (string, error) {
	detected, err := validate(data, declaredType)
	if err != nil {
		return "", err
	}
	return detected.String(), nil
}

func validate(data []byte, declaredType string) (*mimetype.MIME, error) {
	if len(data) == 0 {
		return nil, errEmpty
	}
	if len(data) > MaxUploadBytes {
		return nil, errTooLarge
	}
	if declaredType != "" && !strings.HasPrefix(strings.ToLower(declaredType), "image/") {
		return nil, errNotImage
	}
	detected := mimetype.Detect(data)
	if !strings.HasPrefix(detected.String(), "image/") {
		return nil, errNotImage
	}
	return detected, nil
}

// Upload validates r and stores it under the segment's prefix.
func (s *Store) Upload(ctx context.Context, segmentID, declaredType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	detected, err := validate(data, declaredType)
	if err != nil {
		return "", err
	}
	contentType := detected.String()

	key := segmentID + "/" + uuid.NewString() + detected.Extension()
	ref, err := s.backend.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		return "", fmt.Errorf("store reference image: %w", err)
	}
	s.logger.Info("reference image stored", "segment_id", segmentID, "bytes", len(data), "content_type", contentType)
	return ref, nil
}

// Open returns the image bytes and their sniffed content type.
func (s *Store) Open(ctx context.Context, ref string) ([]byte, string, error) {
	if !s.backend.Owns(ref) {
		return nil, "", ErrNotFound
	}
	rc, err := s.backend.Open(ctx, ref)
	if err != nil {
		return nil, "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, MaxUploadBytes+1))
	if err != nil {
		return nil, "", err
	}
	return data, mimetype.Detect(data).String(), nil
}

// Release deletes the object behind ref. It matches segment.ReleaseFunc and
// only logs failures.
func (s *Store) Release(ref string) {
	if ref == "" || !s.backend.Owns(ref) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.backend.Delete(ctx, ref); err != nil {
		s.logger.Warn("failed to release reference image", "ref", ref, "error", err)
		return
	}
	s.logger.Info("reference image released", "ref", ref)
}
