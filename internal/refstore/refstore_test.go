package refstore

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupLocalStore(t *testing.T) (*Store, *LocalBackend) {
	t.Helper()
	backend, err := NewLocalBackend(filepath.Join(t.TempDir(), "refs"))
	if err != nil {
		t.Fatalf("NewLocalBackend() error = %v", err)
	}
	return New(backend, testLogger()), backend
}

func TestValidate(t *testing.T) {
	jpeg := append([]byte{0xff, 0xd8, 0xff, 0xe0}, make([]byte, 64)...)
	oversized := append(append([]byte{}, pngHeader...), make([]byte, MaxUploadBytes)...)
	atLimit := append(append([]byte{}, pngHeader...), make([]byte, MaxUploadBytes-len(pngHeader))...)

	tests := []struct {
		name     string
		data     []byte
		declared string
		wantType string
		wantMsg  string
	}{
		{"png", pngHeader, "image/png", "image/png", ""},
		{"jpeg without declared type", jpeg, "", "image/jpeg", ""},
		{"exactly at limit", atLimit, "image/png", "image/png", ""},
		{"too large", oversized, "image/png", "", "5MB"},
		{"declared non-image", pngHeader, "application/pdf", "", "image file"},
		{"text pretending to be image", []byte("hello world"), "image/png", "", "image file"},
		{"empty", nil, "image/png", "", "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.data, tt.declared)
			if tt.wantMsg != "" {
				if !errors.Is(err, ErrInvalidUpload) {
					t.Fatalf("err = %v, want ErrInvalidUpload", err)
				}
				if !strings.Contains(err.Error(), tt.wantMsg) {
					t.Errorf("message %q does not mention %q", err.Error(), tt.wantMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.wantType {
				t.Errorf("type = %q, want %q", got, tt.wantType)
			}
		})
	}
}

func TestUploadOpenRelease(t *testing.T) {
	store, backend := setupLocalStore(t)
	ctx := context.Background()

	ref, err := store.Upload(ctx, "seg-1", "image/png", bytes.NewReader(pngHeader))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if !strings.HasPrefix(ref, "file://") || !strings.HasSuffix(ref, ".png") {
		t.Errorf("ref = %q", ref)
	}
	if !backend.Owns(ref) {
		t.Error("backend should own its own ref")
	}

	data, contentType, err := store.Open(ctx, ref)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !bytes.Equal(data, pngHeader) || contentType != "image/png" {
		t.Errorf("Open() = %d bytes, %q", len(data), contentType)
	}

	store.Release(ref)
	if _, _, err := store.Open(ctx, ref); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open after release err = %v", err)
	}
	// Releasing twice is harmless.
	store.Release(ref)
}

func TestUpload_RejectedNeverStored(t *testing.T) {
	store, backend := setupLocalStore(t)

	_, err := store.Upload(context.Background(), "seg-1", "text/plain", strings.NewReader("notes"))
	if !errors.Is(err, ErrInvalidUpload) {
		t.Fatalf("err = %v", err)
	}
	entries, _ := os.ReadDir(backend.root)
	if len(entries) != 0 {
		t.Errorf("rejected upload left %d entries", len(entries))
	}
}

func TestLocalBackend_ForeignRefs(t *testing.T) {
	store, backend := setupLocalStore(t)

	outside := filepath.Join(t.TempDir(), "secret.png")
	os.WriteFile(outside, pngHeader, 0644)

	foreign := []string{
		"file://" + filepath.ToSlash(outside),
		"https://example.com/a.png",
		"minio://bucket/key.png",
		"file://" + filepath.ToSlash(backend.root) + "/../escape.png",
	}
	for _, ref := range foreign {
		if backend.Owns(ref) {
			t.Errorf("Owns(%q) = true", ref)
		}
		if _, _, err := store.Open(context.Background(), ref); !errors.Is(err, ErrNotFound) {
			t.Errorf("Open(%q) err = %v", ref, err)
		}
	}

	store.Release("file://" + filepath.ToSlash(outside))
	if _, err := os.Stat(outside); err != nil {
		t.Error("release must not delete files outside the reference dir")
	}
}

func TestParseObjectRef(t *testing.T) {
	key, err := parseObjectRef(objectRef("s3", "bucket", "seg/a.png"), "s3", "bucket")
	if err != nil || key != "seg/a.png" {
		t.Errorf("parseObjectRef() = %q, %v", key, err)
	}

	bad := []string{"s3://other/seg/a.png", "minio://bucket/seg/a.png", "s3://bucket/", "seg/a.png"}
	for _, ref := range bad {
		if _, err := parseObjectRef(ref, "s3", "bucket"); !errors.Is(err, ErrNotFound) {
			t.Errorf("parseObjectRef(%q) err = %v", ref, err)
		}
	}
}
