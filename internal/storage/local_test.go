package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewLocalStorage(t *testing.T) {
	t.Run("creates directory if not exists", func(t *testing.T) {
		rootDir := filepath.Join(t.TempDir(), "objects")

		storage, err := NewLocalStorage(rootDir, "bucket")
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}

		if storage.RootDir() != rootDir {
			t.Errorf("RootDir() = %v, want %v", storage.RootDir(), rootDir)
		}

		info, err := os.Stat(rootDir)
		if err != nil {
			t.Fatalf("directory not created: %v", err)
		}
		if !info.IsDir() {
			t.Error("expected directory, got file")
		}
	})

	t.Run("uses default directory when empty", func(t *testing.T) {
		storage, err := NewLocalStorage("", "bucket")
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}

		expected := filepath.Join(os.TempDir(), "visxp-prep-objects")
		if storage.RootDir() != expected {
			t.Errorf("RootDir() = %v, want %v", storage.RootDir(), expected)
		}
	})
}

func TestLocalStorage_Upload(t *testing.T) {
	storage := setupTestStorage(t)

	t.Run("writes object under bucket and key", func(t *testing.T) {
		uri, err := storage.Upload(context.Background(), "assets/clip/visxp_prep__clip.tar.gz", bytes.NewReader([]byte("archive")))
		if err != nil {
			t.Fatalf("Upload() error = %v", err)
		}
		if uri != "s3://test-bucket/assets/clip/visxp_prep__clip.tar.gz" {
			t.Errorf("uri = %q", uri)
		}

		content, err := os.ReadFile(filepath.Join(storage.RootDir(), "test-bucket", "assets", "clip", "visxp_prep__clip.tar.gz"))
		if err != nil {
			t.Fatalf("failed to read object: %v", err)
		}
		if string(content) != "archive" {
			t.Errorf("got %q, want %q", string(content), "archive")
		}
	})

	t.Run("rejects keys escaping the bucket", func(t *testing.T) {
		_, err := storage.Upload(context.Background(), "../../etc/passwd", bytes.NewReader(nil))
		if !errors.Is(err, ErrInvalidURI) {
			t.Errorf("expected ErrInvalidURI, got %v", err)
		}
	})

	t.Run("requires a bucket", func(t *testing.T) {
		s, err := NewLocalStorage(t.TempDir(), "")
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}
		_, err = s.Upload(context.Background(), "key", bytes.NewReader(nil))
		if !errors.Is(err, ErrS3NotConfigured) {
			t.Errorf("expected ErrS3NotConfigured, got %v", err)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := storage.Upload(ctx, "key", bytes.NewReader([]byte("data")))
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestLocalStorage_Download(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	t.Run("copies uploaded object", func(t *testing.T) {
		if _, err := storage.Upload(ctx, "in/video.mp4", bytes.NewReader([]byte("video"))); err != nil {
			t.Fatalf("Upload() error = %v", err)
		}

		dst := filepath.Join(t.TempDir(), "video.mp4")
		if err := storage.Download(ctx, "test-bucket", "in/video.mp4", dst); err != nil {
			t.Fatalf("Download() error = %v", err)
		}

		content, err := os.ReadFile(dst)
		if err != nil {
			t.Fatalf("failed to read: %v", err)
		}
		if string(content) != "video" {
			t.Errorf("got %q, want %q", string(content), "video")
		}
	})

	t.Run("reports missing objects", func(t *testing.T) {
		err := storage.Download(ctx, "test-bucket", "missing.mp4", filepath.Join(t.TempDir(), "x"))
		if !errors.Is(err, ErrObjectNotFound) {
			t.Errorf("expected ErrObjectNotFound, got %v", err)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := storage.Download(ctx, "test-bucket", "in/video.mp4", "/some/path")
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		uri    string
		bucket string
		key    string
		ok     bool
	}{
		{"s3://bucket/path/to/video.mp4", "bucket", "path/to/video.mp4", true},
		{"s3://bucket//video.mp4", "bucket", "video.mp4", true},
		{"s3://bucket", "", "", false},
		{"s3://bucket/", "", "", false},
		{"s3://bucket/dir/", "", "", false},
		{"https://bucket/video.mp4", "", "", false},
		{"/local/video.mp4", "", "", false},
	}

	for _, tt := range tests {
		bucket, key, err := ParseS3URI(tt.uri)
		if tt.ok {
			if err != nil {
				t.Errorf("ParseS3URI(%q) error = %v", tt.uri, err)
				continue
			}
			if bucket != tt.bucket || key != tt.key {
				t.Errorf("ParseS3URI(%q) = %q, %q, want %q, %q", tt.uri, bucket, key, tt.bucket, tt.key)
			}
		} else if !errors.Is(err, ErrInvalidURI) {
			t.Errorf("ParseS3URI(%q) expected ErrInvalidURI, got %v", tt.uri, err)
		}
	}
}

func TestJoinKey(t *testing.T) {
	tests := []struct {
		parts []string
		want  string
	}{
		{[]string{"assets", "clip", "visxp_prep__clip.tar.gz"}, "assets/clip/visxp_prep__clip.tar.gz"},
		{[]string{"/assets/", "", "clip/"}, "assets/clip"},
		{[]string{"", "clip", "keyframes", "5000.jpg"}, "clip/keyframes/5000.jpg"},
	}

	for _, tt := range tests {
		if got := JoinKey(tt.parts...); got != tt.want {
			t.Errorf("JoinKey(%v) = %q, want %q", tt.parts, got, tt.want)
		}
	}
}

func setupTestStorage(t *testing.T) *LocalStorage {
	t.Helper()

	storage, err := NewLocalStorage(t.TempDir(), "test-bucket")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	return storage
}
