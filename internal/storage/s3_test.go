package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestS3(t *testing.T, endpoint, bucket string) *S3Storage {
	t.Helper()

	storage, err := NewS3Storage(context.Background(), S3Config{
		Bucket:          bucket,
		Region:          "us-east-1",
		Endpoint:        endpoint,
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	})
	if err != nil {
		t.Fatalf("NewS3Storage() error = %v", err)
	}
	return storage
}

func TestNewS3Storage(t *testing.T) {
	storage := newTestS3(t, "http://localhost:4566", "test-bucket")

	if storage.Bucket() != "test-bucket" {
		t.Errorf("bucket = %v, want %v", storage.Bucket(), "test-bucket")
	}
	if storage.region != "us-east-1" {
		t.Errorf("region = %v, want %v", storage.region, "us-east-1")
	}
}

func TestS3Storage_Upload_MockServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT method, got %s", r.Method)
		}

		if !strings.HasPrefix(r.URL.Path, "/test-bucket/assets/clip/") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read body: %v", err)
		}
		if string(body) != "test content" {
			t.Errorf("unexpected body: %s", string(body))
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	storage := newTestS3(t, server.URL, "test-bucket")

	uri, err := storage.Upload(context.Background(), "assets/clip/visxp_prep__clip.tar.gz", bytes.NewReader([]byte("test content")))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	expected := "s3://test-bucket/assets/clip/visxp_prep__clip.tar.gz"
	if uri != expected {
		t.Errorf("uri = %v, want %v", uri, expected)
	}
}

func TestS3Storage_Upload_NoBucket(t *testing.T) {
	storage := newTestS3(t, "http://localhost:4566", "")

	_, err := storage.Upload(context.Background(), "key", bytes.NewReader(nil))
	if !errors.Is(err, ErrS3NotConfigured) {
		t.Errorf("expected ErrS3NotConfigured, got %v", err)
	}
}

func TestS3Storage_Download_MockServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET method, got %s", r.Method)
		}
		if r.URL.Path != "/source-bucket/in/video.mp4" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("video bytes"))
	}))
	defer server.Close()

	storage := newTestS3(t, server.URL, "")
	dst := filepath.Join(t.TempDir(), "video.mp4")

	if err := storage.Download(context.Background(), "source-bucket", "in/video.mp4", dst); err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	content, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("failed to read: %v", err)
	}
	if string(content) != "video bytes" {
		t.Errorf("got %q, want %q", string(content), "video bytes")
	}
}

func TestS3Storage_Download_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer server.Close()

	storage := newTestS3(t, server.URL, "")
	dst := filepath.Join(t.TempDir(), "video.mp4")

	if err := storage.Download(context.Background(), "source-bucket", "in/video.mp4", dst); err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Errorf("partial file left at %s", dst)
	}
}
