package download

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/visxp-prep/internal/storage"
)

func TestIsURI(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"http://example.com/clip.mp4", true},
		{"https://example.com/clip.mp4", true},
		{"s3://bucket/assets/clip.mp4", true},
		{"/data/input-files/clip.mp4", false},
		{"clip.mp4", false},
		{"ftp://example.com/clip.mp4", false},
	}

	for _, tt := range tests {
		if got := IsURI(tt.input); got != tt.want {
			t.Errorf("IsURI(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestFetch_HTTP(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/media/clip.txt" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "plain text media")
	}))
	defer server.Close()

	dir := t.TempDir()
	d := New(dir, nil)

	res, err := d.Fetch(context.Background(), server.URL+"/media/clip.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "clip.txt"), res.FilePath)
	assert.Equal(t, int64(len("plain text media")), res.ContentLength)
	assert.Contains(t, res.MimeType, "text/plain")
	assert.GreaterOrEqual(t, res.DownloadTimeMs, 0.0)

	// present files are not fetched twice
	_, err = d.Fetch(context.Background(), server.URL+"/media/clip.txt")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetch_HTTPRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer server.Close()

	d := New(t.TempDir(), nil, WithBaseBackoff(time.Millisecond))

	_, err := d.Fetch(context.Background(), server.URL+"/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetch_HTTPNotFound(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	dir := t.TempDir()
	d := New(dir, nil, WithBaseBackoff(time.Millisecond))

	_, err := d.Fetch(context.Background(), server.URL+"/clip.mp4")
	assert.ErrorIs(t, err, ErrDownloadFailed)
	assert.Equal(t, int32(1), hits.Load())
	assert.NoFileExists(t, filepath.Join(dir, "clip.mp4"))
}

func TestFetch_HTTPMaxRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	d := New(t.TempDir(), nil, WithBaseBackoff(time.Millisecond), WithMaxRetries(2))

	_, err := d.Fetch(context.Background(), server.URL+"/clip.mp4")
	assert.ErrorIs(t, err, ErrDownloadFailed)
	assert.ErrorIs(t, err, ErrServerError)
}

func TestFetch_HTTPNoFileName(t *testing.T) {
	d := New(t.TempDir(), nil)

	_, err := d.Fetch(context.Background(), "http://example.com/")
	assert.ErrorIs(t, err, ErrDownloadFailed)
}

func TestFetch_S3(t *testing.T) {
	objects, err := storage.NewLocalStorage(t.TempDir(), "source-bucket")
	require.NoError(t, err)
	_, err = objects.Upload(context.Background(), "assets/clip.mp4", strings.NewReader("video"))
	require.NoError(t, err)

	dir := t.TempDir()
	d := New(dir, nil, WithObjectStore(objects))

	res, err := d.Fetch(context.Background(), "s3://source-bucket/assets/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "clip.mp4"), res.FilePath)

	content, err := os.ReadFile(res.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "video", string(content))

	_, err = d.Fetch(context.Background(), "s3://source-bucket/assets/missing.mp4")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestFetch_S3NotConfigured(t *testing.T) {
	d := New(t.TempDir(), nil)

	_, err := d.Fetch(context.Background(), "s3://bucket/clip.mp4")
	assert.ErrorIs(t, err, ErrDownloadFailed)
	assert.ErrorIs(t, err, storage.ErrS3NotConfigured)
}

func TestFetch_UnsupportedScheme(t *testing.T) {
	d := New(t.TempDir(), nil)

	_, err := d.Fetch(context.Background(), "ftp://example.com/clip.mp4")
	assert.True(t, errors.Is(err, ErrUnsupportedScheme))
}
