// Package download fetches pipeline inputs given as http(s) URLs or
// s3:// URIs into the local input directory.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/maauso/visxp-prep/internal/storage"
)

// Static errors for download operations.
var (
	// ErrDownloadFailed is returned when the input could not be fetched.
	ErrDownloadFailed = errors.New("download failed")
	// ErrUnsupportedScheme is returned for URIs that are neither http(s) nor s3.
	ErrUnsupportedScheme = errors.New("unsupported URI scheme")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("download: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("download: rate limited")
)

// Result describes a fetched input file.
type Result struct {
	FilePath       string  `json:"file_path"`
	DownloadTimeMs float64 `json:"download_time_ms"`
	MimeType       string  `json:"mime_type"`
	ContentLength  int64   `json:"content_length"`
}

// Downloader fetches remote inputs into dir.
type Downloader struct {
	dir         string
	httpClient  *http.Client
	store       storage.ObjectStore
	maxRetries  int
	baseBackoff time.Duration
	logger      *slog.Logger
}

// Option is a function that configures a Downloader.
type Option func(*Downloader)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Downloader) {
		d.httpClient = c
	}
}

// WithObjectStore enables s3:// inputs.
func WithObjectStore(s storage.ObjectStore) Option {
	return func(d *Downloader) {
		d.store = s
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) Option {
	return func(d *Downloader) {
		d.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(b time.Duration) Option {
	return func(d *Downloader) {
		d.baseBackoff = b
	}
}

// New creates a Downloader saving into dir.
func New(dir string, logger *slog.Logger, opts ...Option) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Downloader{
		dir:         dir,
		httpClient:  &http.Client{Timeout: 30 * time.Minute},
		maxRetries:  3,
		baseBackoff: 1 * time.Second,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// IsURI reports whether input names a remote resource rather than a local path.
func IsURI(input string) bool {
	for _, prefix := range []string{"http://", "https://", "s3://"} {
		if strings.HasPrefix(input, prefix) {
			return true
		}
	}
	return false
}

// Fetch downloads uri into the download directory. An http(s) input that
// is already present there is not fetched again.
func (d *Downloader) Fetch(ctx context.Context, uri string) (Result, error) {
	d.logger.Info("downloading input", slog.String("uri", uri))
	start := time.Now()

	var (
		dst string
		err error
	)
	switch {
	case strings.HasPrefix(uri, "s3://"):
		dst, err = d.fetchS3(ctx, uri)
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		dst, err = d.fetchHTTP(ctx, uri)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedScheme, uri)
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}

	res := Result{
		FilePath:       dst,
		DownloadTimeMs: float64(time.Since(start).Microseconds()) / 1000,
		MimeType:       "unknown",
		ContentLength:  -1,
	}
	if st, err := os.Stat(dst); err == nil {
		res.ContentLength = st.Size()
	}
	if mt, err := mimetype.DetectFile(dst); err == nil {
		res.MimeType = mt.String()
	}

	d.logger.Info("downloaded input",
		slog.String("file_path", res.FilePath),
		slog.String("mime_type", res.MimeType),
		slog.Int64("content_length", res.ContentLength),
	)
	return res, nil
}

func (d *Downloader) fetchS3(ctx context.Context, uri string) (string, error) {
	if d.store == nil {
		return "", storage.ErrS3NotConfigured
	}
	bucket, key, err := storage.ParseS3URI(uri)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(d.dir, 0750); err != nil {
		return "", fmt.Errorf("create download directory: %w", err)
	}

	dst := filepath.Join(d.dir, path.Base(key))
	if err := d.store.Download(ctx, bucket, key, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func (d *Downloader) fetchHTTP(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." || name == "" {
		return "", fmt.Errorf("no file name in %q", rawURL)
	}

	dst := filepath.Join(d.dir, name)
	if _, err := os.Stat(dst); err == nil {
		d.logger.Info("input already downloaded", slog.String("file_path", dst))
		return dst, nil
	}
	if err := os.MkdirAll(d.dir, 0750); err != nil {
		return "", fmt.Errorf("create download directory: %w", err)
	}

	if err := d.doRequestWithRetry(ctx, rawURL, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// doRequestWithRetry performs the GET with exponential backoff retry.
func (d *Downloader) doRequestWithRetry(ctx context.Context, rawURL, dst string) error {
	var lastErr error
	backoff := d.baseBackoff

	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("download: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
			d.logger.Warn("retrying download", slog.Int("attempt", attempt), slog.String("error", lastErr.Error()))
		}

		err := d.doRequest(ctx, rawURL, dst)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("download: max retries exceeded: %w", lastErr)
}

// doRequest streams the response body into a temp file renamed to dst.
func (d *Downloader) doRequest(ctx context.Context, rawURL, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("download: create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return &retryableError{err: fmt.Errorf("download: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode >= 500 {
			return &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(body))}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(body))}
		}
		return fmt.Errorf("download: status %d: %s", resp.StatusCode, string(body))
	}

	f, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+"_*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return &retryableError{err: fmt.Errorf("download: read body: %w", err)}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename download: %w", err)
	}
	return nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
