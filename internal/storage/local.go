package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage implements ObjectStore on local disk, storing bucket/key
// at rootDir/bucket/key.
type LocalStorage struct {
	rootDir string
	bucket  string
}

// NewLocalStorage creates a new LocalStorage instance.
// If rootDir is empty, a directory under os.TempDir() is used.
// The directory is created if it doesn't exist.
func NewLocalStorage(rootDir, bucket string) (*LocalStorage, error) {
	if rootDir == "" {
		rootDir = filepath.Join(os.TempDir(), "visxp-prep-objects")
	}

	if err := os.MkdirAll(rootDir, 0750); err != nil {
		return nil, fmt.Errorf("create object store directory: %w", err)
	}

	return &LocalStorage{rootDir: rootDir, bucket: bucket}, nil
}

// RootDir returns the directory holding all buckets.
func (s *LocalStorage) RootDir() string {
	return s.rootDir
}

// Upload writes data to rootDir/bucket/key.
func (s *LocalStorage) Upload(ctx context.Context, key string, data io.Reader) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if s.bucket == "" {
		return "", ErrS3NotConfigured
	}
	dst, err := s.objectPath(s.bucket, key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return "", fmt.Errorf("create object directory: %w", err)
	}
	if err := writeFile(dst, data); err != nil {
		return "", err
	}
	return objectURI(s.bucket, key), nil
}

// Download copies rootDir/bucket/key to dst.
func (s *LocalStorage) Download(ctx context.Context, bucket, key, dst string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	src, err := s.objectPath(bucket, key)
	if err != nil {
		return err
	}
	f, err := os.Open(src) // #nosec G304 - path is confined to rootDir
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, objectURI(bucket, key))
		}
		return fmt.Errorf("open object: %w", err)
	}
	defer func() { _ = f.Close() }()

	return writeFile(dst, f)
}

// objectPath maps bucket/key into rootDir and rejects keys escaping it.
func (s *LocalStorage) objectPath(bucket, key string) (string, error) {
	p := filepath.Join(s.rootDir, bucket, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.rootDir, p)
	if err != nil || bucket == "" || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: %s/%s", ErrInvalidURI, bucket, key)
	}
	return p, nil
}

// writeFile copies data into a temp file next to dst and renames it into
// place, so a partial download never appears under the final name.
func writeFile(dst string, data io.Reader) error {
	f, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+"_*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tmp := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
