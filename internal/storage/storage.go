// Package storage provides the object storage used to receive pipeline
// output and to fetch s3:// inputs. S3Storage talks to any S3-compatible
// endpoint; LocalStorage mirrors the same key layout on disk.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrS3NotConfigured is returned when an operation needs a bucket
	// but none is configured.
	ErrS3NotConfigured = errors.New("S3 storage is not configured")

	// ErrInvalidURI is returned for object URIs that are not s3://bucket/key.
	ErrInvalidURI = errors.New("invalid object URI")

	// ErrObjectNotFound is returned when the requested object does not exist.
	ErrObjectNotFound = errors.New("object not found")
)

// ObjectStore stores and retrieves whole objects by key.
type ObjectStore interface {
	// Upload stores data under key in the configured bucket and returns
	// the object URI.
	Upload(ctx context.Context, key string, data io.Reader) (uri string, err error)

	// Download copies the object bucket/key to the local file dst.
	Download(ctx context.Context, bucket, key, dst string) error
}

// Compile-time checks.
var (
	_ ObjectStore = (*S3Storage)(nil)
	_ ObjectStore = (*LocalStorage)(nil)
)

// ParseS3URI splits s3://bucket/key into its bucket and key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	key = strings.TrimLeft(key, "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	return bucket, key, nil
}

// JoinKey joins key segments with "/", dropping empty segments and
// surrounding slashes.
func JoinKey(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}

func objectURI(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}
