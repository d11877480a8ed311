package media

import (
	"fmt"
	"path/filepath"
	"strings"
)

// File is a validated input media file.
type File struct {
	Path       string
	DurationMs int64
	// SourceID names every output directory of a run. Never empty.
	SourceID string
}

// NewFile builds a File from a probed path. It returns ErrInvalidMedia when
// the file name yields no usable source id, e.g. "/in/.mp4" or "/in/..mp4".
func NewFile(path string, info Info) (File, error) {
	id := SourceID(path)
	if id == "" || id == "." || id == ".." {
		return File{}, fmt.Errorf("%w: no source id in %q", ErrInvalidMedia, path)
	}
	return File{
		Path:       path,
		DurationMs: info.DurationMs,
		SourceID:   id,
	}, nil
}

// SourceID returns the base name of path without its last extension.
func SourceID(path string) string {
	base := filepath.Base(path)
	if i := strings.LastIndex(base, "."); i >= 0 {
		return base[:i]
	}
	return base
}
