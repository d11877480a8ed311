// Package media probes media files and extracts keyframe images using the
// ffprobe and ffmpeg command line tools.
package media

import (
	"context"

	"github.com/maauso/visxp-prep/internal/keyframe"
)

// InfoProber reads the timing properties of a media file.
type InfoProber interface {
	// Probe returns the duration, frame rate and frame count of path.
	// Returns ErrMediaNotFound if the file does not exist and
	// ErrInvalidMedia if the duration or frame rate cannot be used.
	Probe(ctx context.Context, path string) (Info, error)
}

// FrameExtractor writes one image per keyframe.
type FrameExtractor interface {
	// Extract decodes path and writes {timestamp_ms}.jpg into outDir for
	// every keyframe. The returned paths follow the order of kfs.
	Extract(ctx context.Context, path string, kfs []keyframe.Keyframe, outDir string) ([]string, error)
}

// Compile-time checks.
var (
	_ InfoProber     = (*Prober)(nil)
	_ FrameExtractor = (*KeyframeExtractor)(nil)
)
