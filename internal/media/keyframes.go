package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/maauso/visxp-prep/internal/keyframe"
)

// KeyframeExtractor implements FrameExtractor using the ffmpeg CLI.
type KeyframeExtractor struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
}

// NewKeyframeExtractor creates a new KeyframeExtractor.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewKeyframeExtractor(ffmpegPath string) *KeyframeExtractor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &KeyframeExtractor{ffmpegPath: ffmpegPath}
}

// Extract writes one JPEG per keyframe, named after the keyframe's own
// timestamp. Frames are matched on ffmpeg's decoder frame counter and
// decoding stops once the highest requested index has been emitted.
func (e *KeyframeExtractor) Extract(ctx context.Context, path string, kfs []keyframe.Keyframe, outDir string) ([]string, error) {
	if len(kfs) == 0 {
		return nil, nil
	}
	if err := statMedia(path); err != nil {
		return nil, err
	}

	indices := uniqueIndices(kfs)
	if indices[0] < 0 {
		return nil, &FrameReadError{Index: indices[0]}
	}

	if err := os.MkdirAll(outDir, 0750); err != nil {
		return nil, fmt.Errorf("create keyframe directory: %w", err)
	}
	staging, err := os.MkdirTemp(outDir, ".frames-*")
	if err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(staging) }()

	args := []string{
		"-v", "error",
		"-i", path,
		"-vf", selectFilter(indices),
		"-fps_mode", "passthrough", // one output image per selected frame
		"-frames:v", strconv.Itoa(len(indices)),
		"-q:v", "2",
		filepath.Join(staging, "%06d.jpg"),
	}
	if err := runFFmpeg(ctx, e.ffmpegPath, args); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrMediaOpen, err)
	}

	// The n-th staged image belongs to the n-th smallest requested index.
	frames := make(map[int]string, len(indices))
	for i, idx := range indices {
		staged := filepath.Join(staging, fmt.Sprintf("%06d.jpg", i+1))
		if _, err := os.Stat(staged); err != nil {
			return nil, &FrameReadError{Index: idx}
		}
		frames[idx] = staged
	}

	paths := make([]string, 0, len(kfs))
	written := make(map[string]bool, len(kfs))
	for _, kf := range kfs {
		dst := filepath.Join(outDir, fmt.Sprintf("%d.jpg", kf.TimestampMs))
		if !written[dst] {
			if err := copyFile(frames[kf.FrameIndex], dst); err != nil {
				return nil, fmt.Errorf("write keyframe %d: %w", kf.FrameIndex, err)
			}
			written[dst] = true
		}
		paths = append(paths, dst)
	}
	return paths, nil
}

// uniqueIndices returns the sorted distinct frame indices of kfs.
func uniqueIndices(kfs []keyframe.Keyframe) []int {
	seen := make(map[int]bool, len(kfs))
	out := make([]int, 0, len(kfs))
	for _, kf := range kfs {
		if !seen[kf.FrameIndex] {
			seen[kf.FrameIndex] = true
			out = append(out, kf.FrameIndex)
		}
	}
	sort.Ints(out)
	return out
}

// selectFilter builds a select expression matching the given decoder frame numbers.
func selectFilter(indices []int) string {
	terms := make([]string, len(indices))
	for i, idx := range indices {
		terms[i] = fmt.Sprintf(`eq(n\,%d)`, idx)
	}
	return "select='" + strings.Join(terms, "+") + "'"
}

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 - src is a staged ffmpeg output
	if err != nil {
		return fmt.Errorf("open source file: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst) // #nosec G304 - dst is built from the output layout
	if err != nil {
		return fmt.Errorf("create destination file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy file: %w", err)
	}
	return out.Close()
}
