// Package shots runs an external shot-boundary detector and normalizes its
// output into shot ranges and keyframes in milliseconds.
package shots

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"time"

	"github.com/maauso/visxp-prep/internal/keyframe"
	"github.com/maauso/visxp-prep/internal/media"
)

// Static errors for shot detection.
var (
	// ErrShotDetectionFailed is returned when the detector exits non-zero or its output cannot be parsed.
	ErrShotDetectionFailed = errors.New("shot detection failed")
	// ErrShotDetectionTimeout is returned when the detector does not finish in time.
	ErrShotDetectionTimeout = errors.New("shot detection timed out")
)

// DefaultTimeout bounds a single detector run.
const DefaultTimeout = 5 * time.Minute

// Result is the normalized output of a detector run.
type Result struct {
	Shots     []keyframe.ShotRange
	Keyframes []keyframe.Keyframe
}

// Detector finds shots and one or more keyframes per shot.
type Detector interface {
	// Name identifies the tool in logs and provenance.
	Name() string
	// Detect runs the tool on path. info supplies the frame rate used to
	// convert frame indices to milliseconds.
	Detect(ctx context.Context, path string, info media.Info) (Result, error)
}

// DetectionError carries the tool name and stderr of a failed run.
type DetectionError struct {
	Tool   string
	Stderr string
	Err    error
}

func (e *DetectionError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s: %v, stderr: %s", e.Tool, e.Err, e.Stderr)
}

func (e *DetectionError) Unwrap() error {
	return e.Err
}

// runTool runs a detector binary with a bounded timeout and returns stdout.
func runTool(ctx context.Context, tool, bin string, timeout time.Duration, args ...string) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// #nosec G204 - bin is set by the application, not user input
	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &DetectionError{
				Tool: tool,
				Err:  fmt.Errorf("%w after %s", ErrShotDetectionTimeout, timeout),
			}
		}
		return nil, &DetectionError{
			Tool:   tool,
			Stderr: stderr.String(),
			Err:    fmt.Errorf("%w: %w", ErrShotDetectionFailed, err),
		}
	}
	return stdout.Bytes(), nil
}

// parseFailure wraps a parse error as a detection failure.
func parseFailure(tool string, err error) error {
	return &DetectionError{
		Tool: tool,
		Err:  fmt.Errorf("%w: %w", ErrShotDetectionFailed, err),
	}
}

// MidpointKeyframes derives one keyframe per shot at the temporal midpoint.
// The frame index is taken from the matching frame range when available,
// otherwise it is derived from the millisecond midpoint. The timestamp is
// always keyframe.TimestampMs of the chosen frame.
func MidpointKeyframes(shots []keyframe.ShotRange, frames []FrameRange, fps float64) []keyframe.Keyframe {
	kfs := make([]keyframe.Keyframe, 0, len(shots))
	for i, s := range shots {
		var idx int
		if i < len(frames) {
			f := frames[i]
			idx = f.Start + (f.End-f.Start)/2
		} else {
			midMs := s.StartMs + (s.EndMs-s.StartMs)/2
			idx = int(math.Round(float64(midMs) * fps / 1000))
		}
		kfs = append(kfs, keyframe.Keyframe{FrameIndex: idx, TimestampMs: keyframe.TimestampMs(idx, fps)})
	}
	return kfs
}

// FrameRange is a shot expressed as zero-based frame indices.
type FrameRange struct {
	Start int
	End   int
}
