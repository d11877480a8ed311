package shots

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/maauso/visxp-prep/internal/keyframe"
	"github.com/maauso/visxp-prep/internal/media"
)

var errNoHecateLines = errors.New("output has no shots or keyframes line")

// HecateDetector runs the hecate binary, which reports shots and
// keyframes as frame indices.
type HecateDetector struct {
	bin     string
	timeout time.Duration
}

// NewHecateDetector creates a HecateDetector. An empty bin defaults to "hecate".
func NewHecateDetector(bin string, timeout time.Duration) *HecateDetector {
	if bin == "" {
		bin = "hecate"
	}
	return &HecateDetector{bin: bin, timeout: timeout}
}

// Name implements Detector.
func (d *HecateDetector) Name() string { return "hecate" }

// Detect implements Detector.
func (d *HecateDetector) Detect(ctx context.Context, path string, info media.Info) (Result, error) {
	out, err := runTool(ctx, d.Name(), d.bin, d.timeout,
		"-i", path,
		"--print_shot_info",
		"--print_keyfrm_info",
	)
	if err != nil {
		return Result{}, err
	}

	frames, indices, err := ParseHecateOutput(string(out))
	if err != nil {
		return Result{}, parseFailure(d.Name(), err)
	}

	res := Result{
		Shots:     make([]keyframe.ShotRange, 0, len(frames)),
		Keyframes: keyframe.FromIndices(indices, info.FPS),
	}
	for _, f := range frames {
		res.Shots = append(res.Shots, keyframe.ShotRange{
			StartMs: keyframe.TimestampMs(f.Start, info.FPS),
			EndMs:   keyframe.TimestampMs(f.End, info.FPS),
		})
	}
	if len(res.Keyframes) == 0 {
		res.Keyframes = MidpointKeyframes(res.Shots, frames, info.FPS)
	}
	return res, nil
}

// ParseHecateOutput reads the "shots:" and "keyframes:" lines of a hecate
// report, e.g.
//
//	shots: [0:120],[121:299]
//	keyframes: [60,200]
func ParseHecateOutput(output string) ([]FrameRange, []int, error) {
	var (
		shots     []FrameRange
		keyframes []int
		found     bool
	)

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "shots:"):
			found = true
			parsed, err := parseHecateShots(strings.TrimSpace(strings.TrimPrefix(line, "shots:")))
			if err != nil {
				return nil, nil, err
			}
			shots = parsed
		case strings.HasPrefix(line, "keyframes:"):
			found = true
			parsed, err := parseHecateKeyframes(strings.TrimSpace(strings.TrimPrefix(line, "keyframes:")))
			if err != nil {
				return nil, nil, err
			}
			keyframes = parsed
		}
	}

	if !found {
		return nil, nil, errNoHecateLines
	}
	return shots, keyframes, nil
}

func parseHecateShots(s string) ([]FrameRange, error) {
	if s == "" {
		return nil, nil
	}
	var out []FrameRange
	for _, tuple := range strings.Split(s, ",") {
		tuple = strings.TrimSpace(tuple)
		tuple = strings.TrimSuffix(strings.TrimPrefix(tuple, "["), "]")
		a, b, ok := strings.Cut(tuple, ":")
		if !ok {
			return nil, fmt.Errorf("malformed shot %q", tuple)
		}
		start, err := strconv.Atoi(strings.TrimSpace(a))
		if err != nil {
			return nil, fmt.Errorf("malformed shot start %q: %w", a, err)
		}
		end, err := strconv.Atoi(strings.TrimSpace(b))
		if err != nil {
			return nil, fmt.Errorf("malformed shot end %q: %w", b, err)
		}
		out = append(out, FrameRange{Start: start, End: end})
	}
	return out, nil
}

func parseHecateKeyframes(s string) ([]int, error) {
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []int
	for _, v := range strings.Split(s, ",") {
		idx, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("malformed keyframe index %q: %w", v, err)
		}
		out = append(out, idx)
	}
	return out, nil
}
