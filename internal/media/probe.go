package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Info holds the timing properties of a media file.
type Info struct {
	DurationMs int64
	FPS        float64
	FrameCount int
}

// Prober implements InfoProber using the ffprobe CLI.
type Prober struct {
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
}

// NewProber creates a new Prober.
// If ffprobePath is empty, it defaults to "ffprobe" (found via PATH).
func NewProber(ffprobePath string) *Prober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Prober{ffprobePath: ffprobePath}
}

type probeResult struct {
	Streams []struct {
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe returns duration, frame rate and frame count of the first video stream.
// The duration is converted with round(seconds*1000) and is therefore only
// millisecond accurate.
func (p *Prober) Probe(ctx context.Context, path string) (Info, error) {
	if err := statMedia(path); err != nil {
		return Info{}, err
	}

	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "format=duration:stream=r_frame_rate,avg_frame_rate,nb_frames",
		"-of", "json",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Info{}, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return Info{}, fmt.Errorf("%w: %w: %w, stderr: %s", ErrInvalidMedia, ErrFFprobeExecution, err, stderr.String())
	}

	return parseProbeOutput(stdout.Bytes())
}

func parseProbeOutput(data []byte) (Info, error) {
	var res probeResult
	if err := json.Unmarshal(data, &res); err != nil {
		return Info{}, fmt.Errorf("%w: parse ffprobe output: %w", ErrInvalidMedia, err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(res.Format.Duration), 64)
	if err != nil {
		return Info{}, fmt.Errorf("%w: parse duration %q: %w", ErrInvalidMedia, res.Format.Duration, err)
	}
	durationMs := int64(math.Round(seconds * 1000))
	if durationMs <= 0 {
		return Info{}, fmt.Errorf("%w: duration %d ms", ErrInvalidMedia, durationMs)
	}

	if len(res.Streams) == 0 {
		return Info{}, fmt.Errorf("%w: no video stream", ErrInvalidMedia)
	}
	stream := res.Streams[0]

	fps, ok := parseFrameRate(stream.AvgFrameRate)
	if !ok {
		fps, ok = parseFrameRate(stream.RFrameRate)
	}
	if !ok {
		return Info{}, fmt.Errorf("%w: unreadable frame rate %q", ErrInvalidMedia, stream.RFrameRate)
	}

	frameCount, err := strconv.Atoi(strings.TrimSpace(stream.NbFrames))
	if err != nil || frameCount <= 0 {
		frameCount = int(seconds * fps)
	}

	return Info{
		DurationMs: durationMs,
		FPS:        fps,
		FrameCount: frameCount,
	}, nil
}

// parseFrameRate parses ffprobe rates such as "30000/1001" or "25".
func parseFrameRate(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	var fps float64
	if num, den, found := strings.Cut(s, "/"); found {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0, false
		}
		fps = n / d
	} else {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		fps = v
	}

	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return 0, false
	}
	return fps, true
}
