package shots

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/maauso/visxp-prep/internal/keyframe"
	"github.com/maauso/visxp-prep/internal/media"
)

const sceneListFile = "scenes.csv"

var errNoSceneHeader = errors.New("scene list has no header row")

// Scene is one row of a PySceneDetect scene list.
type Scene struct {
	// StartFrame and EndFrame are 1-based as written by scenedetect.
	StartFrame int
	EndFrame   int
	StartSec   float64
	EndSec     float64
}

// SceneDetectDetector runs the PySceneDetect CLI and reads its scene list.
type SceneDetectDetector struct {
	bin     string
	timeout time.Duration
}

// NewSceneDetectDetector creates a SceneDetectDetector. An empty bin defaults to "scenedetect".
func NewSceneDetectDetector(bin string, timeout time.Duration) *SceneDetectDetector {
	if bin == "" {
		bin = "scenedetect"
	}
	return &SceneDetectDetector{bin: bin, timeout: timeout}
}

// Name implements Detector.
func (d *SceneDetectDetector) Name() string { return "scenedetect" }

// Detect implements Detector. Scene lists carry no keyframe marker so one
// midpoint keyframe is derived per scene. A clip without cuts is one scene.
func (d *SceneDetectDetector) Detect(ctx context.Context, path string, info media.Info) (Result, error) {
	tmpDir, err := os.MkdirTemp("", "scenedetect-*")
	if err != nil {
		return Result{}, fmt.Errorf("create scene list directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	if _, err := runTool(ctx, d.Name(), d.bin, d.timeout,
		"-i", path,
		"list-scenes",
		"-f", sceneListFile,
		"-o", tmpDir,
	); err != nil {
		return Result{}, err
	}

	f, err := os.Open(filepath.Join(tmpDir, sceneListFile)) // #nosec G304 - file written by scenedetect into our temp dir
	if err != nil {
		return Result{}, parseFailure(d.Name(), err)
	}
	defer func() { _ = f.Close() }()

	scenes, err := ParseSceneListCSV(f)
	if err != nil {
		return Result{}, parseFailure(d.Name(), err)
	}
	if len(scenes) == 0 {
		scenes = []Scene{{
			StartFrame: 1,
			EndFrame:   info.FrameCount,
			StartSec:   0,
			EndSec:     float64(info.DurationMs) / 1000,
		}}
	}
	return FromScenes(scenes, info.FPS), nil
}

// FromScenes converts a scene list to shots in milliseconds plus one
// midpoint keyframe per scene.
func FromScenes(scenes []Scene, fps float64) Result {
	shots := make([]keyframe.ShotRange, 0, len(scenes))
	frames := make([]FrameRange, 0, len(scenes))
	for _, s := range scenes {
		shots = append(shots, keyframe.ShotRange{
			StartMs: int64(math.Round(s.StartSec * 1000)),
			EndMs:   int64(math.Round(s.EndSec * 1000)),
		})
		frames = append(frames, FrameRange{
			Start: max(s.StartFrame-1, 0),
			End:   max(s.EndFrame-1, 0),
		})
	}
	return Result{
		Shots:     shots,
		Keyframes: MidpointKeyframes(shots, frames, fps),
	}
}

// ParseSceneListCSV reads a "scenedetect list-scenes" CSV. An optional
// leading "Timecode List" row is skipped; columns are located by header name.
func ParseSceneListCSV(r io.Reader) ([]Scene, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var cols map[string]int
	var scenes []Scene
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read scene list: %w", err)
		}
		if len(rec) == 0 {
			continue
		}

		if cols == nil {
			if strings.TrimSpace(rec[0]) == "Scene Number" {
				cols = make(map[string]int, len(rec))
				for i, name := range rec {
					cols[strings.TrimSpace(name)] = i
				}
				for _, name := range []string{"Start Frame", "Start Time (seconds)", "End Frame", "End Time (seconds)"} {
					if _, ok := cols[name]; !ok {
						return nil, fmt.Errorf("scene list is missing column %q", name)
					}
				}
			}
			continue
		}

		scene, err := parseSceneRow(rec, cols)
		if err != nil {
			return nil, err
		}
		scenes = append(scenes, scene)
	}

	if cols == nil {
		return nil, errNoSceneHeader
	}
	return scenes, nil
}

func parseSceneRow(rec []string, cols map[string]int) (Scene, error) {
	field := func(name string) (string, error) {
		i := cols[name]
		if i >= len(rec) {
			return "", fmt.Errorf("scene row is missing column %q", name)
		}
		return strings.TrimSpace(rec[i]), nil
	}

	var (
		s   Scene
		raw string
		err error
	)
	if raw, err = field("Start Frame"); err != nil {
		return s, err
	}
	if s.StartFrame, err = strconv.Atoi(raw); err != nil {
		return s, fmt.Errorf("parse start frame %q: %w", raw, err)
	}
	if raw, err = field("End Frame"); err != nil {
		return s, err
	}
	if s.EndFrame, err = strconv.Atoi(raw); err != nil {
		return s, fmt.Errorf("parse end frame %q: %w", raw, err)
	}
	if raw, err = field("Start Time (seconds)"); err != nil {
		return s, err
	}
	if s.StartSec, err = strconv.ParseFloat(raw, 64); err != nil {
		return s, fmt.Errorf("parse start time %q: %w", raw, err)
	}
	if raw, err = field("End Time (seconds)"); err != nil {
		return s, err
	}
	if s.EndSec, err = strconv.ParseFloat(raw, 64); err != nil {
		return s, fmt.Errorf("parse end time %q: %w", raw, err)
	}
	return s, nil
}
