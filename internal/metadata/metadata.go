// Package metadata reads and writes the shot and keyframe metadata files
// shared between pipeline stages. Each file holds a small versioned JSON
// record instead of a language literal.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/maauso/visxp-prep/internal/keyframe"
)

// File names inside the metadata directory.
const (
	KeyframeIndicesFile    = "keyframes_indices.txt"
	KeyframeTimestampsFile = "keyframes_timestamps_ms.txt"
	ShotBoundariesFile     = "shot_boundaries_timestamps_ms.txt"
)

// Version is the current record format version.
const Version = 1

// Kind identifies the content of a record.
type Kind string

const (
	KindKeyframeIndices    Kind = "keyframe_indices"
	KindKeyframeTimestamps Kind = "keyframe_timestamps_ms"
	KindShotBoundaries     Kind = "shot_boundaries_ms"
)

var (
	// ErrKindMismatch is returned when a file holds a different record kind.
	ErrKindMismatch = errors.New("metadata kind mismatch")
	// ErrUnsupportedVersion is returned for records newer than Version.
	ErrUnsupportedVersion = errors.New("unsupported metadata version")
)

type record[T any] struct {
	Version int  `json:"version"`
	Kind    Kind `json:"kind"`
	Values  []T  `json:"values"`
}

// Paths lists the metadata files written for one run.
type Paths struct {
	ShotBoundaries     string
	KeyframeIndices    string
	KeyframeTimestamps string
}

// WriteAll writes shot boundaries, keyframe indices and keyframe timestamps into dir.
func WriteAll(dir string, shots []keyframe.ShotRange, kfs []keyframe.Keyframe) (Paths, error) {
	p := Paths{
		ShotBoundaries:     filepath.Join(dir, ShotBoundariesFile),
		KeyframeIndices:    filepath.Join(dir, KeyframeIndicesFile),
		KeyframeTimestamps: filepath.Join(dir, KeyframeTimestampsFile),
	}

	bounds := make([][2]int64, len(shots))
	for i, s := range shots {
		bounds[i] = [2]int64{s.StartMs, s.EndMs}
	}

	if err := write(p.ShotBoundaries, KindShotBoundaries, bounds); err != nil {
		return Paths{}, err
	}
	if err := write(p.KeyframeIndices, KindKeyframeIndices, keyframe.Indices(kfs)); err != nil {
		return Paths{}, err
	}
	if err := write(p.KeyframeTimestamps, KindKeyframeTimestamps, keyframe.Timestamps(kfs)); err != nil {
		return Paths{}, err
	}
	return p, nil
}

// ReadKeyframeIndices reads keyframes_indices.txt from dir.
func ReadKeyframeIndices(dir string) ([]int, error) {
	return read[int](filepath.Join(dir, KeyframeIndicesFile), KindKeyframeIndices)
}

// ReadKeyframeTimestamps reads keyframes_timestamps_ms.txt from dir.
func ReadKeyframeTimestamps(dir string) ([]int64, error) {
	return read[int64](filepath.Join(dir, KeyframeTimestampsFile), KindKeyframeTimestamps)
}

// ReadShotBoundaries reads shot_boundaries_timestamps_ms.txt from dir.
func ReadShotBoundaries(dir string) ([]keyframe.ShotRange, error) {
	pairs, err := read[[2]int64](filepath.Join(dir, ShotBoundariesFile), KindShotBoundaries)
	if err != nil {
		return nil, err
	}
	shots := make([]keyframe.ShotRange, len(pairs))
	for i, p := range pairs {
		shots[i] = keyframe.ShotRange{StartMs: p[0], EndMs: p[1]}
	}
	return shots, nil
}

func write[T any](path string, kind Kind, values []T) error {
	if values == nil {
		values = []T{}
	}
	data, err := json.Marshal(record[T]{Version: Version, Kind: kind, Values: values})
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func read[T any](path string, kind Kind) ([]T, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is built from the output layout
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var rec record[T]
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if rec.Kind != kind {
		return nil, fmt.Errorf("%w: %s holds %q, want %q", ErrKindMismatch, path, rec.Kind, kind)
	}
	if rec.Version < 1 || rec.Version > Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, rec.Version)
	}
	return rec.Values, nil
}
