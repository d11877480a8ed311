// Package keyframe holds the shot and keyframe types shared by the
// detection, extraction and windowing stages, plus the edge filter that
// removes keyframes whose analysis window would fall outside the clip.
package keyframe

import "math"

// ShotRange is a detected shot in milliseconds. Ranges keep detector order.
type ShotRange struct {
	StartMs int64 `json:"start_ms"`
	EndMs   int64 `json:"end_ms"`
}

// Keyframe is a representative frame of a shot.
type Keyframe struct {
	// FrameIndex is the zero-based decode-order frame number.
	FrameIndex int `json:"frame_index"`
	// TimestampMs is round(FrameIndex / fps * 1000).
	TimestampMs int64 `json:"timestamp_ms"`
}

// TimestampMs converts a frame index to a millisecond offset.
// Every timestamp derived from an index must go through this function.
func TimestampMs(frameIndex int, fps float64) int64 {
	return int64(math.Round(float64(frameIndex) / fps * 1000))
}

// FromIndices builds keyframes for the given frame indices.
func FromIndices(indices []int, fps float64) []Keyframe {
	kfs := make([]Keyframe, 0, len(indices))
	for _, i := range indices {
		kfs = append(kfs, Keyframe{FrameIndex: i, TimestampMs: TimestampMs(i, fps)})
	}
	return kfs
}

// Indices returns the frame indices of kfs in order.
func Indices(kfs []Keyframe) []int {
	out := make([]int, len(kfs))
	for i, kf := range kfs {
		out[i] = kf.FrameIndex
	}
	return out
}

// Timestamps returns the millisecond timestamps of kfs in order.
func Timestamps(kfs []Keyframe) []int64 {
	out := make([]int64, len(kfs))
	for i, kf := range kfs {
		out[i] = kf.TimestampMs
	}
	return out
}
