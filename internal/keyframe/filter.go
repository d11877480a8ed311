package keyframe

// HalfWindowFrames is half an analysis window expressed in frames.
func HalfWindowFrames(windowMs int, fps float64) float64 {
	return float64(windowMs) / 2000 * fps
}

// Filter drops keyframes that sit within half a window of either clip edge.
// A keyframe exactly on the boundary is dropped. Survivors keep their order.
func Filter(kfs []Keyframe, fps float64, frameCount int, windowMs int) (kept []Keyframe, dropped int) {
	half := HalfWindowFrames(windowMs, fps)
	upper := float64(frameCount) - half

	kept = make([]Keyframe, 0, len(kfs))
	for _, kf := range kfs {
		idx := float64(kf.FrameIndex)
		if idx <= half || idx >= upper {
			dropped++
			continue
		}
		kept = append(kept, kf)
	}
	return kept, dropped
}

// TooCloseToEdge reports whether a window of windowMs centred on
// timestampMs would extend outside [0, durationMs].
func TooCloseToEdge(timestampMs, durationMs int64, windowMs int) bool {
	half := float64(windowMs) / 2
	return float64(timestampMs)+half > float64(durationMs) || float64(timestampMs) < half
}

// FilterByTimestamp is the millisecond form of Filter.
func FilterByTimestamp(kfs []Keyframe, durationMs int64, windowMs int) (kept []Keyframe, dropped int) {
	kept = make([]Keyframe, 0, len(kfs))
	for _, kf := range kfs {
		if TooCloseToEdge(kf.TimestampMs, durationMs, windowMs) {
			dropped++
			continue
		}
		kept = append(kept, kf)
	}
	return kept, dropped
}
