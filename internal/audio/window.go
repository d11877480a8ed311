package audio

import "github.com/maauso/visxp-prep/internal/keyframe"

// StartSample is the first sample of the window centred on timestampMs.
// Integer division throughout; downstream consumers compare array shapes.
func StartSample(timestampMs int64, windowMs, sampleRateHz int) int64 {
	return (timestampMs - int64(windowMs/2)) * int64(sampleRateHz) / 1000
}

// EndSample is one past the last sample of the window centred on timestampMs.
func EndSample(timestampMs int64, windowMs, sampleRateHz int) int64 {
	return (timestampMs + int64(windowMs/2)) * int64(sampleRateHz) / 1000
}

// Window returns the samples of the window centred on timestampMs, clipped
// to the decoded signal, and whether the window lies inside the clip.
func Window(samples []int16, timestampMs, durationMs int64, windowMs, sampleRateHz int) ([]int16, bool) {
	if keyframe.TooCloseToEdge(timestampMs, durationMs, windowMs) {
		return nil, false
	}
	start := StartSample(timestampMs, windowMs, sampleRateHz)
	end := EndSample(timestampMs, windowMs, sampleRateHz)
	n := int64(len(samples))
	start = min(max(start, 0), n)
	end = min(max(end, start), n)
	return samples[start:end], true
}
