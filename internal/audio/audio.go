// Package audio turns the audio track around each keyframe into fixed-size
// log filterbank spectrograms, with optional heatmap images and mp3 clips.
package audio

import (
	"context"
	"errors"
)

// ErrAudioDecode is returned when the audio track cannot be decoded.
var ErrAudioDecode = errors.New("audio decode failed")

// Decoder decodes an entire audio track to mono signed 16-bit PCM.
type Decoder interface {
	// DecodePCM returns the samples of path resampled to sampleRateHz.
	// All failures wrap ErrAudioDecode.
	DecodePCM(ctx context.Context, path string, sampleRateHz int) ([]int16, error)
}

// ClipWriter exports a window of the audio track to a compressed file.
type ClipWriter interface {
	WriteClip(ctx context.Context, src string, startMs, durationMs int64, dst string) error
}

// Compile-time checks.
var (
	_ Decoder    = (*FFmpegDecoder)(nil)
	_ ClipWriter = (*FFmpegDecoder)(nil)
)
