package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// FFmpegDecoder implements Decoder and ClipWriter using the ffmpeg CLI.
type FFmpegDecoder struct {
	ffmpegPath string
}

// NewFFmpegDecoder creates a new FFmpegDecoder.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
func NewFFmpegDecoder(ffmpegPath string) *FFmpegDecoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegDecoder{ffmpegPath: ffmpegPath}
}

// DecodePCM implements Decoder.
func (d *FFmpegDecoder) DecodePCM(ctx context.Context, path string, sampleRateHz int) ([]int16, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAudioDecode, err)
	}

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, d.ffmpegPath,
		"-v", "error",
		"-i", path,
		"-vn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRateHz),
		"-",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w, stderr: %s", ErrAudioDecode, err, stderr.String())
	}

	raw := stdout.Bytes()
	samples := make([]int16, len(raw)/2)
	if err := binary.Read(bytes.NewReader(raw[:len(samples)*2]), binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("%w: read samples: %w", ErrAudioDecode, err)
	}
	return samples, nil
}

// WriteClip implements ClipWriter by encoding the window to mp3.
func (d *FFmpegDecoder) WriteClip(ctx context.Context, src string, startMs, durationMs int64, dst string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, d.ffmpegPath,
		"-v", "error",
		"-y",
		"-ss", msToSeconds(startMs),
		"-t", msToSeconds(durationMs),
		"-i", src,
		"-vn",
		"-ac", "1",
		"-c:a", "libmp3lame",
		"-q:a", "4",
		dst,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("%w: clip %s: %w, stderr: %s", ErrAudioDecode, dst, err, stderr.String())
	}
	return nil
}

func msToSeconds(ms int64) string {
	return strconv.FormatFloat(float64(ms)/1000, 'f', 3, 64)
}
