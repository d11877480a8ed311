package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// Static errors for media operations.
var (
	// ErrMediaNotFound is returned when the media file does not exist.
	ErrMediaNotFound = errors.New("media file not found")
	// ErrInvalidMedia is returned when the probed duration or frame rate is unusable.
	ErrInvalidMedia = errors.New("invalid media file")
	// ErrMediaOpen is returned when ffmpeg cannot open or decode the input.
	ErrMediaOpen = errors.New("could not open media file")
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
)

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// FrameReadError is returned when a requested frame was not produced by the decoder.
type FrameReadError struct {
	Index int
}

func (e *FrameReadError) Error() string {
	return fmt.Sprintf("could not read frame %d", e.Index)
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func runFFmpeg(ctx context.Context, ffmpegPath string, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return nil
}

// statMedia maps a missing path to ErrMediaNotFound.
func statMedia(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrMediaNotFound, path)
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrMediaNotFound, path)
	}
	return nil
}
