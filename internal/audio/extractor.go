package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/maauso/visxp-prep/internal/keyframe"
)

// Request describes one spectrogram pass at a single sample rate.
type Request struct {
	MediaPath    string
	TimestampsMs []int64
	DurationMs   int64
	SampleRateHz int
	WindowMs     int
	ZNormalize   bool

	// SpectrogramDir receives {ts}_{sr}.npz files.
	SpectrogramDir string
	// ImageDir receives {ts}_{sr}.jpg heatmaps. Empty disables images.
	ImageDir string
}

// Result lists the files written by a pass.
type Result struct {
	Spectrograms []string
	Images       []string
	// Skipped counts keyframes whose window fell outside the clip or was
	// cut short by a decoded track shorter than DurationMs.
	Skipped int
}

// Extractor computes per-keyframe spectrograms from a decoded audio track.
type Extractor struct {
	decoder Decoder
	clips   ClipWriter
	params  FilterbankParams
	logger  *slog.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithFilterbankParams overrides DefaultFilterbankParams.
func WithFilterbankParams(p FilterbankParams) ExtractorOption {
	return func(e *Extractor) { e.params = p }
}

// WithClipWriter sets the writer used by ExtractClips.
func WithClipWriter(c ClipWriter) ExtractorOption {
	return func(e *Extractor) { e.clips = c }
}

// NewExtractor creates an Extractor.
func NewExtractor(decoder Decoder, logger *slog.Logger, opts ...ExtractorOption) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Extractor{
		decoder: decoder,
		params:  DefaultFilterbankParams,
		logger:  logger,
	}
	if c, ok := decoder.(ClipWriter); ok {
		e.clips = c
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract decodes the audio track once at req.SampleRateHz and writes one
// spectrogram archive per keyframe whose full window lies inside the clip.
func (e *Extractor) Extract(ctx context.Context, req Request) (Result, error) {
	samples, err := e.decoder.DecodePCM(ctx, req.MediaPath, req.SampleRateHz)
	if err != nil {
		return Result{}, err
	}
	e.logger.Debug("decoded audio",
		slog.String("path", req.MediaPath),
		slog.Int("sample_rate", req.SampleRateHz),
		slog.Int("samples", len(samples)),
	)

	if err := os.MkdirAll(req.SpectrogramDir, 0750); err != nil {
		return Result{}, fmt.Errorf("create spectrogram directory: %w", err)
	}
	if req.ImageDir != "" {
		if err := os.MkdirAll(req.ImageDir, 0750); err != nil {
			return Result{}, fmt.Errorf("create spectrogram image directory: %w", err)
		}
	}

	fb := NewFilterbank(req.SampleRateHz, e.params)
	var res Result
	for _, ts := range req.TimestampsMs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		window, ok := Window(samples, ts, req.DurationMs, req.WindowMs, req.SampleRateHz)
		if !ok {
			e.logger.Info("skipping keyframe too close to the clip edge",
				slog.Int64("timestamp_ms", ts),
				slog.Int64("duration_ms", req.DurationMs),
			)
			res.Skipped++
			continue
		}
		if want := EndSample(ts, req.WindowMs, req.SampleRateHz) - StartSample(ts, req.WindowMs, req.SampleRateHz); int64(len(window)) < want {
			e.logger.Warn("skipping keyframe with truncated audio window",
				slog.Int64("timestamp_ms", ts),
				slog.Int("samples", len(window)),
				slog.Int64("expected_samples", want),
			)
			res.Skipped++
			continue
		}

		spec := fb.Compute(window, req.ZNormalize)
		name := fmt.Sprintf("%d_%d", ts, req.SampleRateHz)

		npzPath := filepath.Join(req.SpectrogramDir, name+".npz")
		if err := WriteNPZ(npzPath, ArrayKey, spec.Shape(), spec.Data); err != nil {
			return res, fmt.Errorf("write spectrogram %s: %w", name, err)
		}
		res.Spectrograms = append(res.Spectrograms, npzPath)

		if req.ImageDir != "" {
			imgPath := filepath.Join(req.ImageDir, name+".jpg")
			if err := WriteSpectrogramImage(imgPath, spec); err != nil {
				return res, fmt.Errorf("write spectrogram image %s: %w", name, err)
			}
			res.Images = append(res.Images, imgPath)
		}
	}

	e.logger.Info("extracted spectrograms",
		slog.Int("sample_rate", req.SampleRateHz),
		slog.Int("written", len(res.Spectrograms)),
		slog.Int("skipped", res.Skipped),
	)
	return res, nil
}

// ExtractClips writes {ts}.mp3 for every keyframe whose window lies inside the clip.
func (e *Extractor) ExtractClips(ctx context.Context, mediaPath string, timestampsMs []int64, durationMs int64, windowMs int, dir string) ([]string, error) {
	if e.clips == nil {
		return nil, fmt.Errorf("%w: no clip writer configured", ErrAudioDecode)
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create audio directory: %w", err)
	}

	var paths []string
	for _, ts := range timestampsMs {
		if keyframe.TooCloseToEdge(ts, durationMs, windowMs) {
			continue
		}
		dst := filepath.Join(dir, fmt.Sprintf("%d.mp3", ts))
		start := ts - int64(windowMs/2)
		if err := e.clips.WriteClip(ctx, mediaPath, start, int64(windowMs), dst); err != nil {
			return paths, err
		}
		paths = append(paths, dst)
	}
	return paths, nil
}
