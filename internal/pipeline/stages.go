package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/maauso/visxp-prep/internal/audio"
	"github.com/maauso/visxp-prep/internal/keyframe"
	"github.com/maauso/visxp-prep/internal/media"
	"github.com/maauso/visxp-prep/internal/metadata"
	"github.com/maauso/visxp-prep/internal/metrics"
	"github.com/maauso/visxp-prep/internal/output"
	"github.com/maauso/visxp-prep/internal/provenance"
	"github.com/maauso/visxp-prep/internal/shots"
)

// processed is the outcome of the processing stages, before any output
// transfer or cleanup.
type processed struct {
	Result
	file      *media.File
	kinds     []output.Kind
	lifecycle *output.Lifecycle
	steps     []provenance.Step
}

func (p *processed) fail(state int, msg string) *processed {
	p.Result = Result{state, msg}
	return p
}

// detectorActivities names the provenance step of each detector.
var detectorActivities = map[string][2]string{
	"hecate":      {"Hecate", "Hecate for shot and keyframe detection"},
	"scenedetect": {"Python Scenedetect", "Shot detection & keyframe extraction"},
}

func (o *Orchestrator) process(ctx context.Context, path string) *processed {
	log := o.logger.With(slog.String("input", path))
	log.Info("processing input")
	p := &processed{lifecycle: output.NewLifecycle()}

	info, err := o.deps.Prober.Probe(ctx, path)
	if err != nil {
		log.Error("invalid media file", slog.String("error", err.Error()))
		return p.fail(StateServerError, MsgInvalidMedia)
	}
	file, err := media.NewFile(path, info)
	if err != nil {
		log.Error("invalid media file", slog.String("error", err.Error()))
		return p.fail(StateServerError, MsgInvalidMedia)
	}
	p.file = &file
	log = log.With(slog.String("source_id", file.SourceID))

	p.kinds = output.EnabledKinds(
		o.opts.RunKeyframeExtraction,
		o.opts.RunAudioExtraction,
		o.opts.GenerateSpectrogramImages,
		o.opts.ExtractAudioSamples,
	)
	dirs, err := o.deps.Output.CreateDirs(file.SourceID, p.kinds)
	if err != nil {
		log.Error("could not create output dirs", slog.String("error", err.Error()))
		return p.fail(StateServerError, MsgOutputDirs)
	}
	o.transition(p, output.StateDirsCreated)

	// shot detection writes the metadata every later stage reads
	step, err := o.detectShots(ctx, file, info, dirs[output.KindMetadata])
	if err != nil {
		log.Error("shot detection failed", slog.String("error", err.Error()))
		switch {
		case errors.Is(err, shots.ErrShotDetectionTimeout):
			return p.fail(StateServerError, MsgShotTimeout)
		case errors.Is(err, shots.ErrShotDetectionFailed):
			return p.fail(StateServerError, MsgShotDetection)
		default:
			return p.fail(StateServerError, MsgMetadata)
		}
	}
	kfs, err := readKeyframes(dirs[output.KindMetadata])
	if err != nil {
		log.Warn("could not read keyframe metadata", slog.String("error", err.Error()))
	}
	kept, dropped := keyframe.Filter(kfs, info.FPS, info.FrameCount, o.opts.WindowMs)
	if dropped > 0 {
		log.Info("dropped keyframes too close to the clip edge",
			slog.Int("dropped", dropped),
			slog.Int("kept", len(kept)),
		)
		metrics.KeyframesSkippedTotal.Add(float64(dropped))
	}
	step.OutputData["keyframes_dropped"] = dropped
	p.steps = append(p.steps, step)

	if o.opts.RunKeyframeExtraction && len(kept) == 0 {
		log.Error("could not find keyframe indices")
		return p.fail(StateServerError, MsgNoIndices)
	}
	if o.opts.RunAudioExtraction && len(kept) == 0 {
		log.Error("could not find keyframe timestamps")
		return p.fail(StateServerError, MsgNoTimestamps)
	}

	// keyframe images and spectrograms write to separate kinds and run
	// side by side; a failure in one does not stop the other
	var (
		g                 errgroup.Group
		kfStep, audioStep *provenance.Step
		kfErr, audioErr   error
	)
	if o.opts.RunKeyframeExtraction {
		g.Go(func() error {
			s, err := o.extractKeyframes(ctx, file, kept, dirs[output.KindKeyframes])
			kfStep, kfErr = s, err
			return err
		})
	}
	if o.opts.RunAudioExtraction {
		g.Go(func() error {
			s, err := o.extractAudio(ctx, file, keyframe.Timestamps(kept), dirs)
			audioStep, audioErr = s, err
			return err
		})
	}
	_ = g.Wait()

	for _, s := range []*provenance.Step{kfStep, audioStep} {
		if s != nil {
			p.steps = append(p.steps, *s)
		}
	}
	if kfErr != nil {
		log.Error("keyframe extraction failed", slog.String("error", kfErr.Error()))
		return p.fail(StateServerError, MsgKeyframes)
	}
	if audioErr != nil {
		log.Error("spectrogram extraction failed", slog.String("error", audioErr.Error()))
		return p.fail(StateServerError, MsgAudio)
	}

	o.transition(p, output.StatePopulated)
	return p.fail(StateOK, MsgProcessed)
}

func (o *Orchestrator) detectShots(ctx context.Context, file media.File, info media.Info, metadataDir string) (_ provenance.Step, err error) {
	name := o.deps.Detector.Name()
	ctx, span := o.tracer.Start(ctx, "shot_detection", trace.WithAttributes(
		attribute.String("visxp.source_id", file.SourceID),
		attribute.String("visxp.detector", name),
	))
	defer func() { endSpan(span, err) }()

	activity, ok := detectorActivities[name]
	if !ok {
		activity = [2]string{name, "Shot detection & keyframe extraction"}
	}
	stage := provenance.Begin(activity[0], activity[1])

	res, err := o.deps.Detector.Detect(ctx, file.Path, info)
	if err != nil {
		return provenance.Step{}, err
	}
	paths, err := metadata.WriteAll(metadataDir, res.Shots, res.Keyframes)
	if err != nil {
		return provenance.Step{}, err
	}

	o.logger.Info("detected shots",
		slog.String("source_id", file.SourceID),
		slog.Int("shots", len(res.Shots)),
		slog.Int("keyframes", len(res.Keyframes)),
	)
	step := stage.End(
		map[string]any{"input_file": file.Path},
		map[string]any{
			"shot_boundaries":     paths.ShotBoundaries,
			"keyframe_indices":    paths.KeyframeIndices,
			"keyframe_timestamps": paths.KeyframeTimestamps,
		},
		provenance.WithSoftwareVersion(provenance.SoftwareVersions(o.opts.SoftwareFile, o.logger, name)),
	)
	observe("shot_detection", step)
	return step, nil
}

// readKeyframes pairs the stored keyframe indices with their timestamps.
func readKeyframes(dir string) ([]keyframe.Keyframe, error) {
	indices, err := metadata.ReadKeyframeIndices(dir)
	if err != nil {
		return nil, err
	}
	timestamps, err := metadata.ReadKeyframeTimestamps(dir)
	if err != nil {
		return nil, err
	}
	if len(indices) != len(timestamps) {
		return nil, fmt.Errorf("%d keyframe indices but %d timestamps", len(indices), len(timestamps))
	}
	kfs := make([]keyframe.Keyframe, len(indices))
	for i := range indices {
		kfs[i] = keyframe.Keyframe{FrameIndex: indices[i], TimestampMs: timestamps[i]}
	}
	return kfs, nil
}

func (o *Orchestrator) extractKeyframes(ctx context.Context, file media.File, kfs []keyframe.Keyframe, dir string) (_ *provenance.Step, err error) {
	ctx, span := o.tracer.Start(ctx, "keyframe_extraction", trace.WithAttributes(
		attribute.String("visxp.source_id", file.SourceID),
		attribute.Int("visxp.keyframes", len(kfs)),
	))
	defer func() { endSpan(span, err) }()

	stage := provenance.Begin("Keyframe extraction", "Extract keyframes (images) for listed frame indices")

	files, err := o.deps.Frames.Extract(ctx, file.Path, kfs, dir)
	if err != nil {
		return nil, err
	}
	metrics.KeyframesExtractedTotal.Add(float64(len(files)))

	step := stage.End(
		map[string]any{
			"input_file_path":  file.Path,
			"keyframe_indices": keyframe.Indices(kfs),
		},
		map[string]any{"keyframe_files": files},
	)
	observe("keyframe_extraction", step)
	return &step, nil
}

func (o *Orchestrator) extractAudio(ctx context.Context, file media.File, timestamps []int64, dirs map[output.Kind]string) (_ *provenance.Step, err error) {
	ctx, span := o.tracer.Start(ctx, "spectrogram_extraction", trace.WithAttributes(
		attribute.String("visxp.source_id", file.SourceID),
		attribute.IntSlice("visxp.sample_rates_hz", o.opts.SampleRatesHz),
	))
	defer func() { endSpan(span, err) }()

	stage := provenance.Begin(
		"Spectrogram extraction",
		"Extract audio spectrogram (Numpy array) corresponding to the window of audio around each listed keyframe",
	)

	imageDir := ""
	if o.opts.GenerateSpectrogramImages {
		imageDir = dirs[output.KindSpectrogramImages]
	}

	// one pass per sample rate, each decoding the track on its own
	results := make([]audio.Result, len(o.opts.SampleRatesHz))
	var g errgroup.Group
	for i, sr := range o.opts.SampleRatesHz {
		g.Go(func() error {
			res, err := o.deps.Audio.Extract(ctx, audio.Request{
				MediaPath:      file.Path,
				TimestampsMs:   timestamps,
				DurationMs:     file.DurationMs,
				SampleRateHz:   sr,
				WindowMs:       o.opts.WindowMs,
				ZNormalize:     o.opts.ZNormalize,
				SpectrogramDir: dirs[output.KindSpectrograms],
				ImageDir:       imageDir,
			})
			if err != nil {
				return fmt.Errorf("sample rate %d: %w", sr, err)
			}
			results[i] = res
			metrics.SpectrogramsWrittenTotal.WithLabelValues(strconv.Itoa(sr)).Add(float64(len(res.Spectrograms)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var spectrograms, images []string
	for _, r := range results {
		spectrograms = append(spectrograms, r.Spectrograms...)
		images = append(images, r.Images...)
	}
	out := map[string]any{"spectrogram_files": spectrograms}
	if o.opts.GenerateSpectrogramImages {
		out["spectrogram_images"] = images
	}

	if o.opts.ExtractAudioSamples {
		clips, err := o.deps.Audio.ExtractClips(ctx, file.Path, timestamps, file.DurationMs, o.opts.WindowMs, dirs[output.KindAudio])
		if err != nil {
			return nil, err
		}
		out["audio_files"] = clips
	}

	step := stage.End(
		map[string]any{
			"input_file_path":     file.Path,
			"keyframe_timestamps": timestamps,
		},
		out,
		provenance.WithParameters(map[string]any{
			"window_size_ms":  o.opts.WindowMs,
			"sample_rates_hz": slices.Clone(o.opts.SampleRatesHz),
			"z_normalize":     o.opts.ZNormalize,
		}),
	)
	observe("spectrogram_extraction", step)
	return &step, nil
}

func (o *Orchestrator) transition(p *processed, next output.State) {
	if err := p.lifecycle.TransitionTo(next); err != nil {
		o.logger.Error("output lifecycle", slog.String("error", err.Error()))
	}
}
