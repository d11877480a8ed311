// Package pipeline sequences one VisXP prep run: download, probe, shot
// detection, keyframe and spectrogram extraction, provenance and the
// output lifecycle. Every failure is reported as a Result with a numeric
// state and a message instead of an error.
package pipeline

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/maauso/visxp-prep/internal/audio"
	"github.com/maauso/visxp-prep/internal/download"
	"github.com/maauso/visxp-prep/internal/media"
	"github.com/maauso/visxp-prep/internal/metrics"
	"github.com/maauso/visxp-prep/internal/output"
	"github.com/maauso/visxp-prep/internal/provenance"
	"github.com/maauso/visxp-prep/internal/shots"
)

// WorkerName identifies this worker in the software provenance file.
const WorkerName = "dane-video-segmentation-worker"

// Result states.
const (
	StateOK          = 200
	StateNoInput     = 403
	StateNoArtifact  = 404
	StateServerError = 500
)

// Result messages.
const (
	MsgSuccess            = "Successfully generated VisXP data for the next worker"
	MsgProcessed          = "Successfully generated input for VisXP feature extraction"
	MsgNoInput            = "Error, no input file"
	MsgDataDirs           = "Input & output dirs not ok"
	MsgInvalidMedia       = "Invalid or missing media file"
	MsgOutputDirs         = "Could not create output dirs"
	MsgShotDetection      = "Shot detection failed"
	MsgShotTimeout        = "Shot detection timed out"
	MsgMetadata           = "Could not write shot metadata"
	MsgNoIndices          = "Could not find keyframe_indices"
	MsgNoTimestamps       = "Could not find keyframe_timestamps"
	MsgKeyframes          = "Keyframe extraction failed"
	MsgAudio              = "Spectrogram extraction failed"
	MsgNoMediaFile        = "No media file in processing result"
	MsgTransfer           = "Failed to transfer output to S3"
	MsgInputNotDeleted    = "Generated VISXP_PREP output, but could not delete the input file"
	downloadFailedMessage = "Could not download "
)

// Result is the outcome of a run.
type Result struct {
	State   int    `json:"state"`
	Message string `json:"message"`
}

// OK reports whether the run succeeded.
func (r Result) OK() bool { return r.State == StateOK }

// Options are the settings of a run.
type Options struct {
	// InputDir receives downloads; OutputDir is the root of all output.
	InputDir  string
	OutputDir string

	WindowMs      int
	SampleRatesHz []int
	ZNormalize    bool

	RunKeyframeExtraction     bool
	RunAudioExtraction        bool
	GenerateSpectrogramImages bool
	ExtractAudioSamples       bool

	DeleteInputOnCompletion  bool
	DeleteOutputOnCompletion bool
	TransferOnCompletion     bool

	// Parameters are recorded on the top-level provenance step.
	Parameters map[string]any
	// SoftwareFile lists "name;url" software versions.
	SoftwareFile string
}

// Fetcher downloads remote inputs.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) (download.Result, error)
}

// Dependencies are the collaborators of an Orchestrator.
type Dependencies struct {
	Prober   media.InfoProber
	Detector shots.Detector
	Frames   media.FrameExtractor
	Audio    *audio.Extractor
	// Fetcher may be nil when only local inputs are processed.
	Fetcher Fetcher
	Output  *output.Manager
	// Tracer defaults to the global OpenTelemetry tracer provider.
	Tracer trace.Tracer
}

// Orchestrator runs the pipeline for one input at a time.
type Orchestrator struct {
	opts   Options
	deps   Dependencies
	tracer trace.Tracer
	logger *slog.Logger
}

// New creates an Orchestrator.
func New(opts Options, deps Dependencies, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = defaultTracer()
	}
	return &Orchestrator{opts: opts, deps: deps, tracer: tracer, logger: logger}
}

// Options returns the run settings.
func (o *Orchestrator) Options() Options {
	return o.opts
}

// Run processes input, a local path, http(s) URL or s3:// URI. The returned
// step is the provenance tree of the run; it is nil when the run stopped
// before any stage started.
func (o *Orchestrator) Run(ctx context.Context, input string) (Result, *provenance.Step) {
	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()

	ctx, span := o.tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(attribute.String("visxp.input", input)))
	defer span.End()

	res, step := o.run(ctx, input)
	span.SetAttributes(attribute.Int("visxp.state", res.State))
	if !res.OK() {
		span.SetStatus(codes.Error, res.Message)
	}
	metrics.RunsTotal.WithLabelValues(strconv.Itoa(res.State)).Inc()
	o.logger.Info("pipeline finished",
		slog.String("input", input),
		slog.Int("state", res.State),
		slog.String("message", res.Message),
	)
	return res, step
}

func (o *Orchestrator) run(ctx context.Context, input string) (Result, *provenance.Step) {
	if input == "" {
		o.logger.Error("input file empty")
		return Result{StateNoInput, MsgNoInput}, nil
	}

	if err := output.ValidateDataDirs(o.opts.InputDir, o.opts.OutputDir); err != nil {
		o.logger.Error("data dirs not configured properly", slog.String("error", err.Error()))
		return Result{StateServerError, MsgDataDirs}, nil
	}

	top := provenance.Begin(
		"Generate input data for VisXP feature extraction",
		"Detect shots and keyframes, extract keyframes and corresponding audio spectrograms",
	)
	var chain provenance.Chain

	path := input
	if download.IsURI(input) {
		step, filePath, err := o.download(ctx, input)
		if err != nil {
			o.logger.Error("could not download input",
				slog.String("uri", input),
				slog.String("error", err.Error()),
			)
			return Result{StateServerError, downloadFailedMessage + input}, nil
		}
		chain.Append(step)
		path = filePath
	}

	proc := o.process(ctx, path)
	chain.Append(proc.steps...)

	topStep := chain.Finalize(top,
		map[string]any{"input_file_path": input},
		provenance.WithParameters(o.opts.Parameters),
		provenance.WithSoftwareVersion(provenance.SoftwareVersions(o.opts.SoftwareFile, o.logger, WorkerName)),
	)
	o.writeProvenance(path, topStep)

	return o.applyIO(ctx, proc), &topStep
}

func (o *Orchestrator) download(ctx context.Context, uri string) (_ provenance.Step, _ string, err error) {
	ctx, span := o.tracer.Start(ctx, "download", trace.WithAttributes(attribute.String("visxp.uri", uri)))
	defer func() { endSpan(span, err) }()

	if o.deps.Fetcher == nil {
		return provenance.Step{}, "", download.ErrUnsupportedScheme
	}
	stage := provenance.Begin("Download VisXP input", "Download source AV media")
	res, err := o.deps.Fetcher.Fetch(ctx, uri)
	if err != nil {
		return provenance.Step{}, "", err
	}
	step := stage.End(
		map[string]any{"input_file_path": uri},
		map[string]any{
			"file_path":      res.FilePath,
			"mime_type":      res.MimeType,
			"content_length": res.ContentLength,
		},
	)
	observe("download", step)
	return step, res.FilePath, nil
}

// writeProvenance writes the run's provenance file when its directory
// was created. Runs that stopped before that leave no file.
func (o *Orchestrator) writeProvenance(inputPath string, step provenance.Step) {
	layout := o.deps.Output.Layout()
	sourceID := media.SourceID(inputPath)
	dir := layout.Dir(sourceID, output.KindProvenance)
	if _, err := os.Stat(dir); err != nil {
		o.logger.Info("no provenance directory, skipping provenance file", slog.String("dir", dir))
		return
	}
	path := layout.ProvenanceFile(sourceID)
	if err := provenance.Write(path, step); err != nil {
		o.logger.Error("could not write provenance", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	o.logger.Info("wrote provenance", slog.String("path", path))
}

func observe(stage string, step provenance.Step) {
	metrics.StageDuration.WithLabelValues(stage).Observe(step.ProcessingTimeMs / 1000)
}
