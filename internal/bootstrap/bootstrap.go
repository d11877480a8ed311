// Package bootstrap wires the pipeline and job service from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/maauso/visxp-prep/internal/audio"
	"github.com/maauso/visxp-prep/internal/config"
	"github.com/maauso/visxp-prep/internal/download"
	"github.com/maauso/visxp-prep/internal/job"
	"github.com/maauso/visxp-prep/internal/media"
	"github.com/maauso/visxp-prep/internal/output"
	"github.com/maauso/visxp-prep/internal/pipeline"
	"github.com/maauso/visxp-prep/internal/shots"
	"github.com/maauso/visxp-prep/internal/storage"
)

// Dependencies holds the initialized application services.
type Dependencies struct {
	Pipeline *pipeline.Orchestrator
	Jobs     *job.Service
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	detector, err := newDetector(cfg)
	if err != nil {
		return nil, err
	}

	var managerOpts []output.ManagerOption
	if cfg.TransferConfigured() {
		managerOpts = append(managerOpts, output.WithTransfer(store, cfg.S3FolderInBucket, cfg.OutputTransferArchive))
	}
	manager := output.NewManager(output.Layout{BaseDir: cfg.OutputPath()}, logger, managerOpts...)

	fetcher := download.New(cfg.InputPath(), logger,
		download.WithObjectStore(store),
		download.WithHTTPClient(&http.Client{Timeout: cfg.DownloadTimeout}),
	)

	decoder := audio.NewFFmpegDecoder(cfg.FFmpegPath)
	orchestrator := pipeline.New(pipelineOptions(cfg), pipeline.Dependencies{
		Prober:   media.NewProber(cfg.FFprobePath),
		Detector: detector,
		Frames:   media.NewKeyframeExtractor(cfg.FFmpegPath),
		Audio:    audio.NewExtractor(decoder, logger),
		Fetcher:  fetcher,
		Output:   manager,
	}, logger)

	jobs := job.NewService(job.NewMemoryRepository(), orchestrator, logger,
		job.WithMaxConcurrentJobs(cfg.MaxConcurrentJobs),
	)

	return &Dependencies{
		Pipeline: orchestrator,
		Jobs:     jobs,
	}, nil
}

func pipelineOptions(cfg *config.Config) pipeline.Options {
	return pipeline.Options{
		InputDir:                  cfg.InputPath(),
		OutputDir:                 cfg.OutputPath(),
		WindowMs:                  cfg.SpectrogramWindowSizeMs,
		SampleRatesHz:             cfg.SpectrogramSampleRates,
		ZNormalize:                cfg.ZNormalizeSpectrograms,
		RunKeyframeExtraction:     cfg.RunKeyframeExtraction,
		RunAudioExtraction:        cfg.RunAudioExtraction,
		GenerateSpectrogramImages: cfg.GenerateSpectrogramImages,
		ExtractAudioSamples:       cfg.ExtractAudioSamples,
		DeleteInputOnCompletion:   cfg.InputDeleteOnCompletion,
		DeleteOutputOnCompletion:  cfg.OutputDeleteOnCompletion,
		TransferOnCompletion:      cfg.OutputTransferOnCompletion,
		Parameters:                cfg.PrepParameters(),
		SoftwareFile:              cfg.SoftwareProvenance,
	}
}

func newDetector(cfg *config.Config) (shots.Detector, error) {
	switch cfg.ShotDetector {
	case config.DetectorHecate:
		return shots.NewHecateDetector(cfg.HecatePath, cfg.ShotDetectionTimeout), nil
	case config.DetectorSceneDetect:
		return shots.NewSceneDetectDetector(cfg.SceneDetectPath, cfg.ShotDetectionTimeout), nil
	default:
		return nil, fmt.Errorf("%w: unknown shot detector %q", config.ErrInvalidConfig, cfg.ShotDetector)
	}
}

// initStorage creates the object store used for s3:// downloads and
// output transfer. OBJECT_STORE_DIR selects a filesystem-backed store.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.ObjectStore, error) {
	if cfg.ObjectStoreDir != "" {
		localStore, err := storage.NewLocalStorage(cfg.ObjectStoreDir, cfg.S3Bucket)
		if err != nil {
			return nil, fmt.Errorf("create local object store: %w", err)
		}
		logger.Info("local object store configured",
			slog.String("dir", localStore.RootDir()),
			slog.String("bucket", cfg.S3Bucket),
		)
		return localStore, nil
	}

	s3Store, err := storage.NewS3Storage(ctx, storage.S3Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3EndpointURL,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 storage: %w", err)
	}
	logger.Info("S3 storage configured",
		slog.Bool("enabled", cfg.S3Enabled()),
		slog.String("bucket", cfg.S3Bucket),
		slog.String("region", cfg.S3Region),
	)
	return s3Store, nil
}
