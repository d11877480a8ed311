// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInvalidConfig is returned when a loaded value fails validation.
	ErrInvalidConfig = errors.New("config: invalid configuration")
	// ErrTransferSettingsRequired is returned when output transfer is enabled
	// without a bucket and folder.
	ErrTransferSettingsRequired = errors.New("config: OUTPUT_TRANSFER_ON_COMPLETION requires S3_BUCKET and S3_FOLDER_IN_BUCKET")
)

// Shot detector names accepted by SHOT_DETECTOR.
const (
	DetectorHecate      = "hecate"
	DetectorSceneDetect = "scenedetect"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port              int `env:"PORT, default=8080" json:"port" validate:"min=1,max=65535"`
	MaxConcurrentJobs int `env:"MAX_CONCURRENT_JOBS, default=1" json:"max_concurrent_jobs" validate:"min=1"`

	// File system settings
	BaseMount string `env:"BASE_MOUNT, default=/data" json:"base_mount" validate:"required"`
	InputDir  string `env:"INPUT_DIR, default=input-files" json:"input_dir" validate:"required"`
	OutputDir string `env:"OUTPUT_DIR, default=output-files" json:"output_dir" validate:"required"`

	// Stage toggles
	RunKeyframeExtraction     bool `env:"RUN_KEYFRAME_EXTRACTION, default=true" json:"run_keyframe_extraction"`
	RunAudioExtraction        bool `env:"RUN_AUDIO_EXTRACTION, default=true" json:"run_audio_extraction"`
	GenerateSpectrogramImages bool `env:"GENERATE_SPECTROGRAM_IMAGES, default=false" json:"generate_spectrogram_images"`
	ExtractAudioSamples       bool `env:"EXTRACT_AUDIO_SAMPLES, default=false" json:"extract_audio_samples"`

	// Windowing and spectrogram settings
	SpectrogramWindowSizeMs int   `env:"SPECTROGRAM_WINDOW_SIZE_MS, default=1000" json:"spectrogram_window_size_ms" validate:"min=2"`
	SpectrogramSampleRates  []int `env:"SPECTROGRAM_SAMPLERATE_HZ, default=24000" json:"spectrogram_samplerate_hz" validate:"min=1,dive,min=1000"`
	ZNormalizeSpectrograms  bool  `env:"Z_NORMALIZE_SPECTROGRAMS, default=true" json:"z_normalize_spectrograms"`

	// External tools
	ShotDetector         string        `env:"SHOT_DETECTOR, default=scenedetect" json:"shot_detector" validate:"oneof=hecate scenedetect"`
	ShotDetectionTimeout time.Duration `env:"SHOT_DETECTION_TIMEOUT, default=5m" json:"shot_detection_timeout" validate:"gt=0"`
	FFmpegPath           string        `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath          string        `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`
	HecatePath           string        `env:"HECATE_PATH, default=hecate" json:"hecate_path"`
	SceneDetectPath      string        `env:"SCENEDETECT_PATH, default=scenedetect" json:"scenedetect_path"`
	SoftwareProvenance   string        `env:"SOFTWARE_PROVENANCE_FILE, default=/software_provenance.txt" json:"software_provenance_file"`

	// Input and output handling
	InputDeleteOnCompletion    bool          `env:"INPUT_DELETE_ON_COMPLETION, default=false" json:"input_delete_on_completion"`
	OutputDeleteOnCompletion   bool          `env:"OUTPUT_DELETE_ON_COMPLETION, default=false" json:"output_delete_on_completion"`
	OutputTransferOnCompletion bool          `env:"OUTPUT_TRANSFER_ON_COMPLETION, default=false" json:"output_transfer_on_completion"`
	OutputTransferArchive      bool          `env:"OUTPUT_TRANSFER_ARCHIVE, default=true" json:"output_transfer_archive"`
	DownloadTimeout            time.Duration `env:"DOWNLOAD_TIMEOUT, default=30m" json:"download_timeout" validate:"gt=0"`

	// Optional S3 settings
	S3EndpointURL      string `env:"S3_ENDPOINT_URL" json:"s3_endpoint_url,omitempty" validate:"omitempty,url"`
	S3Region           string `env:"S3_REGION, default=eu-west-1" json:"s3_region,omitempty"`
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3FolderInBucket   string `env:"S3_FOLDER_IN_BUCKET" json:"s3_folder_in_bucket,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON
	ObjectStoreDir     string `env:"OBJECT_STORE_DIR" json:"object_store_dir,omitempty"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format" validate:"oneof=json text JSON TEXT"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`                                        // "debug", "info", "warn", "error"
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	return load(context.Background(), nil)
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if lookuper == nil {
		lookuper = envconfig.OsLookuper()
	}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and cross-field requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.OutputTransferOnCompletion && !c.TransferConfigured() {
		return ErrTransferSettingsRequired
	}
	return nil
}

// InputPath returns BASE_MOUNT/INPUT_DIR, where downloads are stored.
func (c *Config) InputPath() string {
	return filepath.Join(c.BaseMount, c.InputDir)
}

// OutputPath returns BASE_MOUNT/OUTPUT_DIR, the root of all output.
func (c *Config) OutputPath() string {
	return filepath.Join(c.BaseMount, c.OutputDir)
}

// S3Enabled returns true if an S3 endpoint or bucket is configured.
func (c *Config) S3Enabled() bool {
	return c.S3EndpointURL != "" || c.S3Bucket != ""
}

// TransferConfigured returns true when output can be uploaded.
func (c *Config) TransferConfigured() bool {
	return c.S3Bucket != "" && c.S3FolderInBucket != ""
}

// PrepParameters returns the processing settings recorded in provenance.
func (c *Config) PrepParameters() map[string]any {
	return map[string]any{
		"RUN_KEYFRAME_EXTRACTION":     c.RunKeyframeExtraction,
		"RUN_AUDIO_EXTRACTION":        c.RunAudioExtraction,
		"GENERATE_SPECTROGRAM_IMAGES": c.GenerateSpectrogramImages,
		"EXTRACT_AUDIO_SAMPLES":       c.ExtractAudioSamples,
		"SPECTROGRAM_WINDOW_SIZE_MS":  c.SpectrogramWindowSizeMs,
		"SPECTROGRAM_SAMPLERATE_HZ":   c.SpectrogramSampleRates,
		"Z_NORMALIZE_SPECTROGRAMS":    c.ZNormalizeSpectrograms,
		"SHOT_DETECTOR":               c.ShotDetector,
	}
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	key := ""
	if c.AWSAccessKeyID != "" {
		key = "****"
	}
	return fmt.Sprintf(
		"Config{Port: %d, BaseMount: %s, InputDir: %s, OutputDir: %s, ShotDetector: %s, WindowMs: %d, SampleRates: %v, S3Endpoint: %s, S3Bucket: %s, S3Folder: %s, AWSAccessKeyID: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.BaseMount,
		c.InputDir,
		c.OutputDir,
		c.ShotDetector,
		c.SpectrogramWindowSizeMs,
		c.SpectrogramSampleRates,
		c.S3EndpointURL,
		c.S3Bucket,
		c.S3FolderInBucket,
		key,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
