// Package bootstrap provides dependency initialization for the speechprep
// batch pipeline.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/maauso/speechprep/internal/batch"
	"github.com/maauso/speechprep/internal/config"
	"github.com/maauso/speechprep/internal/diarize"
	"github.com/maauso/speechprep/internal/media"
	"github.com/maauso/speechprep/internal/storage"
	"github.com/maauso/speechprep/internal/vad"
)

// Dependencies holds all initialized dependencies for a batch run.
type Dependencies struct {
	Batch *batch.Service
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, pipeline config.Pipeline, outputDir string, logger *slog.Logger) (*Dependencies, error) {
	// Initialize storage
	store, err := initStorage(cfg, outputDir, logger)
	if err != nil {
		return nil, err
	}

	// Initialize the ffmpeg transcoder
	transcoder := media.NewFFmpegTranscoder(cfg.FFmpegPath)

	// Initialize the job repository
	repo := batch.NewMemoryRepository()

	opts := []batch.ServiceOption{
		batch.WithLogger(logger),
		batch.WithMaxConcurrentFiles(cfg.MaxConcurrentFiles),
	}

	if pipeline.VAD.Enabled {
		detector, err := initDetector(cfg, pipeline, logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, batch.WithDetector(detector))
	}

	if pipeline.Diarization.Enabled {
		if cfg.DiarizationURL == "" {
			return nil, fmt.Errorf("diarization enabled but DIARIZATION_URL is not set")
		}
		client, err := diarize.NewClient(cfg.DiarizationURL, diarize.WithAuthToken(cfg.DiarizationToken))
		if err != nil {
			return nil, fmt.Errorf("create diarization client: %w", err)
		}
		logger.Info("diarization configured", slog.String("url", cfg.DiarizationURL))
		opts = append(opts, batch.WithDiarizer(client))
	}

	svc := batch.NewService(transcoder, store, repo, pipeline, opts...)

	return &Dependencies{
		Batch: svc,
	}, nil
}

// initDetector picks the Silero model when one is configured and falls back
// to the energy detector otherwise.
func initDetector(cfg *config.Config, pipeline config.Pipeline, logger *slog.Logger) (vad.Detector, error) {
	if cfg.VADModelPath != "" {
		detector, err := vad.NewSilero(vad.SileroConfig{
			ModelPath:          cfg.VADModelPath,
			Threshold:          pipeline.VAD.Threshold,
			MinSpeechDuration:  pipeline.VAD.MinSpeechDuration,
			MinSilenceDuration: pipeline.VAD.MinSilenceDuration,
		})
		if err != nil {
			return nil, fmt.Errorf("create silero detector: %w", err)
		}
		logger.Info("silero VAD configured", slog.String("model", cfg.VADModelPath))
		return detector, nil
	}

	logger.Info("energy VAD configured")
	return vad.NewEnergyDetector(vad.EnergyConfig{
		Threshold:          pipeline.VAD.Threshold,
		MinSpeechDuration:  pipeline.VAD.MinSpeechDuration,
		MinSilenceDuration: pipeline.VAD.MinSilenceDuration,
	}), nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, outputDir string, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, outputDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir, outputDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
		slog.String("output_dir", outputDir),
	)
	return localStore, nil
}
