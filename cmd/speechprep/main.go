// Package main provides the entry point for the speechprep batch pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/maauso/speechprep/internal/bootstrap"
	"github.com/maauso/speechprep/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	inputPath := flag.String("input", "", "input audio file or directory (required)")
	outputDir := flag.String("output", "./output", "output directory for segments and report")
	configPath := flag.String("config", "", "pipeline configuration YAML file")
	enableDiarize := flag.Bool("diarize", false, "enable speaker diarization")
	enableVAD := flag.Bool("vad", false, "enable voice activity detection")
	enableDenoise := flag.Bool("denoise", false, "enable noise reduction")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	flag.Parse()

	if *inputPath == "" {
		flag.Usage()
		return fmt.Errorf("missing required -input flag")
	}

	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	// Load the pipeline configuration; a bad pipeline is fatal.
	pipeline, err := config.LoadPipeline(*configPath)
	if err != nil {
		return err
	}
	if *enableDiarize {
		pipeline.Diarization.Enabled = true
	}
	if *enableVAD {
		pipeline.VAD.Enabled = true
	}
	if *enableDenoise {
		pipeline.NoiseReduction.Enabled = true
	}

	inputs, err := collectInputs(*inputPath)
	if err != nil {
		return err
	}

	logger.Info("starting speechprep",
		slog.Int("inputs", len(inputs)),
		slog.String("output_dir", *outputDir),
		slog.Bool("diarization", pipeline.Diarization.Enabled),
		slog.Bool("vad", pipeline.VAD.Enabled),
		slog.Bool("noise_reduction", pipeline.NoiseReduction.Enabled),
		slog.Int("max_concurrent_files", cfg.MaxConcurrentFiles),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	// Initialize dependencies using bootstrap
	deps, err := bootstrap.NewDependencies(cfg, pipeline, *outputDir, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	// Cancel the batch on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := deps.Batch.Run(ctx, inputs)
	if err != nil {
		return err
	}

	logger.Info("done",
		slog.Int("files_processed", summary.FilesProcessed),
		slog.Int("segments_generated", summary.SegmentsGenerated),
		slog.Int("segments_accepted", summary.SegmentsAccepted),
		slog.Int("segments_rejected", summary.SegmentsRejected),
		slog.Int("speakers_detected", summary.SpeakersDetected),
		slog.Float64("usable_audio_sec", summary.QualityStats.UsableAudioDuration),
		slog.Int("processing_errors", len(summary.ProcessingErrors)),
	)
	return nil
}

// audioExtensions are the input formats handed to ffmpeg.
var audioExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".m4a":  true,
	".aac":  true,
	".opus": true,
}

// collectInputs expands a file or directory path into the sorted list of
// audio files to process.
func collectInputs(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read input directory: %w", err)
	}

	var inputs []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if audioExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			inputs = append(inputs, filepath.Join(path, e.Name()))
		}
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no audio files found in %s", path)
	}
	sort.Strings(inputs)
	return inputs, nil
}
