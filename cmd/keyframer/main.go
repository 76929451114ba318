package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/bdougie/keyframer/internal/analyzer"
	"github.com/bdougie/keyframer/internal/config"
	"github.com/bdougie/keyframer/internal/detector"
	"github.com/bdougie/keyframer/internal/embeddings"
	"github.com/bdougie/keyframer/internal/metrics"
	"github.com/bdougie/keyframer/internal/models"
	"github.com/bdougie/keyframer/internal/storage"
	"github.com/bdougie/keyframer/internal/video"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := newRootCmd(cfg).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*slog.Logger, error) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      lvl,
			TimeFormat: "15:04:05",
		}),
	), nil
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:          "keyframer",
		Short:        "Extract representative keyframes from videos",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")

	root.AddCommand(newExtractCmd(cfg), newMergeCmd(cfg))
	return root
}

func newExtractCmd(cfg *config.Config) *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract one keyframe per shot, or cluster uniform samples when shots are sparse",
		Example: `  keyframer extract -i video.mp4 -o output
  keyframer extract -i videos/ --shots-dir scenes/ --enable-fallback`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			return runExtract(cmd.Context(), cfg, input, logger)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&input, "input", "i", "", "video file or directory of .mp4 files")
	f.StringVarP(&cfg.OutputDir, "output", "o", cfg.OutputDir, "output directory for keyframes/ and metadata/")
	f.StringVar(&cfg.ShotsDir, "shots-dir", cfg.ShotsDir, "directory of precomputed shot boundaries (<video_id>.txt or .json)")
	f.Float64Var(&cfg.SceneThreshold, "scene-threshold", cfg.SceneThreshold, "ffmpeg scene score threshold when no shots dir is given")
	f.BoolVar(&cfg.EnableFallback, "enable-fallback", cfg.EnableFallback, "sample uniformly when shot density is too low")
	f.Float64Var(&cfg.MinKeyframeDensity, "min-density", cfg.MinKeyframeDensity, "minimum shots per second before fallback")
	f.Float64Var(&cfg.FallbackIntervalSec, "fallback-interval", cfg.FallbackIntervalSec, "fallback sampling period in seconds")
	f.IntVar(&cfg.MaxProbe, "max-probe", cfg.MaxProbe, "neighbour frames to try around an undecodable frame")
	f.IntVarP(&cfg.Workers, "workers", "w", cfg.Workers, "videos processed in parallel")
	f.StringVar(&cfg.EmbedderURL, "embedder-url", cfg.EmbedderURL, "CLIP embedding endpoint; local colour histograms when empty")
	f.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "PostgreSQL connection string for the keyframe index")
	f.StringVar(&cfg.MinIOEndpoint, "minio-endpoint", cfg.MinIOEndpoint, "MinIO endpoint for uploading keyframes")
	f.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address to serve /metrics and /healthz on")
	cmd.MarkFlagRequired("input")

	return cmd
}

func runExtract(ctx context.Context, cfg *config.Config, input string, logger *slog.Logger) error {
	paths, err := collectVideos(input)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no .mp4 files found in %s", input)
	}

	if cfg.MetricsAddr != "" {
		metrics.StartServer(ctx, cfg.MetricsAddr, logger)
	}

	opener := video.FFmpegOpener{Logger: logger}

	var det detector.Detector = detector.SceneDetector{Opener: opener, Threshold: cfg.SceneThreshold, Logger: logger}
	if cfg.ShotsDir != "" {
		det = detector.FileDetector{Dir: cfg.ShotsDir}
	}

	var (
		emb  embeddings.Embedder
		dims = cfg.EmbedDimensions
	)
	if cfg.EmbedderURL != "" {
		emb = embeddings.NewHTTPEmbedder(cfg.EmbedderURL, cfg.EmbedModel, time.Duration(cfg.EmbedTimeoutSec)*time.Second)
	} else {
		hist := embeddings.HistogramEmbedder{Grid: cfg.HistogramGridSize}
		emb = hist
		dims = hist.Dimensions()
	}
	emb = embeddings.NewService(emb, cfg.EmbedBatchSize, cfg.EmbedWorkers)

	sinks := storage.MultiSink{storage.NewJSONStore(filepath.Join(cfg.OutputDir, "metadata"))}
	if cfg.DatabaseURL != "" {
		pg, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.InitSchema(ctx, dims); err != nil {
			return err
		}
		sinks = append(sinks, pg)
	}
	if cfg.MinIOEndpoint != "" {
		obj, err := storage.NewObjectStore(storage.ObjectStoreConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			UseSSL:    cfg.MinIOUseSSL,
			Bucket:    cfg.MinIOBucket,
		})
		if err != nil {
			return err
		}
		if err := obj.EnsureBucket(ctx); err != nil {
			return err
		}
		sinks = append(sinks, obj)
	}

	logger.Info("starting keyframe extraction",
		"videos", len(paths),
		"output", cfg.OutputDir,
		"workers", cfg.Workers,
		"fallback", cfg.EnableFallback,
	)

	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("Extracting"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetRenderBlankState(true),
	)

	processor := analyzer.NewProcessor(cfg, opener, det, emb, logger)
	results := processor.ProcessBatch(ctx, paths, sinks, func(models.VideoResult) {
		bar.Add(1)
	})
	bar.Finish()

	var failed, keyframes, fallback int
	for _, r := range results {
		if r.Err != nil {
			failed++
			continue
		}
		keyframes += len(r.Records)
		if r.Mode == models.ModeFallback {
			fallback++
		}
	}
	logger.Info("extraction finished",
		"videos", len(results),
		"failed", failed,
		"fallback", fallback,
		"keyframes", keyframes,
	)

	if failed > 0 {
		return fmt.Errorf("%d of %d videos failed", failed, len(results))
	}
	return nil
}

func newMergeCmd(cfg *config.Config) *cobra.Command {
	var primary, fallback, output string

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Take fallback keyframes for videos where the fallback run found more",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			decisions, err := storage.MergeFallback(primary, fallback, output, logger)
			if err != nil {
				return err
			}

			var copied int
			for _, d := range decisions {
				if d.Action == storage.MergeCopied {
					copied++
				}
			}
			logger.Info("merge finished", "videos", len(decisions), "copied", copied, "output", output)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&primary, "primary", "", "output directory of the shot-only run")
	f.StringVar(&fallback, "fallback", "", "output directory of the run with fallback enabled")
	f.StringVarP(&output, "output", "o", "videos_with_fallback", "merged output directory")
	cmd.MarkFlagRequired("primary")
	cmd.MarkFlagRequired("fallback")

	return cmd
}
