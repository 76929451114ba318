package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/bdougie/keyframer/internal/config"
	"github.com/bdougie/keyframer/internal/detector"
	"github.com/bdougie/keyframer/internal/embeddings"
	"github.com/bdougie/keyframer/internal/extractor"
	"github.com/bdougie/keyframer/internal/metrics"
	"github.com/bdougie/keyframer/internal/models"
	"github.com/bdougie/keyframer/internal/storage"
	"github.com/bdougie/keyframer/internal/video"
)

const defaultWorkers = 4

// Processor turns videos into keyframe sets. It is safe for concurrent use;
// each call opens its own video source.
type Processor struct {
	opener   video.Opener
	detector detector.Detector
	embedder embeddings.Embedder
	writer   *extractor.KeyframeWriter
	cfg      config.Extraction
	workers  int
	logger   *slog.Logger
}

// NewProcessor wires a processor from cfg. Keyframes are written under
// cfg.OutputDir/keyframes.
func NewProcessor(cfg *config.Config, opener video.Opener, det detector.Detector, emb embeddings.Embedder, logger *slog.Logger) *Processor {
	workers := cfg.Workers
	if workers < 1 {
		workers = defaultWorkers
	}
	return &Processor{
		opener:   opener,
		detector: det,
		embedder: emb,
		writer:   extractor.NewKeyframeWriter(filepath.Join(cfg.OutputDir, "keyframes"), cfg.JPEGQuality),
		cfg:      cfg.Extraction,
		workers:  workers,
		logger:   logger,
	}
}

// ProcessVideo extracts the keyframes of one video. Failures that prevent
// processing the video at all are reported in the result's Err with an empty
// record set; they are never returned to the caller as a panic or error.
func (p *Processor) ProcessVideo(ctx context.Context, videoPath string) models.VideoResult {
	start := time.Now()
	id := models.VideoID(videoPath)
	logger := p.logger.With("video_id", id)

	res := models.VideoResult{Path: videoPath}
	kf, skipped, err := p.processVideo(ctx, videoPath, id, logger)
	if err != nil {
		logger.Error("video failed", "path", videoPath, "error", err)
		metrics.VideosProcessedTotal.WithLabelValues("error").Inc()
		res.VideoKeyframes = models.VideoKeyframes{VideoID: id}
		res.Err = err
		return res
	}

	metrics.VideosProcessedTotal.WithLabelValues("success").Inc()
	metrics.KeyframesTotal.WithLabelValues(string(kf.Mode)).Add(float64(len(kf.Records)))
	metrics.VideoProcessingDuration.WithLabelValues("total").Observe(time.Since(start).Seconds())
	logger.Info("video done",
		"mode", kf.Mode,
		"keyframes", len(kf.Records),
		"skipped", skipped,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	res.VideoKeyframes = kf
	res.Skipped = skipped
	return res
}

func (p *Processor) processVideo(ctx context.Context, videoPath, id string, logger *slog.Logger) (models.VideoKeyframes, int, error) {
	kf := models.VideoKeyframes{VideoID: id, Mode: models.ModeShots}

	src, err := p.opener.Open(ctx, videoPath)
	if err != nil {
		if !errors.Is(err, video.ErrOpen) {
			err = fmt.Errorf("%w: %v", video.ErrOpen, err)
		}
		return kf, 0, err
	}
	defer src.Close()

	fps := src.FrameRate()
	if fps <= 0 {
		return kf, 0, fmt.Errorf("%w: invalid frame rate %v", video.ErrOpen, fps)
	}

	total := src.FrameCount()
	if total <= 0 {
		stageStart := time.Now()
		logger.Info("container reports no frame count, counting frames")
		if total, err = video.CountFrames(src); err != nil {
			return kf, 0, fmt.Errorf("count frames: %w", err)
		}
		metrics.VideoProcessingDuration.WithLabelValues("count").Observe(time.Since(stageStart).Seconds())
	}
	logger.Debug("opened video", "fps", fps, "frame_count", total)

	if err := ctx.Err(); err != nil {
		return kf, 0, err
	}

	stageStart := time.Now()
	shots, err := p.detector.Detect(ctx, videoPath)
	if err != nil {
		return kf, 0, fmt.Errorf("detect shots: %w", err)
	}
	metrics.VideoProcessingDuration.WithLabelValues("detect").Observe(time.Since(stageStart).Seconds())

	density := extractor.EvaluateDensity(len(shots), total, fps, p.cfg)
	logger.Info("shot density",
		"shots", len(shots),
		"duration_sec", density.DurationSeconds,
		"shots_per_sec", density.ShotsPerSecond,
		"fallback", density.Fallback,
	)

	if err := p.writer.Reset(id); err != nil {
		return kf, 0, err
	}

	if density.Fallback {
		metrics.FallbackTriggeredTotal.Inc()
		records, vecs, err := p.fallback(ctx, src, id, total, fps, logger)
		switch {
		case err == nil && len(records) > 0:
			kf.Mode = models.ModeFallback
			kf.Records = records
			kf.Embeddings = vecs
			return kf, 0, nil
		case err == nil:
			logger.Warn("fallback produced no keyframes, using shots")
		case errors.Is(err, extractor.ErrEmbedding):
			logger.Warn("fallback failed, using shots", "error", err)
		default:
			return kf, 0, err
		}
		if err := p.writer.Reset(id); err != nil {
			return kf, 0, err
		}
	}

	stageStart = time.Now()
	sel := &extractor.ShotSelector{Writer: p.writer, MaxProbe: p.cfg.MaxProbe, Logger: logger}
	records, skips, err := sel.Select(ctx, src, id, shots, total)
	if err != nil {
		return kf, 0, err
	}
	metrics.VideoProcessingDuration.WithLabelValues("select").Observe(time.Since(stageStart).Seconds())
	for _, s := range skips {
		metrics.ShotsSkippedTotal.WithLabelValues(string(s.Reason)).Inc()
	}

	kf.Records = records
	kf.Embeddings = make([][]float32, len(records))
	return kf, len(skips), nil
}

func (p *Processor) fallback(ctx context.Context, src video.Source, id string, total int, fps float64, logger *slog.Logger) ([]models.KeyframeRecord, [][]float32, error) {
	stageStart := time.Now()
	candidates, err := extractor.SampleUniform(ctx, src, total, p.cfg.FallbackIntervalSec)
	if err != nil {
		return nil, nil, err
	}
	metrics.VideoProcessingDuration.WithLabelValues("sample").Observe(time.Since(stageStart).Seconds())
	logger.Info("sampled frames", "count", len(candidates), "interval_sec", p.cfg.FallbackIntervalSec)

	stageStart = time.Now()
	c := &extractor.FallbackClusterer{
		Embedder:   p.embedder,
		Writer:     p.writer,
		Eps:        p.cfg.ClusterEps,
		MinSamples: p.cfg.ClusterMinSamples,
		Logger:     logger,
	}
	records, vecs, err := c.Cluster(ctx, id, fps, candidates)
	if err != nil {
		return nil, nil, err
	}
	metrics.VideoProcessingDuration.WithLabelValues("embed").Observe(time.Since(stageStart).Seconds())
	return records, vecs, nil
}

// ProcessBatch runs ProcessVideo over paths on a bounded worker pool and
// saves every successful result to sink. One video's failure never stops the
// batch. Results come back in input order. onDone, when set, is called once
// per finished video from the worker goroutines.
func (p *Processor) ProcessBatch(ctx context.Context, paths []string, sink storage.Sink, onDone func(models.VideoResult)) []models.VideoResult {
	results := make([]models.VideoResult, len(paths))
	workChan := make(chan int, len(paths))

	var wg sync.WaitGroup
	for i := 0; i < min(p.workers, len(paths)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range workChan {
				results[idx] = p.runOne(ctx, paths[idx], sink)
				if onDone != nil {
					onDone(results[idx])
				}
			}
		}()
	}

	for i := range paths {
		workChan <- i
	}
	close(workChan)

	wg.Wait()
	return results
}

func (p *Processor) runOne(ctx context.Context, videoPath string, sink storage.Sink) models.VideoResult {
	if err := ctx.Err(); err != nil {
		id := models.VideoID(videoPath)
		return models.VideoResult{Path: videoPath, VideoKeyframes: models.VideoKeyframes{VideoID: id}, Err: err}
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	res := p.ProcessVideo(ctx, videoPath)
	if res.Err != nil || sink == nil {
		return res
	}
	if err := sink.Save(ctx, res.VideoKeyframes); err != nil {
		p.logger.Error("failed to save keyframes", "video_id", res.VideoID, "error", err)
		res.Err = fmt.Errorf("save keyframes: %w", err)
		res.Records, res.Embeddings = nil, nil
	}
	return res
}
