package analyzer

import (
	"context"
	"errors"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/keyframer/internal/config"
	"github.com/bdougie/keyframer/internal/detector"
	"github.com/bdougie/keyframer/internal/embeddings"
	"github.com/bdougie/keyframer/internal/models"
	"github.com/bdougie/keyframer/internal/storage"
	"github.com/bdougie/keyframer/internal/video"
	"github.com/bdougie/keyframer/internal/video/videotest"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Extraction: config.Extraction{
			MinKeyframeDensity:  0.1,
			FallbackIntervalSec: 1,
			MaxProbe:            15,
			ClusterEps:          0.1,
			ClusterMinSamples:   1,
			JPEGQuality:         95,
		},
		OutputDir: t.TempDir(),
		Workers:   2,
	}
}

func fixedShots(shots ...models.ShotBoundary) detector.Detector {
	return detector.DetectorFunc(func(context.Context, string) ([]models.ShotBoundary, error) {
		return shots, nil
	})
}

func newProcessor(cfg *config.Config, sources map[string]*videotest.Source, det detector.Detector, emb embeddings.Embedder) *Processor {
	return NewProcessor(cfg, videotest.NewOpener(sources), det, emb, slog.New(slog.DiscardHandler))
}

var threeShots = []models.ShotBoundary{{Start: 0, End: 100}, {Start: 100, End: 200}, {Start: 200, End: 299}}

func TestProcessVideoShots(t *testing.T) {
	cfg := testConfig(t)
	src := &videotest.Source{FPS: 30, Frames: 300}
	p := newProcessor(cfg, map[string]*videotest.Source{"clips/L01_V001.mp4": src}, fixedShots(threeShots...), nil)

	res := p.ProcessVideo(context.Background(), "clips/L01_V001.mp4")
	require.NoError(t, res.Err)
	assert.Equal(t, "L01_V001", res.VideoID)
	assert.Equal(t, models.ModeShots, res.Mode)
	require.Len(t, res.Records, 3)
	assert.Len(t, res.Embeddings, 3)

	wantStart := []float64{0, 100.0 / 30, 200.0 / 30}
	paths := map[string]bool{}
	for i, rec := range res.Records {
		assert.Equal(t, i, rec.Shot)
		assert.Equal(t, "L01_V001", rec.VideoID)
		assert.InDelta(t, wantStart[i], rec.StartTime, 1e-9)
		assert.Equal(t, filepath.Join(cfg.OutputDir, "keyframes", "L01_V001"), filepath.Dir(rec.KeyframePath))
		assert.FileExists(t, rec.KeyframePath)
		paths[rec.KeyframePath] = true
	}
	assert.Len(t, paths, 3)
	assert.True(t, src.Closed())
}

func TestProcessVideoIdempotent(t *testing.T) {
	cfg := testConfig(t)
	sources := map[string]*videotest.Source{"v.mp4": {FPS: 30, Frames: 300}}
	p := newProcessor(cfg, sources, fixedShots(threeShots...), nil)

	first := p.ProcessVideo(context.Background(), "v.mp4")
	second := p.ProcessVideo(context.Background(), "v.mp4")
	require.NoError(t, first.Err)
	require.NoError(t, second.Err)
	assert.Equal(t, first.Records, second.Records)

	entries, err := os.ReadDir(filepath.Join(cfg.OutputDir, "keyframes", "v"))
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestProcessVideoCountsFramesWhenUnreported(t *testing.T) {
	cfg := testConfig(t)
	src := &videotest.Source{FPS: 30, Frames: 300, Reported: -1}
	p := newProcessor(cfg, map[string]*videotest.Source{"v.mp4": src},
		fixedShots(models.ShotBoundary{Start: 0, End: 299}, models.ShotBoundary{Start: 300, End: 400}), nil)

	res := p.ProcessVideo(context.Background(), "v.mp4")
	require.NoError(t, res.Err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, []int{149}, src.Reads())
}

func TestProcessVideoCountFailure(t *testing.T) {
	broken := errors.New("ffprobe exited 1")
	src := &videotest.Source{FPS: 30, Frames: 300, Reported: -1, CountErr: broken}
	p := newProcessor(testConfig(t), map[string]*videotest.Source{"v.mp4": src}, fixedShots(threeShots...), nil)

	res := p.ProcessVideo(context.Background(), "v.mp4")
	require.ErrorIs(t, res.Err, broken)
	assert.Empty(t, res.Records)
	assert.Empty(t, src.Reads())
}

func TestProcessVideoOpenFailure(t *testing.T) {
	p := newProcessor(testConfig(t), nil, fixedShots(threeShots...), nil)

	res := p.ProcessVideo(context.Background(), "missing.mp4")
	require.ErrorIs(t, res.Err, video.ErrOpen)
	assert.Equal(t, "missing", res.VideoID)
	assert.Empty(t, res.Records)
}

func TestProcessVideoDetectorFailure(t *testing.T) {
	src := &videotest.Source{FPS: 30, Frames: 300}
	det := detector.DetectorFunc(func(context.Context, string) ([]models.ShotBoundary, error) {
		return nil, errors.New("no boundaries")
	})
	p := newProcessor(testConfig(t), map[string]*videotest.Source{"v.mp4": src}, det, nil)

	res := p.ProcessVideo(context.Background(), "v.mp4")
	require.Error(t, res.Err)
	assert.Empty(t, res.Records)
	assert.True(t, src.Closed())
}

func twoScenes(frame int) color.Color {
	if frame < 150 {
		return color.RGBA{R: 230, G: 30, B: 30, A: 255}
	}
	return color.RGBA{R: 30, G: 30, B: 230, A: 255}
}

func TestProcessVideoFallback(t *testing.T) {
	cfg := testConfig(t)
	cfg.EnableFallback = true
	src := &videotest.Source{FPS: 30, Frames: 300, Color: twoScenes}
	emb := embeddings.NewService(embeddings.HistogramEmbedder{Grid: 2}, 4, 2)
	p := newProcessor(cfg, map[string]*videotest.Source{"v.mp4": src}, fixedShots(), emb)

	res := p.ProcessVideo(context.Background(), "v.mp4")
	require.NoError(t, res.Err)
	assert.Equal(t, models.ModeFallback, res.Mode)
	require.Len(t, res.Records, 2)
	require.Len(t, res.Embeddings, 2)
	for i, rec := range res.Records {
		assert.Equal(t, i, rec.Shot)
		assert.Equal(t, rec.StartFrame, rec.EndFrame)
		assert.NotNil(t, res.Embeddings[i])
	}
	assert.Equal(t, 0, res.Records[0].StartFrame)
	assert.Equal(t, 150, res.Records[1].StartFrame)
}

func TestProcessVideoFallbackDisabled(t *testing.T) {
	cfg := testConfig(t)
	src := &videotest.Source{FPS: 30, Frames: 3000}
	p := newProcessor(cfg, map[string]*videotest.Source{"v.mp4": src}, fixedShots(models.ShotBoundary{Start: 0, End: 2999}), nil)

	res := p.ProcessVideo(context.Background(), "v.mp4")
	require.NoError(t, res.Err)
	assert.Equal(t, models.ModeShots, res.Mode)
	assert.Len(t, res.Records, 1)
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, []image.Image) ([][]float32, error) {
	return nil, errors.New("model unavailable")
}

func TestProcessVideoFallbackDegradesToShots(t *testing.T) {
	cfg := testConfig(t)
	cfg.EnableFallback = true
	src := &videotest.Source{FPS: 30, Frames: 3000}
	p := newProcessor(cfg, map[string]*videotest.Source{"v.mp4": src},
		fixedShots(models.ShotBoundary{Start: 0, End: 2999}), failingEmbedder{})

	res := p.ProcessVideo(context.Background(), "v.mp4")
	require.NoError(t, res.Err)
	assert.Equal(t, models.ModeShots, res.Mode)
	require.Len(t, res.Records, 1)
	assert.Equal(t, 0, res.Records[0].StartFrame)
	assert.Equal(t, 2999, res.Records[0].EndFrame)

	// Samples written before the failure do not linger.
	entries, err := os.ReadDir(filepath.Join(cfg.OutputDir, "keyframes", "v"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestProcessBatch(t *testing.T) {
	cfg := testConfig(t)
	sources := map[string]*videotest.Source{
		"a.mp4": {FPS: 30, Frames: 300},
		"c.mp4": {FPS: 25, Frames: 300},
	}
	p := newProcessor(cfg, sources, fixedShots(threeShots...), nil)
	sink := storage.NewJSONStore(filepath.Join(cfg.OutputDir, "metadata"))

	var (
		mu   sync.Mutex
		done []string
	)
	results := p.ProcessBatch(context.Background(), []string{"a.mp4", "b.mp4", "c.mp4"}, sink, func(r models.VideoResult) {
		mu.Lock()
		defer mu.Unlock()
		done = append(done, r.VideoID)
	})

	require.Len(t, results, 3)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, done)

	assert.Equal(t, "a", results[0].VideoID)
	require.NoError(t, results[0].Err)
	assert.Len(t, results[0].Records, 3)

	assert.Equal(t, "b", results[1].VideoID)
	require.ErrorIs(t, results[1].Err, video.ErrOpen)

	assert.Equal(t, "c", results[2].VideoID)
	require.NoError(t, results[2].Err)

	saved, err := sink.Load("a")
	require.NoError(t, err)
	assert.Equal(t, results[0].Records, saved)
	assert.NoFileExists(t, sink.Path("b"))
	assert.FileExists(t, sink.Path("c"))
}

func TestProcessBatchCancelled(t *testing.T) {
	p := newProcessor(testConfig(t), map[string]*videotest.Source{"a.mp4": {FPS: 30, Frames: 300}}, fixedShots(threeShots...), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := p.ProcessBatch(ctx, []string{"a.mp4"}, nil, nil)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
}

type failingSink struct{}

func (failingSink) Save(context.Context, models.VideoKeyframes) error { return errors.New("disk full") }

func TestProcessBatchSinkFailure(t *testing.T) {
	p := newProcessor(testConfig(t), map[string]*videotest.Source{"a.mp4": {FPS: 30, Frames: 300}}, fixedShots(threeShots...), nil)

	results := p.ProcessBatch(context.Background(), []string{"a.mp4"}, failingSink{}, nil)
	require.Len(t, results, 1)
	require.Error(t, results[0].Err)
	assert.Empty(t, results[0].Records)
}

// raggedEmbedder returns vectors whose length alternates between 3 and 2.
type raggedEmbedder struct{}

func (raggedEmbedder) Embed(_ context.Context, images []image.Image) ([][]float32, error) {
	out := make([][]float32, len(images))
	for i := range images {
		if i%2 == 0 {
			out[i] = []float32{1, 0, 0}
		} else {
			out[i] = []float32{0, 1}
		}
	}
	return out, nil
}

func TestProcessBatchRaggedEmbeddingsDegradeToShots(t *testing.T) {
	cfg := testConfig(t)
	cfg.EnableFallback = true
	sources := map[string]*videotest.Source{
		"a.mp4": {FPS: 30, Frames: 3000},
		"b.mp4": {FPS: 30, Frames: 3000},
	}
	p := newProcessor(cfg, sources, fixedShots(models.ShotBoundary{Start: 0, End: 2999}), raggedEmbedder{})

	var results []models.VideoResult
	require.NotPanics(t, func() {
		results = p.ProcessBatch(context.Background(), []string{"a.mp4", "b.mp4"}, nil, nil)
	})
	require.Len(t, results, 2)
	for _, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, models.ModeShots, r.Mode)
		assert.Len(t, r.Records, 1)
	}
}
