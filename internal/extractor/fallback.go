package extractor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/bdougie/keyframer/internal/cluster"
	"github.com/bdougie/keyframer/internal/embeddings"
	"github.com/bdougie/keyframer/internal/models"
)

// ErrEmbedding marks a failure of the embedding or clustering step.
var ErrEmbedding = errors.New("embed fallback samples")

// FallbackClusterer reduces fallback samples to one keyframe per group of
// visually similar frames.
type FallbackClusterer struct {
	Embedder   embeddings.Embedder
	Writer     *KeyframeWriter
	Eps        float64
	MinSamples int
	Logger     *slog.Logger
}

// Cluster embeds the candidates, groups them with cosine DBSCAN and writes
// one keyframe per representative. Records carry a dense shot counter and
// start_frame == end_frame == the sampled frame. The returned vectors are
// parallel to the records.
func (c *FallbackClusterer) Cluster(ctx context.Context, videoID string, fps float64, candidates []Candidate) ([]models.KeyframeRecord, [][]float32, error) {
	if len(candidates) == 0 {
		return nil, nil, nil
	}

	imgs := make([]image.Image, len(candidates))
	for i, cand := range candidates {
		imgs[i] = cand.Image
	}
	vectors, err := c.Embedder.Embed(ctx, imgs)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if len(vectors) != len(candidates) {
		return nil, nil, fmt.Errorf("%w: got %d vectors for %d frames", ErrEmbedding, len(vectors), len(candidates))
	}
	if err := embeddings.CheckDims(vectors); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	labels := cluster.DBSCAN(vectors, c.Eps, c.MinSamples)
	reps := cluster.Representatives(vectors, labels)
	clusters, noise := labels.Clusters()
	c.Logger.Info("clustered fallback samples",
		"samples", len(candidates),
		"clusters", len(clusters),
		"noise", len(noise),
	)

	var (
		records []models.KeyframeRecord
		vecs    [][]float32
	)
	for _, idx := range reps {
		frame := candidates[idx].FrameIndex
		path, err := c.Writer.Write(videoID, FallbackName(videoID, frame), candidates[idx].Image)
		if err != nil {
			c.Logger.Error("failed to write fallback keyframe", "frame", frame, "error", err)
			continue
		}
		rec, err := models.NewKeyframeRecord(videoID, len(records), frame, frame, fps, path)
		if err != nil {
			return nil, nil, fmt.Errorf("fallback record for frame %d: %w", frame, err)
		}
		records = append(records, rec)
		vecs = append(vecs, cluster.Normalize(vectors[idx]))
	}
	return records, vecs, nil
}
