package embeddings

import (
	"context"
	"image"
	"math"

	"github.com/bdougie/keyframer/internal/cluster"
)

const binsPerChannel = 4

// HistogramEmbedder is a local Embedder that needs no model server. Each
// image is split into a Grid x Grid layout and every cell contributes a
// 4x4x4 RGB histogram. Bin values are square-rooted before normalization,
// so the dot product of two vectors is their Hellinger affinity.
type HistogramEmbedder struct {
	Grid int
}

// Dimensions is the vector length produced for the configured grid.
func (h HistogramEmbedder) Dimensions() int {
	g := h.grid()
	return g * g * binsPerChannel * binsPerChannel * binsPerChannel
}

func (h HistogramEmbedder) Embed(ctx context.Context, images []image.Image) ([][]float32, error) {
	out := make([][]float32, len(images))
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embedOne(img)
	}
	return out, nil
}

func (h HistogramEmbedder) grid() int {
	if h.Grid <= 0 {
		return 1
	}
	return h.Grid
}

func (h HistogramEmbedder) embedOne(img image.Image) []float32 {
	g := h.grid()
	cellBins := binsPerChannel * binsPerChannel * binsPerChannel
	vec := make([]float32, g*g*cellBins)

	b := img.Bounds()
	w, ht := b.Dx(), b.Dy()
	if w == 0 || ht == 0 {
		return vec
	}
	step := max(1, min(w, ht)/64)

	counts := make([]float64, g*g)
	for y := b.Min.Y; y < b.Max.Y; y += step {
		cy := (y - b.Min.Y) * g / ht
		for x := b.Min.X; x < b.Max.X; x += step {
			cx := (x - b.Min.X) * g / w
			r, gr, bl, _ := img.At(x, y).RGBA()
			bin := quantize(r)*binsPerChannel*binsPerChannel + quantize(gr)*binsPerChannel + quantize(bl)
			cell := cy*g + cx
			vec[cell*cellBins+bin]++
			counts[cell]++
		}
	}

	for cell, n := range counts {
		if n == 0 {
			continue
		}
		for k := 0; k < cellBins; k++ {
			i := cell*cellBins + k
			vec[i] = float32(math.Sqrt(float64(vec[i]) / n))
		}
	}
	return cluster.Normalize(vec)
}

// quantize maps a 16-bit channel value onto one of binsPerChannel bins.
func quantize(c uint32) int {
	return int(c>>8) * binsPerChannel / 256
}
