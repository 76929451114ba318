package extractor

import (
	"context"
	"image"
	"math"

	"github.com/bdougie/keyframer/internal/video"
)

// Candidate is a decoded fallback sample.
type Candidate struct {
	FrameIndex int
	Image      image.Image
}

// SampleInterval converts a sampling period in seconds into a frame step of
// at least one.
func SampleInterval(intervalSec, fps float64) int {
	step := int(math.Round(intervalSec * fps))
	if step < 1 {
		return 1
	}
	return step
}

// SampleUniform decodes frames 0, step, 2*step, ... below total. Each frame
// is read once; failures are dropped without probing neighbours.
func SampleUniform(ctx context.Context, src video.Source, total int, intervalSec float64) ([]Candidate, error) {
	if err := src.Seek(0); err != nil {
		return nil, err
	}

	step := SampleInterval(intervalSec, src.FrameRate())
	var out []Candidate
	for idx := 0; idx < total; idx += step {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		img, ok := video.ReadAt(src, idx)
		if !ok {
			continue
		}
		out = append(out, Candidate{FrameIndex: idx, Image: img})
	}
	return out, nil
}
