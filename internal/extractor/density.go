package extractor

import "github.com/bdougie/keyframer/internal/config"

// Density summarizes how well shot detection covered a video.
type Density struct {
	DurationSeconds float64
	ShotsPerSecond  float64
	Fallback        bool
}

// EvaluateDensity computes shots per second and decides whether fallback
// sampling is needed. A video with no frames or no frame rate has zero
// duration and never triggers fallback: there is nothing to sample.
func EvaluateDensity(shotCount, totalFrames int, fps float64, cfg config.Extraction) Density {
	if fps <= 0 || totalFrames <= 0 {
		return Density{}
	}

	d := Density{DurationSeconds: float64(totalFrames) / fps}
	d.ShotsPerSecond = float64(shotCount) / d.DurationSeconds
	d.Fallback = cfg.EnableFallback && d.ShotsPerSecond < cfg.MinKeyframeDensity
	return d
}
