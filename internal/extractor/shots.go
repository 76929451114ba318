package extractor

import (
	"context"
	"log/slog"

	"github.com/bdougie/keyframer/internal/models"
	"github.com/bdougie/keyframer/internal/video"
)

// SkipReason says why a shot produced no keyframe.
type SkipReason string

const (
	SkipInvalidBoundary SkipReason = "invalid_boundary"
	SkipOutOfRange      SkipReason = "out_of_range"
	SkipUndecodable     SkipReason = "undecodable"
	SkipWriteFailed     SkipReason = "write_failed"
)

// Skip records a shot that was left out of the output.
type Skip struct {
	Shot   int
	Reason SkipReason
}

// ShotSelector picks the middle frame of every shot, falling back to the
// nearest decodable neighbour.
type ShotSelector struct {
	Writer   *KeyframeWriter
	MaxProbe int
	Logger   *slog.Logger
}

// Select emits one record per usable shot. Shots that cannot be used are
// reported in the returned skips; they never abort the video. The error is
// non-nil only when ctx is cancelled, in which case the records gathered so
// far are returned as well.
func (s *ShotSelector) Select(ctx context.Context, src video.Source, videoID string, shots []models.ShotBoundary, total int) ([]models.KeyframeRecord, []Skip, error) {
	fps := src.FrameRate()
	var (
		records []models.KeyframeRecord
		skips   []Skip
	)

	for i, shot := range shots {
		if err := ctx.Err(); err != nil {
			return records, skips, err
		}

		if !shot.Valid() {
			s.Logger.Warn("invalid shot boundary, skipped", "shot", i, "start", shot.Start, "end", shot.End)
			skips = append(skips, Skip{Shot: i, Reason: SkipInvalidBoundary})
			continue
		}

		mid := shot.Mid()
		if mid >= total {
			s.Logger.Warn("mid frame beyond end of video, skipped", "shot", i, "mid_frame", mid, "frame_count", total)
			skips = append(skips, Skip{Shot: i, Reason: SkipOutOfRange})
			continue
		}

		frame, ok := video.FetchWithRegression(src, mid, shot.Start, shot.End, s.MaxProbe)
		if !ok {
			s.Logger.Warn("could not decode any frame in shot", "shot", i, "start", shot.Start, "end", shot.End)
			skips = append(skips, Skip{Shot: i, Reason: SkipUndecodable})
			continue
		}
		if frame.Index != mid {
			s.Logger.Debug("used neighbour of mid frame", "shot", i, "mid_frame", mid, "frame", frame.Index)
		}

		path, err := s.Writer.Write(videoID, ShotName(videoID, i), frame.Image)
		if err != nil {
			s.Logger.Error("failed to write keyframe", "shot", i, "error", err)
			skips = append(skips, Skip{Shot: i, Reason: SkipWriteFailed})
			continue
		}

		rec, err := models.NewKeyframeRecord(videoID, i, shot.Start, shot.End, fps, path)
		if err != nil {
			s.Logger.Warn("invalid keyframe record, skipped", "shot", i, "error", err)
			skips = append(skips, Skip{Shot: i, Reason: SkipInvalidBoundary})
			continue
		}
		records = append(records, rec)
	}

	return records, skips, nil
}
