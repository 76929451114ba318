package models

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Mode names the branch that produced a video's keyframes.
type Mode string

const (
	ModeShots    Mode = "shots"
	ModeFallback Mode = "fallback"
)

// ShotBoundary is one detected shot, inclusive on both ends.
type ShotBoundary struct {
	Start int `json:"start_frame"`
	End   int `json:"end_frame"`
}

// Valid reports whether the boundary can be used for keyframe selection.
func (b ShotBoundary) Valid() bool {
	return b.Start >= 0 && b.Start <= b.End
}

// Mid is the frame halfway through the shot, rounded down.
func (b ShotBoundary) Mid() int {
	return b.Start + (b.End-b.Start)/2
}

// KeyframeRecord describes one persisted keyframe. The serialized form is
// consumed by the search index and the metadata store, so field names and
// types are fixed.
type KeyframeRecord struct {
	VideoID      string  `json:"video_id"`
	Shot         int     `json:"shot"`
	StartFrame   int     `json:"start_frame"`
	EndFrame     int     `json:"end_frame"`
	StartTime    float64 `json:"start_time"`
	EndTime      float64 `json:"end_time"`
	KeyframePath string  `json:"keyframe_path"`
}

// NewKeyframeRecord builds a record, deriving times as frame / fps.
func NewKeyframeRecord(videoID string, shot, startFrame, endFrame int, fps float64, keyframePath string) (KeyframeRecord, error) {
	switch {
	case videoID == "":
		return KeyframeRecord{}, errors.New("empty video id")
	case fps <= 0:
		return KeyframeRecord{}, fmt.Errorf("invalid frame rate %v", fps)
	case startFrame < 0 || startFrame > endFrame:
		return KeyframeRecord{}, fmt.Errorf("invalid frame range [%d, %d]", startFrame, endFrame)
	case keyframePath == "":
		return KeyframeRecord{}, errors.New("empty keyframe path")
	}

	return KeyframeRecord{
		VideoID:      videoID,
		Shot:         shot,
		StartFrame:   startFrame,
		EndFrame:     endFrame,
		StartTime:    float64(startFrame) / fps,
		EndTime:      float64(endFrame) / fps,
		KeyframePath: keyframePath,
	}, nil
}

// VideoKeyframes is the full output set for one video. Embeddings is
// parallel to Records; entries are nil for shot-sourced keyframes.
type VideoKeyframes struct {
	VideoID    string
	Mode       Mode
	Records    []KeyframeRecord
	Embeddings [][]float32
}

// VideoResult is the outcome of processing one video. Err is set when the
// video could not be processed at all; Records is then empty.
type VideoResult struct {
	VideoKeyframes
	Path    string
	Skipped int
	Err     error
}

// VideoID derives a video identifier from its path: the base name with the
// extension stripped.
func VideoID(videoPath string) string {
	return strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
}
