package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MergeAction is what MergeFallback did for one video.
type MergeAction string

const (
	MergeCopied  MergeAction = "copied"
	MergeKept    MergeAction = "kept"
	MergeMissing MergeAction = "missing"
)

// MergeDecision reports the keyframe counts MergeFallback compared.
type MergeDecision struct {
	VideoID       string
	PrimaryCount  int
	FallbackCount int
	Action        MergeAction
}

// MergeFallback compares a shot-only run (primary) against a run with
// fallback sampling enabled. Both are output directories holding keyframes/
// and metadata/. For every video folder in primary that also exists in
// fallback, the fallback keyframes and metadata are copied to out when the
// fallback run has strictly more keyframes. An existing destination folder
// is replaced.
func MergeFallback(primary, fallback, out string, logger *slog.Logger) ([]MergeDecision, error) {
	primaryKeyframes := filepath.Join(primary, "keyframes")
	fallbackKeyframes := filepath.Join(fallback, "keyframes")
	outKeyframes := filepath.Join(out, "keyframes")
	outMetadata := filepath.Join(out, "metadata")

	for _, dir := range []string{outKeyframes, outMetadata} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory '%s': %w", dir, err)
		}
	}

	entries, err := os.ReadDir(primaryKeyframes)
	if err != nil {
		return nil, fmt.Errorf("read source directory '%s': %w", primaryKeyframes, err)
	}

	var videos []string
	for _, e := range entries {
		if e.IsDir() {
			videos = append(videos, e.Name())
		}
	}
	sort.Strings(videos)
	logger.Info("merging video folders", "count", len(videos))

	decisions := make([]MergeDecision, 0, len(videos))
	for _, vid := range videos {
		d := MergeDecision{VideoID: vid}
		src := filepath.Join(fallbackKeyframes, vid)
		if fi, err := os.Stat(src); err != nil || !fi.IsDir() {
			logger.Warn("folder not found in both runs, skipped", "video_id", vid)
			d.Action = MergeMissing
			decisions = append(decisions, d)
			continue
		}

		if d.PrimaryCount, err = countVisible(filepath.Join(primaryKeyframes, vid)); err != nil {
			return decisions, err
		}
		if d.FallbackCount, err = countVisible(src); err != nil {
			return decisions, err
		}

		if d.FallbackCount <= d.PrimaryCount {
			logger.Info("primary run has enough keyframes", "video_id", vid,
				"primary", d.PrimaryCount, "fallback", d.FallbackCount)
			d.Action = MergeKept
			decisions = append(decisions, d)
			continue
		}

		dst := filepath.Join(outKeyframes, vid)
		if err := os.RemoveAll(dst); err != nil {
			return decisions, fmt.Errorf("remove '%s': %w", dst, err)
		}
		if err := os.CopyFS(dst, os.DirFS(src)); err != nil {
			return decisions, fmt.Errorf("copy keyframes of %s: %w", vid, err)
		}

		meta := filepath.Join(fallback, "metadata", vid+".json")
		data, err := os.ReadFile(meta)
		switch {
		case os.IsNotExist(err):
			logger.Warn("fallback metadata not found, skipping copy", "video_id", vid, "path", meta)
		case err != nil:
			return decisions, fmt.Errorf("read metadata of %s: %w", vid, err)
		default:
			if err := os.WriteFile(filepath.Join(outMetadata, vid+".json"), data, 0o644); err != nil {
				return decisions, fmt.Errorf("write metadata of %s: %w", vid, err)
			}
		}

		logger.Info("copied fallback keyframes", "video_id", vid,
			"primary", d.PrimaryCount, "fallback", d.FallbackCount)
		d.Action = MergeCopied
		decisions = append(decisions, d)
	}
	return decisions, nil
}

func countVisible(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read keyframe directory '%s': %w", dir, err)
	}
	n := 0
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), ".") {
			n++
		}
	}
	return n, nil
}
