package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bdougie/keyframer/internal/models"
)

// collectVideos expands input into the list of videos to process: the file
// itself, or every .mp4 directly inside a directory, sorted by name. Two
// files that map to the same video ID would share an output directory, so
// they are rejected.
func collectVideos(input string) ([]string, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, fmt.Errorf("input '%s': %w", input, err)
	}
	if !info.IsDir() {
		return []string{input}, nil
	}

	entries, err := os.ReadDir(input)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory '%s': %w", input, err)
	}

	var videos []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".mp4") {
			videos = append(videos, filepath.Join(input, e.Name()))
		}
	}
	sort.Strings(videos)

	seen := make(map[string]string, len(videos))
	for _, v := range videos {
		id := models.VideoID(v)
		if prev, ok := seen[id]; ok {
			return nil, fmt.Errorf("%s and %s share video id %q", filepath.Base(prev), filepath.Base(v), id)
		}
		seen[id] = v
	}
	return videos, nil
}
