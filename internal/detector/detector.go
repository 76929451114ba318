// Package detector adapts shot-boundary sources to a single interface.
package detector

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bdougie/keyframer/internal/models"
)

// Detector returns the shots of a video in temporal order. Boundaries may
// overlap or leave gaps.
type Detector interface {
	Detect(ctx context.Context, videoPath string) ([]models.ShotBoundary, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, videoPath string) ([]models.ShotBoundary, error)

func (f DetectorFunc) Detect(ctx context.Context, videoPath string) ([]models.ShotBoundary, error) {
	return f(ctx, videoPath)
}

// FileDetector reads boundaries computed ahead of time by a shot-boundary
// model. For video "x.mp4" it looks for Dir/x.txt, one "start end" pair per
// line as written by TransNetV2, then Dir/x.json holding [[start, end], ...].
type FileDetector struct {
	Dir string
}

func (d FileDetector) Detect(_ context.Context, videoPath string) ([]models.ShotBoundary, error) {
	id := models.VideoID(videoPath)

	txt := filepath.Join(d.Dir, id+".txt")
	if f, err := os.Open(txt); err == nil {
		defer f.Close()
		shots, err := ParseScenes(f)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", txt, err)
		}
		return shots, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("open %s: %w", txt, err)
	}

	js := filepath.Join(d.Dir, id+".json")
	data, err := os.ReadFile(js)
	if err != nil {
		return nil, fmt.Errorf("no shot boundaries for %s in %s: %w", id, d.Dir, err)
	}
	var pairs [][2]int
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", js, err)
	}
	shots := make([]models.ShotBoundary, len(pairs))
	for i, p := range pairs {
		shots[i] = models.ShotBoundary{Start: p[0], End: p[1]}
	}
	return shots, nil
}

// ParseScenes reads whitespace separated "start end" lines. Blank lines and
// lines starting with '#' are ignored.
func ParseScenes(r io.Reader) ([]models.ShotBoundary, error) {
	var shots []models.ShotBoundary
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: want \"start end\", got %q", line, text)
		}
		start, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: start: %w", line, err)
		}
		end, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: end: %w", line, err)
		}
		shots = append(shots, models.ShotBoundary{Start: start, End: end})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return shots, nil
}
