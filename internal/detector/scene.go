package detector

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/bdougie/keyframer/internal/models"
	"github.com/bdougie/keyframer/internal/video"
)

// DefaultSceneThreshold is the ffmpeg scene score above which a frame starts
// a new shot. Range is 0.0 to 1.0.
const DefaultSceneThreshold = 0.3

// SceneDetector finds cuts with ffmpeg's scene score and turns them into
// contiguous shots covering the whole video.
type SceneDetector struct {
	Opener    video.Opener
	Threshold float64
	Logger    *slog.Logger
}

func (d SceneDetector) Detect(ctx context.Context, videoPath string) ([]models.ShotBoundary, error) {
	threshold := d.Threshold
	if threshold <= 0 {
		threshold = DefaultSceneThreshold
	}

	src, err := d.Opener.Open(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	fps := src.FrameRate()
	total := src.FrameCount()
	if total <= 0 {
		if total, err = video.CountFrames(src); err != nil {
			return nil, err
		}
	}

	var stderr bytes.Buffer
	stream := sceneStream(ctx, videoPath, threshold)
	if d.Logger != nil {
		d.Logger.Debug("detecting scenes", "video", videoPath, "cmd", strings.Join(stream.GetArgs(), " "))
	}
	if err := stream.WithErrorOutput(&stderr).Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg scene detection: %w", err)
	}

	cuts, err := parseShowinfo(&stderr, fps)
	if err != nil {
		return nil, err
	}
	return boundariesFromCuts(cuts, total), nil
}

// sceneStream builds the ffmpeg command that logs one showinfo line per frame
// whose scene score exceeds threshold. The child process is killed when ctx
// is done.
func sceneStream(ctx context.Context, path string, threshold float64) *ffmpeg.Stream {
	return ffmpeg.OutputContext(ctx, []*ffmpeg.Stream{ffmpeg.Input(path)}, "-", ffmpeg.KwArgs{
		"vf": fmt.Sprintf("select='gt(scene,%g)',showinfo", threshold),
		"f":  "null",
	})
}

var ptsTimeRegex = regexp.MustCompile(`pts_time:(\d+\.?\d*)`)

// parseShowinfo extracts cut frame numbers from showinfo log lines such as
// "[Parsed_showinfo_1 @ 0x...] n: 0 pts: 135052 pts_time:135.052 ...".
func parseShowinfo(r io.Reader, fps float64) ([]int, error) {
	var cuts []int
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		m := ptsTimeRegex.FindStringSubmatch(scanner.Text())
		if len(m) < 2 {
			continue
		}
		t, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		cuts = append(cuts, int(math.Round(t*fps)))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ffmpeg output: %w", err)
	}
	return cuts, nil
}

// boundariesFromCuts converts cut frames into shots [cut_i, cut_{i+1}-1],
// with an implicit cut at frame 0 and the last shot ending at total-1.
func boundariesFromCuts(cuts []int, total int) []models.ShotBoundary {
	if total <= 0 {
		return nil
	}

	starts := []int{0}
	sort.Ints(cuts)
	for _, c := range cuts {
		if c > starts[len(starts)-1] && c < total {
			starts = append(starts, c)
		}
	}

	shots := make([]models.ShotBoundary, len(starts))
	for i, s := range starts {
		end := total - 1
		if i+1 < len(starts) {
			end = starts[i+1] - 1
		}
		shots[i] = models.ShotBoundary{Start: s, End: end}
	}
	return shots
}
