package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// ffmpeg-go prints every compiled command through the standard library
// logger. Sources log their commands at debug level instead.
func init() {
	ffmpeg.LogCompiledCommand = false
}

// FFmpegOpener opens videos through the ffmpeg and ffprobe binaries.
type FFmpegOpener struct {
	// FFprobePath is used for packet counting. Defaults to "ffprobe".
	FFprobePath string
	Logger      *slog.Logger
}

func (o FFmpegOpener) Open(ctx context.Context, path string) (Source, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}

	raw, err := ffmpeg.Probe(path)
	if err != nil {
		return nil, fmt.Errorf("%w: ffprobe %s: %v", ErrOpen, path, err)
	}
	info, err := parseProbe(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, path, err)
	}

	ffprobe := o.FFprobePath
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FFmpegSource{
		ctx:      ctx,
		logger:   logger.With("video", path),
		path:     path,
		ffprobe:  ffprobe,
		fps:      info.fps,
		reported: info.frames,
		packets:  -1,
	}, nil
}

// FFmpegSource decodes individual frames by running ffmpeg with an accurate
// seek to the frame's timestamp. Timestamps are derived from the nominal
// frame rate, so the mapping is exact for constant-frame-rate video whose
// first frame has pts 0.
type FFmpegSource struct {
	ctx      context.Context
	logger   *slog.Logger
	path     string
	ffprobe  string
	fps      float64
	reported int
	cursor   int
	packets  int
	countErr error
}

func (s *FFmpegSource) FrameRate() float64 { return s.fps }
func (s *FFmpegSource) FrameCount() int    { return s.reported }

func (s *FFmpegSource) Seek(frame int) error {
	if frame < 0 {
		return fmt.Errorf("seek to negative frame %d", frame)
	}
	s.cursor = frame
	return nil
}

func (s *FFmpegSource) Read() (image.Image, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	if s.fps <= 0 {
		return nil, fmt.Errorf("%w: unknown frame rate", ErrDecode)
	}

	// Start half a frame early: ffmpeg drops frames with pts below -ss, so
	// this lands on the cursor frame without rounding onto its neighbour.
	ts := (float64(s.cursor) - 0.5) / s.fps
	if ts < 0 {
		ts = 0
	}

	var out, stderr bytes.Buffer
	stream := frameStream(s.ctx, s.path, ts)
	s.logger.Debug("decoding frame", "frame", s.cursor, "cmd", strings.Join(stream.GetArgs(), " "))
	err := stream.WithOutput(&out).WithErrorOutput(&stderr).Run()
	if err != nil {
		return nil, fmt.Errorf("%w %d: %v: %s", ErrDecode, s.cursor, err, lastLine(stderr.String()))
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("%w %d: no frame at timestamp %.3fs", ErrDecode, s.cursor, ts)
	}

	img, err := png.Decode(&out)
	if err != nil {
		return nil, fmt.Errorf("%w %d: %v", ErrDecode, s.cursor, err)
	}
	s.cursor++
	return img, nil
}

// frameStream builds the ffmpeg command that writes the single frame at ts
// to stdout as PNG. The child process is killed when ctx is done.
func frameStream(ctx context.Context, path string, ts float64) *ffmpeg.Stream {
	in := ffmpeg.Input(path, ffmpeg.KwArgs{"ss": strconv.FormatFloat(ts, 'f', 6, 64)})
	return ffmpeg.OutputContext(ctx, []*ffmpeg.Stream{in}, "pipe:",
		ffmpeg.KwArgs{"vframes": 1, "format": "image2", "vcodec": "png"})
}

// Grab advances without decoding. The stream's packet count is read once
// with ffprobe -count_packets, which demuxes but does not decode. A failed
// count ends the stream and is reported by Err.
func (s *FFmpegSource) Grab() bool {
	if s.packets < 0 {
		n, err := s.countPackets()
		if err != nil {
			s.logger.Warn("failed to count packets", "error", err)
			s.countErr = err
			n = 0
		}
		s.packets = n
	}
	if s.cursor >= s.packets {
		return false
	}
	s.cursor++
	return true
}

// Err returns the error that ended Grab early, if any.
func (s *FFmpegSource) Err() error { return s.countErr }

func (s *FFmpegSource) Close() error { return nil }

func (s *FFmpegSource) countPackets() (int, error) {
	cmd := exec.CommandContext(s.ctx, s.ffprobe,
		"-v", "error",
		"-count_packets",
		"-select_streams", "v:0",
		"-show_entries", "stream=nb_read_packets",
		"-of", "default=noprint_wrappers=1:nokey=1",
		s.path,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe count packets: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(output)))
	if err != nil {
		return 0, fmt.Errorf("parse packet count: %w", err)
	}
	return n, nil
}

type probeInfo struct {
	fps    float64
	frames int
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		NbFrames     string `json:"nb_frames"`
	} `json:"streams"`
}

func parseProbe(raw string) (probeInfo, error) {
	var out probeOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return probeInfo{}, fmt.Errorf("decode ffprobe output: %w", err)
	}
	for _, st := range out.Streams {
		if st.CodecType != "video" {
			continue
		}
		fps := parseRate(st.AvgFrameRate)
		if fps <= 0 {
			fps = parseRate(st.RFrameRate)
		}
		frames, _ := strconv.Atoi(st.NbFrames)
		return probeInfo{fps: fps, frames: frames}, nil
	}
	return probeInfo{}, fmt.Errorf("no video stream")
}

// parseRate parses ffprobe rationals such as "30000/1001".
func parseRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
