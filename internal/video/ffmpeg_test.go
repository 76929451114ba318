package video

import (
	"bytes"
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

func TestParseRate(t *testing.T) {
	assert.InDelta(t, 29.97, parseRate("30000/1001"), 0.001)
	assert.InDelta(t, 25, parseRate("25/1"), 1e-9)
	assert.InDelta(t, 24, parseRate("24"), 1e-9)
	assert.Zero(t, parseRate("0/0"))
	assert.Zero(t, parseRate(""))
}

func TestParseProbe(t *testing.T) {
	raw := `{"streams":[
		{"codec_type":"audio","avg_frame_rate":"0/0"},
		{"codec_type":"video","avg_frame_rate":"0/0","r_frame_rate":"30/1","nb_frames":"300"}
	]}`
	info, err := parseProbe(raw)
	require.NoError(t, err)
	assert.InDelta(t, 30, info.fps, 1e-9)
	assert.Equal(t, 300, info.frames)
}

func TestParseProbeMissingFrameCount(t *testing.T) {
	info, err := parseProbe(`{"streams":[{"codec_type":"video","avg_frame_rate":"25/1"}]}`)
	require.NoError(t, err)
	assert.Zero(t, info.frames)
}

func TestParseProbeNoVideo(t *testing.T) {
	_, err := parseProbe(`{"streams":[{"codec_type":"audio"}]}`)
	assert.Error(t, err)
}

func TestFFmpegOpenerMissingFile(t *testing.T) {
	_, err := FFmpegOpener{}.Open(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOpen))
}

func TestFrameStreamArgs(t *testing.T) {
	args := strings.Join(frameStream(context.Background(), "clip.mp4", 1.5).GetArgs(), " ")
	assert.Contains(t, args, "-ss 1.500000")
	assert.Contains(t, args, "-i clip.mp4")
	assert.Contains(t, args, "-vframes 1")
	assert.True(t, strings.HasSuffix(args, "pipe:"), args)
}

func TestFrameStreamFollowsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stream := frameStream(ctx, "clip.mp4", 0)
	require.NoError(t, stream.Context.Err())
	cancel()
	assert.ErrorIs(t, stream.Context.Err(), context.Canceled)
}

func TestFFmpegCommandsStayOffStandardLogger(t *testing.T) {
	assert.False(t, ffmpeg.LogCompiledCommand)

	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	frameStream(context.Background(), "clip.mp4", 0).Compile()
	assert.Empty(t, buf.String())
}

func TestGrabReportsCountFailure(t *testing.T) {
	src := &FFmpegSource{
		ctx:     context.Background(),
		logger:  slog.New(slog.DiscardHandler),
		path:    "clip.mp4",
		ffprobe: filepath.Join(t.TempDir(), "no-ffprobe"),
		fps:     30,
		packets: -1,
	}

	assert.False(t, src.Grab())
	require.Error(t, src.Err())

	_, err := CountFrames(src)
	require.Error(t, err)
	assert.ErrorIs(t, err, src.Err())
}
