package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeyframeRecordTimes(t *testing.T) {
	rec, err := NewKeyframeRecord("clip", 1, 100, 200, 30, "out/clip_1.jpg")
	require.NoError(t, err)

	assert.InDelta(t, 3.333, rec.StartTime, 0.001)
	assert.InDelta(t, 6.667, rec.EndTime, 0.001)
	assert.LessOrEqual(t, rec.StartTime, rec.EndTime)
}

func TestNewKeyframeRecordRejects(t *testing.T) {
	cases := []struct {
		name  string
		id    string
		start int
		end   int
		fps   float64
		path  string
	}{
		{"zero fps", "v", 0, 1, 0, "p"},
		{"reversed range", "v", 5, 4, 25, "p"},
		{"negative start", "v", -1, 4, 25, "p"},
		{"empty path", "v", 0, 0, 25, ""},
		{"empty id", "", 0, 0, 25, "p"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewKeyframeRecord(tc.id, 0, tc.start, tc.end, tc.fps, tc.path)
			assert.Error(t, err)
		})
	}
}

func TestKeyframeRecordJSONFields(t *testing.T) {
	rec, err := NewKeyframeRecord("clip", 0, 10, 10, 10, "k.jpg")
	require.NoError(t, err)

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, key := range []string{"video_id", "shot", "start_frame", "end_frame", "start_time", "end_time", "keyframe_path"} {
		assert.Contains(t, fields, key)
	}
	assert.Len(t, fields, 7)
}

func TestShotBoundaryMid(t *testing.T) {
	assert.Equal(t, 50, ShotBoundary{Start: 0, End: 100}.Mid())
	assert.Equal(t, 249, ShotBoundary{Start: 200, End: 299}.Mid())
	assert.Equal(t, 7, ShotBoundary{Start: 7, End: 7}.Mid())
	assert.False(t, ShotBoundary{Start: 8, End: 7}.Valid())
}

func TestVideoID(t *testing.T) {
	assert.Equal(t, "L01_V001", VideoID("/data/videos/L01_V001.mp4"))
	assert.Equal(t, "clip.part", VideoID("clip.part.MP4"))
}
