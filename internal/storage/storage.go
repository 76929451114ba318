package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bdougie/keyframer/internal/models"
)

// Sink persists the keyframe set of one video. Saving the same video again
// replaces what was stored before.
type Sink interface {
	Save(ctx context.Context, kf models.VideoKeyframes) error
}

// JSONStore writes one metadata file per video: Dir/<video_id>.json holding
// the records as a JSON array.
type JSONStore struct {
	Dir string
}

// NewJSONStore creates a store rooted at dir.
func NewJSONStore(dir string) *JSONStore {
	return &JSONStore{Dir: dir}
}

// Path returns the metadata file of videoID.
func (s *JSONStore) Path(videoID string) string {
	return filepath.Join(s.Dir, videoID+".json")
}

// Save writes the records of kf, replacing any previous file.
func (s *JSONStore) Save(_ context.Context, kf models.VideoKeyframes) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create metadata directory: %w", err)
	}

	records := kf.Records
	if records == nil {
		records = []models.KeyframeRecord{}
	}
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return fmt.Errorf("encode metadata for %s: %w", kf.VideoID, err)
	}

	tmp, err := os.CreateTemp(s.Dir, "."+kf.VideoID+"-*.json")
	if err != nil {
		return fmt.Errorf("create metadata file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write metadata for %s: %w", kf.VideoID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close metadata for %s: %w", kf.VideoID, err)
	}
	if err := os.Rename(tmp.Name(), s.Path(kf.VideoID)); err != nil {
		return fmt.Errorf("rename metadata for %s: %w", kf.VideoID, err)
	}
	return nil
}

// Load reads back the records of videoID.
func (s *JSONStore) Load(videoID string) ([]models.KeyframeRecord, error) {
	data, err := os.ReadFile(s.Path(videoID))
	if err != nil {
		return nil, fmt.Errorf("read metadata for %s: %w", videoID, err)
	}
	var records []models.KeyframeRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", videoID, err)
	}
	return records, nil
}

// MultiSink fans a save out to several sinks. Every sink is tried; the
// errors are joined.
type MultiSink []Sink

func (m MultiSink) Save(ctx context.Context, kf models.VideoKeyframes) error {
	var errs []error
	for _, s := range m {
		if err := s.Save(ctx, kf); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
