package extractor

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
)

// KeyframeWriter persists keyframes as JPEG files under Dir/<video_id>/.
type KeyframeWriter struct {
	Dir     string
	Quality int
}

// NewKeyframeWriter returns a writer rooted at dir. Quality defaults to 95.
func NewKeyframeWriter(dir string, quality int) *KeyframeWriter {
	if quality <= 0 || quality > 100 {
		quality = 95
	}
	return &KeyframeWriter{Dir: dir, Quality: quality}
}

// Path returns where the keyframe called name of videoID is stored.
func (w *KeyframeWriter) Path(videoID, name string) string {
	return filepath.Join(w.Dir, videoID, name+".jpg")
}

// Write encodes img to Path(videoID, name), replacing any previous file.
func (w *KeyframeWriter) Write(videoID, name string, img image.Image) (string, error) {
	path := w.Path(videoID, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create keyframe directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+name+"-*.jpg")
	if err != nil {
		return "", fmt.Errorf("create keyframe file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := jpeg.Encode(tmp, img, &jpeg.Options{Quality: w.Quality}); err != nil {
		tmp.Close()
		return "", fmt.Errorf("encode keyframe %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close keyframe %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename keyframe %s: %w", name, err)
	}
	return path, nil
}

// Reset removes every keyframe previously written for videoID.
func (w *KeyframeWriter) Reset(videoID string) error {
	if err := os.RemoveAll(filepath.Join(w.Dir, videoID)); err != nil {
		return fmt.Errorf("clear keyframes of %s: %w", videoID, err)
	}
	return nil
}

// ShotName is the keyframe name for shot i.
func ShotName(videoID string, shot int) string {
	return fmt.Sprintf("%s_%d", videoID, shot)
}

// FallbackName is the keyframe name for a fallback sample at frame.
func FallbackName(videoID string, frame int) string {
	return fmt.Sprintf("%s_fb_%d", videoID, frame)
}
