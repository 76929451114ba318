// Package videotest provides an in-memory video.Source for tests.
package videotest

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/bdougie/keyframer/internal/video"
)

// Source is a synthetic video. Frame i is a solid image whose colour comes
// from Color (or a gradient over the index when Color is nil).
type Source struct {
	FPS    float64
	Frames int
	// Reported overrides the frame count the container claims to have.
	// Zero means "report Frames"; a negative value reports 0.
	Reported int
	// Undecodable frames fail on Read.
	Undecodable map[int]bool
	Color       func(frame int) color.Color
	Size        int
	// CountErr makes Grab stop immediately and is returned by Err.
	CountErr error

	mu     sync.Mutex
	cursor int
	reads  []int
	closed bool
}

func (s *Source) FrameRate() float64 { return s.FPS }

func (s *Source) FrameCount() int {
	switch {
	case s.Reported < 0:
		return 0
	case s.Reported > 0:
		return s.Reported
	}
	return s.Frames
}

func (s *Source) Seek(frame int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if frame < 0 {
		return fmt.Errorf("seek to negative frame %d", frame)
	}
	s.cursor = frame
	return nil
}

func (s *Source) Read() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.cursor
	s.reads = append(s.reads, idx)
	if idx >= s.Frames || s.Undecodable[idx] {
		return nil, fmt.Errorf("%w %d", video.ErrDecode, idx)
	}
	s.cursor++
	return s.frame(idx), nil
}

func (s *Source) Grab() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CountErr != nil || s.cursor >= s.Frames {
		return false
	}
	s.cursor++
	return true
}

func (s *Source) Err() error { return s.CountErr }

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Reads returns the cursor position of every Read call, in order.
func (s *Source) Reads() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.reads...)
}

func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Source) frame(idx int) image.Image {
	size := s.Size
	if size <= 0 {
		size = 8
	}
	var c color.Color = color.RGBA{R: uint8(idx), G: uint8(idx >> 8), B: 128, A: 255}
	if s.Color != nil {
		c = s.Color(idx)
	}
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// Opener hands out registered sources by path. Unknown paths fail with
// video.ErrOpen.
type Opener struct {
	mu      sync.Mutex
	sources map[string]*Source
}

func NewOpener(sources map[string]*Source) *Opener {
	return &Opener{sources: sources}
}

func (o *Opener) Open(_ context.Context, path string) (video.Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	src, ok := o.sources[path]
	if !ok {
		return nil, fmt.Errorf("%w: no such file %s", video.ErrOpen, path)
	}
	return src, nil
}
