// Package video wraps seekable frame decoding and the probing logic used to
// recover from undecodable frames.
package video

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrOpen marks a source that could not be opened at all.
	ErrOpen = errors.New("open video source")
	// ErrDecode marks a frame that could not be decoded at the cursor.
	ErrDecode = errors.New("decode frame")
)

// Source is a seekable, stateful frame reader over a single video. A Source
// is not safe for concurrent use.
type Source interface {
	// FrameRate returns the nominal frames per second.
	FrameRate() float64
	// FrameCount returns the frame count reported by the container. It may
	// be zero or negative when the metadata is missing.
	FrameCount() int
	// Seek positions the cursor at frame.
	Seek(frame int) error
	// Read decodes the frame at the cursor and advances it by one.
	Read() (image.Image, error)
	// Grab advances the cursor by one frame without decoding. It returns
	// false once the end of the stream is reached.
	Grab() bool
	Close() error
}

// Opener opens a Source for a video file.
type Opener interface {
	Open(ctx context.Context, path string) (Source, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, path string) (Source, error)

func (f OpenerFunc) Open(ctx context.Context, path string) (Source, error) {
	return f(ctx, path)
}

// CountFrames walks the stream with Grab until it ends and then rewinds to
// frame 0. It has no early exit, so broken metadata on a long video makes
// this the slowest step of a run. Sources that implement
// interface{ Err() error } can report why Grab stopped.
func CountFrames(src Source) (int, error) {
	n := 0
	for src.Grab() {
		n++
	}
	if e, ok := src.(interface{ Err() error }); ok {
		if err := e.Err(); err != nil {
			return n, err
		}
	}
	if err := src.Seek(0); err != nil {
		return n, err
	}
	return n, nil
}
