package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"image"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Embedder maps a batch of images to unit-normalized feature vectors, one
// per image and in the same order. All vectors share one dimensionality.
type Embedder interface {
	Embed(ctx context.Context, images []image.Image) ([][]float32, error)
}

// Service splits embedding requests into fixed-size batches, runs them on a
// bounded number of goroutines and caches vectors by image content.
type Service struct {
	embedder   Embedder
	batchSize  int
	numWorkers int
	cache      sync.Map // content hash -> []float32
}

// NewService wraps embedder. Non-positive sizes fall back to 16 images per
// batch and 2 workers.
func NewService(embedder Embedder, batchSize, numWorkers int) *Service {
	if batchSize <= 0 {
		batchSize = 16
	}
	if numWorkers <= 0 {
		numWorkers = 2
	}
	return &Service{
		embedder:   embedder,
		batchSize:  batchSize,
		numWorkers: numWorkers,
	}
}

// Embed returns one vector per image. Any batch failure fails the call.
func (s *Service) Embed(ctx context.Context, images []image.Image) ([][]float32, error) {
	out := make([][]float32, len(images))
	keys := make([][32]byte, len(images))

	var pending []int
	for i, img := range images {
		keys[i] = contentKey(img)
		if cached, ok := s.cache.Load(keys[i]); ok {
			out[i] = cached.([]float32)
			continue
		}
		pending = append(pending, i)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.numWorkers)
	for lo := 0; lo < len(pending); lo += s.batchSize {
		batch := pending[lo:min(lo+s.batchSize, len(pending))]
		g.Go(func() error {
			imgs := make([]image.Image, len(batch))
			for j, idx := range batch {
				imgs[j] = images[idx]
			}
			vecs, err := s.embedder.Embed(gctx, imgs)
			if err != nil {
				return err
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("embedder returned %d vectors for %d images", len(vecs), len(batch))
			}
			for j, idx := range batch {
				out[idx] = vecs[j]
				s.cache.Store(keys[idx], vecs[j])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := CheckDims(out); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckDims reports an error unless every vector is non-empty and all share
// one length.
func CheckDims(vecs [][]float32) error {
	if len(vecs) == 0 {
		return nil
	}
	dim := len(vecs[0])
	if dim == 0 {
		return fmt.Errorf("embedder returned an empty vector")
	}
	for i, v := range vecs {
		if len(v) != dim {
			return fmt.Errorf("vector %d has %d dimensions, want %d", i, len(v), dim)
		}
	}
	return nil
}

// contentKey hashes the pixels of img.
func contentKey(img image.Image) [32]byte {
	h := sha256.New()
	b := img.Bounds()
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[:4], uint32(b.Dx()))
	binary.LittleEndian.PutUint32(buf[4:], uint32(b.Dy()))
	h.Write(buf[:])

	if rgba, ok := img.(*image.RGBA); ok && len(rgba.Pix) == 4*b.Dx()*b.Dy() {
		h.Write(rgba.Pix)
	} else {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bl, a := img.At(x, y).RGBA()
				binary.LittleEndian.PutUint16(buf[0:], uint16(r))
				binary.LittleEndian.PutUint16(buf[2:], uint16(g))
				binary.LittleEndian.PutUint16(buf[4:], uint16(bl))
				binary.LittleEndian.PutUint16(buf[6:], uint16(a))
				h.Write(buf[:])
			}
		}
	}

	var key [32]byte
	copy(key[:], h.Sum(nil))
	return key
}
