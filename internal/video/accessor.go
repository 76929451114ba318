package video

import "image"

// Frame is a decoded frame together with the index it was read from.
type Frame struct {
	Index int
	Image image.Image
}

// ProbeOrder lists the frame indices FetchNearestDecodable visits for target,
// clamped into [start, end]: target, +1, -1, +2, -2, ... up to maxProbe.
// Indices that clamp onto an already listed frame are dropped.
func ProbeOrder(target, start, end, maxProbe int) []int {
	order := make([]int, 0, 2*maxProbe+1)
	seen := make(map[int]bool, 2*maxProbe+1)
	add := func(i int) {
		i = clamp(i, start, end)
		if !seen[i] {
			seen[i] = true
			order = append(order, i)
		}
	}

	add(target)
	for d := 1; d <= maxProbe; d++ {
		add(target + d)
		add(target - d)
	}
	return order
}

// FetchNearestDecodable reads target and, if that fails, its neighbours in
// ProbeOrder. It returns the first frame that decodes. The forward neighbour
// is always tried before the backward one at the same distance.
//
// The source cursor is left wherever the last probe put it.
func FetchNearestDecodable(src Source, target, start, end, maxProbe int) (Frame, bool) {
	for _, idx := range ProbeOrder(target, start, end, maxProbe) {
		if img, ok := readAt(src, idx); ok {
			return Frame{Index: idx, Image: img}, true
		}
	}
	return Frame{}, false
}

// FetchWithRegression is FetchNearestDecodable plus one more attempt at
// target-1 when the whole probe window failed and target is past start.
// The extra read happens even if target-1 was already probed.
func FetchWithRegression(src Source, target, start, end, maxProbe int) (Frame, bool) {
	if f, ok := FetchNearestDecodable(src, target, start, end, maxProbe); ok {
		return f, true
	}
	if target > start {
		if img, ok := readAt(src, target-1); ok {
			return Frame{Index: target - 1, Image: img}, true
		}
	}
	return Frame{}, false
}

// ReadAt seeks to idx and decodes a single frame with no neighbour probing.
func ReadAt(src Source, idx int) (image.Image, bool) {
	return readAt(src, idx)
}

func readAt(src Source, idx int) (image.Image, bool) {
	if err := src.Seek(idx); err != nil {
		return nil, false
	}
	img, err := src.Read()
	if err != nil || img == nil {
		return nil, false
	}
	return img, true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
