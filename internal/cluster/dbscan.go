// Package cluster groups embedding vectors with density-based clustering
// under cosine distance and picks one representative per group.
package cluster

import "math"

// Noise is the label of points that belong to no cluster.
const Noise = -1

// Assignment maps each point index to its cluster label or Noise.
type Assignment []int

// Normalize returns a unit-length copy of v. A zero vector is returned as a
// zero-valued copy.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

// Dot is the dot product of two equal-length vectors.
func Dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// CosineDistance is 1 - cos(a, b) for unit vectors.
func CosineDistance(a, b []float32) float64 {
	return 1 - Dot(a, b)
}

// DBSCAN labels vectors with cosine distance as the metric. A point is a
// core point when at least minSamples points, itself included, lie within
// eps of it. Clusters are numbered from 0 in the order they are found while
// scanning points by ascending index.
//
// Inputs are normalized first, so callers may pass raw vectors.
func DBSCAN(vectors [][]float32, eps float64, minSamples int) Assignment {
	n := len(vectors)
	unit := make([][]float32, n)
	for i, v := range vectors {
		unit[i] = Normalize(v)
	}

	neighbors := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if CosineDistance(unit[i], unit[j]) <= eps {
				neighbors[i] = append(neighbors[i], j)
			}
		}
	}

	const unvisited = -2
	labels := make(Assignment, n)
	for i := range labels {
		labels[i] = unvisited
	}

	next := 0
	for i := 0; i < n; i++ {
		if labels[i] != unvisited {
			continue
		}
		if len(neighbors[i]) < minSamples {
			labels[i] = Noise
			continue
		}

		labels[i] = next
		queue := append([]int(nil), neighbors[i]...)
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]
			if labels[j] == Noise {
				// Border point reached from a core point.
				labels[j] = next
				continue
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = next
			if len(neighbors[j]) >= minSamples {
				queue = append(queue, neighbors[j]...)
			}
		}
		next++
	}
	return labels
}

// Clusters returns the member indices of each cluster in label order, and
// the noise points in index order.
func (a Assignment) Clusters() (clusters [][]int, noise []int) {
	for i, label := range a {
		if label == Noise {
			noise = append(noise, i)
			continue
		}
		for len(clusters) <= label {
			clusters = append(clusters, nil)
		}
		clusters[label] = append(clusters[label], i)
	}
	return clusters, noise
}
