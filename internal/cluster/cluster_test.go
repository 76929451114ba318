package cluster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unit(v ...float32) []float32 { return Normalize(v) }

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := Normalize([]float32{0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0}, zero)
}

func TestDBSCANNearDuplicatesAndOutlier(t *testing.T) {
	vectors := [][]float32{
		unit(1, 0, 0),
		unit(1, 0.05, 0),
		unit(0, 0, 1),
	}
	labels := DBSCAN(vectors, 0.1, 1)

	assert.Equal(t, Assignment{0, 0, 1}, labels)
	reps := Representatives(vectors, labels)
	assert.Len(t, reps, 2)
	assert.Equal(t, 2, reps[1])
}

func TestRepresentativeIsClosestToCentroid(t *testing.T) {
	// a and b are near-identical; c is a third member pulling the centroid
	// towards b, so b must be chosen even though a comes first.
	a := unit(1, 0.00, 0)
	b := unit(1, 0.06, 0)
	c := unit(1, 0.12, 0)
	far := unit(0, 1, 0)

	require.Greater(t, Dot(a, b), 0.9)

	vectors := [][]float32{a, b, far, c}
	labels := DBSCAN(vectors, 0.1, 1)
	assert.Equal(t, Assignment{0, 0, 1, 0}, labels)

	reps := Representatives(vectors, labels)
	assert.Equal(t, []int{1, 2}, reps)
}

func TestMedoidPairTieBreaksOnLowestIndex(t *testing.T) {
	// Two members are symmetric around their centroid.
	a := unit(1, 0.1)
	b := unit(1, -0.1)
	assert.Equal(t, 0, Medoid([][]float32{a, b}, []int{0, 1}))
	assert.Equal(t, 3, Medoid([][]float32{nil, nil, nil, a, b}, []int{3, 4}))
}

func TestMedoidPairPicksHigherSimilarity(t *testing.T) {
	vectors := [][]float32{unit(1, 0.02), unit(1, 0.04)}
	idx := Medoid(vectors, []int{0, 1})

	centroid := Normalize([]float32{
		(vectors[0][0] + vectors[1][0]) / 2,
		(vectors[0][1] + vectors[1][1]) / 2,
	})
	other := 1 - idx
	assert.GreaterOrEqual(t, Dot(vectors[idx], centroid), Dot(vectors[other], centroid))
}

func TestDBSCANMinSamplesProducesNoise(t *testing.T) {
	vectors := [][]float32{
		unit(1, 0),
		unit(1, 0.01),
		unit(0, 1),
	}
	labels := DBSCAN(vectors, 0.1, 2)
	assert.Equal(t, Assignment{0, 0, Noise}, labels)

	reps := Representatives(vectors, labels)
	require.Len(t, reps, 2)
	assert.Equal(t, 2, reps[1], "noise points are passed through after clusters")
}

func TestDBSCANChainsThroughCorePoints(t *testing.T) {
	// Consecutive points are within eps, the ends are not.
	var vectors [][]float32
	for i := 0; i < 5; i++ {
		angle := float64(i) * 0.35
		vectors = append(vectors, []float32{float32(math.Cos(angle)), float32(math.Sin(angle))})
	}
	require.Greater(t, CosineDistance(vectors[0], vectors[4]), 0.1)

	labels := DBSCAN(vectors, 0.1, 1)
	assert.Equal(t, Assignment{0, 0, 0, 0, 0}, labels)
}

func TestDBSCANEveryPointLabelled(t *testing.T) {
	vectors := [][]float32{unit(1, 0), unit(0, 1), unit(-1, 0), unit(0, -1)}
	labels := DBSCAN(vectors, 0.1, 1)
	require.Len(t, labels, len(vectors))
	assert.Equal(t, Assignment{0, 1, 2, 3}, labels)
}

func TestDBSCANEmpty(t *testing.T) {
	assert.Empty(t, DBSCAN(nil, 0.1, 1))
	assert.Empty(t, Representatives(nil, nil))
}
