package cluster

// Representatives picks one point per cluster and passes noise points
// through untouched. For a cluster, the representative is the member with
// the highest cosine similarity to the re-normalized mean of the members;
// ties go to the lowest index. The result lists clusters in label order
// followed by noise points in index order.
func Representatives(vectors [][]float32, labels Assignment) []int {
	clusters, noise := labels.Clusters()

	reps := make([]int, 0, len(clusters)+len(noise))
	for _, members := range clusters {
		if len(members) == 0 {
			continue
		}
		reps = append(reps, Medoid(vectors, members))
	}
	return append(reps, noise...)
}

// Medoid returns the member of the group closest to its centroid.
func Medoid(vectors [][]float32, members []int) int {
	dim := len(vectors[members[0]])
	centroid := make([]float32, dim)
	for _, m := range members {
		v := Normalize(vectors[m])
		for k := range centroid {
			centroid[k] += v[k]
		}
	}
	for k := range centroid {
		centroid[k] /= float32(len(members))
	}
	centroid = Normalize(centroid)

	best := members[0]
	bestSim := Dot(Normalize(vectors[best]), centroid)
	for _, m := range members[1:] {
		sim := Dot(Normalize(vectors[m]), centroid)
		if sim > bestSim || (sim == bestSim && m < best) {
			best, bestSim = m, sim
		}
	}
	return best
}
