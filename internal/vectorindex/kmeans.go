package vectorindex

import "math/rand"

// kmeans runs a small, fixed-iteration Lloyd's-algorithm clustering,
// enough for the coarse quantizer / PQ codebooks in a local, modest-
// scale index (no corpus repo ships a production k-means library, and
// pulling one in for a few hundred centroids isn't warranted).
func kmeans(vectors [][]float32, k int, iters int) [][]float32 {
	if len(vectors) == 0 {
		return nil
	}
	if k > len(vectors) {
		k = len(vectors)
	}

	dim := len(vectors[0])
	centroids := make([][]float32, k)
	perm := rand.Perm(len(vectors))
	for i := 0; i < k; i++ {
		centroids[i] = append([]float32(nil), vectors[perm[i]]...)
	}

	assign := make([]int, len(vectors))
	for iter := 0; iter < iters; iter++ {
		for i, v := range vectors {
			best, bestDist := 0, float32(0)
			for c, centroid := range centroids {
				d := l2Distance(v, centroid)
				if c == 0 || d < bestDist {
					best, bestDist = c, d
				}
			}
			assign[i] = best
		}

		sums := make([][]float32, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float32, dim)
		}
		for i, v := range vectors {
			c := assign[i]
			counts[c]++
			for d := 0; d < dim; d++ {
				sums[c][d] += v[d]
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue
			}
			for d := 0; d < dim; d++ {
				centroids[c][d] = sums[c][d] / float32(counts[c])
			}
		}
	}
	return centroids
}

func nearestCentroid(v []float32, centroids [][]float32) (int, float32) {
	best, bestDist := 0, float32(0)
	for c, centroid := range centroids {
		d := l2Distance(v, centroid)
		if c == 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}
