package learning

import (
	"math"

	"github.com/havenops/remedy/internal/types"
)

// featureVector flattens an experience into the numeric space used for
// clustering: execution time, accuracy, efficiency, resource usage,
// action count, recovery-action count, success flag, complexity,
// confidence.
func featureVector(e *types.Experience) []float64 {
	success := 0.0
	if e.Success {
		success = 1.0
	}
	return []float64{
		// Minutes, log-damped so one slow run does not dominate distance.
		math.Log1p(e.ExecutionTime.Minutes()),
		e.Accuracy,
		e.Efficiency,
		e.ResourceUsage,
		math.Log1p(float64(len(e.Actions))),
		math.Log1p(float64(len(e.RecoveryActions))),
		success,
		e.Complexity,
		e.Confidence,
	}
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// dbscan is a density-based clustering over the feature vectors. Points
// never assigned to a cluster are noise and get cluster -1.
func dbscan(vectors [][]float64, eps float64, minPts int) []int {
	const (
		unvisited = 0
		visited   = 1
	)
	n := len(vectors)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	state := make([]int, n)
	clusterID := 0

	neighbors := func(idx int) []int {
		var out []int
		for j := 0; j < n; j++ {
			if j != idx && euclidean(vectors[idx], vectors[j]) <= eps {
				out = append(out, j)
			}
		}
		return out
	}

	for i := 0; i < n; i++ {
		if state[i] == visited {
			continue
		}
		state[i] = visited

		nbrs := neighbors(i)
		if len(nbrs)+1 < minPts {
			continue // noise, may still be claimed by a later cluster
		}

		labels[i] = clusterID
		queue := append([]int{}, nbrs...)
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]

			if state[j] != visited {
				state[j] = visited
				jn := neighbors(j)
				if len(jn)+1 >= minPts {
					queue = append(queue, jn...)
				}
			}
			if labels[j] == -1 {
				labels[j] = clusterID
			}
		}
		clusterID++
	}
	return labels
}

// clustersOf groups experience indices by cluster label, dropping noise.
func clustersOf(labels []int) map[int][]int {
	out := make(map[int][]int)
	for idx, label := range labels {
		if label >= 0 {
			out[label] = append(out[label], idx)
		}
	}
	return out
}
