package vectorindex

import (
	"fmt"
	"math"
	"sort"

	"txtvec/internal/domain"
	"txtvec/internal/port"
)

const defaultIVFIterations = 10

// IVF is an approximate searcher over a snapshot of a Flat index. Entries
// are clustered around nlist centroids with spherical k-means; a query
// scores only the entries in its nprobe closest clusters.
//
// Ranking is exact within the probed clusters and uses the same tie-break
// as Flat, but an entry in an unprobed cluster is never returned even if it
// would rank in the exact top k. With nprobe >= nlist it returns exactly
// what Flat returns.
type IVF struct {
	dim       int
	entries   []domain.IndexEntry
	centroids [][]float32
	lists     [][]int
	nprobe    int
}

// BuildIVF clusters the current entries of src. Clustering is
// deterministic: initial centroids are evenly strided entries.
func BuildIVF(src *Flat, nlist, nprobe int) (*IVF, error) {
	if nlist <= 0 {
		return nil, fmt.Errorf("ivf: nlist must be positive, got %d", nlist)
	}
	if nprobe <= 0 {
		return nil, fmt.Errorf("ivf: nprobe must be positive, got %d", nprobe)
	}

	entries := src.Entries()
	ivf := &IVF{
		dim:     src.Dimension(),
		entries: entries,
		nprobe:  nprobe,
	}
	if len(entries) == 0 {
		return ivf, nil
	}
	if nlist > len(entries) {
		nlist = len(entries)
	}

	ivf.centroids = make([][]float32, nlist)
	for c := 0; c < nlist; c++ {
		seed := entries[c*len(entries)/nlist].Vector
		ivf.centroids[c] = append([]float32(nil), seed...)
	}

	assign := make([]int, len(entries))
	for iter := 0; iter < defaultIVFIterations; iter++ {
		changed := false
		for i, e := range entries {
			c := ivf.nearestCentroid(e.Vector)
			if iter == 0 || c != assign[i] {
				changed = true
			}
			assign[i] = c
		}
		ivf.updateCentroids(assign)
		if !changed {
			break
		}
	}

	ivf.lists = make([][]int, nlist)
	for i := range entries {
		c := ivf.nearestCentroid(entries[i].Vector)
		ivf.lists[c] = append(ivf.lists[c], i)
	}

	return ivf, nil
}

func (ivf *IVF) nearestCentroid(v []float32) int {
	best, bestScore := 0, math.Inf(-1)
	for c, centroid := range ivf.centroids {
		if s := dot(v, centroid); s > bestScore {
			best, bestScore = c, s
		}
	}
	return best
}

// updateCentroids moves each centroid to the normalized mean of its
// members. A centroid with no members keeps its position.
func (ivf *IVF) updateCentroids(assign []int) {
	sums := make([][]float64, len(ivf.centroids))
	counts := make([]int, len(ivf.centroids))
	for i, c := range assign {
		if sums[c] == nil {
			sums[c] = make([]float64, ivf.dim)
		}
		for j, x := range ivf.entries[i].Vector {
			sums[c][j] += float64(x)
		}
		counts[c]++
	}

	for c := range ivf.centroids {
		if counts[c] == 0 {
			continue
		}
		var norm float64
		for _, x := range sums[c] {
			norm += x * x
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			continue
		}
		for j := range sums[c] {
			ivf.centroids[c][j] = float32(sums[c][j] / norm)
		}
	}
}

// Search probes the nprobe best clusters and ranks their members exactly.
func (ivf *IVF) Search(query []float32, k int) ([]domain.SearchHit, error) {
	if ivf.dim > 0 && len(query) != ivf.dim {
		return nil, &domain.DimensionMismatchError{Want: ivf.dim, Got: len(query)}
	}
	if k <= 0 || len(ivf.entries) == 0 {
		return []domain.SearchHit{}, nil
	}

	order := make([]int, len(ivf.centroids))
	scores := make([]float64, len(ivf.centroids))
	for c, centroid := range ivf.centroids {
		order[c] = c
		scores[c] = dot(query, centroid)
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	probe := min(ivf.nprobe, len(order))
	top := newTopK(min(k, len(ivf.entries)))
	for _, c := range order[:probe] {
		for _, i := range ivf.lists[c] {
			e := ivf.entries[i]
			top.offer(domain.SearchHit{
				ID:       e.ID,
				Score:    dot(query, e.Vector),
				Metadata: e.Metadata,
			})
		}
	}
	return top.result(), nil
}

// Len returns the number of entries in the snapshot.
func (ivf *IVF) Len() int {
	return len(ivf.entries)
}

// Dimension returns the vector dimension of the snapshot.
func (ivf *IVF) Dimension() int {
	return ivf.dim
}

// Lists returns the number of clusters.
func (ivf *IVF) Lists() int {
	return len(ivf.centroids)
}

// WithNProbe returns a searcher that shares the clustering of ivf and
// probes n lists.
func (ivf *IVF) WithNProbe(n int) *IVF {
	c := *ivf
	if n > 0 {
		c.nprobe = n
	}
	return &c
}

// Vector returns the stored vector of entry id from the snapshot.
func (ivf *IVF) Vector(id int) ([]float32, bool) {
	if id < 0 || id >= len(ivf.entries) {
		return nil, false
	}
	return ivf.entries[id].Vector, true
}

var (
	_ port.Searcher     = (*IVF)(nil)
	_ port.VectorSource = (*IVF)(nil)
)
