// Package retriever post-processes ranked search hits.
package retriever

import (
	"txtvec/internal/domain"
	"txtvec/internal/port"
)

// MMRReranker implements Maximal Marginal Relevance for result
// diversification. Overlapping passages of one document embed close to each
// other, so a plain top-k often repeats the same text; MMR trades some
// relevance for coverage.
type MMRReranker struct {
	vectors port.VectorSource
	lambda  float64
	dedup   float64
}

// NewMMRReranker creates a reranker that reads stored vectors from vectors.
// lambda weighs relevance against novelty: 1 keeps the search order, 0
// ranks by novelty alone. A hit whose similarity to an already selected hit
// exceeds dedup is dropped; a dedup of 0 keeps every hit.
func NewMMRReranker(vectors port.VectorSource, lambda, dedup float64) *MMRReranker {
	return &MMRReranker{
		vectors: vectors,
		lambda:  lambda,
		dedup:   dedup,
	}
}

// Rerank applies MMR to hits, which must be ordered best first.
// MMR(c) = λ * score(c) - (1-λ) * max_similarity(c, selected)
// Equal MMR values keep the input order.
func (r *MMRReranker) Rerank(hits []domain.SearchHit, k int) []domain.SearchHit {
	if len(hits) == 0 || k <= 0 {
		return nil
	}
	if k > len(hits) {
		k = len(hits)
	}

	vecs := make([][]float32, len(hits))
	for i, h := range hits {
		vecs[i], _ = r.vectors.Vector(h.ID)
	}

	selected := make([]int, 0, k)
	taken := make([]bool, len(hits))

	for len(selected) < k {
		best := -1
		bestMMR := 0.0

		for i, h := range hits {
			if taken[i] {
				continue
			}

			maxSim := 0.0
			for _, s := range selected {
				if sim := similarity(vecs[i], vecs[s]); sim > maxSim {
					maxSim = sim
				}
			}
			if r.dedup > 0 && maxSim > r.dedup {
				continue
			}

			mmr := r.lambda*h.Score - (1-r.lambda)*maxSim
			if best == -1 || mmr > bestMMR {
				best = i
				bestMMR = mmr
			}
		}

		if best == -1 {
			// Everything left is a near duplicate.
			break
		}
		selected = append(selected, best)
		taken[best] = true
	}

	out := make([]domain.SearchHit, len(selected))
	for i, s := range selected {
		out[i] = hits[s]
	}
	return out
}

// similarity is the inner product of two stored vectors, 0 when either is
// unknown or the lengths differ.
func similarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

var _ port.Reranker = (*MMRReranker)(nil)
