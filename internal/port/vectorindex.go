package port

import "txtvec/internal/domain"

// Searcher answers k-nearest-neighbor queries by inner product.
type Searcher interface {
	// Search returns at most k hits ordered by score descending, ties broken
	// by ascending id.
	Search(query []float32, k int) ([]domain.SearchHit, error)

	// Len returns the number of entries.
	Len() int

	// Dimension returns the vector dimension, or 0 when not yet fixed.
	Dimension() int
}

// VectorIndex is an append-only store of vectors with metadata.
type VectorIndex interface {
	Searcher

	// Insert appends a vector and returns its id.
	Insert(vector []float32, meta domain.Metadata) (int, error)

	// InsertBatch inserts each item independently; a failure on one item
	// does not undo the items before it.
	InsertBatch(vectors [][]float32, metas []domain.Metadata) []domain.InsertResult
}

// VectorSource looks up stored vectors by entry id.
type VectorSource interface {
	Vector(id int) ([]float32, bool)
}

// Reranker reorders ranked hits and keeps at most k of them.
type Reranker interface {
	Rerank(hits []domain.SearchHit, k int) []domain.SearchHit
}
