// Package vectorindex holds vectors with their source metadata and answers
// k-nearest-neighbor queries by inner product.
package vectorindex

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"txtvec/internal/domain"
	"txtvec/internal/port"
)

// Flat is an exact, append-only vector index. Ids are assigned
// sequentially from 0, so the id of an entry equals its position.
//
// Inserts take the write lock and searches the read lock: concurrent
// searches run in parallel, and a search never observes a half-applied
// insert.
type Flat struct {
	mu      sync.RWMutex
	id      uuid.UUID
	dim     int
	entries []domain.IndexEntry
}

// NewFlat creates an empty index. A dimension of 0 is fixed by the first
// insert.
func NewFlat(dim int) *Flat {
	if dim < 0 {
		dim = 0
	}
	return &Flat{
		id:  uuid.New(),
		dim: dim,
	}
}

// Restore rebuilds an index from persisted entries. Entry ids must run
// 0..n-1 in order and every vector must have length dim.
func Restore(id uuid.UUID, dim int, entries []domain.IndexEntry) (*Flat, error) {
	if dim < 0 {
		return nil, fmt.Errorf("restore index: negative dimension %d", dim)
	}
	for i, e := range entries {
		if e.ID != i {
			return nil, fmt.Errorf("restore index: entry %d has id %d: %w", i, e.ID, domain.ErrCorruptIndex)
		}
		if len(e.Vector) != dim {
			return nil, fmt.Errorf("restore index: entry %d: %w", i, &domain.DimensionMismatchError{Want: dim, Got: len(e.Vector)})
		}
	}
	return &Flat{id: id, dim: dim, entries: entries}, nil
}

// ID identifies this index instance across the index file and catalog.
func (f *Flat) ID() uuid.UUID {
	return f.id
}

// Insert appends a vector and returns its id.
func (f *Flat) Insert(vector []float32, meta domain.Metadata) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertLocked(vector, meta)
}

// InsertBatch inserts each pair in order. Items are independent: the
// result for item i carries its id or its error, and earlier items stay
// inserted when a later one fails.
func (f *Flat) InsertBatch(vectors [][]float32, metas []domain.Metadata) []domain.InsertResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	results := make([]domain.InsertResult, len(vectors))
	for i, v := range vectors {
		if i >= len(metas) {
			results[i] = domain.InsertResult{ID: -1, Err: fmt.Errorf("item %d: missing metadata", i)}
			continue
		}
		id, err := f.insertLocked(v, metas[i])
		results[i] = domain.InsertResult{ID: id, Err: err}
	}
	return results
}

func (f *Flat) insertLocked(vector []float32, meta domain.Metadata) (int, error) {
	if len(vector) == 0 {
		return -1, &domain.DimensionMismatchError{Want: f.dim, Got: 0}
	}
	if f.dim == 0 {
		f.dim = len(vector)
	}
	if len(vector) != f.dim {
		return -1, &domain.DimensionMismatchError{Want: f.dim, Got: len(vector)}
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)

	id := len(f.entries)
	f.entries = append(f.entries, domain.IndexEntry{
		ID:       id,
		Vector:   vec,
		Metadata: meta,
	})
	return id, nil
}

// Search scores every entry against query and returns the k best, highest
// score first, equal scores in ascending id order. An index with no
// entries yields an empty result.
func (f *Flat) Search(query []float32, k int) ([]domain.SearchHit, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.dim > 0 && len(query) != f.dim {
		return nil, &domain.DimensionMismatchError{Want: f.dim, Got: len(query)}
	}
	if k <= 0 || len(f.entries) == 0 {
		return []domain.SearchHit{}, nil
	}

	top := newTopK(min(k, len(f.entries)))
	for _, e := range f.entries {
		top.offer(domain.SearchHit{
			ID:       e.ID,
			Score:    dot(query, e.Vector),
			Metadata: e.Metadata,
		})
	}
	return top.result(), nil
}

// Len returns the number of entries.
func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}

// Dimension returns the vector dimension, or 0 before the first insert.
func (f *Flat) Dimension() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dim
}

// Entries returns a copy of the entries in id order. Vectors are shared
// with the index and must not be modified.
func (f *Flat) Entries() []domain.IndexEntry {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]domain.IndexEntry, len(f.entries))
	copy(out, f.entries)
	return out
}

// Vector returns the stored vector of entry id. The slice is shared with
// the index and must not be modified.
func (f *Flat) Vector(id int) ([]float32, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if id < 0 || id >= len(f.entries) {
		return nil, false
	}
	return f.entries[id].Vector, true
}

// SearchNonEmpty is Search for callers that need results: it fails with
// domain.ErrEmptyIndex when k > 0 and the index holds nothing.
func SearchNonEmpty(s port.Searcher, query []float32, k int) ([]domain.SearchHit, error) {
	if k > 0 && s.Len() == 0 {
		return nil, domain.ErrEmptyIndex
	}
	return s.Search(query, k)
}

var (
	_ port.VectorIndex  = (*Flat)(nil)
	_ port.VectorSource = (*Flat)(nil)
)
