package embedding

import (
	"context"
	"hash/fnv"

	"txtvec/internal/domain"
	"txtvec/internal/port"
)

// MockEmbedder is a deterministic embedder for tests and offline runs. Each
// rune trigram of the text is hashed into one dimension, so texts sharing
// more trigrams score higher and identical texts score 1.
type MockEmbedder struct {
	dimension int
}

func NewMockEmbedder(dimension int) *MockEmbedder {
	if dimension <= 0 {
		dimension = 64
	}
	return &MockEmbedder{dimension: dimension}
}

func (e *MockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.EmbeddingError{Reason: "canceled", Err: err}
	}
	return e.vector(text), nil
}

func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.EmbeddingError{Reason: "canceled", Err: err}
	}
	if len(texts) == 0 {
		return nil, nil
	}
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = e.vector(t)
	}
	return vectors, nil
}

func (e *MockEmbedder) vector(text string) []float32 {
	v := make([]float32, e.dimension)
	runes := []rune(text)
	if len(runes) == 0 {
		v[0] = 1
		return v
	}

	h := fnv.New32a()
	for i := 0; i < len(runes); i++ {
		end := min(i+3, len(runes))
		h.Reset()
		h.Write([]byte(string(runes[i:end])))
		v[h.Sum32()%uint32(e.dimension)]++
	}
	l2normalize(v)
	return v
}

func (e *MockEmbedder) Dimension() int {
	return e.dimension
}

func (e *MockEmbedder) ModelName() string {
	return "mock"
}

var _ port.Embedder = (*MockEmbedder)(nil)
