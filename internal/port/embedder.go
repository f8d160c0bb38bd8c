package port

import "context"

// Embedder turns text into fixed-dimension vectors. Implementations are
// expected to return L2-normalized vectors so inner product equals cosine
// similarity. Failures are reported as *domain.EmbeddingError.
type Embedder interface {
	// EmbedQuery embeds a single search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds passages, returning one vector per input in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}
