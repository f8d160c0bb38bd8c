package usecase

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"txtvec/internal/adapter/vectorindex"
	"txtvec/internal/domain"
	"txtvec/internal/port"
)

// QueryPipeline embeds a query and ranks the indexed passages against it.
// It does not truncate or format passage text.
type QueryPipeline struct {
	embedder port.Embedder
	searcher port.Searcher
	opts     options
}

func NewQueryPipeline(embedder port.Embedder, searcher port.Searcher, opts ...Option) *QueryPipeline {
	return &QueryPipeline{
		embedder: embedder,
		searcher: searcher,
		opts:     buildOptions(opts),
	}
}

// Query returns the k passages most similar to text, best first. Errors
// carry the query length and the index dimension.
func (p *QueryPipeline) Query(ctx context.Context, text string, k int) ([]domain.PassageRef, error) {
	fail := func(err error) error {
		return fmt.Errorf("query of %d chars against index of dimension %d: %w",
			utf8.RuneCountInString(text), p.searcher.Dimension(), err)
	}

	qctx := ctx
	if p.opts.timeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, p.opts.timeout)
		defer cancel()
	}

	vector, err := p.embedder.EmbedQuery(qctx, text)
	if err != nil {
		if !errors.Is(err, domain.ErrEmbeddingFailure) {
			err = &domain.EmbeddingError{Reason: "embed query", Err: err}
		}
		return nil, fail(err)
	}

	fetch := k
	if p.opts.reranker != nil && p.opts.candidates > k {
		fetch = p.opts.candidates
	}

	var hits []domain.SearchHit
	if p.opts.requireResults {
		hits, err = vectorindex.SearchNonEmpty(p.searcher, vector, fetch)
	} else {
		hits, err = p.searcher.Search(vector, fetch)
	}
	if err != nil {
		return nil, fail(err)
	}
	if p.opts.reranker != nil {
		hits = p.opts.reranker.Rerank(hits, k)
	}

	refs := make([]domain.PassageRef, len(hits))
	for i, h := range hits {
		refs[i] = domain.PassageRef{
			Rank:       i + 1,
			ID:         h.ID,
			Score:      h.Score,
			Source:     h.Metadata.Source,
			ChunkIndex: h.Metadata.ChunkIndex,
		}
		if p.opts.lookup != nil {
			passage, err := p.opts.lookup.GetPassage(h.ID)
			if err != nil {
				return nil, fail(fmt.Errorf("passage text for entry %d: %w", h.ID, err))
			}
			refs[i].Text = passage.Text
		}
	}

	p.opts.logger.Debug("query answered",
		zap.Int("query_chars", utf8.RuneCountInString(text)),
		zap.Int("k", k),
		zap.Int("hits", len(refs)))
	return refs, nil
}
