package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"txtvec/internal/domain"
	"txtvec/internal/port"
)

// IngestionPipeline splits documents, embeds the passages and appends them
// to a vector index.
//
// Entries already inserted are never rolled back. Ingesting a source twice
// produces duplicate entries; callers that re-run ingestion should start
// from an empty index.
type IngestionPipeline struct {
	splitter port.Splitter
	embedder port.Embedder
	index    port.VectorIndex
	opts     options
}

func NewIngestionPipeline(splitter port.Splitter, embedder port.Embedder, index port.VectorIndex, opts ...Option) *IngestionPipeline {
	return &IngestionPipeline{
		splitter: splitter,
		embedder: embedder,
		index:    index,
		opts:     buildOptions(opts),
	}
}

// IngestResult summarizes a run over a document set.
type IngestResult struct {
	Documents int // documents that contributed passages
	Empty     int // documents that produced no passages
	Passages  int // entries inserted
	Failed    []*domain.DocumentError
}

// Ingest processes docs in order. Cancellation is checked between
// documents. Without best effort the first failing document stops the run
// and its *domain.DocumentError is returned along with the partial result.
func (p *IngestionPipeline) Ingest(ctx context.Context, docs []domain.Document) (*IngestResult, error) {
	result := &IngestResult{}
	log := p.opts.logger

	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("ingestion stopped after %d of %d documents: %w", i, len(docs), err)
		}

		n, err := p.IngestDocument(ctx, doc)
		if p.opts.progress != nil {
			p.opts.progress(i+1, len(docs), doc.ID)
		}
		if err != nil {
			derr := &domain.DocumentError{Source: doc.ID, Err: err}
			result.Passages += n
			if !p.opts.bestEffort {
				return result, derr
			}
			log.Warn("document failed", zap.String("source", doc.ID), zap.Error(err))
			result.Failed = append(result.Failed, derr)
			continue
		}

		result.Passages += n
		if n == 0 {
			result.Empty++
			log.Debug("document produced no passages", zap.String("source", doc.ID))
			continue
		}
		result.Documents++
		log.Info("document ingested", zap.String("source", doc.ID), zap.Int("passages", n))
	}

	return result, nil
}

// IngestDocument splits, embeds and inserts one document and returns how
// many entries it inserted. Embedding completes for every passage before
// the first insert, so an embedding failure inserts nothing.
func (p *IngestionPipeline) IngestDocument(ctx context.Context, doc domain.Document) (int, error) {
	text := doc.Text
	if p.opts.normalizer != nil {
		text = p.opts.normalizer.Normalize(text)
	}

	fragments := p.splitter.Split(text)
	if len(fragments) == 0 {
		return 0, nil
	}

	vectors, err := p.embed(ctx, doc.ID, fragments)
	if err != nil {
		return 0, err
	}

	metas := make([]domain.Metadata, len(fragments))
	for i := range fragments {
		metas[i] = domain.Metadata{Source: doc.ID, ChunkIndex: i}
	}

	var (
		stored   []domain.StoredPassage
		firstErr error
	)
	for i, r := range p.index.InsertBatch(vectors, metas) {
		if r.Err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("insert passage %d: %w", i, r.Err)
			}
			continue
		}
		stored = append(stored, domain.StoredPassage{
			ID:         r.ID,
			Source:     doc.ID,
			ChunkIndex: i,
			Text:       fragments[i],
		})
	}

	if p.opts.passages != nil && len(stored) > 0 {
		if err := p.opts.passages.PutPassages(stored); err != nil {
			return len(stored), fmt.Errorf("store passages: %w", err)
		}
	}

	return len(stored), firstErr
}

// embed runs the batches of one document on at most workers goroutines and
// returns the vectors in fragment order.
func (p *IngestionPipeline) embed(ctx context.Context, source string, fragments []string) ([][]float32, error) {
	size := p.opts.batchSize
	if size <= 0 || size > len(fragments) {
		size = len(fragments)
	}

	vectors := make([][]float32, len(fragments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.workers)

	for start := 0; start < len(fragments); start += size {
		start := start
		end := min(start+size, len(fragments))

		g.Go(func() error {
			cctx := gctx
			if p.opts.timeout > 0 {
				var cancel context.CancelFunc
				cctx, cancel = context.WithTimeout(gctx, p.opts.timeout)
				defer cancel()
			}

			batch, err := p.embedder.EmbedBatch(cctx, fragments[start:end])
			if err != nil {
				if !errors.Is(err, domain.ErrEmbeddingFailure) {
					err = &domain.EmbeddingError{Reason: fmt.Sprintf("passages %d-%d", start, end-1), Err: err}
				}
				return err
			}
			if len(batch) != end-start {
				return &domain.EmbeddingError{
					Reason: fmt.Sprintf("expected %d vectors for passages %d-%d, got %d", end-start, start, end-1, len(batch)),
				}
			}
			copy(vectors[start:end], batch)

			p.opts.logger.Debug("batch embedded",
				zap.String("source", source),
				zap.Int("from", start),
				zap.Int("to", end-1))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
