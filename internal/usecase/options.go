package usecase

import (
	"time"

	"go.uber.org/zap"

	"txtvec/internal/port"
)

// Option configures an IngestionPipeline or a QueryPipeline. Options that
// do not apply to a pipeline are ignored by it.
type Option func(*options)

type options struct {
	logger         *zap.Logger
	normalizer     port.Normalizer
	passages       port.PassageStore
	lookup         port.PassageLookup
	batchSize      int
	workers        int
	timeout        time.Duration
	bestEffort     bool
	requireResults bool
	reranker       port.Reranker
	candidates     int
	progress       func(done, total int, source string)
}

func buildOptions(opts []Option) options {
	o := options{
		logger:  zap.NewNop(),
		workers: 1,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithNormalizer rewrites document text before it is split.
func WithNormalizer(n port.Normalizer) Option {
	return func(o *options) { o.normalizer = n }
}

// WithPassageStore keeps the text of every inserted passage by entry id.
func WithPassageStore(s port.PassageStore) Option {
	return func(o *options) { o.passages = s }
}

// WithPassageLookup fills in passage text on query results.
func WithPassageLookup(l port.PassageLookup) Option {
	return func(o *options) { o.lookup = l }
}

// WithBatchSize sets how many passages go into one embedder call. Zero
// sends a whole document at once.
func WithBatchSize(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.batchSize = n
		}
	}
}

// WithWorkers bounds the number of concurrent embedder calls per document.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithTimeout bounds every embedder call. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.timeout = d
		}
	}
}

// WithBestEffort makes ingestion record failing documents and move on
// instead of stopping at the first one.
func WithBestEffort(enabled bool) Option {
	return func(o *options) { o.bestEffort = enabled }
}

// WithRequireResults makes a query against an empty index fail with
// domain.ErrEmptyIndex.
func WithRequireResults(enabled bool) Option {
	return func(o *options) { o.requireResults = enabled }
}

// WithReranker reorders query results. The searcher is asked for
// candidates hits, or k when that is larger, and the reranker keeps k.
func WithReranker(r port.Reranker, candidates int) Option {
	return func(o *options) {
		o.reranker = r
		o.candidates = candidates
	}
}

// WithProgress is called after each document, successful or not.
func WithProgress(fn func(done, total int, source string)) Option {
	return func(o *options) { o.progress = fn }
}
