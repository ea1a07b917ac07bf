package retrieval

import (
	"context"
	"errors"
	"time"

	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/tracing"
)

// ResultCache stores retrieval results keyed by corpus fingerprint, terms
// and topK.
type ResultCache interface {
	GetOrCompute(ctx context.Context, fingerprint string, terms []string, topK int,
		compute func() ([]ScoredChunk, error)) ([]ScoredChunk, bool, error)
}

// Index answers queries against the chunks of a lazily loaded corpus.
type Index struct {
	loader  *corpus.Loader
	cache   ResultCache
	topK    int
	metrics *metrics.Metrics
}

// NewIndex creates an Index. cache and m may be nil.
func NewIndex(loader *corpus.Loader, cache ResultCache, topK int, m *metrics.Metrics) *Index {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Index{
		loader:  loader,
		cache:   cache,
		topK:    topK,
		metrics: m,
	}
}

// Search returns the top chunks for query. An unavailable corpus yields an
// empty result rather than an error; only context cancellation fails.
func (ix *Index) Search(ctx context.Context, query string) ([]ScoredChunk, error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "retrieval.search")
	defer span.End()
	log := logger.FromContext(ctx)

	terms := Normalize(query)
	span.SetAttr("terms", len(terms))
	if len(terms) == 0 {
		ix.observe(start, 0)
		return []ScoredChunk{}, nil
	}

	c, err := ix.loader.Load(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !errors.Is(err, corpus.ErrUnavailable) {
			return nil, err
		}
		log.Debug("searching without corpus", "error", err)
		span.SetAttr("corpus", "unavailable")
		ix.observe(start, 0)
		return []ScoredChunk{}, nil
	}

	compute := func() ([]ScoredChunk, error) {
		return Retrieve(terms, c.Chunks, ix.topK), nil
	}

	var results []ScoredChunk
	cacheHit := false
	if ix.cache != nil {
		results, cacheHit, err = ix.cache.GetOrCompute(ctx, c.Fingerprint, terms, ix.topK, compute)
		if err != nil {
			return nil, err
		}
	} else {
		results, _ = compute()
	}

	ix.observe(start, len(results))
	span.SetAttr("returned", len(results))
	span.SetAttr("cache_hit", cacheHit)
	log.Debug("retrieval completed",
		"terms", terms,
		"returned", len(results),
		"cache_hit", cacheHit,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return results, nil
}

func (ix *Index) observe(start time.Time, n int) {
	if ix.metrics == nil {
		return
	}
	ix.metrics.RetrievalLatency.Observe(time.Since(start).Seconds())
	ix.metrics.RetrievedChunks.Observe(float64(n))
}
