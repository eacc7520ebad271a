// Package search orchestrates the pipeline: corpus snapshot management,
// retrieval, ranking and impression logging for one query.
package search

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/scoutdex/internal/domain"
	domcorpus "github.com/kailas-cloud/scoutdex/internal/domain/corpus"
	domquery "github.com/kailas-cloud/scoutdex/internal/domain/query"
	domrecord "github.com/kailas-cloud/scoutdex/internal/domain/record"
	domweights "github.com/kailas-cloud/scoutdex/internal/domain/weights"
	"github.com/kailas-cloud/scoutdex/internal/index/lexical"
	"github.com/kailas-cloud/scoutdex/internal/index/vector"
	"github.com/kailas-cloud/scoutdex/internal/metrics"
	"github.com/kailas-cloud/scoutdex/internal/usecase/retrieve"
)

// corpusLoader loads the corpus from its source.
type corpusLoader interface {
	Load(ctx context.Context) (*domcorpus.Corpus, error)
}

// vectorBuilder builds the vector index for a corpus generation.
type vectorBuilder interface {
	EnsureBuilt(ctx context.Context, c *domcorpus.Corpus) (*vector.Index, error)
}

// retriever produces the shortlist for one query.
type retriever interface {
	Retrieve(ctx context.Context, q domquery.Query, idx retrieve.Indexes, w domweights.Weights) ([]domain.Candidate, error)
}

// ranker reorders the shortlist.
type ranker interface {
	Rerank(ctx context.Context, q domquery.Query, candidates []domain.Candidate, c *domcorpus.Corpus, w domweights.Weights) []domain.RankedResult
}

// weightsSource provides the active ranking weights generation.
type weightsSource interface {
	Current() domweights.Weights
}

// impressionRecorder logs shown results, best-effort.
type impressionRecorder interface {
	RecordImpressions(q domquery.Query, candidates []domain.Candidate, results []domain.RankedResult)
}

// snapshot is one published corpus generation with its indexes. Vector is
// nil in lexical-only (degraded) mode.
type snapshot struct {
	corpus  *domcorpus.Corpus
	lexical *lexical.Index
	vector  *vector.Index
}

// Config holds the pipeline settings.
type Config struct {
	QueryTimeout time.Duration
}

// Pipeline serves queries against the published snapshot. Refresh swaps
// the snapshot wholesale; in-flight queries keep the generation they
// started with.
type Pipeline struct {
	loader      corpusLoader
	builder     vectorBuilder
	retriever   retriever
	ranker      ranker
	weights     weightsSource
	impressions impressionRecorder
	cfg         Config
	logger      *zap.Logger

	current atomic.Pointer[snapshot]
	// serializes Refresh and EnsureVector, never taken on the query path
	rebuildMu sync.Mutex
}

// New creates a pipeline. impressions may be nil (no impression logging).
func New(
	loader corpusLoader, builder vectorBuilder, r retriever, rk ranker,
	weights weightsSource, impressions impressionRecorder,
	cfg Config, logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		loader:      loader,
		builder:     builder,
		retriever:   r,
		ranker:      rk,
		weights:     weights,
		impressions: impressions,
		cfg:         cfg,
		logger:      logger,
	}
}

// SetImpressions wires the impression recorder after construction. The
// recorder validates record ids against the pipeline, so the two are
// created in sequence and linked here before any request is served.
func (p *Pipeline) SetImpressions(rec impressionRecorder) {
	p.impressions = rec
}

// Refresh reloads the corpus and rebuilds both indexes, then publishes the
// new snapshot atomically. A corpus load failure keeps the old snapshot
// and returns the error; a vector build failure publishes lexical-only.
func (p *Pipeline) Refresh(ctx context.Context) error {
	p.rebuildMu.Lock()
	defer p.rebuildMu.Unlock()

	c, err := p.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	snap := &snapshot{
		corpus:  c,
		lexical: lexical.Build(c),
	}
	if p.builder != nil {
		idx, err := p.builder.EnsureBuilt(ctx, c)
		if err != nil {
			p.logger.Warn("vector index build failed, serving lexical-only",
				zap.String("generation", c.Generation()),
				zap.Error(err))
		} else {
			snap.vector = idx
		}
	}

	p.publish(snap)
	p.logger.Info("corpus snapshot published",
		zap.String("generation", c.Generation()),
		zap.Int("records", c.Len()),
		zap.Bool("vector_ready", snap.vector != nil))
	return nil
}

// EnsureVector retries the vector build for the current snapshot. No-op
// when the snapshot already carries a vector index.
func (p *Pipeline) EnsureVector(ctx context.Context) error {
	p.rebuildMu.Lock()
	defer p.rebuildMu.Unlock()

	snap := p.current.Load()
	if snap == nil {
		return domain.ErrCorpusUnavailable
	}
	if snap.vector != nil || p.builder == nil {
		return nil
	}

	idx, err := p.builder.EnsureBuilt(ctx, snap.corpus)
	if err != nil {
		return fmt.Errorf("vector retry: %w", err)
	}
	p.publish(&snapshot{corpus: snap.corpus, lexical: snap.lexical, vector: idx})
	p.logger.Info("vector index recovered",
		zap.String("generation", snap.corpus.Generation()))
	return nil
}

func (p *Pipeline) publish(snap *snapshot) {
	p.current.Store(snap)
	metrics.CorpusRecords.Set(float64(snap.corpus.Len()))
	if snap.vector != nil {
		metrics.VectorIndexReady.Set(1)
	} else {
		metrics.VectorIndexReady.Set(0)
	}
}

// Search runs retrieval and ranking for one query and returns the top
// results. Serving before the first successful refresh fails with
// ErrCorpusUnavailable; everything else degrades instead of failing.
func (p *Pipeline) Search(ctx context.Context, q domquery.Query) ([]domain.RankedResult, error) {
	snap := p.current.Load()
	if snap == nil {
		metrics.SearchRequestsTotal.WithLabelValues("error").Inc()
		return nil, domain.ErrCorpusUnavailable
	}

	if p.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.QueryTimeout)
		defer cancel()
	}

	start := time.Now()
	w := p.weights.Current()

	candidates, err := p.retriever.Retrieve(ctx, q, retrieve.Indexes{
		Corpus:  snap.corpus,
		Lexical: snap.lexical,
		Vector:  snap.vector,
	}, w)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	rankStart := time.Now()
	results := p.ranker.Rerank(ctx, q, candidates, snap.corpus, w)
	metrics.SearchStageDuration.WithLabelValues("rank").Observe(time.Since(rankStart).Seconds())

	if len(results) > q.Limit() {
		results = results[:q.Limit()]
	}
	if p.impressions != nil {
		p.impressions.RecordImpressions(q, candidates, results)
	}

	metrics.SearchStageDuration.WithLabelValues("total").Observe(time.Since(start).Seconds())
	if snap.vector != nil {
		metrics.SearchRequestsTotal.WithLabelValues("ok").Inc()
	} else {
		metrics.SearchRequestsTotal.WithLabelValues("degraded").Inc()
	}
	return results, nil
}

// Get returns one record from the current snapshot.
func (p *Pipeline) Get(id string) (domrecord.Record, error) {
	snap := p.current.Load()
	if snap == nil {
		return domrecord.Record{}, domain.ErrCorpusUnavailable
	}
	rec, ok := snap.corpus.Get(id)
	if !ok {
		return domrecord.Record{}, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, id)
	}
	return rec, nil
}

// HasRecord reports whether the current snapshot contains the record.
func (p *Pipeline) HasRecord(id string) bool {
	snap := p.current.Load()
	if snap == nil {
		return false
	}
	_, ok := snap.corpus.Get(id)
	return ok
}

// Ready reports whether a corpus snapshot has been published.
func (p *Pipeline) Ready() bool { return p.current.Load() != nil }

// VectorReady reports whether the current snapshot serves vector search.
func (p *Pipeline) VectorReady() bool {
	snap := p.current.Load()
	return snap != nil && snap.vector != nil
}

// CorpusInfo returns the generation and size of the current snapshot.
func (p *Pipeline) CorpusInfo() (generation string, records int, ok bool) {
	snap := p.current.Load()
	if snap == nil {
		return "", 0, false
	}
	return snap.corpus.Generation(), snap.corpus.Len(), true
}
