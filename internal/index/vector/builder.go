package vector

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/scoutdex/internal/domain"
	domcorpus "github.com/kailas-cloud/scoutdex/internal/domain/corpus"
	domrecord "github.com/kailas-cloud/scoutdex/internal/domain/record"
)

// persistence is the consumer interface for vector persistence (ISP).
type persistence interface {
	Save(ctx context.Context, generation, recordID string, vec []float32) error
	LoadGeneration(ctx context.Context, generation string) (map[string][]float32, error)
	PruneOthers(ctx context.Context, keep string) (int, error)
}

// Builder embeds corpus records through a bounded worker pool and assembles
// the cosine index. Every successful embed persists immediately, so a failed
// build resumes where it stopped instead of re-embedding the whole corpus.
type Builder struct {
	embedder domain.Embedder
	vectors  persistence
	dim      int
	pool     *ants.Pool
	logger   *zap.Logger

	mu    sync.Mutex
	built *Index
}

// NewBuilder creates a builder with a worker pool of the given concurrency.
func NewBuilder(embedder domain.Embedder, vectors persistence, dim, concurrency int, logger *zap.Logger) (*Builder, error) {
	if dim < 1 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dim)
	}
	if concurrency < 1 {
		concurrency = 1
	}
	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return nil, fmt.Errorf("create embed pool: %w", err)
	}
	return &Builder{
		embedder: embedder,
		vectors:  vectors,
		dim:      dim,
		pool:     pool,
		logger:   logger,
	}, nil
}

// Release frees the worker pool. The builder must not be used afterwards.
func (b *Builder) Release() {
	if b.pool != nil {
		b.pool.Release()
	}
}

// EnsureBuilt returns the index for the corpus generation, building it if the
// cached one is missing or stale. Concurrent calls serialize on the builder;
// the winner builds and later callers reuse its result.
func (b *Builder) EnsureBuilt(ctx context.Context, c *domcorpus.Corpus) (*Index, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.built != nil && b.built.Generation() == c.Generation() {
		return b.built, nil
	}

	idx, err := b.build(ctx, c)
	if err != nil {
		return nil, err
	}
	b.built = idx
	return idx, nil
}

func (b *Builder) build(ctx context.Context, c *domcorpus.Corpus) (*Index, error) {
	generation := c.Generation()
	records := c.All()

	persisted, err := b.vectors.LoadGeneration(ctx, generation)
	if err != nil {
		// The embedding cache still shields the provider, so losing the
		// resume path only costs extra round trips.
		b.logger.Warn("failed to load persisted vectors, embedding from scratch",
			zap.String("generation", generation),
			zap.Error(err))
		persisted = map[string][]float32{}
	}

	byID := make(map[string][]float32, len(records))
	missing := make([]domrecord.Record, 0, len(records))
	for i := range records {
		vec, ok := persisted[records[i].ID()]
		if !ok || len(vec) != b.dim {
			missing = append(missing, records[i])
			continue
		}
		byID[records[i].ID()] = vec
	}

	if len(missing) > 0 {
		b.logger.Info("embedding corpus records",
			zap.String("generation", generation),
			zap.Int("missing", len(missing)),
			zap.Int("resumed", len(byID)))
		embedded, err := b.embedAll(ctx, generation, missing)
		if err != nil {
			return nil, err
		}
		for id, vec := range embedded {
			byID[id] = vec
		}
	}

	idx := newIndex(generation, b.dim, byID)
	b.logger.Info("vector index built",
		zap.String("generation", generation),
		zap.Int("records", idx.Len()),
		zap.Int("dimensions", b.dim))

	// the new generation is fully persisted, stale vectors are dead weight
	if removed, err := b.vectors.PruneOthers(ctx, generation); err != nil {
		b.logger.Warn("failed to prune stale vector generations",
			zap.String("keep", generation),
			zap.Error(err))
	} else if removed > 0 {
		b.logger.Info("pruned stale vector generations",
			zap.String("keep", generation),
			zap.Int("removed", removed))
	}
	return idx, nil
}

// embedAll runs the records through the pool. The first error stops further
// submissions; vectors persisted before the stop survive for the next attempt.
func (b *Builder) embedAll(ctx context.Context, generation string, records []domrecord.Record) (map[string][]float32, error) {
	var (
		mu       sync.Mutex
		firstErr error
		out      = make(map[string][]float32, len(records))
		wg       sync.WaitGroup
	)

	setErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}
	aborted := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstErr != nil
	}

	for i := range records {
		if ctx.Err() != nil || aborted() {
			break
		}
		rec := records[i]
		wg.Add(1)
		submitErr := b.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil || aborted() {
				return
			}
			result, err := b.embedder.Embed(ctx, rec.SearchText())
			if err != nil {
				setErr(fmt.Errorf("embed record %s: %w", rec.ID(), err))
				return
			}
			if len(result.Embedding) != b.dim {
				setErr(fmt.Errorf("record %s: expected %d dimensions, got %d",
					rec.ID(), b.dim, len(result.Embedding)))
				return
			}
			if err := b.vectors.Save(ctx, generation, rec.ID(), result.Embedding); err != nil {
				b.logger.Warn("failed to persist vector",
					zap.String("record_id", rec.ID()),
					zap.Error(err))
			}
			mu.Lock()
			out[rec.ID()] = result.Embedding
			mu.Unlock()
		})
		if submitErr != nil {
			wg.Done()
			setErr(fmt.Errorf("submit embed task: %w", submitErr))
			break
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return out, fmt.Errorf("%w: %w", domain.ErrIndexBuild, err)
	}
	if firstErr != nil {
		return out, fmt.Errorf("%w: %w", domain.ErrIndexBuild, firstErr)
	}
	return out, nil
}
