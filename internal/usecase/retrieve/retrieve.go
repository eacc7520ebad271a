// Package retrieve merges lexical and vector candidate sets into one
// shortlist per query.
package retrieve

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/scoutdex/internal/domain"
	domcorpus "github.com/kailas-cloud/scoutdex/internal/domain/corpus"
	domquery "github.com/kailas-cloud/scoutdex/internal/domain/query"
	domrecord "github.com/kailas-cloud/scoutdex/internal/domain/record"
	domweights "github.com/kailas-cloud/scoutdex/internal/domain/weights"
	"github.com/kailas-cloud/scoutdex/internal/index/lexical"
	"github.com/kailas-cloud/scoutdex/internal/index/vector"
	"github.com/kailas-cloud/scoutdex/internal/metrics"
)

// Indexes are the per-generation search structures of one corpus snapshot.
// Vector is nil while the service runs lexical-only (degraded mode).
type Indexes struct {
	Corpus  *domcorpus.Corpus
	Lexical *lexical.Index
	Vector  *vector.Index
}

// Config holds the retrieval settings.
type Config struct {
	LexicalTopN         int
	VectorTopN          int
	ShortlistSize       int
	SingleSourcePenalty float64
}

// Service runs both retrieval sources and merges their hits.
type Service struct {
	embedder domain.Embedder
	cfg      Config
	logger   *zap.Logger
}

// New creates a retrieval service. The embedder vectorizes query text and is
// only consulted when a vector index is present.
func New(embedder domain.Embedder, cfg Config, logger *zap.Logger) *Service {
	return &Service{embedder: embedder, cfg: cfg, logger: logger}
}

// Retrieve returns the deduplicated shortlist for the query: per-source
// min-max normalized scores merged by weighted sum, single-source hits
// penalized, hard filters applied, capped at the shortlist size.
// A failed query embedding degrades to lexical-only and never fails the call.
func (s *Service) Retrieve(
	ctx context.Context, q domquery.Query, idx Indexes, w domweights.Weights,
) ([]domain.Candidate, error) {
	if idx.Corpus == nil || idx.Lexical == nil {
		return nil, domain.ErrIndexUnavailable
	}
	// a vector index from another corpus generation is a stale artifact,
	// never mix it with the current snapshot
	if idx.Vector != nil && idx.Vector.Generation() != idx.Corpus.Generation() {
		s.logger.Warn("stale vector index, serving lexical-only",
			zap.Error(domain.NewGenerationMismatch(idx.Vector.Generation(), idx.Corpus.Generation())))
		idx.Vector = nil
	}

	var (
		lexHits []lexical.Hit
		vecHits []vector.Hit
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		lexHits = idx.Lexical.Search(q.Text(), s.cfg.LexicalTopN)
		metrics.SearchStageDuration.WithLabelValues("lexical").Observe(time.Since(start).Seconds())
		return nil
	})
	if idx.Vector != nil {
		g.Go(func() error {
			start := time.Now()
			result, err := s.embedder.Embed(gctx, q.Text())
			if err != nil {
				s.logger.Warn("query embedding failed, serving lexical-only",
					zap.String("query_hash", q.Hash()),
					zap.Error(err))
				return nil
			}
			vecHits = idx.Vector.Search(result.Embedding, s.cfg.VectorTopN)
			metrics.SearchStageDuration.WithLabelValues("vector").Observe(time.Since(start).Seconds())
			return nil
		})
	}
	// both sources degrade internally, the group never returns an error
	_ = g.Wait()

	shortlist := s.merge(lexHits, vecHits, q.Filters(), idx.Corpus, w.Params())
	metrics.SearchShortlistSize.Observe(float64(len(shortlist)))
	return shortlist, nil
}

func (s *Service) merge(
	lexHits []lexical.Hit, vecHits []vector.Hit,
	filters domquery.Filters, c *domcorpus.Corpus, p domweights.Params,
) []domain.Candidate {
	normLex := normalizeLexical(lexHits)
	normVec := normalizeVector(vecHits)

	candidates := make([]domain.Candidate, 0, len(normLex)+len(normVec))
	for id, lex := range normLex {
		cand := domain.Candidate{RecordID: id, Lexical: lex}
		if vec, ok := normVec[id]; ok {
			cand.Vector = vec
			cand.Source = domain.SourceBoth
			cand.Score = p.Lexical*lex + p.Vector*vec
		} else {
			cand.Source = domain.SourceLexical
			cand.Score = lex * s.cfg.SingleSourcePenalty
		}
		candidates = append(candidates, cand)
	}
	for id, vec := range normVec {
		if _, ok := normLex[id]; ok {
			continue
		}
		candidates = append(candidates, domain.Candidate{
			RecordID: id,
			Score:    vec * s.cfg.SingleSourcePenalty,
			Source:   domain.SourceVector,
			Vector:   vec,
		})
	}

	if !filters.IsEmpty() {
		kept := candidates[:0]
		for _, cand := range candidates {
			rec, ok := c.Get(cand.RecordID)
			if !ok {
				continue
			}
			if matchesFilters(&rec, filters) {
				kept = append(kept, cand)
			}
		}
		candidates = kept
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].RecordID < candidates[j].RecordID
	})
	if len(candidates) > s.cfg.ShortlistSize {
		candidates = candidates[:s.cfg.ShortlistSize]
	}
	return candidates
}

// normalizeLexical min-max normalizes within the hit set. Hits arrive sorted
// score descending; an all-equal set maps to 1.
func normalizeLexical(hits []lexical.Hit) map[string]float64 {
	if len(hits) == 0 {
		return nil
	}
	lo, hi := hits[len(hits)-1].Score, hits[0].Score
	out := make(map[string]float64, len(hits))
	for _, h := range hits {
		if hi == lo {
			out[h.RecordID] = 1
			continue
		}
		out[h.RecordID] = (h.Score - lo) / (hi - lo)
	}
	return out
}

func normalizeVector(hits []vector.Hit) map[string]float64 {
	if len(hits) == 0 {
		return nil
	}
	lo, hi := hits[len(hits)-1].Score, hits[0].Score
	out := make(map[string]float64, len(hits))
	for _, h := range hits {
		if hi == lo {
			out[h.RecordID] = 1
			continue
		}
		out[h.RecordID] = (h.Score - lo) / (hi - lo)
	}
	return out
}

// matchesFilters applies the hard constraints. Records with an unknown year
// or TRL are dropped when the corresponding range is constrained.
func matchesFilters(rec *domrecord.Record, f domquery.Filters) bool {
	if f.Cluster != "" && !strings.EqualFold(rec.Cluster(), f.Cluster) {
		return false
	}
	if f.City != "" && !strings.EqualFold(rec.City(), f.City) {
		return false
	}
	if f.YearFrom > 0 || f.YearTo > 0 {
		year := rec.FoundedYear()
		if year == 0 {
			return false
		}
		if f.YearFrom > 0 && year < f.YearFrom {
			return false
		}
		if f.YearTo > 0 && year > f.YearTo {
			return false
		}
	}
	if f.TRLFrom > 0 || f.TRLTo > 0 {
		trl := rec.TRL()
		if trl == 0 {
			return false
		}
		if f.TRLFrom > 0 && trl < f.TRLFrom {
			return false
		}
		if f.TRLTo > 0 && trl > f.TRLTo {
			return false
		}
	}
	return true
}
