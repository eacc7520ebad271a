// Package rank orders the retrieval shortlist: local features combined
// through the current ranking weights, optionally blended with an LLM
// relevance hint. Re-ranking is a pure permutation of its input.
package rank

import (
	"context"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/scoutdex/internal/domain"
	domcorpus "github.com/kailas-cloud/scoutdex/internal/domain/corpus"
	domquery "github.com/kailas-cloud/scoutdex/internal/domain/query"
	domweights "github.com/kailas-cloud/scoutdex/internal/domain/weights"
	"github.com/kailas-cloud/scoutdex/internal/index/lexical"
	"github.com/kailas-cloud/scoutdex/internal/metrics"
)

const defaultHintCacheSize = 256

// Config holds the ranking settings.
type Config struct {
	// MaxLLMWeight bounds the hint contribution so local features always
	// count, whatever the learner does to the LLM weight.
	MaxLLMWeight  float64
	HintCacheSize int
}

// Service re-ranks shortlists. A nil hinter disables the LLM signal
// entirely; hint failures fall back to the local score and never fail
// the query.
type Service struct {
	hinter domain.RerankHinter
	cache  *lru.Cache[string, map[string]float64]
	cfg    Config
	logger *zap.Logger
}

// New creates a ranking service. hinter may be nil (hints disabled).
func New(hinter domain.RerankHinter, cfg Config, logger *zap.Logger) (*Service, error) {
	if cfg.HintCacheSize <= 0 {
		cfg.HintCacheSize = defaultHintCacheSize
	}
	cache, err := lru.New[string, map[string]float64](cfg.HintCacheSize)
	if err != nil {
		return nil, err
	}
	return &Service{hinter: hinter, cache: cache, cfg: cfg, logger: logger}, nil
}

// Rerank scores and reorders the candidates. The result contains exactly
// the input record ids: dropping candidates is the retriever's job, never
// the ranker's. Ties break by retrieval score, then record id.
func (s *Service) Rerank(
	ctx context.Context, q domquery.Query, candidates []domain.Candidate,
	c *domcorpus.Corpus, w domweights.Weights,
) []domain.RankedResult {
	if len(candidates) == 0 {
		return nil
	}
	p := w.Params()
	queryTokens := tokenSet(lexical.Tokenize(q.Text()))

	results := make([]domain.RankedResult, len(candidates))
	for i, cand := range candidates {
		overlap := 0.0
		if rec, ok := c.Get(cand.RecordID); ok {
			overlap = categoryOverlap(queryTokens, rec.Category()+" "+rec.Technologies())
		}
		base := p.Retrieval*cand.Score + p.Category*overlap + p.Prior*w.PriorFor(cand.RecordID)
		results[i] = domain.RankedResult{
			RecordID:  cand.RecordID,
			Score:     base,
			Retrieval: cand.Score,
		}
	}

	if hints := s.collectHints(ctx, q, candidates, c); hints != nil {
		wLLM := p.LLM
		if wLLM > s.cfg.MaxLLMWeight {
			wLLM = s.cfg.MaxLLMWeight
		}
		for i := range results {
			hint, ok := hints[results[i].RecordID]
			if !ok {
				continue
			}
			results[i].Score += wLLM * hint
			results[i].Hint = hint
			results[i].HintUsed = true
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Retrieval != results[j].Retrieval {
			return results[i].Retrieval > results[j].Retrieval
		}
		return results[i].RecordID < results[j].RecordID
	})
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

// collectHints returns per-record hint scores in [0, 1], or nil when the
// hinter is disabled or failed. Hints for one (query, shortlist) pair are
// cached so repeated queries cost one provider call.
func (s *Service) collectHints(
	ctx context.Context, q domquery.Query,
	candidates []domain.Candidate, c *domcorpus.Corpus,
) map[string]float64 {
	if s.hinter == nil {
		metrics.RerankHintsTotal.WithLabelValues("disabled").Inc()
		return nil
	}

	key := hintCacheKey(q, candidates)
	if cached, ok := s.cache.Get(key); ok {
		metrics.RerankHintCacheTotal.WithLabelValues("hit").Inc()
		metrics.RerankHintsTotal.WithLabelValues("applied").Inc()
		return cached
	}
	metrics.RerankHintCacheTotal.WithLabelValues("miss").Inc()

	hintCands := make([]domain.HintCandidate, 0, len(candidates))
	for _, cand := range candidates {
		rec, ok := c.Get(cand.RecordID)
		if !ok {
			continue
		}
		hintCands = append(hintCands, domain.HintCandidate{
			ID:      cand.RecordID,
			Summary: rec.Summary(),
		})
	}
	if len(hintCands) == 0 {
		return nil
	}

	hints, err := s.hinter.Hint(ctx, q.Text(), hintCands)
	if err != nil {
		s.logger.Warn("rerank hint failed, using local scores",
			zap.String("query_hash", q.Hash()),
			zap.Error(err))
		metrics.RerankHintsTotal.WithLabelValues("fallback").Inc()
		return nil
	}

	byID := make(map[string]float64, len(hints))
	for _, h := range hints {
		byID[h.ID] = h.Score
	}
	s.cache.Add(key, byID)
	metrics.RerankHintsTotal.WithLabelValues("applied").Inc()
	return byID
}

// hintCacheKey fingerprints one (query, shortlist) pair. Candidates arrive
// score-ordered, so the same shortlist always produces the same key.
func hintCacheKey(q domquery.Query, candidates []domain.Candidate) string {
	var b strings.Builder
	b.WriteString(q.Hash())
	for _, c := range candidates {
		b.WriteByte('|')
		b.WriteString(c.RecordID)
	}
	return b.String()
}

// categoryOverlap measures how much of the query vocabulary appears in the
// record's category and technology fields, in [0, 1].
func categoryOverlap(queryTokens map[string]struct{}, fields string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	matched := make(map[string]struct{})
	for _, tok := range lexical.Tokenize(fields) {
		if _, ok := queryTokens[tok]; ok {
			matched[tok] = struct{}{}
		}
	}
	return float64(len(matched)) / float64(len(queryTokens))
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	return set
}
