// Package learning recomputes ranking weights from the feedback ledger.
// Cycles run off the serving path and publish new generations atomically;
// per-cycle weight deltas are clamped so a bad feedback batch degrades
// ranking gradually, never catastrophically.
package learning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	domfb "github.com/kailas-cloud/scoutdex/internal/domain/feedback"
	domweights "github.com/kailas-cloud/scoutdex/internal/domain/weights"
	"github.com/kailas-cloud/scoutdex/internal/metrics"
)

// ledger is the consumer interface for the feedback store (ISP).
type ledger interface {
	All(ctx context.Context) ([]domfb.Event, error)
}

// weightsStore persists weight generations.
type weightsStore interface {
	Save(ctx context.Context, w domweights.Weights) error
}

// Config holds the learner settings.
type Config struct {
	Interval       time.Duration
	MinEvents      int     // skip a cycle with fewer new events than this
	SmoothingAlpha float64 // Laplace smoothing for sparse feedback counts
	MaxStep        float64 // per-cycle bound on any single weight change
}

// Service runs periodic learning cycles. One cycle reads a consistent
// ledger snapshot, re-estimates per-record priors and the source blend,
// then persists and publishes the next weights generation.
type Service struct {
	ledger ledger
	store  weightsStore
	holder *Holder
	cfg    Config
	logger *zap.Logger

	mu        sync.Mutex
	processed int // ledger events consumed by the last applied cycle
}

// New creates a learner.
func New(l ledger, store weightsStore, holder *Holder, cfg Config, logger *zap.Logger) *Service {
	if cfg.SmoothingAlpha <= 0 {
		cfg.SmoothingAlpha = 1.0
	}
	if cfg.MaxStep <= 0 {
		cfg.MaxStep = 0.1
	}
	return &Service{ledger: l, store: store, holder: holder, cfg: cfg, logger: logger}
}

// Run executes cycles on the configured interval until the context ends.
// A failed cycle keeps the current generation and retries next tick.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunCycle(ctx); err != nil {
				s.logger.Error("learning cycle failed, keeping current weights", zap.Error(err))
			}
		}
	}
}

// RunCycle executes one learning cycle. Concurrent calls serialize; the
// active generation changes only after the new one is fully persisted.
func (s *Service) RunCycle(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	cutoff := start.UTC()

	all, err := s.ledger.All(ctx)
	if err != nil {
		metrics.LearningCyclesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("read feedback snapshot: %w", err)
	}
	// events up to the cutoff form the cycle's well-defined input
	events := all[:0:0]
	for _, e := range all {
		if !e.Timestamp().After(cutoff) {
			events = append(events, e)
		}
	}

	if len(events)-s.processed < s.cfg.MinEvents {
		metrics.LearningCyclesTotal.WithLabelValues("skipped").Inc()
		s.logger.Debug("skipping learning cycle, not enough new events",
			zap.Int("new_events", len(events)-s.processed),
			zap.Int("min_events", s.cfg.MinEvents))
		return nil
	}

	prev := s.holder.Current()
	params := prev.Params()
	params.Lexical, params.Vector = s.nudgeBlend(events, params)

	next, err := domweights.New(prev.Generation()+1, cutoff, params, s.estimatePriors(events))
	if err != nil {
		metrics.LearningCyclesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("build weights generation %d: %w", prev.Generation()+1, err)
	}
	bounded := next.BoundedFrom(prev, s.cfg.MaxStep)

	if err := s.store.Save(ctx, bounded); err != nil {
		metrics.LearningCyclesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("persist weights generation %d: %w", bounded.Generation(), err)
	}
	s.holder.Publish(bounded)
	s.processed = len(events)

	metrics.LearningCyclesTotal.WithLabelValues("applied").Inc()
	s.logger.Info("learning cycle applied",
		zap.Int("generation", bounded.Generation()),
		zap.Int("events", len(events)),
		zap.Int("priors", len(bounded.Priors())),
		zap.Float64("w_lexical", bounded.Params().Lexical),
		zap.Float64("w_vector", bounded.Params().Vector),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// estimatePriors computes the Laplace-smoothed positive-signal rate per
// record: (pos + alpha) / (pos + neg + 2*alpha). Impressions are neutral
// exposure and carry no reward.
func (s *Service) estimatePriors(events []domfb.Event) map[string]float64 {
	type counts struct{ pos, neg float64 }
	byRecord := make(map[string]*counts)
	for i := range events {
		e := &events[i]
		if !e.Signal().IsPositive() && !e.Signal().IsNegative() {
			continue
		}
		c, ok := byRecord[e.RecordID()]
		if !ok {
			c = &counts{}
			byRecord[e.RecordID()] = c
		}
		if e.Signal().IsPositive() {
			c.pos += e.Strength()
		} else {
			c.neg += -e.Strength()
		}
	}

	alpha := s.cfg.SmoothingAlpha
	priors := make(map[string]float64, len(byRecord))
	for id, c := range byRecord {
		priors[id] = (c.pos + alpha) / (c.pos + c.neg + 2*alpha)
	}
	return priors
}

// nudgeBlend moves the lexical/vector blend toward the source that better
// predicted positive outcomes. Positive signals are joined with the
// impressions of the same (query, record) pair to recover the per-source
// scores at display time. The returned pair sums to one; BoundedFrom caps
// the actual movement per cycle.
func (s *Service) nudgeBlend(events []domfb.Event, p domweights.Params) (float64, float64) {
	type key struct{ queryHash, recordID string }
	shown := make(map[key]domfb.ResultContext)
	for i := range events {
		e := &events[i]
		if e.Signal() != domfb.SignalImpression {
			continue
		}
		shown[key{e.QueryHash(), e.RecordID()}] = domfb.ResultContext{
			Rank:      e.Rank(),
			Retrieval: e.Retrieval(),
			Lexical:   e.Lexical(),
			Vector:    e.Vector(),
		}
	}

	var sumLex, sumVec float64
	var n int
	for i := range events {
		e := &events[i]
		if !e.Signal().IsPositive() {
			continue
		}
		rctx, ok := shown[key{e.QueryHash(), e.RecordID()}]
		if !ok {
			continue
		}
		sumLex += rctx.Lexical
		sumVec += rctx.Vector
		n++
	}
	if n == 0 {
		return p.Lexical, p.Vector
	}

	// shift proportional to the observed advantage, bounded later
	delta := (sumLex - sumVec) / float64(n)
	lex := p.Lexical + delta
	if lex < 0 {
		lex = 0
	}
	if lex > 1 {
		lex = 1
	}
	return lex, 1 - lex
}
