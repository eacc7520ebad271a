// Package weights defines the versioned ranking parameters tuned by the
// learning loop.
package weights

import (
	"fmt"
	"math"
	"time"
)

// DefaultPrior is the neutral relevance prior for records without feedback.
const DefaultPrior = 0.5

// Params are the scoring coefficients. Lexical and Vector blend the two
// retrieval sources and always sum to one. Retrieval, Category and Prior
// weigh the base ranking features. LLM caps the hint contribution.
type Params struct {
	Lexical             float64
	Vector              float64
	SingleSourcePenalty float64
	Retrieval           float64
	Category            float64
	Prior               float64
	LLM                 float64
}

// Weights is an immutable generation of ranking parameters. The learner
// produces a new generation each cycle; readers swap atomically and never
// observe a partial update.
type Weights struct {
	generation int
	createdAt  time.Time
	params     Params
	priors     map[string]float64
}

// Default returns generation zero with the initial coefficients and no
// per-record priors.
func Default() Weights {
	return Weights{
		generation: 0,
		params: Params{
			Lexical:             0.5,
			Vector:              0.5,
			SingleSourcePenalty: 0.75,
			Retrieval:           0.5,
			Category:            0.2,
			Prior:               0.3,
			LLM:                 0.35,
		},
	}
}

// New validates and creates a Weights generation. All coefficients must lie
// in [0, 1]; the lexical/vector pair is normalized to sum to one.
func New(generation int, createdAt time.Time, p Params, priors map[string]float64) (Weights, error) {
	if generation < 0 {
		return Weights{}, fmt.Errorf("generation must not be negative, got %d", generation)
	}
	for _, c := range []struct {
		name string
		v    float64
	}{
		{"lexical", p.Lexical},
		{"vector", p.Vector},
		{"single_source_penalty", p.SingleSourcePenalty},
		{"retrieval", p.Retrieval},
		{"category", p.Category},
		{"prior", p.Prior},
		{"llm", p.LLM},
	} {
		if err := validateUnit(c.name, c.v); err != nil {
			return Weights{}, err
		}
	}
	sum := p.Lexical + p.Vector
	if sum <= 0 {
		return Weights{}, fmt.Errorf("lexical and vector weights must not both be zero")
	}
	p.Lexical /= sum
	p.Vector /= sum

	cloned := make(map[string]float64, len(priors))
	for id, v := range priors {
		if err := validateUnit("prior for "+id, v); err != nil {
			return Weights{}, err
		}
		cloned[id] = v
	}

	return Weights{
		generation: generation,
		createdAt:  createdAt,
		params:     p,
		priors:     cloned,
	}, nil
}

// Reconstruct creates Weights without validation (storage hydration).
func Reconstruct(generation int, createdAt time.Time, p Params, priors map[string]float64) Weights {
	if priors == nil {
		priors = map[string]float64{}
	}
	return Weights{
		generation: generation,
		createdAt:  createdAt,
		params:     p,
		priors:     priors,
	}
}

// Generation returns the monotonically increasing generation number.
func (w Weights) Generation() int { return w.generation }

// CreatedAt returns when this generation was produced.
func (w Weights) CreatedAt() time.Time { return w.createdAt }

// Params returns the scoring coefficients.
func (w Weights) Params() Params { return w.params }

// Priors returns the per-record relevance priors. Callers must not modify it.
func (w Weights) Priors() map[string]float64 { return w.priors }

// PriorFor returns the learned prior for a record, or DefaultPrior when the
// record has no feedback history.
func (w Weights) PriorFor(recordID string) float64 {
	if v, ok := w.priors[recordID]; ok {
		return v
	}
	return DefaultPrior
}

// BoundedFrom limits this generation's drift from prev: every coefficient and
// every prior moves at most maxStep per cycle. Records absent from prev start
// from DefaultPrior. The lexical/vector pair stays complementary, so bounding
// one side bounds the other by the same amount.
func (w Weights) BoundedFrom(prev Weights, maxStep float64) Weights {
	pp := prev.params
	p := w.params

	p.Lexical = clamp(step(pp.Lexical, p.Lexical, maxStep), 0, 1)
	p.Vector = 1 - p.Lexical
	p.SingleSourcePenalty = clamp(step(pp.SingleSourcePenalty, p.SingleSourcePenalty, maxStep), 0, 1)
	p.Retrieval = clamp(step(pp.Retrieval, p.Retrieval, maxStep), 0, 1)
	p.Category = clamp(step(pp.Category, p.Category, maxStep), 0, 1)
	p.Prior = clamp(step(pp.Prior, p.Prior, maxStep), 0, 1)
	p.LLM = clamp(step(pp.LLM, p.LLM, maxStep), 0, 1)

	bounded := make(map[string]float64, len(w.priors))
	for id, v := range w.priors {
		base := prev.PriorFor(id)
		bounded[id] = clamp(step(base, v, maxStep), 0, 1)
	}
	// records that lost all events keep their last prior instead of snapping back
	for id, v := range prev.priors {
		if _, ok := bounded[id]; !ok {
			bounded[id] = v
		}
	}

	return Weights{
		generation: w.generation,
		createdAt:  w.createdAt,
		params:     p,
		priors:     bounded,
	}
}

func step(from, to, maxStep float64) float64 {
	if to > from+maxStep {
		return from + maxStep
	}
	if to < from-maxStep {
		return from - maxStep
	}
	return to
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func validateUnit(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%s weight must be in [0, 1], got %v", name, v)
	}
	return nil
}
