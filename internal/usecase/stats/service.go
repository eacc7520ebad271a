// Package stats reports pipeline state for operators.
package stats

import (
	"context"

	domweights "github.com/kailas-cloud/scoutdex/internal/domain/weights"
)

// snapshotReader exposes the published corpus snapshot state.
type snapshotReader interface {
	CorpusInfo() (generation string, records int, ok bool)
	VectorReady() bool
}

// weightsReader exposes the active ranking weights generation.
type weightsReader interface {
	Current() domweights.Weights
}

// ledgerCounter exposes the feedback ledger length.
type ledgerCounter interface {
	Count(ctx context.Context) (int64, error)
}

// BudgetReader provides read-only access to embedding token budget state.
type BudgetReader interface {
	DailyLimit() int64
	MonthlyLimit() int64
	DailyUsed() int64
	MonthlyUsed() int64
}

// Budget is the embedding token budget slice of the report.
type Budget struct {
	DailyLimit   int64
	MonthlyLimit int64
	DailyUsed    int64
	MonthlyUsed  int64
}

// Report is a point-in-time view of the pipeline.
type Report struct {
	CorpusLoaded      bool
	CorpusGeneration  string
	CorpusRecords     int
	VectorIndexReady  bool
	WeightsGeneration int
	LearnedPriors     int
	FeedbackEvents    int64
	Budget            *Budget // nil when no budget is configured
}

// Service assembles pipeline reports. Every dependency except the snapshot
// reader may be nil; missing slices are zero-valued.
type Service struct {
	snapshot snapshotReader
	weights  weightsReader
	ledger   ledgerCounter
	budget   BudgetReader
}

// New creates a stats service.
func New(snapshot snapshotReader, weights weightsReader, ledger ledgerCounter, budget BudgetReader) *Service {
	return &Service{snapshot: snapshot, weights: weights, ledger: ledger, budget: budget}
}

// Report builds the current pipeline report. A failing ledger read leaves
// the event count at zero rather than failing the report.
func (s *Service) Report(ctx context.Context) Report {
	var r Report

	gen, records, ok := s.snapshot.CorpusInfo()
	r.CorpusLoaded = ok
	r.CorpusGeneration = gen
	r.CorpusRecords = records
	r.VectorIndexReady = s.snapshot.VectorReady()

	if s.weights != nil {
		w := s.weights.Current()
		r.WeightsGeneration = w.Generation()
		r.LearnedPriors = len(w.Priors())
	}
	if s.ledger != nil {
		if n, err := s.ledger.Count(ctx); err == nil {
			r.FeedbackEvents = n
		}
	}
	if s.budget != nil {
		r.Budget = &Budget{
			DailyLimit:   s.budget.DailyLimit(),
			MonthlyLimit: s.budget.MonthlyLimit(),
			DailyUsed:    s.budget.DailyUsed(),
			MonthlyUsed:  s.budget.MonthlyUsed(),
		}
	}
	return r
}
