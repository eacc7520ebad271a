package domain

import "context"

// HintCandidate is one shortlist entry sent to the rerank capability.
type HintCandidate struct {
	ID      string
	Summary string
}

// RerankHint is the capability's relevance estimate for one candidate, scale [0, 1].
type RerankHint struct {
	ID    string
	Score float64
}

// RerankHinter is the optional LLM re-ranking capability.
// Hints are advisory: callers must survive any error with local scores alone.
type RerankHinter interface {
	Hint(ctx context.Context, query string, candidates []HintCandidate) ([]RerankHint, error)
}
