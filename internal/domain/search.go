package domain

// Source tells which retrieval path produced a candidate.
type Source string

// Retrieval sources.
const (
	SourceLexical Source = "lexical"
	SourceVector  Source = "vector"
	SourceBoth    Source = "both"
)

// Candidate is a retrieval hit: one record with its merged score and
// the normalized per-source scores it was merged from.
// Valid only within the lifetime of one query.
type Candidate struct {
	RecordID string
	Score    float64
	Source   Source
	Lexical  float64 // min-max normalized lexical score, 0 when absent
	Vector   float64 // min-max normalized cosine score, 0 when absent
}

// RankedResult is one final search hit after re-ranking.
// Scores are comparable only within one query's result set.
type RankedResult struct {
	RecordID  string
	Score     float64
	Rank      int // 1-based position
	Retrieval float64
	Hint      float64 // LLM hint in [0, 1]
	HintUsed  bool
}
