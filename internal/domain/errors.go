package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrCorpusLoad signals that the corpus source is missing or unparsable (fatal).
	ErrCorpusLoad = errors.New("corpus load failed")
	// ErrCorpusUnavailable signals that no corpus generation has been published yet.
	ErrCorpusUnavailable = errors.New("corpus unavailable")
	// ErrRecordNotFound signals a missing startup record.
	ErrRecordNotFound = errors.New("record not found")
	// ErrIndexBuild signals a failed index build; the index degrades, serving continues.
	ErrIndexBuild = errors.New("index build failed")
	// ErrIndexUnavailable signals that an index has no published generation.
	ErrIndexUnavailable = errors.New("index unavailable")
	// ErrInvalidQuery signals a malformed search query.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrInvalidFeedback signals a malformed feedback event.
	ErrInvalidFeedback = errors.New("invalid feedback")
	// ErrWeightsNotFound signals that no ranking weights generation is persisted.
	ErrWeightsNotFound = errors.New("ranking weights not found")

	// ErrEmbeddingQuotaExceeded signals an exhausted embedding token budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrRerankProviderError signals a rerank-hint provider failure.
	ErrRerankProviderError = errors.New("rerank provider error")
)

// GenerationMismatchError wraps ErrIndexBuild with the conflicting generations.
type GenerationMismatchError struct {
	IndexGeneration  string
	CorpusGeneration string
}

func (e *GenerationMismatchError) Error() string {
	return fmt.Sprintf("%s: index generation %s does not match corpus generation %s",
		ErrIndexBuild.Error(), e.IndexGeneration, e.CorpusGeneration)
}

func (e *GenerationMismatchError) Unwrap() error { return ErrIndexBuild }

// NewGenerationMismatch creates a generation mismatch error.
func NewGenerationMismatch(indexGen, corpusGen string) error {
	return &GenerationMismatchError{IndexGeneration: indexGen, CorpusGeneration: corpusGen}
}
