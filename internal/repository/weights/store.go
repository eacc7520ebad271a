// Package weights persists ranking weight generations.
package weights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/scoutdex/internal/db"
	"github.com/kailas-cloud/scoutdex/internal/domain"
	domweights "github.com/kailas-cloud/scoutdex/internal/domain/weights"
)

var (
	generationKeyPrefix = domain.KeyPrefix + "weights:gen:"
	currentKey          = domain.KeyPrefix + "weights:current"
)

// store is the consumer interface for weights persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Store reads and writes weight generations. Generations are immutable once
// written; the current pointer moves only after its document exists.
type Store struct {
	store store
}

// New creates a weights store.
func New(s store) *Store {
	return &Store{store: s}
}

type weightsDTO struct {
	Generation          int                `json:"generation"`
	CreatedAt           time.Time          `json:"created_at"`
	Lexical             float64            `json:"lexical"`
	Vector              float64            `json:"vector"`
	SingleSourcePenalty float64            `json:"single_source_penalty"`
	Retrieval           float64            `json:"retrieval"`
	Category            float64            `json:"category"`
	Prior               float64            `json:"prior"`
	LLM                 float64            `json:"llm"`
	Priors              map[string]float64 `json:"priors,omitempty"`
}

// Save persists a generation document and then moves the current pointer,
// so a concurrent reader never resolves the pointer to a missing document.
func (s *Store) Save(ctx context.Context, w domweights.Weights) error {
	data, err := json.Marshal(toDTO(w))
	if err != nil {
		return fmt.Errorf("marshal weights generation %d: %w", w.Generation(), err)
	}
	gen := strconv.Itoa(w.Generation())
	if err := s.store.Set(ctx, generationKeyPrefix+gen, data); err != nil {
		return fmt.Errorf("save weights generation %d: %w", w.Generation(), err)
	}
	if err := s.store.Set(ctx, currentKey, []byte(gen)); err != nil {
		return fmt.Errorf("update current weights pointer: %w", err)
	}
	return nil
}

// LoadCurrent resolves the current pointer and loads that generation.
// Returns domain.ErrWeightsNotFound when nothing was ever saved.
func (s *Store) LoadCurrent(ctx context.Context) (domweights.Weights, error) {
	data, err := s.store.Get(ctx, currentKey)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domweights.Weights{}, domain.ErrWeightsNotFound
		}
		return domweights.Weights{}, fmt.Errorf("read current weights pointer: %w", err)
	}
	gen, err := strconv.Atoi(string(data))
	if err != nil {
		return domweights.Weights{}, fmt.Errorf("parse current weights pointer %q: %w", data, err)
	}
	return s.Load(ctx, gen)
}

// Load reads one generation document.
func (s *Store) Load(ctx context.Context, generation int) (domweights.Weights, error) {
	data, err := s.store.Get(ctx, generationKeyPrefix+strconv.Itoa(generation))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domweights.Weights{}, fmt.Errorf("%w: generation %d", domain.ErrWeightsNotFound, generation)
		}
		return domweights.Weights{}, fmt.Errorf("load weights generation %d: %w", generation, err)
	}
	var dto weightsDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return domweights.Weights{}, fmt.Errorf("unmarshal weights generation %d: %w", generation, err)
	}
	return fromDTO(&dto), nil
}

func toDTO(w domweights.Weights) weightsDTO {
	p := w.Params()
	return weightsDTO{
		Generation:          w.Generation(),
		CreatedAt:           w.CreatedAt(),
		Lexical:             p.Lexical,
		Vector:              p.Vector,
		SingleSourcePenalty: p.SingleSourcePenalty,
		Retrieval:           p.Retrieval,
		Category:            p.Category,
		Prior:               p.Prior,
		LLM:                 p.LLM,
		Priors:              w.Priors(),
	}
}

func fromDTO(dto *weightsDTO) domweights.Weights {
	return domweights.Reconstruct(dto.Generation, dto.CreatedAt, domweights.Params{
		Lexical:             dto.Lexical,
		Vector:              dto.Vector,
		SingleSourcePenalty: dto.SingleSourcePenalty,
		Retrieval:           dto.Retrieval,
		Category:            dto.Category,
		Prior:               dto.Prior,
		LLM:                 dto.LLM,
	}, dto.Priors)
}
