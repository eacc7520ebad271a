// Package feedback persists the append-only feedback ledger.
package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/scoutdex/internal/domain"
	domfb "github.com/kailas-cloud/scoutdex/internal/domain/feedback"
)

var ledgerKey = domain.KeyPrefix + "feedback:events"

// store is the consumer interface for the ledger (ISP).
type store interface {
	RPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LLen(ctx context.Context, key string) (int64, error)
}

// Store appends and reads feedback events. Events are never updated or
// deleted, the learner reads time-bounded snapshots.
type Store struct {
	store  store
	logger *zap.Logger
}

// New creates a ledger store.
func New(s store, logger *zap.Logger) *Store {
	return &Store{store: s, logger: logger}
}

type eventDTO struct {
	ID          string    `json:"id"`
	QueryHash   string    `json:"query_hash"`
	QueryText   string    `json:"query_text,omitempty"`
	RecordID    string    `json:"record_id"`
	Signal      string    `json:"signal"`
	Strength    float64   `json:"strength"`
	Rank        int       `json:"rank,omitempty"`
	Retrieval   float64   `json:"retrieval,omitempty"`
	Lexical     float64   `json:"lexical,omitempty"`
	Vector      float64   `json:"vector,omitempty"`
	RequesterID string    `json:"requester_id,omitempty"`
	Timestamp   time.Time `json:"ts"`
}

// Append pushes events to the ledger tail in one round trip.
func (s *Store) Append(ctx context.Context, events ...domfb.Event) error {
	if len(events) == 0 {
		return nil
	}
	lines := make([]string, len(events))
	for i := range events {
		data, err := json.Marshal(toDTO(&events[i]))
		if err != nil {
			return fmt.Errorf("marshal feedback event %s: %w", events[i].ID(), err)
		}
		lines[i] = string(data)
	}
	if err := s.store.RPush(ctx, ledgerKey, lines...); err != nil {
		return fmt.Errorf("append feedback events: %w", err)
	}
	return nil
}

// All returns every ledger event in append order. Corrupt entries are
// skipped with a warning.
func (s *Store) All(ctx context.Context) ([]domfb.Event, error) {
	lines, err := s.store.LRange(ctx, ledgerKey, 0, -1)
	if err != nil {
		return nil, fmt.Errorf("read feedback ledger: %w", err)
	}

	events := make([]domfb.Event, 0, len(lines))
	for i, line := range lines {
		var dto eventDTO
		if err := json.Unmarshal([]byte(line), &dto); err != nil {
			s.logger.Warn("skipping corrupt feedback event",
				zap.Int("index", i),
				zap.Error(err))
			continue
		}
		events = append(events, fromDTO(&dto))
	}
	return events, nil
}

// Count returns the ledger length.
func (s *Store) Count(ctx context.Context) (int64, error) {
	n, err := s.store.LLen(ctx, ledgerKey)
	if err != nil {
		return 0, fmt.Errorf("count feedback events: %w", err)
	}
	return n, nil
}

func toDTO(e *domfb.Event) eventDTO {
	return eventDTO{
		ID:          e.ID(),
		QueryHash:   e.QueryHash(),
		QueryText:   e.QueryText(),
		RecordID:    e.RecordID(),
		Signal:      string(e.Signal()),
		Strength:    e.Strength(),
		Rank:        e.Rank(),
		Retrieval:   e.Retrieval(),
		Lexical:     e.Lexical(),
		Vector:      e.Vector(),
		RequesterID: e.RequesterID(),
		Timestamp:   e.Timestamp(),
	}
}

func fromDTO(dto *eventDTO) domfb.Event {
	return domfb.Reconstruct(
		dto.ID,
		dto.QueryHash,
		dto.QueryText,
		dto.RecordID,
		domfb.Signal(dto.Signal),
		dto.Strength,
		domfb.ResultContext{
			Rank:      dto.Rank,
			Retrieval: dto.Retrieval,
			Lexical:   dto.Lexical,
			Vector:    dto.Vector,
		},
		dto.RequesterID,
		dto.Timestamp,
	)
}
