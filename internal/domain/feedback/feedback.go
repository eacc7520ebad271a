// Package feedback defines user reaction events that feed the learning loop.
package feedback

import (
	"fmt"
	"strings"
	"time"
)

// Signal is the kind of user reaction to a search result.
type Signal string

const (
	SignalImpression Signal = "impression"
	SignalClick      Signal = "click"
	SignalRelevant   Signal = "relevant"
	SignalIrrelevant Signal = "irrelevant"
	SignalContact    Signal = "contact"
)

// IsValid reports whether the signal is one of the known kinds.
func (s Signal) IsValid() bool {
	switch s {
	case SignalImpression, SignalClick, SignalRelevant, SignalIrrelevant, SignalContact:
		return true
	}
	return false
}

// Strength returns the reward used by prior estimation. Impressions are
// neutral exposure, clicks a weak positive, explicit marks full strength.
func (s Signal) Strength() float64 {
	switch s {
	case SignalClick:
		return 0.5
	case SignalRelevant, SignalContact:
		return 1.0
	case SignalIrrelevant:
		return -1.0
	default:
		return 0
	}
}

// IsPositive reports whether the signal counts as a positive outcome.
func (s Signal) IsPositive() bool { return s.Strength() > 0 }

// IsNegative reports whether the signal counts as a negative outcome.
func (s Signal) IsNegative() bool { return s.Strength() < 0 }

// ResultContext carries where and with what scores the record was shown.
// Ranks are 1-based; zero means unknown. Scores let the learner correlate
// retrieval sources with outcomes.
type ResultContext struct {
	Rank      int
	Retrieval float64
	Lexical   float64
	Vector    float64
}

// Event is an immutable feedback record, appended to the ledger and never
// updated in place.
type Event struct {
	id          string
	queryHash   string
	queryText   string
	recordID    string
	signal      Signal
	strength    float64
	rank        int
	retrieval   float64
	lexical     float64
	vector      float64
	requesterID string
	ts          time.Time
}

// New validates and creates an Event. The caller supplies the unique event ID.
func New(id, queryHash, queryText, recordID string, signal Signal, rctx ResultContext, requesterID string, ts time.Time) (Event, error) {
	if id == "" {
		return Event{}, fmt.Errorf("event ID is required")
	}
	if queryHash == "" {
		return Event{}, fmt.Errorf("query hash is required")
	}
	if recordID == "" {
		return Event{}, fmt.Errorf("record ID is required")
	}
	if !signal.IsValid() {
		return Event{}, fmt.Errorf("unknown signal %q", signal)
	}
	if rctx.Rank < 0 {
		return Event{}, fmt.Errorf("rank must not be negative, got %d", rctx.Rank)
	}
	if ts.IsZero() {
		return Event{}, fmt.Errorf("timestamp is required")
	}

	return Event{
		id:          id,
		queryHash:   queryHash,
		queryText:   strings.TrimSpace(queryText),
		recordID:    recordID,
		signal:      signal,
		strength:    signal.Strength(),
		rank:        rctx.Rank,
		retrieval:   rctx.Retrieval,
		lexical:     rctx.Lexical,
		vector:      rctx.Vector,
		requesterID: strings.TrimSpace(requesterID),
		ts:          ts,
	}, nil
}

// Reconstruct creates an Event without validation (ledger hydration).
func Reconstruct(id, queryHash, queryText, recordID string, signal Signal, strength float64, rctx ResultContext, requesterID string, ts time.Time) Event {
	return Event{
		id:          id,
		queryHash:   queryHash,
		queryText:   queryText,
		recordID:    recordID,
		signal:      signal,
		strength:    strength,
		rank:        rctx.Rank,
		retrieval:   rctx.Retrieval,
		lexical:     rctx.Lexical,
		vector:      rctx.Vector,
		requesterID: requesterID,
		ts:          ts,
	}
}

// ID returns the unique event identifier.
func (e *Event) ID() string { return e.id }

// QueryHash returns the fingerprint of the query that produced the result.
func (e *Event) QueryHash() string { return e.queryHash }

// QueryText returns the original query text, may be empty for older events.
func (e *Event) QueryText() string { return e.queryText }

// RecordID returns the record the reaction applies to.
func (e *Event) RecordID() string { return e.recordID }

// Signal returns the reaction kind.
func (e *Event) Signal() Signal { return e.signal }

// Strength returns the reward captured at event time.
func (e *Event) Strength() float64 { return e.strength }

// Rank returns the 1-based position the record was shown at, 0 if unknown.
func (e *Event) Rank() int { return e.rank }

// Retrieval returns the combined retrieval score at impression time.
func (e *Event) Retrieval() float64 { return e.retrieval }

// Lexical returns the normalized lexical score at impression time.
func (e *Event) Lexical() float64 { return e.lexical }

// Vector returns the normalized vector score at impression time.
func (e *Event) Vector() float64 { return e.vector }

// RequesterID returns the caller identity, empty for anonymous.
func (e *Event) RequesterID() string { return e.requesterID }

// Timestamp returns when the event was recorded.
func (e *Event) Timestamp() time.Time { return e.ts }
