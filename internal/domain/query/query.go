// Package query defines a validated search request.
package query

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// MaxTextRunes caps the query text length.
const MaxTextRunes = 2000

const (
	defaultLimit = 10
	maxLimit     = 50
)

// Filters are optional hard constraints applied to candidates before ranking.
// Zero values mean "no constraint".
type Filters struct {
	Cluster  string
	City     string
	YearFrom int
	YearTo   int
	TRLFrom  int
	TRLTo    int
}

// IsEmpty reports whether no filter is set.
func (f Filters) IsEmpty() bool {
	return f == Filters{}
}

// Query is a validated, normalized search request. Queries are ephemeral and
// never persisted, only their hash appears in the feedback ledger.
type Query struct {
	text        string
	filters     Filters
	requesterID string
	limit       int
}

// New validates and normalizes a search request. Text is required with at
// most MaxTextRunes runes. A non-positive limit falls back to the default,
// oversized limits are clipped.
func New(text string, filters Filters, requesterID string, limit int) (Query, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Query{}, fmt.Errorf("query text is required")
	}
	if n := len([]rune(text)); n > MaxTextRunes {
		return Query{}, fmt.Errorf("query text too long: %d runes (max %d)", n, MaxTextRunes)
	}
	if filters.YearFrom != 0 && filters.YearTo != 0 && filters.YearFrom > filters.YearTo {
		return Query{}, fmt.Errorf("year_from %d is after year_to %d", filters.YearFrom, filters.YearTo)
	}
	if filters.TRLFrom != 0 && filters.TRLTo != 0 && filters.TRLFrom > filters.TRLTo {
		return Query{}, fmt.Errorf("trl_from %d exceeds trl_to %d", filters.TRLFrom, filters.TRLTo)
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	return Query{
		text:        text,
		filters:     filters,
		requesterID: strings.TrimSpace(requesterID),
		limit:       limit,
	}, nil
}

// Text returns the trimmed query text.
func (q *Query) Text() string { return q.text }

// Filters returns the hard constraints.
func (q *Query) Filters() Filters { return q.filters }

// RequesterID returns the optional caller identity, empty for anonymous.
func (q *Query) RequesterID() string { return q.requesterID }

// Limit returns the normalized result count.
func (q *Query) Limit() int { return q.limit }

// Hash returns a stable fingerprint of the normalized query text. Feedback
// events reference queries by this hash.
func (q *Query) Hash() string {
	norm := strings.ToLower(strings.Join(strings.Fields(q.text), " "))
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])[:16]
}
