// Package corpus defines the immutable in-memory snapshot of all startup records.
package corpus

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/scoutdex/internal/domain/record"
)

// Corpus is an immutable snapshot of the loaded records. A refresh builds a
// new Corpus and swaps it in wholesale; existing snapshots are never mutated.
type Corpus struct {
	records    []record.Record
	byID       map[string]int
	generation string
	loadedAt   time.Time
}

// New builds a Corpus from records. Records must be non-empty with unique IDs;
// deduplication is the loader's job.
func New(records []record.Record, loadedAt time.Time) (*Corpus, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("corpus must contain at least one record")
	}

	byID := make(map[string]int, len(records))
	for i := range records {
		id := records[i].ID()
		if _, dup := byID[id]; dup {
			return nil, fmt.Errorf("duplicate record ID %q", id)
		}
		byID[id] = i
	}

	return &Corpus{
		records:    records,
		byID:       byID,
		generation: fingerprint(records),
		loadedAt:   loadedAt,
	}, nil
}

// Get returns the record with the given ID.
func (c *Corpus) Get(id string) (record.Record, bool) {
	i, ok := c.byID[id]
	if !ok {
		return record.Record{}, false
	}
	return c.records[i], true
}

// All returns every record in load order. Callers must not modify the slice.
func (c *Corpus) All() []record.Record { return c.records }

// Len returns the record count.
func (c *Corpus) Len() int { return len(c.records) }

// Generation returns the content fingerprint of this snapshot. Two corpora
// with identical content share a generation regardless of load order.
func (c *Corpus) Generation() string { return c.generation }

// LoadedAt returns when this snapshot was built.
func (c *Corpus) LoadedAt() time.Time { return c.loadedAt }

// fingerprint hashes the canonical content of all records sorted by ID, so
// derived artifacts (indices, persisted vectors) can be keyed by data version.
func fingerprint(records []record.Record) string {
	ids := make([]string, 0, len(records))
	byID := make(map[string]*record.Record, len(records))
	for i := range records {
		ids = append(ids, records[i].ID())
		byID[records[i].ID()] = &records[i]
	}
	sort.Strings(ids)

	h := sha256.New()
	for _, id := range ids {
		r := byID[id]
		h.Write([]byte(strings.Join([]string{
			r.ID(),
			r.Name(),
			r.Description(),
			r.Cluster(),
			r.Category(),
			r.Technologies(),
			r.City(),
			strconv.Itoa(r.FoundedYear()),
			strconv.Itoa(r.TRL()),
		}, "\x1f")))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
