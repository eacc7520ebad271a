// Package corpus loads the startup corpus from its CSV export.
package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/scoutdex/internal/domain"
	domcorpus "github.com/kailas-cloud/scoutdex/internal/domain/corpus"
	"github.com/kailas-cloud/scoutdex/internal/domain/record"
)

// columnAliases maps source CSV headers to record fields. The production
// export uses Russian headers; English aliases cover hand-made fixtures.
var columnAliases = map[string]string{
	"Название компании":   "name",
	"name":                "name",
	"Описание компании":   "description",
	"description":         "description",
	"Кластер":             "cluster",
	"cluster":             "cluster",
	"Сферы деятельности":  "category",
	"category":            "category",
	"Технологии проекта":  "technologies",
	"technologies":        "technologies",
	"Город":               "city",
	"Регионы присутствия": "city",
	"city":                "city",
	"region":              "city",
	"Сайт":                "site",
	"site":                "site",
	"website":             "site",
	"Год основания":       "year",
	"year":                "year",
	"year_founded":        "year",
	"Уровень TRL":         "trl",
	"TRL (по продуктам)":  "trl",
	"trl":                 "trl",
	"id":                  "id",
}

// Loader reads the corpus CSV and produces an immutable corpus snapshot.
type Loader struct {
	path   string
	logger *zap.Logger
}

// NewLoader creates a corpus loader for the given CSV path.
func NewLoader(path string, logger *zap.Logger) *Loader {
	return &Loader{path: path, logger: logger}
}

// Load reads and validates the CSV. A missing or unparsable source is fatal
// (domain.ErrCorpusLoad); individual invalid rows are skipped with a warning,
// duplicate ids resolve last-write-wins.
func (l *Loader) Load(ctx context.Context) (*domcorpus.Corpus, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrCorpusLoad, l.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %w", domain.ErrCorpusLoad, err)
	}
	fields, extras := mapHeader(header)
	if _, ok := fields["name"]; !ok {
		return nil, fmt.Errorf("%w: source %s has no name column", domain.ErrCorpusLoad, l.path)
	}

	var (
		records []record.Record
		byID    = map[string]int{}
		skipped int
		row     int
	)
	for {
		cols, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", domain.ErrCorpusLoad, row+2, err)
		}
		row++

		rec, err := buildRecord(cols, fields, extras)
		if err != nil {
			skipped++
			l.logger.Warn("skipping invalid corpus row",
				zap.Int("row", row+1),
				zap.Error(err))
			continue
		}

		if prev, dup := byID[rec.ID()]; dup {
			l.logger.Warn("duplicate record id, keeping last occurrence",
				zap.String("record_id", rec.ID()),
				zap.Int("row", row+1))
			records[prev] = rec
			continue
		}
		byID[rec.ID()] = len(records)
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: source %s contains no valid records", domain.ErrCorpusLoad, l.path)
	}

	c, err := domcorpus.New(records, time.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCorpusLoad, err)
	}

	l.logger.Info("corpus loaded",
		zap.Int("records", c.Len()),
		zap.Int("skipped", skipped),
		zap.String("generation", c.Generation()))
	return c, nil
}

// mapHeader resolves each column to a record field or, for unknown headers,
// to the Extra map under its original name.
func mapHeader(header []string) (fields map[string]int, extras map[int]string) {
	fields = map[string]int{}
	extras = map[int]string{}
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))
		if h == "" {
			continue
		}
		if field, ok := columnAliases[h]; ok {
			fields[field] = i
			continue
		}
		if field, ok := columnAliases[strings.ToLower(h)]; ok {
			fields[field] = i
			continue
		}
		extras[i] = h
	}
	return fields, extras
}

func buildRecord(cols []string, fields map[string]int, extras map[int]string) (record.Record, error) {
	get := func(field string) string {
		i, ok := fields[field]
		if !ok || i >= len(cols) {
			return ""
		}
		return strings.TrimSpace(cols[i])
	}

	name := get("name")
	if name == "" {
		return record.Record{}, fmt.Errorf("empty name")
	}
	id := get("id")
	if id == "" {
		id = deriveID(name)
	}

	var extra map[string]string
	for i, header := range extras {
		if i >= len(cols) {
			continue
		}
		if v := strings.TrimSpace(cols[i]); v != "" {
			if extra == nil {
				extra = map[string]string{}
			}
			extra[header] = v
		}
	}

	return record.New(id, name, record.Attributes{
		Description:  get("description"),
		Cluster:      get("cluster"),
		Category:     get("category"),
		Technologies: get("technologies"),
		City:         get("city"),
		Site:         get("site"),
		FoundedYear:  parseYear(get("year")),
		TRL:          parseLevel(get("trl")),
		Extra:        extra,
	})
}

// deriveID builds a stable id from the company name for exports without an
// id column. Same name across loads yields the same id.
func deriveID(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:])[:16]
}

func parseYear(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1900 || n > 2030 {
		return 0
	}
	return n
}

var levelEntryRe = regexp.MustCompile(`(?:^|;\s*)(\d)\s*:`)

// parseLevel extracts the readiness level from values like "7" or
// "8: Продукт A; 6: Продукт B" (the export lists one level per product).
func parseLevel(raw string) int {
	s := strings.TrimSpace(raw)
	if s == "" || s == "0" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n > 9 {
			return 9
		}
		if n < 0 {
			return 0
		}
		return n
	}
	if ms := levelEntryRe.FindAllStringSubmatch(s, -1); len(ms) > 0 {
		level := 0
		for _, m := range ms {
			if n, _ := strconv.Atoi(m[1]); n > level {
				level = n
			}
		}
		return level
	}
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return int(r - '0')
		}
	}
	return 0
}
