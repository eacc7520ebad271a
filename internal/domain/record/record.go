// Package record defines the startup record aggregate, the unit of the corpus.
package record

import (
	"fmt"
	"regexp"
	"strings"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// MaxDescriptionRunes caps the description text fed into indexing.
const MaxDescriptionRunes = 400

// Attributes holds the optional descriptive fields of a startup.
type Attributes struct {
	Description  string
	Cluster      string
	Category     string
	Technologies string
	City         string
	Site         string
	FoundedYear  int
	TRL          int
	Extra        map[string]string
}

// Record is the startup record aggregate (immutable value object).
// Records are regenerated wholesale on corpus refresh, never patched.
type Record struct {
	id           string
	name         string
	description  string
	cluster      string
	category     string
	technologies string
	city         string
	site         string
	foundedYear  int
	trl          int
	extra        map[string]string
}

// New validates and creates a Record.
// ID: ^[a-zA-Z0-9_-]+$, 1-256 chars. Name: non-empty.
func New(id, name string, attrs Attributes) (Record, error) {
	if id == "" {
		return Record{}, fmt.Errorf("record ID is required")
	}
	if len(id) > 256 {
		return Record{}, fmt.Errorf("record ID too long (max 256)")
	}
	if !idRegex.MatchString(id) {
		return Record{}, fmt.Errorf("record ID must be alphanumeric with underscores and hyphens")
	}
	if strings.TrimSpace(name) == "" {
		return Record{}, fmt.Errorf("record name is required")
	}
	if attrs.TRL < 0 || attrs.TRL > 9 {
		return Record{}, fmt.Errorf("TRL must be between 0 and 9, got %d", attrs.TRL)
	}
	if attrs.FoundedYear != 0 && (attrs.FoundedYear < 1800 || attrs.FoundedYear > 2200) {
		return Record{}, fmt.Errorf("implausible founded year %d", attrs.FoundedYear)
	}

	return Record{
		id:           id,
		name:         strings.TrimSpace(name),
		description:  strings.TrimSpace(attrs.Description),
		cluster:      strings.TrimSpace(attrs.Cluster),
		category:     strings.TrimSpace(attrs.Category),
		technologies: strings.TrimSpace(attrs.Technologies),
		city:         strings.TrimSpace(attrs.City),
		site:         strings.TrimSpace(attrs.Site),
		foundedYear:  attrs.FoundedYear,
		trl:          attrs.TRL,
		extra:        cloneStringMap(attrs.Extra),
	}, nil
}

// Reconstruct creates a Record without validation (storage hydration).
func Reconstruct(id, name string, attrs Attributes) Record {
	return Record{
		id:           id,
		name:         name,
		description:  attrs.Description,
		cluster:      attrs.Cluster,
		category:     attrs.Category,
		technologies: attrs.Technologies,
		city:         attrs.City,
		site:         attrs.Site,
		foundedYear:  attrs.FoundedYear,
		trl:          attrs.TRL,
		extra:        attrs.Extra,
	}
}

// ID returns the stable record identifier.
func (r *Record) ID() string { return r.id }

// Name returns the company name.
func (r *Record) Name() string { return r.name }

// Description returns the free-text company description.
func (r *Record) Description() string { return r.description }

// Cluster returns the Skolkovo cluster the startup belongs to.
func (r *Record) Cluster() string { return r.cluster }

// Category returns the declared business domains.
func (r *Record) Category() string { return r.category }

// Technologies returns the project technology list.
func (r *Record) Technologies() string { return r.technologies }

// City returns the company city.
func (r *Record) City() string { return r.city }

// Site returns the company web site.
func (r *Record) Site() string { return r.site }

// FoundedYear returns the founding year, 0 when unknown.
func (r *Record) FoundedYear() int { return r.foundedYear }

// TRL returns the technology readiness level, 0 when unknown.
func (r *Record) TRL() int { return r.trl }

// Extra returns unmapped source columns. Callers must not modify it.
func (r *Record) Extra() map[string]string { return r.extra }

// SearchText builds the text both indices consume: name, cluster, category,
// technologies and a truncated description joined together.
func (r *Record) SearchText() string {
	parts := make([]string, 0, 5)
	for _, p := range []string{r.name, r.cluster, r.category, r.technologies} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if d := truncateRunes(r.description, MaxDescriptionRunes); d != "" {
		parts = append(parts, d)
	}
	return strings.Join(parts, " ")
}

// Summary builds the labeled block sent to the rerank capability.
func (r *Record) Summary() string {
	var b strings.Builder
	b.WriteString("Название: " + orNA(r.name) + "\n")
	b.WriteString("Кластер: " + orNA(r.cluster) + "\n")
	b.WriteString("Описание: " + orNA(truncateRunes(r.description, 300)) + "\n")
	b.WriteString("Технологии: " + orNA(truncateRunes(r.technologies, 150)) + "\n")
	b.WriteString("Отрасли: " + orNA(truncateRunes(r.category, 100)))
	return b.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
