// Package lexical implements an in-memory BM25 index over the corpus.
package lexical

import (
	"math"
	"sort"
	"strings"
	"unicode"

	domcorpus "github.com/kailas-cloud/scoutdex/internal/domain/corpus"
)

// BM25 parameters: k1 controls term-frequency saturation, b the document
// length normalization.
const (
	k1 = 1.2
	b  = 0.75
)

// Hit is a scored match.
type Hit struct {
	RecordID string
	Score    float64
}

type posting struct {
	doc int
	tf  int
}

type docEntry struct {
	id     string
	length int
}

// Index is an immutable BM25 index built for one corpus generation.
type Index struct {
	generation string
	docs       []docEntry
	postings   map[string][]posting
	avgLen     float64
}

// Build indexes every record's search text. The index never mutates after
// this; a corpus refresh builds a fresh one.
func Build(c *domcorpus.Corpus) *Index {
	records := c.All()
	idx := &Index{
		generation: c.Generation(),
		docs:       make([]docEntry, len(records)),
		postings:   map[string][]posting{},
	}

	var totalLen int
	for i := range records {
		tokens := Tokenize(records[i].SearchText())
		idx.docs[i] = docEntry{id: records[i].ID(), length: len(tokens)}
		totalLen += len(tokens)

		tf := map[string]int{}
		for _, tok := range tokens {
			tf[tok]++
		}
		for term, n := range tf {
			idx.postings[term] = append(idx.postings[term], posting{doc: i, tf: n})
		}
	}
	if len(records) > 0 {
		idx.avgLen = float64(totalLen) / float64(len(records))
	}
	return idx
}

// Generation returns the corpus generation this index was built from.
func (idx *Index) Generation() string { return idx.generation }

// Len returns the number of indexed documents.
func (idx *Index) Len() int { return len(idx.docs) }

// Search scores documents against the query with BM25 and returns up to
// limit hits, score descending with record id as the tie-break.
func (idx *Index) Search(query string, limit int) []Hit {
	if limit <= 0 {
		return nil
	}
	terms := uniqueTokens(Tokenize(query))
	if len(terms) == 0 {
		return nil
	}

	n := float64(len(idx.docs))
	scores := map[int]float64{}
	for _, term := range terms {
		plist, ok := idx.postings[term]
		if !ok {
			continue
		}
		idf := math.Log(1 + (n-float64(len(plist))+0.5)/(float64(len(plist))+0.5))
		for _, p := range plist {
			tf := float64(p.tf)
			norm := k1 * (1 - b + b*float64(idx.docs[p.doc].length)/idx.avgLen)
			scores[p.doc] += idf * tf * (k1 + 1) / (tf + norm)
		}
	}
	if len(scores) == 0 {
		return nil
	}

	hits := make([]Hit, 0, len(scores))
	for doc, score := range scores {
		hits = append(hits, Hit{RecordID: idx.docs[doc].id, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].RecordID < hits[j].RecordID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// Tokenize lowercases, splits on non-alphanumeric runes and drops stop words
// and single-rune tokens. Exported because the ranker reuses it for the
// category overlap feature.
func Tokenize(text string) []string {
	raw := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(raw))
	for _, tok := range raw {
		tok = strings.ToLower(tok)
		tok = strings.ReplaceAll(tok, "ё", "е")
		if len([]rune(tok)) < 2 {
			continue
		}
		if stopWords[tok] {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

func uniqueTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0]
	for _, tok := range tokens {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

var stopWords = map[string]bool{
	// Russian
	"и": true, "в": true, "во": true, "не": true, "на": true, "с": true,
	"со": true, "как": true, "то": true, "по": true, "для": true, "из": true,
	"от": true, "до": true, "за": true, "при": true, "или": true, "же": true,
	"бы": true, "ли": true, "что": true, "это": true, "эта": true, "этот": true,
	"мы": true, "вы": true, "они": true, "оно": true, "она": true, "он": true,
	"я": true, "ты": true, "их": true, "его": true, "ее": true, "ей": true,
	"ему": true, "нам": true, "вам": true, "им": true, "так": true, "также": true,
	"уже": true, "еще": true, "все": true, "всех": true, "был": true, "была": true,
	"были": true, "быть": true, "есть": true, "нет": true, "да": true, "но": true,
	"а": true, "о": true, "об": true, "у": true, "к": true, "над": true,
	"под": true, "без": true, "про": true, "через": true, "между": true,
	"который": true, "которая": true, "которые": true, "можно": true, "нужно": true,
	// English
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "have": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"or": true, "that": true, "the": true, "to": true, "was": true, "were": true,
	"will": true, "with": true, "this": true, "not": true,
}
