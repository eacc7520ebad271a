// Package vector implements an in-memory cosine-similarity index over record
// embeddings, built once per corpus generation.
package vector

import (
	"math"
	"sort"
)

// Hit is a scored match.
type Hit struct {
	RecordID string
	Score    float64
}

// Index is an immutable cosine index for one corpus generation. Vectors are
// L2-normalized at construction so search reduces to dot products.
type Index struct {
	generation string
	dim        int
	ids        []string
	vectors    [][]float32
}

// newIndex assembles an index from per-record vectors. Ids are sorted so the
// scan order is deterministic.
func newIndex(generation string, dim int, byID map[string][]float32) *Index {
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	idx := &Index{
		generation: generation,
		dim:        dim,
		ids:        ids,
		vectors:    make([][]float32, len(ids)),
	}
	for i, id := range ids {
		vec := normalize(byID[id])
		if vec == nil {
			vec = make([]float32, dim)
		}
		idx.vectors[i] = vec
	}
	return idx
}

// Generation returns the corpus generation this index was built from.
func (idx *Index) Generation() string { return idx.generation }

// Len returns the number of indexed vectors.
func (idx *Index) Len() int { return len(idx.ids) }

// Dimensions returns the vector dimensionality.
func (idx *Index) Dimensions() int { return idx.dim }

// Search scores every record against the query vector by cosine similarity
// and returns up to limit hits, score descending with record id as the
// tie-break. A zero or wrong-dimension query yields no hits.
func (idx *Index) Search(queryVec []float32, limit int) []Hit {
	if limit <= 0 || len(queryVec) != idx.dim {
		return nil
	}
	q := normalize(queryVec)
	if q == nil {
		return nil
	}

	hits := make([]Hit, 0, len(idx.ids))
	for i, id := range idx.ids {
		hits = append(hits, Hit{RecordID: id, Score: dot(q, idx.vectors[i])})
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

// normalize returns an L2-normalized copy, or nil for a zero vector.
func normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return nil
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
