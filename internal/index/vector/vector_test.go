package vector

import (
	"testing"
)

func TestSearch_RanksByCosine(t *testing.T) {
	idx := newIndex("gen1", 2, map[string][]float32{
		"a": {1, 0},
		"b": {0.6, 0.8},
		"c": {0, 1},
	})

	hits := idx.Search([]float32{1, 0}, 10)
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if hits[0].RecordID != "a" || hits[1].RecordID != "b" || hits[2].RecordID != "c" {
		t.Errorf("unexpected order: %v", hits)
	}
	if hits[0].Score < 0.999 {
		t.Errorf("expected near-perfect score for a, got %g", hits[0].Score)
	}
	if hits[2].Score > 0.001 {
		t.Errorf("expected near-zero score for c, got %g", hits[2].Score)
	}
}

func TestSearch_TieBreaksByID(t *testing.T) {
	idx := newIndex("gen1", 2, map[string][]float32{
		"b": {1, 0},
		"a": {1, 0},
	})

	hits := idx.Search([]float32{1, 0}, 10)
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].RecordID != "a" || hits[1].RecordID != "b" {
		t.Errorf("expected id-ordered ties, got %s, %s", hits[0].RecordID, hits[1].RecordID)
	}
}

func TestSearch_NormalizesStoredVectors(t *testing.T) {
	// same direction at different magnitudes scores identically
	idx := newIndex("gen1", 2, map[string][]float32{
		"a": {3, 4},
		"b": {30, 40},
	})

	hits := idx.Search([]float32{3, 4}, 10)
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	for _, h := range hits {
		if h.Score < 0.999 {
			t.Errorf("record %s: expected near-perfect score, got %g", h.RecordID, h.Score)
		}
	}
}

func TestSearch_Limit(t *testing.T) {
	idx := newIndex("gen1", 2, map[string][]float32{
		"a": {1, 0},
		"b": {0, 1},
		"c": {1, 1},
	})

	hits := idx.Search([]float32{1, 0}, 2)
	if len(hits) != 2 {
		t.Errorf("expected 2 hits, got %d", len(hits))
	}
}

func TestSearch_ZeroQueryVector(t *testing.T) {
	idx := newIndex("gen1", 2, map[string][]float32{"a": {1, 0}})
	if hits := idx.Search([]float32{0, 0}, 10); hits != nil {
		t.Errorf("expected no hits for zero query, got %v", hits)
	}
}

func TestSearch_WrongDimension(t *testing.T) {
	idx := newIndex("gen1", 2, map[string][]float32{"a": {1, 0}})
	if hits := idx.Search([]float32{1, 0, 0}, 10); hits != nil {
		t.Errorf("expected no hits for wrong dimension, got %v", hits)
	}
}

func TestNewIndex_ZeroVectorScoresZero(t *testing.T) {
	idx := newIndex("gen1", 2, map[string][]float32{
		"a": {1, 0},
		"z": {0, 0},
	})

	hits := idx.Search([]float32{1, 0}, 10)
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[1].RecordID != "z" || hits[1].Score != 0 {
		t.Errorf("expected zero score for z last, got %v", hits[1])
	}
}
