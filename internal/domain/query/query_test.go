package query

import (
	"strings"
	"testing"
)

func TestNew_Valid(t *testing.T) {
	q, err := New("стартапы в области компьютерного зрения", Filters{Cluster: "ИТ"}, "user-1", 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Text() != "стартапы в области компьютерного зрения" {
		t.Errorf("unexpected text: %q", q.Text())
	}
	if q.Filters().Cluster != "ИТ" {
		t.Errorf("expected cluster filter ИТ, got %q", q.Filters().Cluster)
	}
	if q.RequesterID() != "user-1" {
		t.Errorf("expected requester user-1, got %q", q.RequesterID())
	}
	if q.Limit() != 20 {
		t.Errorf("expected limit 20, got %d", q.Limit())
	}
}

func TestNew_TrimsText(t *testing.T) {
	q, err := New("  дроны  ", Filters{}, "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Text() != "дроны" {
		t.Errorf("expected trimmed text, got %q", q.Text())
	}
}

func TestNew_EmptyText(t *testing.T) {
	if _, err := New("   ", Filters{}, "", 10); err == nil {
		t.Fatal("expected error for blank text")
	}
}

func TestNew_TextTooLong(t *testing.T) {
	long := strings.Repeat("ж", MaxTextRunes+1)
	_, err := New(long, Filters{}, "", 10)
	if err == nil {
		t.Fatal("expected error for too long text")
	}
	if !strings.Contains(err.Error(), "too long") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestNew_LimitNormalization(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"zero falls back to default", 0, 10},
		{"negative falls back to default", -5, 10},
		{"oversized is clipped", 500, 50},
		{"in range passes through", 30, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := New("дроны", Filters{}, "", tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if q.Limit() != tt.want {
				t.Errorf("expected limit %d, got %d", tt.want, q.Limit())
			}
		})
	}
}

func TestNew_InvertedRanges(t *testing.T) {
	if _, err := New("дроны", Filters{YearFrom: 2020, YearTo: 2010}, "", 10); err == nil {
		t.Error("expected error for inverted year range")
	}
	if _, err := New("дроны", Filters{TRLFrom: 7, TRLTo: 3}, "", 10); err == nil {
		t.Error("expected error for inverted TRL range")
	}
}

func TestHash_NormalizesWhitespaceAndCase(t *testing.T) {
	q1, err := New("Компьютерное  Зрение", Filters{}, "", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q2, err := New("компьютерное зрение", Filters{}, "", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q1.Hash() != q2.Hash() {
		t.Errorf("expected equal hashes, got %s vs %s", q1.Hash(), q2.Hash())
	}
	if len(q1.Hash()) != 16 {
		t.Errorf("expected 16-char hash, got %d", len(q1.Hash()))
	}
}

func TestHash_DiffersByText(t *testing.T) {
	q1, _ := New("дроны", Filters{}, "", 10)
	q2, _ := New("биотех", Filters{}, "", 10)
	if q1.Hash() == q2.Hash() {
		t.Error("expected different hashes for different queries")
	}
}

func TestFilters_IsEmpty(t *testing.T) {
	if !(Filters{}).IsEmpty() {
		t.Error("expected zero filters to be empty")
	}
	if (Filters{City: "Москва"}).IsEmpty() {
		t.Error("expected city filter to be non-empty")
	}
}
