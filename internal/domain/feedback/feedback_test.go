package feedback

import (
	"testing"
	"time"
)

func TestNew_Valid(t *testing.T) {
	ts := time.Now()
	e, err := New("ev-1", "abcd1234", "дроны для сельского хозяйства", "sk-42", SignalClick,
		ResultContext{Rank: 3, Retrieval: 0.81, Lexical: 0.9, Vector: 0.7}, "user-1", ts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ID() != "ev-1" {
		t.Errorf("expected ID ev-1, got %s", e.ID())
	}
	if e.Signal() != SignalClick {
		t.Errorf("expected signal click, got %s", e.Signal())
	}
	if e.Strength() != 0.5 {
		t.Errorf("expected strength 0.5, got %f", e.Strength())
	}
	if e.Rank() != 3 {
		t.Errorf("expected rank 3, got %d", e.Rank())
	}
	if e.Retrieval() != 0.81 {
		t.Errorf("expected retrieval 0.81, got %f", e.Retrieval())
	}
	if !e.Timestamp().Equal(ts) {
		t.Errorf("expected timestamp %v, got %v", ts, e.Timestamp())
	}
}

func TestNew_Invalid(t *testing.T) {
	ts := time.Now()
	tests := []struct {
		name string
		fn   func() error
	}{
		{"empty id", func() error {
			_, err := New("", "qh", "", "r", SignalClick, ResultContext{}, "", ts)
			return err
		}},
		{"empty query hash", func() error {
			_, err := New("ev", "", "", "r", SignalClick, ResultContext{}, "", ts)
			return err
		}},
		{"empty record id", func() error {
			_, err := New("ev", "qh", "", "", SignalClick, ResultContext{}, "", ts)
			return err
		}},
		{"unknown signal", func() error {
			_, err := New("ev", "qh", "", "r", Signal("like"), ResultContext{}, "", ts)
			return err
		}},
		{"negative rank", func() error {
			_, err := New("ev", "qh", "", "r", SignalClick, ResultContext{Rank: -1}, "", ts)
			return err
		}},
		{"zero timestamp", func() error {
			_, err := New("ev", "qh", "", "r", SignalClick, ResultContext{}, "", time.Time{})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.fn() == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSignal_Strength(t *testing.T) {
	tests := []struct {
		signal Signal
		want   float64
	}{
		{SignalImpression, 0},
		{SignalClick, 0.5},
		{SignalRelevant, 1.0},
		{SignalContact, 1.0},
		{SignalIrrelevant, -1.0},
	}
	for _, tt := range tests {
		if got := tt.signal.Strength(); got != tt.want {
			t.Errorf("%s: expected strength %f, got %f", tt.signal, tt.want, got)
		}
	}
}

func TestSignal_Polarity(t *testing.T) {
	if !SignalRelevant.IsPositive() || SignalRelevant.IsNegative() {
		t.Error("relevant must be positive")
	}
	if !SignalIrrelevant.IsNegative() || SignalIrrelevant.IsPositive() {
		t.Error("irrelevant must be negative")
	}
	if SignalImpression.IsPositive() || SignalImpression.IsNegative() {
		t.Error("impression must be neutral")
	}
}

func TestSignal_IsValid(t *testing.T) {
	for _, s := range []Signal{SignalImpression, SignalClick, SignalRelevant, SignalIrrelevant, SignalContact} {
		if !s.IsValid() {
			t.Errorf("expected %s to be valid", s)
		}
	}
	if Signal("upvote").IsValid() {
		t.Error("expected upvote to be invalid")
	}
}

func TestReconstruct_PreservesStoredStrength(t *testing.T) {
	ts := time.Now()
	// stored strength wins over the current Signal.Strength mapping
	e := Reconstruct("ev", "qh", "text", "r", SignalClick, 0.75, ResultContext{Rank: 1}, "u", ts)
	if e.Strength() != 0.75 {
		t.Errorf("expected stored strength 0.75, got %f", e.Strength())
	}
}
