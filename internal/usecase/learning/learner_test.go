package learning

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	domfb "github.com/kailas-cloud/scoutdex/internal/domain/feedback"
	domweights "github.com/kailas-cloud/scoutdex/internal/domain/weights"
	"github.com/kailas-cloud/scoutdex/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterPipelineMetrics()
	os.Exit(m.Run())
}

type mockLedger struct {
	events []domfb.Event
	err    error
}

func (m *mockLedger) All(context.Context) ([]domfb.Event, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.events, nil
}

type mockWeightsStore struct {
	saved []domweights.Weights
	err   error
}

func (m *mockWeightsStore) Save(_ context.Context, w domweights.Weights) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, w)
	return nil
}

func defaultConfig() Config {
	return Config{
		Interval:       time.Hour,
		MinEvents:      1,
		SmoothingAlpha: 1.0,
		MaxStep:        0.1,
	}
}

func mustEvent(t *testing.T, recordID string, signal domfb.Signal, rctx domfb.ResultContext) domfb.Event {
	t.Helper()
	e, err := domfb.New(
		fmt.Sprintf("ev-%s-%s-%d", recordID, signal, time.Now().UnixNano()),
		"qhash", "query text", recordID, signal, rctx, "", time.Now().UTC().Add(-time.Minute),
	)
	if err != nil {
		t.Fatalf("failed to create event: %v", err)
	}
	return e
}

func TestRunCycle_PriorsFromPositiveRate(t *testing.T) {
	ledger := &mockLedger{events: []domfb.Event{
		mustEvent(t, "good", domfb.SignalRelevant, domfb.ResultContext{}),
		mustEvent(t, "good", domfb.SignalRelevant, domfb.ResultContext{}),
		mustEvent(t, "good", domfb.SignalRelevant, domfb.ResultContext{}),
		mustEvent(t, "bad", domfb.SignalIrrelevant, domfb.ResultContext{}),
		mustEvent(t, "bad", domfb.SignalIrrelevant, domfb.ResultContext{}),
	}}
	store := &mockWeightsStore{}
	holder := NewHolder(domweights.Default())
	s := New(ledger, store, holder, defaultConfig(), zap.NewNop())

	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	w := holder.Current()
	if w.Generation() != 1 {
		t.Fatalf("expected generation 1, got %d", w.Generation())
	}
	// raw prior for good = (3+1)/(3+2) = 0.8, clamped to 0.5+maxStep = 0.6
	if got := w.PriorFor("good"); !approx(got, 0.6) {
		t.Errorf("expected good prior bounded at 0.6, got %v", got)
	}
	// raw prior for bad = 1/4 = 0.25, clamped to 0.5-maxStep = 0.4
	if got := w.PriorFor("bad"); !approx(got, 0.4) {
		t.Errorf("expected bad prior bounded at 0.4, got %v", got)
	}
	// unseen records keep the neutral default
	if got := w.PriorFor("unseen"); !approx(got, domweights.DefaultPrior) {
		t.Errorf("expected default prior for unseen record, got %v", got)
	}
	if len(store.saved) != 1 {
		t.Errorf("expected 1 persisted generation, got %d", len(store.saved))
	}
}

func TestRunCycle_StepBoundHoldsOverConsecutiveGenerations(t *testing.T) {
	// overwhelmingly positive feedback for one record
	events := make([]domfb.Event, 0, 20)
	for i := 0; i < 20; i++ {
		events = append(events, mustEvent(t, "hot", domfb.SignalRelevant, domfb.ResultContext{}))
	}
	ledger := &mockLedger{events: events}
	store := &mockWeightsStore{}
	holder := NewHolder(domweights.Default())
	cfg := defaultConfig()
	cfg.MinEvents = 1
	s := New(ledger, store, holder, cfg, zap.NewNop())

	prev := holder.Current()
	for cycle := 0; cycle < 3; cycle++ {
		// keep feeding new events so the min-events gate passes
		ledger.events = append(ledger.events, mustEvent(t, "hot", domfb.SignalRelevant, domfb.ResultContext{}))
		if err := s.RunCycle(context.Background()); err != nil {
			t.Fatalf("cycle %d failed: %v", cycle, err)
		}
		cur := holder.Current()
		if d := math.Abs(cur.PriorFor("hot") - prev.PriorFor("hot")); d > cfg.MaxStep+1e-9 {
			t.Errorf("cycle %d: prior moved %v, exceeds step bound %v", cycle, d, cfg.MaxStep)
		}
		if d := math.Abs(cur.Params().Lexical - prev.Params().Lexical); d > cfg.MaxStep+1e-9 {
			t.Errorf("cycle %d: lexical weight moved %v, exceeds step bound %v", cycle, d, cfg.MaxStep)
		}
		prev = cur
	}
	// after three cycles the prior converged toward 1 in bounded steps
	if got := prev.PriorFor("hot"); !approx(got, 0.8) {
		t.Errorf("expected prior at 0.8 after three bounded steps, got %v", got)
	}
}

func TestRunCycle_SkipsBelowMinEvents(t *testing.T) {
	ledger := &mockLedger{events: []domfb.Event{
		mustEvent(t, "a", domfb.SignalClick, domfb.ResultContext{}),
	}}
	store := &mockWeightsStore{}
	holder := NewHolder(domweights.Default())
	cfg := defaultConfig()
	cfg.MinEvents = 5
	s := New(ledger, store, holder, cfg, zap.NewNop())

	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("skipped cycle must not error: %v", err)
	}
	if holder.Current().Generation() != 0 {
		t.Errorf("expected generation 0 after skip, got %d", holder.Current().Generation())
	}
	if len(store.saved) != 0 {
		t.Errorf("expected nothing persisted after skip, got %d", len(store.saved))
	}
}

func TestRunCycle_OnlyNewEventsCountTowardMin(t *testing.T) {
	ledger := &mockLedger{}
	for i := 0; i < 5; i++ {
		ledger.events = append(ledger.events, mustEvent(t, "a", domfb.SignalClick, domfb.ResultContext{}))
	}
	store := &mockWeightsStore{}
	holder := NewHolder(domweights.Default())
	cfg := defaultConfig()
	cfg.MinEvents = 5
	s := New(ledger, store, holder, cfg, zap.NewNop())

	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}
	if holder.Current().Generation() != 1 {
		t.Fatalf("expected first cycle applied, generation %d", holder.Current().Generation())
	}

	// same ledger, no new events: the second cycle must skip
	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}
	if holder.Current().Generation() != 1 {
		t.Errorf("expected generation unchanged without new events, got %d", holder.Current().Generation())
	}
}

func TestRunCycle_BlendMovesTowardBetterSource(t *testing.T) {
	// the positively-rated record was found by the vector side
	impression := mustEvent(t, "vecfind", domfb.SignalImpression, domfb.ResultContext{
		Rank: 1, Retrieval: 0.9, Lexical: 0.1, Vector: 0.9,
	})
	ledger := &mockLedger{events: []domfb.Event{
		impression,
		mustEvent(t, "vecfind", domfb.SignalRelevant, domfb.ResultContext{}),
	}}
	store := &mockWeightsStore{}
	holder := NewHolder(domweights.Default())
	s := New(ledger, store, holder, defaultConfig(), zap.NewNop())

	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	w := holder.Current()
	if w.Params().Vector <= 0.5 {
		t.Errorf("expected vector weight above 0.5 after vector-driven positives, got %v", w.Params().Vector)
	}
	if !approx(w.Params().Lexical+w.Params().Vector, 1.0) {
		t.Errorf("blend must stay complementary, got %v + %v", w.Params().Lexical, w.Params().Vector)
	}
	// bounded: at most one step away from the default 0.5
	if w.Params().Vector > 0.5+defaultConfig().MaxStep+1e-9 {
		t.Errorf("vector weight %v exceeded the step bound", w.Params().Vector)
	}
}

func TestRunCycle_LedgerErrorKeepsCurrentGeneration(t *testing.T) {
	ledger := &mockLedger{err: errors.New("redis down")}
	store := &mockWeightsStore{}
	holder := NewHolder(domweights.Default())
	s := New(ledger, store, holder, defaultConfig(), zap.NewNop())

	if err := s.RunCycle(context.Background()); err == nil {
		t.Fatal("expected error from failed snapshot read")
	}
	if holder.Current().Generation() != 0 {
		t.Errorf("failed cycle must keep the current generation, got %d", holder.Current().Generation())
	}
}

func TestRunCycle_SaveErrorDoesNotPublish(t *testing.T) {
	ledger := &mockLedger{events: []domfb.Event{
		mustEvent(t, "a", domfb.SignalRelevant, domfb.ResultContext{}),
	}}
	store := &mockWeightsStore{err: errors.New("write failed")}
	holder := NewHolder(domweights.Default())
	s := New(ledger, store, holder, defaultConfig(), zap.NewNop())

	if err := s.RunCycle(context.Background()); err == nil {
		t.Fatal("expected error when persistence fails")
	}
	if holder.Current().Generation() != 0 {
		t.Errorf("unpersisted generation must never be published, got %d", holder.Current().Generation())
	}

	// next cycle retries the same events once the store recovers
	store.err = nil
	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("retry cycle failed: %v", err)
	}
	if holder.Current().Generation() != 1 {
		t.Errorf("expected generation 1 after retry, got %d", holder.Current().Generation())
	}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }
