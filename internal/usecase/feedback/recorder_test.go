package feedback

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/scoutdex/internal/domain"
	domfb "github.com/kailas-cloud/scoutdex/internal/domain/feedback"
	domquery "github.com/kailas-cloud/scoutdex/internal/domain/query"
	"github.com/kailas-cloud/scoutdex/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterPipelineMetrics()
	os.Exit(m.Run())
}

type mockLedger struct {
	mu     sync.Mutex
	events []domfb.Event
	err    error
	calls  int
}

func (m *mockLedger) Append(_ context.Context, events ...domfb.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, events...)
	return nil
}

func (m *mockLedger) all() []domfb.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domfb.Event, len(m.events))
	copy(out, m.events)
	return out
}

type mockChecker struct {
	known map[string]bool
}

func (m *mockChecker) HasRecord(id string) bool { return m.known[id] }

func TestAccept_QueuesValidSignal(t *testing.T) {
	l := &mockLedger{}
	r := NewRecorder(l, &mockChecker{known: map[string]bool{"rec1": true}}, zap.NewNop())

	if err := r.Accept("AI in agriculture", "rec1", domfb.SignalRelevant, "user42"); err != nil {
		t.Fatalf("unexpected reject: %v", err)
	}
	r.Close()

	events := l.all()
	if len(events) != 1 {
		t.Fatalf("expected 1 ledger event, got %d", len(events))
	}
	e := events[0]
	if e.RecordID() != "rec1" || e.Signal() != domfb.SignalRelevant {
		t.Errorf("unexpected event: record=%s signal=%s", e.RecordID(), e.Signal())
	}
	if e.ID() == "" {
		t.Error("expected a generated event id")
	}
	if e.QueryHash() == "" {
		t.Error("expected a query hash")
	}
	if e.RequesterID() != "user42" {
		t.Errorf("expected requester user42, got %s", e.RequesterID())
	}
}

func TestAccept_Rejections(t *testing.T) {
	r := NewRecorder(&mockLedger{}, &mockChecker{known: map[string]bool{"rec1": true}}, zap.NewNop())
	defer r.Close()

	tests := []struct {
		name     string
		query    string
		recordID string
		signal   domfb.Signal
		sentinel error
	}{
		{"empty query", "", "rec1", domfb.SignalClick, domain.ErrInvalidFeedback},
		{"unknown signal", "query", "rec1", domfb.Signal("meh"), domain.ErrInvalidFeedback},
		{"impression from caller", "query", "rec1", domfb.SignalImpression, domain.ErrInvalidFeedback},
		{"unknown record", "query", "ghost", domfb.SignalClick, domain.ErrRecordNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Accept(tt.query, tt.recordID, tt.signal, "")
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("expected %v, got %v", tt.sentinel, err)
			}
		})
	}
}

func TestAccept_NilCheckerSkipsRecordValidation(t *testing.T) {
	l := &mockLedger{}
	r := NewRecorder(l, nil, zap.NewNop())

	if err := r.Accept("query", "anything", domfb.SignalClick, ""); err != nil {
		t.Fatalf("unexpected reject without checker: %v", err)
	}
	r.Close()
	if len(l.all()) != 1 {
		t.Errorf("expected event written, got %d", len(l.all()))
	}
}

func TestRecordImpressions_CarriesResultContext(t *testing.T) {
	l := &mockLedger{}
	r := NewRecorder(l, nil, zap.NewNop())

	q, err := domquery.New("AI in agriculture", domquery.Filters{}, "user1", 10)
	if err != nil {
		t.Fatalf("failed to create query: %v", err)
	}
	candidates := []domain.Candidate{
		{RecordID: "a", Score: 0.8, Lexical: 0.9, Vector: 0.7},
		{RecordID: "b", Score: 0.3, Lexical: 0.4, Vector: 0.0},
	}
	results := []domain.RankedResult{
		{RecordID: "b", Rank: 1, Score: 0.9},
		{RecordID: "a", Rank: 2, Score: 0.7},
	}
	r.RecordImpressions(q, candidates, results)
	r.Close()

	events := l.all()
	if len(events) != 2 {
		t.Fatalf("expected 2 impression events, got %d", len(events))
	}
	for _, e := range events {
		if e.Signal() != domfb.SignalImpression {
			t.Errorf("expected impression signal, got %s", e.Signal())
		}
	}
	if events[0].RecordID() != "b" || events[0].Rank() != 1 {
		t.Errorf("first event: expected b at rank 1, got %s at %d", events[0].RecordID(), events[0].Rank())
	}
	if events[1].Retrieval() != 0.8 || events[1].Lexical() != 0.9 || events[1].Vector() != 0.7 {
		t.Errorf("second event: retrieval context not carried: %+v", events[1])
	}
}

func TestConcurrentAccepts_NoEventLostWithRoomInBuffer(t *testing.T) {
	l := &mockLedger{}
	r := NewRecorder(l, nil, zap.NewNop())

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Accept("concurrent query", "rec", domfb.SignalClick, ""); err != nil {
				t.Errorf("unexpected reject: %v", err)
			}
		}()
	}
	wg.Wait()
	r.Close()

	if got := len(l.all()); got != n {
		t.Errorf("expected exactly %d ledger events, got %d", n, got)
	}
}

func TestWriteFailure_IsSwallowed(t *testing.T) {
	l := &mockLedger{err: errors.New("redis down")}
	r := NewRecorder(l, nil, zap.NewNop())

	if err := r.Accept("query", "rec", domfb.SignalClick, ""); err != nil {
		t.Fatalf("ledger failure must not surface to the caller: %v", err)
	}
	r.Close()
}

func TestAcceptAfterClose_DoesNotPanic(t *testing.T) {
	r := NewRecorder(&mockLedger{}, nil, zap.NewNop())
	r.Close()
	if err := r.Accept("query", "rec", domfb.SignalClick, ""); err != nil {
		t.Fatalf("accept after close should silently drop, got %v", err)
	}
	// second close is a no-op
	done := make(chan struct{})
	go func() {
		r.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("double close deadlocked")
	}
}
