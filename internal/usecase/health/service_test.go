package health

import (
	"context"
	"errors"
	"testing"
)

type mockPinger struct{ err error }

func (m *mockPinger) Ping(context.Context) error { return m.err }

type mockEmbedding struct{ err error }

func (m *mockEmbedding) HealthCheck(context.Context) error { return m.err }

type mockCorpus struct{ ready bool }

func (m *mockCorpus) Ready() bool { return m.ready }

func TestCheck_AllHealthy(t *testing.T) {
	s := New(&mockPinger{}, &mockEmbedding{}, &mockCorpus{ready: true})
	r := s.Check(context.Background())
	if r.Status != Healthy {
		t.Errorf("expected %s, got %s", Healthy, r.Status)
	}
	for name, c := range r.Checks {
		if c != CheckOK {
			t.Errorf("check %s: expected ok, got %s", name, c)
		}
	}
}

func TestCheck_NoCorpusIsUnhealthy(t *testing.T) {
	s := New(&mockPinger{}, &mockEmbedding{}, &mockCorpus{ready: false})
	r := s.Check(context.Background())
	if r.Status != Unhealthy {
		t.Errorf("missing corpus must be unhealthy, got %s", r.Status)
	}
	if r.Checks["corpus"] != CheckError {
		t.Errorf("expected corpus check error, got %s", r.Checks["corpus"])
	}
}

func TestCheck_EmbeddingDownOnlyDegrades(t *testing.T) {
	s := New(&mockPinger{}, &mockEmbedding{err: errors.New("down")}, &mockCorpus{ready: true})
	r := s.Check(context.Background())
	if r.Status != Degraded {
		t.Errorf("expected %s, got %s", Degraded, r.Status)
	}
}

func TestCheck_DatabaseDownOnlyDegrades(t *testing.T) {
	s := New(&mockPinger{err: errors.New("down")}, nil, &mockCorpus{ready: true})
	r := s.Check(context.Background())
	if r.Status != Degraded {
		t.Errorf("expected %s, got %s", Degraded, r.Status)
	}
	if _, ok := r.Checks["embedding"]; ok {
		t.Error("nil embedding checker must not produce a check")
	}
}
