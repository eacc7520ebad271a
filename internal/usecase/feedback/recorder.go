// Package feedback accepts user reaction signals and appends them to the
// ledger off the serving path.
package feedback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/scoutdex/internal/domain"
	domfb "github.com/kailas-cloud/scoutdex/internal/domain/feedback"
	domquery "github.com/kailas-cloud/scoutdex/internal/domain/query"
	"github.com/kailas-cloud/scoutdex/internal/metrics"
)

const (
	defaultBufferSize = 512
	// the writer gets its own deadline, request contexts are long gone
	writeTimeout = 5 * time.Second
)

// ledger is the consumer interface for the feedback store (ISP).
type ledger interface {
	Append(ctx context.Context, events ...domfb.Event) error
}

// recordChecker verifies that feedback targets an existing record.
type recordChecker interface {
	HasRecord(id string) bool
}

// Recorder validates feedback and hands it to a single writer goroutine
// through a buffered channel. Accepting an event never blocks the caller;
// a full buffer drops the event (individual loss is acceptable, the ledger
// itself is durable).
type Recorder struct {
	ledger  ledger
	records recordChecker
	logger  *zap.Logger

	events chan domfb.Event
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewRecorder creates a recorder and starts its writer goroutine.
// records may be nil, record existence is then not checked.
func NewRecorder(l ledger, records recordChecker, logger *zap.Logger) *Recorder {
	r := &Recorder{
		ledger:  l,
		records: records,
		logger:  logger,
		events:  make(chan domfb.Event, defaultBufferSize),
		done:    make(chan struct{}),
	}
	go r.writeLoop()
	return r
}

// Accept validates an explicit feedback signal and queues it for the ledger.
// Validation failures reject the signal; queueing is fire-and-forget.
func (r *Recorder) Accept(queryText, recordID string, signal domfb.Signal, requesterID string) error {
	q, err := domquery.New(queryText, domquery.Filters{}, requesterID, 0)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidFeedback, err)
	}
	if signal == domfb.SignalImpression {
		// impressions are recorded by the pipeline, not by callers
		return fmt.Errorf("%w: signal %q is recorded automatically", domain.ErrInvalidFeedback, signal)
	}
	if r.records != nil && !r.records.HasRecord(recordID) {
		return fmt.Errorf("%w: unknown record %q", domain.ErrRecordNotFound, recordID)
	}

	event, err := domfb.New(
		uuid.NewString(), q.Hash(), q.Text(), recordID,
		signal, domfb.ResultContext{}, requesterID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidFeedback, err)
	}
	r.enqueue(event)
	return nil
}

// RecordImpressions queues one impression event per returned result, with
// the scores the learner correlates against later outcomes. Best-effort.
func (r *Recorder) RecordImpressions(q domquery.Query, candidates []domain.Candidate, results []domain.RankedResult) {
	byID := make(map[string]domain.Candidate, len(candidates))
	for _, c := range candidates {
		byID[c.RecordID] = c
	}
	now := time.Now().UTC()
	for _, res := range results {
		cand := byID[res.RecordID]
		event, err := domfb.New(
			uuid.NewString(), q.Hash(), q.Text(), res.RecordID,
			domfb.SignalImpression,
			domfb.ResultContext{
				Rank:      res.Rank,
				Retrieval: cand.Score,
				Lexical:   cand.Lexical,
				Vector:    cand.Vector,
			},
			q.RequesterID(), now,
		)
		if err != nil {
			r.logger.Warn("skipping invalid impression event", zap.Error(err))
			continue
		}
		r.enqueue(event)
	}
}

func (r *Recorder) enqueue(event domfb.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		metrics.FeedbackDroppedTotal.Inc()
		return
	}
	select {
	case r.events <- event:
		metrics.FeedbackEventsTotal.WithLabelValues(string(event.Signal())).Inc()
	default:
		metrics.FeedbackDroppedTotal.Inc()
		r.logger.Warn("feedback buffer full, dropping event",
			zap.String("record_id", event.RecordID()),
			zap.String("signal", string(event.Signal())))
	}
}

// writeLoop drains the channel and appends to the ledger. Write failures
// are logged and swallowed: feedback must never affect serving.
func (r *Recorder) writeLoop() {
	defer close(r.done)
	for event := range r.events {
		batch := []domfb.Event{event}
		// drain whatever queued up behind the first event
	drain:
		for len(batch) < defaultBufferSize {
			select {
			case next, ok := <-r.events:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := r.ledger.Append(ctx, batch...); err != nil {
			r.logger.Warn("feedback ledger write failed",
				zap.Int("events", len(batch)),
				zap.Error(err))
		}
		cancel()
	}
}

// Close stops accepting events and waits for the writer to flush the queue.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	r.mu.Unlock()
	<-r.done
}
