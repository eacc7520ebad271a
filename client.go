// Package scoutdex embeds the startup search pipeline in-process: hybrid
// lexical+vector retrieval over the Skolkovo corpus, LLM-assisted
// re-ranking and feedback-driven learning, without the HTTP server.
package scoutdex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/scoutdex/internal/corpus"
	"github.com/kailas-cloud/scoutdex/internal/db"
	dbRedis "github.com/kailas-cloud/scoutdex/internal/db/redis"
	"github.com/kailas-cloud/scoutdex/internal/domain"
	domfb "github.com/kailas-cloud/scoutdex/internal/domain/feedback"
	domquery "github.com/kailas-cloud/scoutdex/internal/domain/query"
	domweights "github.com/kailas-cloud/scoutdex/internal/domain/weights"
	"github.com/kailas-cloud/scoutdex/internal/index/vector"
	"github.com/kailas-cloud/scoutdex/internal/metrics"
	"github.com/kailas-cloud/scoutdex/internal/repository/embcache"
	feedbackrepo "github.com/kailas-cloud/scoutdex/internal/repository/feedback"
	vectorsrepo "github.com/kailas-cloud/scoutdex/internal/repository/vectors"
	weightsrepo "github.com/kailas-cloud/scoutdex/internal/repository/weights"
	openaiTransport "github.com/kailas-cloud/scoutdex/internal/transport/openai"
	feedbackuc "github.com/kailas-cloud/scoutdex/internal/usecase/feedback"
	"github.com/kailas-cloud/scoutdex/internal/usecase/learning"
	"github.com/kailas-cloud/scoutdex/internal/usecase/rank"
	"github.com/kailas-cloud/scoutdex/internal/usecase/retrieve"
	searchuc "github.com/kailas-cloud/scoutdex/internal/usecase/search"
	statsuc "github.com/kailas-cloud/scoutdex/internal/usecase/stats"
)

const defaultReadinessTimeout = 10 * time.Second

// Result is one search hit.
type Result struct {
	RecordID    string
	Name        string
	Description string
	Cluster     string
	City        string
	Score       float64
	Rank        int
}

// Signal is the kind of feedback a caller reports for one result.
type Signal = domfb.Signal

// Feedback signal kinds.
const (
	SignalClick      = domfb.SignalClick
	SignalRelevant   = domfb.SignalRelevant
	SignalIrrelevant = domfb.SignalIrrelevant
	SignalContact    = domfb.SignalContact
)

// Stats is a point-in-time view of the pipeline.
type Stats struct {
	CorpusGeneration  string
	CorpusRecords     int
	VectorIndexReady  bool
	WeightsGeneration int
	FeedbackEvents    int64
}

// Client is the scoutdex SDK entry point.
type Client struct {
	store    db.Store
	builder  *vector.Builder
	pipeline *searchuc.Pipeline
	recorder *feedbackuc.Recorder
	stats    *statsuc.Service
	learner  *learning.Service

	learnerCancel context.CancelFunc
}

// New creates a scoutdex Client, connects to Redis and wires the pipeline.
// Call Refresh before the first Search.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		embedDimensions: 384,
		embedTimeout:    10 * time.Second,
		rerankTimeout:   20 * time.Second,
		maxLLMWeight:    0.5,
		shortlistSize:   30,
		queryTimeout:    15 * time.Second,
		logger:          zap.NewNop(),
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	if len(cfg.addrs) == 0 {
		return nil, errors.New("scoutdex: database address required (use WithRedis)")
	}
	if cfg.csvPath == "" {
		return nil, errors.New("scoutdex: corpus CSV path required (use WithCorpusCSV)")
	}
	if cfg.embedAPIKey == "" && cfg.embedBaseURL == "" {
		return nil, errors.New("scoutdex: embedding provider required (use WithEmbedding)")
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.addrs,
		Password: cfg.password,
	})
	if err != nil {
		return nil, fmt.Errorf("scoutdex: create redis store: %w", err)
	}

	ctx := context.Background()
	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("scoutdex: database not ready: %w", err)
	}

	c, err := wireClient(ctx, store, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	return c, nil
}

func wireClient(ctx context.Context, store db.Store, cfg *clientConfig) (*Client, error) {
	logger := cfg.logger

	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.embedAPIKey,
		BaseURL:    cfg.embedBaseURL,
		Model:      cfg.embedModel,
		Dimensions: cfg.embedDimensions,
		Timeout:    cfg.embedTimeout,
		Provider:   "openai",
		Logger:     logger,
	})
	var embedder domain.Embedder = embcache.New(base, store, 0, metrics.EmbeddingCacheTotal, logger)

	builder, err := vector.NewBuilder(
		embedder, vectorsrepo.New(store, logger),
		cfg.embedDimensions, 4, logger,
	)
	if err != nil {
		return nil, fmt.Errorf("scoutdex: create vector builder: %w", err)
	}

	var hinter domain.RerankHinter
	if cfg.rerankModel != "" {
		hinter = openaiTransport.NewReranker(&openaiTransport.RerankerConfig{
			APIKey:  cfg.embedAPIKey,
			BaseURL: cfg.embedBaseURL,
			Model:   cfg.rerankModel,
			Timeout: cfg.rerankTimeout,
			Logger:  logger,
		})
	}
	ranker, err := rank.New(hinter, rank.Config{MaxLLMWeight: cfg.maxLLMWeight}, logger)
	if err != nil {
		return nil, fmt.Errorf("scoutdex: create ranker: %w", err)
	}

	retriever := retrieve.New(embedder, retrieve.Config{
		LexicalTopN:         100,
		VectorTopN:          100,
		ShortlistSize:       cfg.shortlistSize,
		SingleSourcePenalty: 0.75,
	}, logger)

	weightsStore := weightsrepo.New(store)
	initial, err := weightsStore.LoadCurrent(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrWeightsNotFound) {
			return nil, fmt.Errorf("scoutdex: load ranking weights: %w", err)
		}
		initial = domweights.Default()
	}
	holder := learning.NewHolder(initial)

	ledger := feedbackrepo.New(store, logger)

	pipeline := searchuc.New(
		corpus.NewLoader(cfg.csvPath, logger), builder,
		retriever, ranker, holder, nil,
		searchuc.Config{QueryTimeout: cfg.queryTimeout}, logger,
	)
	recorder := feedbackuc.NewRecorder(ledger, pipeline, logger)
	pipeline.SetImpressions(recorder)

	c := &Client{
		store:    store,
		builder:  builder,
		pipeline: pipeline,
		recorder: recorder,
		stats:    statsuc.New(pipeline, holder, ledger, nil),
	}

	if cfg.learnerInterval > 0 {
		c.learner = learning.New(ledger, weightsStore, holder, learning.Config{
			Interval:       cfg.learnerInterval,
			MinEvents:      5,
			SmoothingAlpha: 1.0,
			MaxStep:        0.1,
		}, logger)
		learnCtx, cancel := context.WithCancel(context.Background())
		c.learnerCancel = cancel
		go c.learner.Run(learnCtx)
	}
	return c, nil
}

// Refresh loads the corpus and builds both indexes. A vector build failure
// leaves the client in lexical-only mode; the error is only corpus-fatal.
func (c *Client) Refresh(ctx context.Context) error {
	if err := c.pipeline.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	return nil
}

// Search returns the startups best matching the free-text query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	q, err := domquery.New(query, domquery.Filters{}, "", limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidQuery, err)
	}
	ranked, err := c.pipeline.Search(ctx, q)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(ranked))
	for _, r := range ranked {
		res := Result{RecordID: r.RecordID, Score: r.Score, Rank: r.Rank}
		if rec, err := c.pipeline.Get(r.RecordID); err == nil {
			res.Name = rec.Name()
			res.Description = rec.Description()
			res.Cluster = rec.Cluster()
			res.City = rec.City()
		}
		results = append(results, res)
	}
	return results, nil
}

// Feedback reports a user reaction to one search result. The event is
// queued and written off the calling path.
func (c *Client) Feedback(queryText, recordID string, signal Signal, requesterID string) error {
	return c.recorder.Accept(queryText, recordID, signal, requesterID)
}

// LearnNow runs one learning cycle immediately instead of waiting for the
// background interval.
func (c *Client) LearnNow(ctx context.Context) error {
	if c.learner == nil {
		return errors.New("scoutdex: learner not enabled (use WithLearner)")
	}
	return c.learner.RunCycle(ctx)
}

// Stats returns the current pipeline state.
func (c *Client) Stats(ctx context.Context) Stats {
	r := c.stats.Report(ctx)
	return Stats{
		CorpusGeneration:  r.CorpusGeneration,
		CorpusRecords:     r.CorpusRecords,
		VectorIndexReady:  r.VectorIndexReady,
		WeightsGeneration: r.WeightsGeneration,
		FeedbackEvents:    r.FeedbackEvents,
	}
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close stops the learner, flushes queued feedback and releases resources.
func (c *Client) Close() {
	if c.learnerCancel != nil {
		c.learnerCancel()
	}
	if c.recorder != nil {
		c.recorder.Close()
	}
	if c.builder != nil {
		c.builder.Release()
	}
	if c.store != nil {
		c.store.Close()
	}
}
