package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/scoutdex/internal/config"
	"github.com/kailas-cloud/scoutdex/internal/corpus"
	"github.com/kailas-cloud/scoutdex/internal/db"
	dbRedis "github.com/kailas-cloud/scoutdex/internal/db/redis"
	"github.com/kailas-cloud/scoutdex/internal/domain"
	domweights "github.com/kailas-cloud/scoutdex/internal/domain/weights"
	"github.com/kailas-cloud/scoutdex/internal/index/vector"
	logpkg "github.com/kailas-cloud/scoutdex/internal/logger"
	"github.com/kailas-cloud/scoutdex/internal/metrics"
	budgetrepo "github.com/kailas-cloud/scoutdex/internal/repository/budget"
	"github.com/kailas-cloud/scoutdex/internal/repository/embcache"
	feedbackrepo "github.com/kailas-cloud/scoutdex/internal/repository/feedback"
	vectorsrepo "github.com/kailas-cloud/scoutdex/internal/repository/vectors"
	weightsrepo "github.com/kailas-cloud/scoutdex/internal/repository/weights"
	chiTransport "github.com/kailas-cloud/scoutdex/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/scoutdex/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/scoutdex/internal/usecase/embedding"
	feedbackuc "github.com/kailas-cloud/scoutdex/internal/usecase/feedback"
	healthuc "github.com/kailas-cloud/scoutdex/internal/usecase/health"
	"github.com/kailas-cloud/scoutdex/internal/usecase/learning"
	"github.com/kailas-cloud/scoutdex/internal/usecase/rank"
	"github.com/kailas-cloud/scoutdex/internal/usecase/retrieve"
	searchuc "github.com/kailas-cloud/scoutdex/internal/usecase/search"
	statsuc "github.com/kailas-cloud/scoutdex/internal/usecase/stats"
	"github.com/kailas-cloud/scoutdex/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting scoutdex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("corpus_csv", cfg.Corpus.CSVPath),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	// Single BudgetTracker shared across both embedders and the stats service.
	var budget *embeddinguc.BudgetTracker
	budgetCfg := cfg.Embedding.Budget
	if budgetCfg.DailyTokenLimit > 0 || budgetCfg.MonthlyTokenLimit > 0 {
		action := embeddinguc.BudgetActionWarn
		if budgetCfg.Action == "reject" {
			action = embeddinguc.BudgetActionReject
		}
		budget = embeddinguc.NewBudgetTracker(
			"openai", budgetCfg.DailyTokenLimit, budgetCfg.MonthlyTokenLimit, action, logger,
		)
		budgetStore := budgetrepo.New(store, 48*time.Hour, 62*24*time.Hour)
		budget.WithStore(ctx, budgetStore)
	}

	// Pass nil interface (not typed nil pointer!) if budget is not configured.
	var budgetChecker embeddinguc.BudgetChecker
	if budget != nil {
		budgetChecker = budget
	}

	docEmbedder := buildEmbedder(cfg.Embedding, cfg.Embedding.DocumentInstruction, 0, store, budgetChecker, logger)
	queryEmbedder := buildEmbedder(cfg.Embedding, cfg.Embedding.QueryInstruction,
		time.Duration(cfg.Embedding.CacheTTLSec)*time.Second, store, budgetChecker, logger)
	logger.Info("Embedders created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	builder, err := vector.NewBuilder(
		docEmbedder, vectorsrepo.New(store, logger),
		cfg.Embedding.Dimensions, cfg.Embedding.BuildConcurrency, logger,
	)
	if err != nil {
		logger.Fatal("Failed to create vector builder", zap.Error(err))
	}
	defer builder.Release()

	var hinter domain.RerankHinter
	if cfg.Rerank.Enabled {
		hinter = openaiTransport.NewReranker(&openaiTransport.RerankerConfig{
			APIKey:  cfg.Embedding.APIKey,
			BaseURL: cfg.Embedding.BaseURL,
			Model:   cfg.Rerank.Model,
			Timeout: time.Duration(cfg.Rerank.TimeoutSec) * time.Second,
			Logger:  logger,
		})
		logger.Info("Rerank hints enabled", zap.String("model", cfg.Rerank.Model))
	}
	ranker, err := rank.New(hinter, rank.Config{
		MaxLLMWeight:  cfg.Rerank.MaxLLMWeight,
		HintCacheSize: cfg.Rerank.HintCacheSize,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create ranker", zap.Error(err))
	}

	retriever := retrieve.New(queryEmbedder, retrieve.Config{
		LexicalTopN:         cfg.Retrieval.LexicalTopN,
		VectorTopN:          cfg.Retrieval.VectorTopN,
		ShortlistSize:       cfg.Retrieval.ShortlistSize,
		SingleSourcePenalty: cfg.Retrieval.SingleSourcePenalty,
	}, logger)

	// Ranking weights: resume the persisted generation or start from defaults.
	weightsStore := weightsrepo.New(store)
	initialWeights, err := weightsStore.LoadCurrent(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrWeightsNotFound) {
			logger.Fatal("Failed to load ranking weights", zap.Error(err))
		}
		initialWeights = domweights.Default()
		logger.Info("No persisted ranking weights, starting from defaults")
	} else {
		logger.Info("Loaded ranking weights", zap.Int("generation", initialWeights.Generation()))
	}
	holder := learning.NewHolder(initialWeights)

	ledger := feedbackrepo.New(store, logger)

	pipeline := searchuc.New(
		corpus.NewLoader(cfg.Corpus.CSVPath, logger), builder,
		retriever, ranker, holder, nil,
		searchuc.Config{QueryTimeout: time.Duration(cfg.Retrieval.QueryTimeoutSec) * time.Second},
		logger,
	)
	recorder := feedbackuc.NewRecorder(ledger, pipeline, logger)
	defer recorder.Close()
	pipeline.SetImpressions(recorder)

	// Initial load: a missing corpus is fatal, a failed vector build only
	// degrades to lexical-only (retried below).
	if err := pipeline.Refresh(ctx); err != nil {
		logger.Fatal("Failed to load corpus", zap.Error(err))
	}

	runCtx, cancelBackground := context.WithCancel(ctx)
	defer cancelBackground()

	if !pipeline.VectorReady() {
		go retryVectorBuild(runCtx, pipeline, time.Duration(cfg.Retrieval.VectorRetrySec)*time.Second, logger)
	}

	if cfg.Learning.Enabled {
		learner := learning.New(ledger, weightsStore, holder, learning.Config{
			Interval:       time.Duration(cfg.Learning.IntervalSec) * time.Second,
			MinEvents:      cfg.Learning.MinEvents,
			SmoothingAlpha: cfg.Learning.SmoothingAlpha,
			MaxStep:        cfg.Learning.MaxStep,
		}, logger)
		go learner.Run(runCtx)
		logger.Info("Learner started",
			zap.Int("interval_sec", cfg.Learning.IntervalSec),
			zap.Int("min_events", cfg.Learning.MinEvents))
	}

	var budgetReader statsuc.BudgetReader
	if budget != nil {
		budgetReader = budget
	}
	statsSvc := statsuc.New(pipeline, holder, ledger, budgetReader)
	healthSvc := healthuc.New(store, newEmbeddingHealthChecker(queryEmbedder), pipeline)

	server := chiTransport.NewServer(pipeline, recorder, statsSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// retryVectorBuild re-attempts the vector index build until it succeeds or
// the server stops. Searches keep serving lexical-only in the meantime.
func retryVectorBuild(ctx context.Context, pipeline *searchuc.Pipeline, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := pipeline.EnsureVector(ctx); err != nil {
				logger.Warn("Vector index rebuild failed, will retry", zap.Error(err))
				continue
			}
			return
		}
	}
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented -> Instruction
func buildEmbedder(
	embCfg config.EmbeddingConfig,
	instruction string,
	cacheTTL time.Duration,
	store db.Store,
	budget embeddinguc.BudgetChecker,
	logger *zap.Logger,
) domain.Embedder {
	// Base provider (with transport metrics built-in)
	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     embCfg.APIKey,
		BaseURL:    embCfg.BaseURL,
		Model:      embCfg.Model,
		Dimensions: embCfg.Dimensions,
		Timeout:    time.Duration(embCfg.TimeoutSec) * time.Second,
		Provider:   "openai",
		Logger:     logger,
	})

	// Cached
	var embedder domain.Embedder = base
	if store != nil {
		embedder = embcache.New(base, store, cacheTTL, metrics.EmbeddingCacheTotal, logger)
	}

	// Instrumented (budget + metrics)
	embedder = embeddinguc.NewInstrumentedEmbedder(embedder, "openai", embCfg.Model, budget, logger)

	// Instruction prefix (outermost — cache key includes instruction)
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}

	return embedder
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
