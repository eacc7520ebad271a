// Package chi exposes the pipeline over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/scoutdex/internal/domain"
	domfb "github.com/kailas-cloud/scoutdex/internal/domain/feedback"
	domquery "github.com/kailas-cloud/scoutdex/internal/domain/query"
	domrecord "github.com/kailas-cloud/scoutdex/internal/domain/record"
	"github.com/kailas-cloud/scoutdex/internal/usecase/health"
	"github.com/kailas-cloud/scoutdex/internal/usecase/stats"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// searcher is the pipeline surface the transport consumes (ISP).
type searcher interface {
	Search(ctx context.Context, q domquery.Query) ([]domain.RankedResult, error)
	Get(id string) (domrecord.Record, error)
	Refresh(ctx context.Context) error
	VectorReady() bool
	CorpusInfo() (generation string, records int, ok bool)
}

// feedbackAcceptor accepts caller feedback signals.
type feedbackAcceptor interface {
	Accept(queryText, recordID string, signal domfb.Signal, requesterID string) error
}

// Server handles the scoutdex HTTP API.
type Server struct {
	pipeline      searcher
	feedback      feedbackAcceptor
	stats         *stats.Service
	health        *health.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	pipeline searcher,
	feedback feedbackAcceptor,
	statsSvc *stats.Service,
	healthSvc *health.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		pipeline: pipeline,
		feedback: feedback,
		stats:    statsSvc,
		health:   healthSvc,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrCorpusUnavailable, http.StatusServiceUnavailable, codeCorpusUnavailable),
		sentinelHandler(domain.ErrCorpusLoad, http.StatusServiceUnavailable, codeCorpusUnavailable),
		sentinelHandler(domain.ErrRecordNotFound, http.StatusNotFound, codeRecordNotFound),
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrInvalidFeedback, http.StatusBadRequest, codeFeedbackRejected),
		sentinelHandler(domain.ErrEmbeddingQuotaExceeded, http.StatusPaymentRequired, codeQuotaExceeded),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeProviderError),
		sentinelHandler(domain.ErrRerankProviderError, http.StatusBadGateway, codeProviderError),
	}
	return s
}

// Register attaches all API routes to the router.
func (s *Server) Register(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/feedback", s.handleFeedback)
		r.Get("/records/{id}", s.handleGetRecord)
		r.Get("/stats", s.handleStats)
		r.Post("/refresh", s.handleRefresh)
	})
}

// handleSearch handles POST /api/v1/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	q, err := domquery.New(req.Query, domquery.Filters{
		Cluster:  req.Filters.Cluster,
		City:     req.Filters.City,
		YearFrom: req.Filters.YearFrom,
		YearTo:   req.Filters.YearTo,
		TRLFrom:  req.Filters.TRLFrom,
		TRLTo:    req.Filters.TRLTo,
	}, req.RequesterID, req.Limit)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	results, err := s.pipeline.Search(r.Context(), q)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]searchResultItem, 0, len(results))
	for _, res := range results {
		item := searchResultItem{
			RecordID: res.RecordID,
			Score:    res.Score,
			Rank:     res.Rank,
			HintUsed: res.HintUsed,
		}
		if rec, err := s.pipeline.Get(res.RecordID); err == nil {
			item.Name = rec.Name()
			item.Cluster = rec.Cluster()
			item.Category = rec.Category()
			item.City = rec.City()
			item.Description = rec.Description()
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: items, Total: len(items)})
}

// handleFeedback handles POST /api/v1/feedback. Accepted events return 202;
// the write itself happens off the request path.
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := s.feedback.Accept(req.Query, req.RecordID, domfb.Signal(req.Signal), req.RequesterID); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, feedbackResponse{Status: "accepted"})
}

// handleGetRecord handles GET /api/v1/records/{id}.
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.pipeline.Get(id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recordToDTO(&rec))
}

// handleStats handles GET /api/v1/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statsToDTO(s.stats.Report(r.Context())))
}

// handleRefresh handles POST /api/v1/refresh: reload the corpus and
// rebuild the indexes.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.Refresh(r.Context()); err != nil {
		s.handleDomainError(w, err)
		return
	}
	gen, records, _ := s.pipeline.CorpusInfo()
	writeJSON(w, http.StatusOK, refreshResponse{
		CorpusGeneration: gen,
		CorpusRecords:    records,
		VectorIndexReady: s.pipeline.VectorReady(),
	})
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	status := http.StatusOK
	if report.Status == health.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthToDTO(report))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	for _, sentinel := range []error{
		domain.ErrCorpusUnavailable,
		domain.ErrCorpusLoad,
		domain.ErrRecordNotFound,
		domain.ErrInvalidQuery,
		domain.ErrInvalidFeedback,
		domain.ErrEmbeddingQuotaExceeded,
		domain.ErrEmbeddingProviderError,
		domain.ErrRerankProviderError,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal error"
}

func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
