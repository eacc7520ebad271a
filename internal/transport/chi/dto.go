package chi

import (
	domrecord "github.com/kailas-cloud/scoutdex/internal/domain/record"
	"github.com/kailas-cloud/scoutdex/internal/usecase/health"
	"github.com/kailas-cloud/scoutdex/internal/usecase/stats"
)

// Error codes returned to API clients.
const (
	codeBadRequest         = "bad_request"
	codeValidationFailed   = "validation_failed"
	codeUnauthorized       = "unauthorized"
	codeRecordNotFound     = "record_not_found"
	codeCorpusUnavailable  = "corpus_unavailable"
	codeQuotaExceeded      = "embedding_quota_exceeded"
	codeProviderError      = "provider_error"
	codeFeedbackRejected   = "feedback_rejected"
	codeInternalError      = "internal_error"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type searchFilters struct {
	Cluster  string `json:"cluster,omitempty"`
	City     string `json:"city,omitempty"`
	YearFrom int    `json:"year_from,omitempty"`
	YearTo   int    `json:"year_to,omitempty"`
	TRLFrom  int    `json:"trl_from,omitempty"`
	TRLTo    int    `json:"trl_to,omitempty"`
}

type searchRequest struct {
	Query       string        `json:"query"`
	Filters     searchFilters `json:"filters"`
	RequesterID string        `json:"requester_id,omitempty"`
	Limit       int           `json:"limit,omitempty"`
}

type searchResultItem struct {
	RecordID    string  `json:"record_id"`
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
	Rank        int     `json:"rank"`
	Cluster     string  `json:"cluster,omitempty"`
	Category    string  `json:"category,omitempty"`
	City        string  `json:"city,omitempty"`
	Description string  `json:"description,omitempty"`
	HintUsed    bool    `json:"hint_used,omitempty"`
}

type searchResponse struct {
	Results []searchResultItem `json:"results"`
	Total   int                `json:"total"`
}

type feedbackRequest struct {
	Query       string `json:"query"`
	RecordID    string `json:"record_id"`
	Signal      string `json:"signal"`
	RequesterID string `json:"requester_id,omitempty"`
}

type feedbackResponse struct {
	Status string `json:"status"`
}

type recordResponse struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	Cluster      string            `json:"cluster,omitempty"`
	Category     string            `json:"category,omitempty"`
	Technologies string            `json:"technologies,omitempty"`
	City         string            `json:"city,omitempty"`
	Site         string            `json:"site,omitempty"`
	FoundedYear  int               `json:"founded_year,omitempty"`
	TRL          int               `json:"trl,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

func recordToDTO(r *domrecord.Record) recordResponse {
	return recordResponse{
		ID:           r.ID(),
		Name:         r.Name(),
		Description:  r.Description(),
		Cluster:      r.Cluster(),
		Category:     r.Category(),
		Technologies: r.Technologies(),
		City:         r.City(),
		Site:         r.Site(),
		FoundedYear:  r.FoundedYear(),
		TRL:          r.TRL(),
		Extra:        r.Extra(),
	}
}

type budgetDTO struct {
	DailyLimit   int64 `json:"daily_limit"`
	MonthlyLimit int64 `json:"monthly_limit"`
	DailyUsed    int64 `json:"daily_used"`
	MonthlyUsed  int64 `json:"monthly_used"`
}

type statsResponse struct {
	CorpusLoaded      bool       `json:"corpus_loaded"`
	CorpusGeneration  string     `json:"corpus_generation,omitempty"`
	CorpusRecords     int        `json:"corpus_records"`
	VectorIndexReady  bool       `json:"vector_index_ready"`
	WeightsGeneration int        `json:"weights_generation"`
	LearnedPriors     int        `json:"learned_priors"`
	FeedbackEvents    int64      `json:"feedback_events"`
	Budget            *budgetDTO `json:"embedding_budget,omitempty"`
}

func statsToDTO(r stats.Report) statsResponse {
	resp := statsResponse{
		CorpusLoaded:      r.CorpusLoaded,
		CorpusGeneration:  r.CorpusGeneration,
		CorpusRecords:     r.CorpusRecords,
		VectorIndexReady:  r.VectorIndexReady,
		WeightsGeneration: r.WeightsGeneration,
		LearnedPriors:     r.LearnedPriors,
		FeedbackEvents:    r.FeedbackEvents,
	}
	if r.Budget != nil {
		resp.Budget = &budgetDTO{
			DailyLimit:   r.Budget.DailyLimit,
			MonthlyLimit: r.Budget.MonthlyLimit,
			DailyUsed:    r.Budget.DailyUsed,
			MonthlyUsed:  r.Budget.MonthlyUsed,
		}
	}
	return resp
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func healthToDTO(r health.Report) healthResponse {
	checks := make(map[string]string, len(r.Checks))
	for name, c := range r.Checks {
		checks[name] = string(c)
	}
	return healthResponse{Status: string(r.Status), Checks: checks}
}

type refreshResponse struct {
	CorpusGeneration string `json:"corpus_generation"`
	CorpusRecords    int    `json:"corpus_records"`
	VectorIndexReady bool   `json:"vector_index_ready"`
}
