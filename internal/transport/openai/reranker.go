package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/scoutdex/internal/domain"
)

const (
	hintTemperature = 0.1
	// Enough for a JSON object with ~50 id:score pairs.
	hintMaxTokens = 700
)

// Reranker scores a whole shortlist with one chat completion. Scores follow
// the 0-100 relevance bands and are normalized to [0, 1].
type Reranker struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// RerankerConfig holds the rerank capability settings.
type RerankerConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewReranker creates an OpenAI-compatible rerank-hint provider.
func NewReranker(cfg *RerankerConfig) *Reranker {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Reranker{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}
}

// Hint implements domain.RerankHinter. Returns hints in candidate order;
// candidates the model skipped are absent from the result.
func (r *Reranker) Hint(ctx context.Context, query string, candidates []domain.HintCandidate) ([]domain.RerankHint, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: buildHintPrompt(query, candidates),
		}},
		Temperature: hintTemperature,
		MaxTokens:   hintMaxTokens,
	}

	start := time.Now()
	resp, err := r.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		return nil, parseAPIError("rerank", err, domain.ErrRerankProviderError)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty rerank response: %w", domain.ErrRerankProviderError)
	}

	scores := parseHintScores(resp.Choices[0].Message.Content, candidates)
	if len(scores) == 0 {
		return nil, fmt.Errorf("unparsable rerank response: %w", domain.ErrRerankProviderError)
	}

	hints := make([]domain.RerankHint, 0, len(scores))
	for _, c := range candidates {
		score, ok := scores[c.ID]
		if !ok {
			continue
		}
		hints = append(hints, domain.RerankHint{ID: c.ID, Score: score})
	}

	r.logger.Debug("Rerank hints received",
		zap.String("model", r.model),
		zap.Duration("duration", duration),
		zap.Int("candidates", len(candidates)),
		zap.Int("scored", len(hints)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return hints, nil
}

// buildHintPrompt renders the scoring prompt: the query, numbered candidate
// summaries and the relevance bands.
func buildHintPrompt(query string, candidates []domain.HintCandidate) string {
	var b strings.Builder
	b.WriteString("Оцени релевантность каждого стартапа запросу пользователя по шкале от 0 до 100.\n\n")
	b.WriteString("ЗАПРОС ПОЛЬЗОВАТЕЛЯ:\n")
	b.WriteString(query)
	b.WriteString("\n\nСТАРТАПЫ:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "[%d] id=%s\n%s\n\n", i+1, c.ID, c.Summary)
	}
	b.WriteString("КРИТЕРИИ:\n")
	b.WriteString("- 90-100: Прямое совпадение продукта/технологии\n")
	b.WriteString("- 70-89: Высокая релевантность, смежная область\n")
	b.WriteString("- 50-69: Средняя, общая тематика\n")
	b.WriteString("- 30-49: Низкая, слабая связь\n")
	b.WriteString("- 0-29: Нерелевантно\n\n")
	b.WriteString(`ОТВЕТ строго в формате JSON без пояснений: {"id": число, ...}`)
	return b.String()
}

// parseHintScores extracts per-candidate scores from the model output.
// Primary format is a JSON object id->score; the fallback scans lines for a
// candidate id followed by a number. Unknown ids are dropped, scores clamped
// to [0, 100] and normalized to [0, 1].
func parseHintScores(content string, candidates []domain.HintCandidate) map[string]float64 {
	known := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		known[c.ID] = struct{}{}
	}

	if scores := parseJSONScores(content, known); len(scores) > 0 {
		return scores
	}
	return parseLineScores(content, candidates)
}

func parseJSONScores(content string, known map[string]struct{}) map[string]float64 {
	first := strings.Index(content, "{")
	last := strings.LastIndex(content, "}")
	if first < 0 || last <= first {
		return nil
	}

	var raw map[string]float64
	if err := json.Unmarshal([]byte(content[first:last+1]), &raw); err != nil {
		return nil
	}

	scores := make(map[string]float64, len(raw))
	for id, v := range raw {
		if _, ok := known[id]; !ok {
			continue
		}
		scores[id] = clampScore(v) / 100
	}
	return scores
}

var hintNumberRe = regexp.MustCompile(`\d{1,3}(?:\.\d+)?`)

func parseLineScores(content string, candidates []domain.HintCandidate) map[string]float64 {
	segments := strings.FieldsFunc(content, func(r rune) bool {
		return r == '\n' || r == ','
	})
	scores := make(map[string]float64)
	for _, seg := range segments {
		for _, c := range candidates {
			if !strings.Contains(seg, c.ID) {
				continue
			}
			// strip the id so its own digits are never mistaken for the score
			rest := strings.ReplaceAll(seg, c.ID, " ")
			matches := hintNumberRe.FindAllString(rest, -1)
			if len(matches) == 0 {
				continue
			}
			v, err := strconv.ParseFloat(matches[len(matches)-1], 64)
			if err != nil {
				continue
			}
			scores[c.ID] = clampScore(v) / 100
			break
		}
	}
	return scores
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
