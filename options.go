package scoutdex

import (
	"time"

	"go.uber.org/zap"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	addrs    []string
	password string

	csvPath string

	embedAPIKey     string
	embedBaseURL    string
	embedModel      string
	embedDimensions int
	embedTimeout    time.Duration

	rerankModel   string
	rerankTimeout time.Duration
	maxLLMWeight  float64

	shortlistSize int
	queryTimeout  time.Duration

	learnerInterval time.Duration

	logger *zap.Logger
}

// WithRedis configures the client to connect to a Redis instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithCorpusCSV sets the startup database CSV export path.
func WithCorpusCSV(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.csvPath = path
	})
}

// WithEmbedding configures the embedding provider.
func WithEmbedding(apiKey, baseURL, model string, dimensions int) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedAPIKey = apiKey
		c.embedBaseURL = baseURL
		c.embedModel = model
		c.embedDimensions = dimensions
	})
}

// WithRerank enables the LLM rerank-hint capability. The model is queried
// through the same provider credentials as the embedder.
func WithRerank(model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.rerankModel = model
	})
}

// WithMaxLLMWeight bounds the rerank-hint contribution to final scores.
func WithMaxLLMWeight(w float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxLLMWeight = w
	})
}

// WithShortlistSize caps the candidate set handed to re-ranking.
func WithShortlistSize(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.shortlistSize = n
	})
}

// WithQueryTimeout bounds one search call end to end.
func WithQueryTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.queryTimeout = d
	})
}

// WithLearner starts the background learning loop with the given interval.
func WithLearner(interval time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.learnerInterval = interval
	})
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}
