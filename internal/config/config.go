package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the scoutdex pipeline configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Learning  LearningConfig  `yaml:"learning"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds Redis connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// CorpusConfig holds corpus source settings.
type CorpusConfig struct {
	CSVPath string `yaml:"csv_path"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// EmbeddingConfig holds the embedding provider settings.
type EmbeddingConfig struct {
	APIKey              string       `yaml:"api_key"`
	BaseURL             string       `yaml:"base_url"`
	Model               string       `yaml:"model"`
	Dimensions          int          `yaml:"dimensions"`
	TimeoutSec          int          `yaml:"timeout_sec"`
	QueryInstruction    string       `yaml:"query_instruction"`
	DocumentInstruction string       `yaml:"document_instruction"`
	BuildConcurrency    int          `yaml:"build_concurrency"`
	CacheTTLSec         int          `yaml:"cache_ttl_sec"` // query embedding cache TTL, 0 = no expiry
	Budget              BudgetConfig `yaml:"budget"`
}

// RerankConfig holds LLM rerank-hint settings.
type RerankConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Model         string  `yaml:"model"`
	TimeoutSec    int     `yaml:"timeout_sec"`
	MaxLLMWeight  float64 `yaml:"max_llm_weight"` // upper bound for the hint blend weight
	HintCacheSize int     `yaml:"hint_cache_size"`
}

// RetrievalConfig holds candidate retrieval settings.
type RetrievalConfig struct {
	LexicalTopN         int     `yaml:"lexical_top_n"`
	VectorTopN          int     `yaml:"vector_top_n"`
	ShortlistSize       int     `yaml:"shortlist_size"`
	SingleSourcePenalty float64 `yaml:"single_source_penalty"`
	QueryTimeoutSec     int     `yaml:"query_timeout_sec"`
	VectorRetrySec      int     `yaml:"vector_retry_sec"` // degraded vector index rebuild interval
}

// LearningConfig holds the feedback learner settings.
type LearningConfig struct {
	Enabled        bool    `yaml:"enabled"`
	IntervalSec    int     `yaml:"interval_sec"`
	MinEvents      int     `yaml:"min_events"` // skip a cycle with fewer new events
	SmoothingAlpha float64 `yaml:"smoothing_alpha"`
	MaxStep        float64 `yaml:"max_step"` // per-cycle bound on any single weight change
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 384
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 10
	}
	if c.Embedding.BuildConcurrency <= 0 {
		c.Embedding.BuildConcurrency = 4
	}
	if c.Rerank.TimeoutSec <= 0 {
		c.Rerank.TimeoutSec = 20
	}
	if c.Rerank.MaxLLMWeight <= 0 {
		c.Rerank.MaxLLMWeight = 0.5
	}
	if c.Rerank.HintCacheSize <= 0 {
		c.Rerank.HintCacheSize = 256
	}
	if c.Retrieval.LexicalTopN <= 0 {
		c.Retrieval.LexicalTopN = 100
	}
	if c.Retrieval.VectorTopN <= 0 {
		c.Retrieval.VectorTopN = 100
	}
	if c.Retrieval.ShortlistSize <= 0 {
		c.Retrieval.ShortlistSize = 30
	}
	if c.Retrieval.SingleSourcePenalty <= 0 {
		c.Retrieval.SingleSourcePenalty = 0.75
	}
	if c.Retrieval.QueryTimeoutSec <= 0 {
		c.Retrieval.QueryTimeoutSec = 15
	}
	if c.Retrieval.VectorRetrySec <= 0 {
		c.Retrieval.VectorRetrySec = 300
	}
	if c.Learning.IntervalSec <= 0 {
		c.Learning.IntervalSec = 1800
	}
	if c.Learning.MinEvents <= 0 {
		c.Learning.MinEvents = 5
	}
	if c.Learning.SmoothingAlpha <= 0 {
		c.Learning.SmoothingAlpha = 1.0
	}
	if c.Learning.MaxStep <= 0 {
		c.Learning.MaxStep = 0.1
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Corpus.CSVPath == "" {
		return fmt.Errorf("corpus.csv_path is required")
	}
	switch c.Embedding.Budget.Action {
	case "", "warn", "reject":
		// ok
	default:
		return fmt.Errorf(
			"embedding.budget.action must be \"warn\" or \"reject\", got %q",
			c.Embedding.Budget.Action,
		)
	}
	if c.Retrieval.ShortlistSize > 50 {
		return fmt.Errorf("retrieval.shortlist_size must not exceed 50, got %d", c.Retrieval.ShortlistSize)
	}
	if c.Retrieval.SingleSourcePenalty > 1 {
		return fmt.Errorf("retrieval.single_source_penalty must be in (0, 1], got %v", c.Retrieval.SingleSourcePenalty)
	}
	if c.Rerank.MaxLLMWeight > 1 {
		return fmt.Errorf("rerank.max_llm_weight must be in (0, 1], got %v", c.Rerank.MaxLLMWeight)
	}
	if c.Learning.MaxStep > 1 {
		return fmt.Errorf("learning.max_step must be in (0, 1], got %v", c.Learning.MaxStep)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
