package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Jira      JiraConfig      `yaml:"jira"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Search    SearchConfig    `yaml:"search"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Log       LogConfig       `yaml:"log"`
}

// JiraConfig selects the Jira instance. Credentials stay in the environment (JIRA_PAT,
// JIRA_EMAIL + JIRA_API_TOKEN, JIRA_CLIENTS_JSON, ...).
type JiraConfig struct {
	Client     string        `yaml:"client"`
	BaseURL    string        `yaml:"base_url"`
	APIVersion int           `yaml:"api_version"`
	Timeout    time.Duration `yaml:"timeout"`
}

type CatalogConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type SearchConfig struct {
	DefaultLimit        int     `yaml:"default_limit"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	MinScore            float64 `yaml:"min_score"`
}

type IndexConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Path            string        `yaml:"path"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	MaxDistance     float64       `yaml:"max_distance"`
}

type EmbeddingConfig struct {
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	Dimensions     int           `yaml:"dimensions"`
	TokenBudget    int           `yaml:"token_budget"`
	MaxBatchInputs int           `yaml:"max_batch_inputs"`
	Concurrency    int           `yaml:"concurrency"`
	Timeout        time.Duration `yaml:"timeout"`
	QueryCacheSize int           `yaml:"query_cache_size"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Jira: JiraConfig{Timeout: 30 * time.Second},
		Catalog: CatalogConfig{
			TTL: time.Hour,
		},
		Search: SearchConfig{
			DefaultLimit:        10,
			SimilarityThreshold: 0.72,
			MinScore:            0.33,
		},
		Index: IndexConfig{
			Enabled:         true,
			Path:            defaultIndexPath(),
			RefreshInterval: 10 * time.Minute,
			MaxDistance:     0.7,
		},
		Embedding: EmbeddingConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "text-embedding-3-small",
			Dimensions:     512,
			TokenBudget:    8000,
			MaxBatchInputs: 96,
			Concurrency:    2,
			Timeout:        30 * time.Second,
			QueryCacheSize: 512,
		},
		Log: LogConfig{Level: "info"},
	}
}

func defaultIndexPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "jira-lens", "projects.vec")
	}
	return filepath.Join(home, ".jira-lens", "projects.vec")
}

// Load reads an optional YAML file over the defaults, then applies environment overrides.
// A .env file next to the config (or in the working directory) is loaded first; it never
// overrides variables already present in the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	envFile := ".env"
	if path != "" {
		envFile = filepath.Join(filepath.Dir(path), ".env")
	}
	if err := LoadDotEnv(envFile); err != nil {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	envString("JIRA_LENS_JIRA_CLIENT", &cfg.Jira.Client)
	envInt("JIRA_LENS_JIRA_API_VERSION", &cfg.Jira.APIVersion)
	envDuration("JIRA_LENS_CATALOG_TTL", &cfg.Catalog.TTL)
	envInt("JIRA_LENS_SEARCH_LIMIT", &cfg.Search.DefaultLimit)
	envFloat("JIRA_LENS_SIMILARITY_THRESHOLD", &cfg.Search.SimilarityThreshold)
	envFloat("JIRA_LENS_MIN_SCORE", &cfg.Search.MinScore)
	envBool("JIRA_LENS_INDEX_ENABLED", &cfg.Index.Enabled)
	envString("JIRA_LENS_INDEX_PATH", &cfg.Index.Path)
	envDuration("JIRA_LENS_INDEX_REFRESH_INTERVAL", &cfg.Index.RefreshInterval)
	envFloat("JIRA_LENS_INDEX_MAX_DISTANCE", &cfg.Index.MaxDistance)

	// The conventional OpenAI variable first, the prefixed one wins when both are set.
	envString("OPENAI_API_KEY", &cfg.Embedding.APIKey)
	envString("JIRA_LENS_EMBEDDING_API_KEY", &cfg.Embedding.APIKey)
	envString("JIRA_LENS_EMBEDDING_BASE_URL", &cfg.Embedding.BaseURL)
	envString("JIRA_LENS_EMBEDDING_MODEL", &cfg.Embedding.Model)
	envInt("JIRA_LENS_EMBEDDING_DIMENSIONS", &cfg.Embedding.Dimensions)
	envInt("JIRA_LENS_EMBEDDING_TOKEN_BUDGET", &cfg.Embedding.TokenBudget)
	envDuration("JIRA_LENS_EMBEDDING_TIMEOUT", &cfg.Embedding.Timeout)

	envString("JIRA_LENS_LOG_LEVEL", &cfg.Log.Level)
}

// Validate rejects values that would make the search layers misbehave.
func (c Config) Validate() error {
	if c.Catalog.TTL < 0 {
		return fmt.Errorf("catalog.ttl must be >= 0")
	}
	if c.Search.DefaultLimit < 1 {
		return fmt.Errorf("search.default_limit must be positive")
	}
	if c.Search.SimilarityThreshold < 0 || c.Search.SimilarityThreshold > 1 {
		return fmt.Errorf("search.similarity_threshold must be within [0,1]")
	}
	if c.Search.MinScore < 0 || c.Search.MinScore > 1 {
		return fmt.Errorf("search.min_score must be within [0,1]")
	}
	if c.Index.RefreshInterval < 0 {
		return fmt.Errorf("index.refresh_interval must be >= 0")
	}
	if c.Index.MaxDistance < 0 || c.Index.MaxDistance > 2 {
		return fmt.Errorf("index.max_distance must be within [0,2]")
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions must be >= 0")
	}
	if c.Jira.APIVersion != 0 && c.Jira.APIVersion != 2 && c.Jira.APIVersion != 3 {
		return fmt.Errorf("jira.api_version must be 2 or 3")
	}
	return nil
}

// SemanticEnabled reports whether the embedding layer has enough configuration to run.
func (c Config) SemanticEnabled() bool {
	return c.Index.Enabled &&
		strings.TrimSpace(c.Embedding.APIKey) != "" &&
		strings.TrimSpace(c.Embedding.Model) != ""
}

func envString(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(key string, dst *bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	*dst = v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
}

// envDuration accepts Go durations ("90s", "10m") or a bare number of seconds.
func envDuration(key string, dst *time.Duration) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		*dst = time.Duration(n) * time.Second
	}
}
