package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the bookrec service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Auth      AuthConfig      `yaml:"auth"`
	Index     IndexConfig     `yaml:"index"`
	Ranking   RankingConfig   `yaml:"ranking"`
	Search    SearchConfig    `yaml:"search"`
	Ingest    IngestConfig    `yaml:"ingest"`
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

// Store drivers.
const (
	DriverBadger = "badger"
	DriverBolt   = "bolt"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// StoreConfig selects the document store.
type StoreConfig struct {
	Driver   string   `yaml:"driver"` // badger (default), bolt, redis, memory
	Path     string   `yaml:"path"`   // badger directory or bolt file
	Addrs    []string `yaml:"addrs"`  // redis
	Password string   `yaml:"password"`
}

// Embedding providers.
const (
	ProviderOpenAI    = "openai"
	ProviderLangchain = "langchain"
	ProviderHashing   = "hashing"
)

// EmbeddingConfig holds the embedding provider chain settings.
type EmbeddingConfig struct {
	Provider            string      `yaml:"provider"` // openai, langchain, hashing (default)
	Model               string      `yaml:"model"`
	BaseURL             string      `yaml:"base_url"`
	APIKey              string      `yaml:"api_key"`
	DenseDimensions     int         `yaml:"dense_dimensions"`
	TokenDimensions     int         `yaml:"token_dimensions"`
	DocumentInstruction string      `yaml:"document_instruction"`
	QueryInstruction    string      `yaml:"query_instruction"`
	RateLimitRPS        float64     `yaml:"rate_limit_rps"` // 0 = unlimited
	RateLimitBurst      int         `yaml:"rate_limit_burst"`
	Cache               CacheConfig `yaml:"cache"`
}

// CacheConfig enables the Redis embedding cache when Addrs is set.
type CacheConfig struct {
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
	TTLHours int      `yaml:"ttl_hours"` // 0 = never expire
}

// Enabled reports whether the cache is configured.
func (c CacheConfig) Enabled() bool { return len(c.Addrs) > 0 }

// IndexConfig holds HNSW and BM25 parameters.
type IndexConfig struct {
	HNSWM           int     `yaml:"hnsw_m"`
	HNSWEFConstruct int     `yaml:"hnsw_ef_construction"`
	HNSWEFSearch    int     `yaml:"hnsw_ef_search"`
	HNSWSeed        int64   `yaml:"hnsw_seed"`
	VacuumRatio     float64 `yaml:"vacuum_ratio"`
	BM25K1          float64 `yaml:"bm25_k1"`
	BM25B           float64 `yaml:"bm25_b"`
}

// RankingConfig holds fusion and profile overrides.
type RankingConfig struct {
	RRFK        int            `yaml:"rrf_k"`
	TargetHits  int            `yaml:"target_hits"`  // overrides every semantic profile when set
	RerankCount map[string]int `yaml:"rerank_count"` // by profile name
}

// SearchConfig holds query defaults.
type SearchConfig struct {
	DefaultProfile string `yaml:"default_profile"`
	TimeoutMs      int    `yaml:"timeout_ms"` // 0 disables the deadline
}

// Timeout returns the query deadline.
func (s SearchConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// IngestConfig holds batch ingestion settings.
type IngestConfig struct {
	Workers        int `yaml:"workers"`
	MaxBatchSize   int `yaml:"max_batch_size"`
	PassageWorkers int `yaml:"passage_workers"` // concurrent token embeddings per document
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
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
	if c.Store.Driver == "" {
		c.Store.Driver = DriverBadger
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = ProviderHashing
	}
	if c.Embedding.DenseDimensions <= 0 {
		c.Embedding.DenseDimensions = 384
	}
	if c.Embedding.TokenDimensions <= 0 {
		c.Embedding.TokenDimensions = 16
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 200
	}
	if c.Index.HNSWEFSearch <= 0 {
		c.Index.HNSWEFSearch = 100
	}
	if c.Index.HNSWSeed == 0 {
		c.Index.HNSWSeed = 42
	}
	if c.Index.VacuumRatio == 0 {
		c.Index.VacuumRatio = 0.2
	}
	if c.Index.BM25K1 <= 0 {
		c.Index.BM25K1 = 1.2
	}
	if c.Index.BM25B == 0 {
		c.Index.BM25B = 0.75
	}
	if c.Ranking.RRFK <= 0 {
		c.Ranking.RRFK = 60
	}
	if c.Search.DefaultProfile == "" {
		c.Search.DefaultProfile = "bm25"
	}
	if c.Ingest.Workers <= 0 {
		c.Ingest.Workers = max(runtime.NumCPU()/2, 1)
	}
	if c.Ingest.MaxBatchSize <= 0 {
		c.Ingest.MaxBatchSize = 1000
	}
	if c.Ingest.PassageWorkers <= 0 {
		c.Ingest.PassageWorkers = 4
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Store.Driver {
	case DriverBadger, DriverBolt:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for driver %q", c.Store.Driver)
		}
	case DriverRedis:
		if len(c.Store.Addrs) == 0 {
			return fmt.Errorf("store.addrs is required for driver %q", c.Store.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("store.driver must be one of badger, bolt, redis, memory, got %q", c.Store.Driver)
	}
	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderLangchain:
		if c.Embedding.Model == "" {
			return fmt.Errorf("embedding.model is required for provider %q", c.Embedding.Provider)
		}
	case ProviderHashing:
	default:
		return fmt.Errorf("embedding.provider must be one of openai, langchain, hashing, got %q", c.Embedding.Provider)
	}
	if c.Embedding.RateLimitRPS < 0 {
		return fmt.Errorf("embedding.rate_limit_rps must not be negative")
	}
	if c.Index.VacuumRatio < 0 || c.Index.VacuumRatio >= 1 {
		return fmt.Errorf("index.vacuum_ratio must be in [0, 1), got %g", c.Index.VacuumRatio)
	}
	if c.Index.BM25B < 0 || c.Index.BM25B > 1 {
		return fmt.Errorf("index.bm25_b must be in [0, 1], got %g", c.Index.BM25B)
	}
	if c.Search.TimeoutMs < 0 {
		return fmt.Errorf("search.timeout_ms must not be negative")
	}
	for name, n := range c.Ranking.RerankCount {
		if n <= 0 {
			return fmt.Errorf("ranking.rerank_count.%s must be positive, got %d", name, n)
		}
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
