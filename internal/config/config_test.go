package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Config{
		HTTP:  HTTPConfig{Port: 8080},
		Store: StoreConfig{Driver: DriverBadger, Path: "/tmp/books"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_OK(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.HTTP.Port = 0 }, "http.port"},
		{"badger without path", func(c *Config) { c.Store.Path = "" }, "store.path"},
		{"bolt without path", func(c *Config) { c.Store.Driver, c.Store.Path = DriverBolt, "" }, "store.path"},
		{"redis without addrs", func(c *Config) { c.Store.Driver = DriverRedis }, "store.addrs"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "valkey" }, "store.driver"},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "nebius" }, "embedding.provider"},
		{"openai without model", func(c *Config) { c.Embedding.Provider = ProviderOpenAI }, "embedding.model"},
		{"negative rps", func(c *Config) { c.Embedding.RateLimitRPS = -1 }, "rate_limit_rps"},
		{"vacuum ratio", func(c *Config) { c.Index.VacuumRatio = 1 }, "vacuum_ratio"},
		{"bm25 b", func(c *Config) { c.Index.BM25B = 2 }, "bm25_b"},
		{"negative timeout", func(c *Config) { c.Search.TimeoutMs = -5 }, "timeout_ms"},
		{"zero rerank", func(c *Config) { c.Ranking.RerankCount = map[string]int{"fusion": 0} }, "rerank_count.fusion"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidate_MemoryNeedsNothing(t *testing.T) {
	cfg := Config{HTTP: HTTPConfig{Port: 8080}, Store: StoreConfig{Driver: DriverMemory}}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 || cfg.HTTP.WriteTimeoutSec != 30 || cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("http defaults: %+v", cfg.HTTP)
	}
	if cfg.Store.Driver != DriverBadger {
		t.Errorf("expected driver badger, got %q", cfg.Store.Driver)
	}
	if cfg.Embedding.Provider != ProviderHashing {
		t.Errorf("expected provider hashing, got %q", cfg.Embedding.Provider)
	}
	if cfg.Embedding.DenseDimensions != 384 || cfg.Embedding.TokenDimensions != 16 {
		t.Errorf("dimensions: %d/%d", cfg.Embedding.DenseDimensions, cfg.Embedding.TokenDimensions)
	}
	if cfg.Index.HNSWM != 16 || cfg.Index.HNSWEFConstruct != 200 || cfg.Index.HNSWEFSearch != 100 {
		t.Errorf("hnsw defaults: %+v", cfg.Index)
	}
	if cfg.Index.BM25K1 != 1.2 || cfg.Index.BM25B != 0.75 {
		t.Errorf("bm25 defaults: %+v", cfg.Index)
	}
	if cfg.Ranking.RRFK != 60 {
		t.Errorf("expected RRFK=60, got %d", cfg.Ranking.RRFK)
	}
	if cfg.Search.DefaultProfile != "bm25" {
		t.Errorf("expected default profile bm25, got %q", cfg.Search.DefaultProfile)
	}
	if cfg.Ingest.Workers < 1 || cfg.Ingest.MaxBatchSize != 1000 || cfg.Ingest.PassageWorkers != 4 {
		t.Errorf("ingest defaults: %+v", cfg.Ingest)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:    HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Store:   StoreConfig{Driver: DriverBolt},
		Index:   IndexConfig{HNSWM: 32, BM25K1: 2},
		Ranking: RankingConfig{RRFK: 10},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 || cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("http overridden: %+v", cfg.HTTP)
	}
	if cfg.Store.Driver != DriverBolt {
		t.Errorf("driver overridden: %q", cfg.Store.Driver)
	}
	if cfg.Index.HNSWM != 32 || cfg.Index.BM25K1 != 2 {
		t.Errorf("index overridden: %+v", cfg.Index)
	}
	if cfg.Ranking.RRFK != 10 {
		t.Errorf("rrf_k overridden: %d", cfg.Ranking.RRFK)
	}
}

func TestLoadFile_ExpandsEnv(t *testing.T) {
	t.Setenv("BOOKREC_TEST_PORT", "9091")
	t.Setenv("BOOKREC_TEST_KEY", "")

	path := filepath.Join(t.TempDir(), "test.yaml")
	data := `
http:
  port: ${BOOKREC_TEST_PORT}
store:
  driver: memory
embedding:
  api_key: ${BOOKREC_TEST_KEY:-none}
ranking:
  rerank_count:
    colbert_local: 50
search:
  timeout_ms: 1500
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.HTTP.Port != 9091 {
		t.Errorf("port: got %d", cfg.HTTP.Port)
	}
	if cfg.Embedding.APIKey != "none" {
		t.Errorf("api key default: got %q", cfg.Embedding.APIKey)
	}
	if cfg.Ranking.RerankCount["colbert_local"] != 50 {
		t.Errorf("rerank override: %v", cfg.Ranking.RerankCount)
	}
	if cfg.Search.Timeout() != 1500*time.Millisecond {
		t.Errorf("timeout: got %v", cfg.Search.Timeout())
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("http:\n  port: 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("expected validation error")
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected read error")
	}
}

func TestLoad_LocalConfig(t *testing.T) {
	cfg, err := Load("local")
	if err != nil {
		t.Fatalf("Load(local): %v", err)
	}
	if cfg.HTTP.Port == 0 {
		t.Error("local config must set a port")
	}
}
