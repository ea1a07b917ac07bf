package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Corpus.ChunkSize != 800 {
		t.Errorf("expected chunk size 800, got %d", cfg.Corpus.ChunkSize)
	}
	if cfg.Corpus.TopK != 3 {
		t.Errorf("expected topK 3, got %d", cfg.Corpus.TopK)
	}
	if cfg.Chat.DefaultSessionID != "default" {
		t.Errorf("expected default session id %q, got %q", "default", cfg.Chat.DefaultSessionID)
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9000
corpus:
  source: postgres
  sourceId: handbook
  chunkSize: 400
  topK: 5
llm:
  timeout: 10s
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RAG_SERVER_PORT", "9100")
	t.Setenv("RAG_LLM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("expected env override port 9100, got %d", cfg.Server.Port)
	}
	if cfg.Corpus.Source != SourcePostgres || cfg.Corpus.SourceID != "handbook" {
		t.Errorf("unexpected corpus config: %+v", cfg.Corpus)
	}
	if cfg.Corpus.ChunkSize != 400 || cfg.Corpus.TopK != 5 {
		t.Errorf("unexpected chunk settings: %+v", cfg.Corpus)
	}
	if cfg.LLM.Timeout != 10*time.Second {
		t.Errorf("expected llm timeout 10s, got %v", cfg.LLM.Timeout)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("expected api key from OPENAI_API_KEY, got %q", cfg.LLM.APIKey)
	}
	if cfg.Redis.CacheTTL != 10*time.Minute {
		t.Errorf("expected untouched default cache ttl, got %v", cfg.Redis.CacheTTL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown source", func(c *Config) { c.Corpus.Source = "s3" }},
		{"file without path", func(c *Config) { c.Corpus.Path = "" }},
		{"postgres without id", func(c *Config) { c.Corpus.Source = SourcePostgres; c.Corpus.SourceID = "" }},
		{"zero chunk size", func(c *Config) { c.Corpus.ChunkSize = 0 }},
		{"zero topK", func(c *Config) { c.Corpus.TopK = 0 }},
		{"empty session id", func(c *Config) { c.Chat.DefaultSessionID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}
