package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "test-key")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.RAG.ChunkSize != 10000 || cfg.RAG.ChunkOverlap != 1000 {
		t.Errorf("chunking: got %d/%d", cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	}
	if cfg.LLM.Temperature != 0.3 {
		t.Errorf("temperature: got %v", cfg.LLM.Temperature)
	}
	if cfg.LLM.APIKeyEnv != "GOOGLE_API_KEY" || cfg.LLM.Key != "test-key" {
		t.Errorf("key: got %q from %q", cfg.LLM.Key, cfg.LLM.APIKeyEnv)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	path := writeConfig(t, `
llm:
  provider: openai
  base_url: https://openrouter.ai/api/v1
  chat_model: gpt-4o-mini
  embedding_model: text-embedding-3-small
rag:
  chunk_size: 500
  chunk_overlap: 50
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.Key != "sk-test" {
		t.Errorf("llm: got %+v", cfg.LLM)
	}
	if cfg.RAG.ChunkSize != 500 || cfg.RAG.ChunkOverlap != 50 {
		t.Errorf("chunking: got %d/%d", cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	}
	// untouched keys keep their defaults
	if cfg.RAG.TopK != 4 || cfg.Server.Port != 8501 {
		t.Errorf("defaults lost: top_k=%d port=%d", cfg.RAG.TopK, cfg.Server.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "rag: [unterminated")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing key", func(c *Config) { c.LLM.Key = "" }, "GOOGLE_API_KEY is required"},
		{"ollama needs no key", func(c *Config) { c.LLM.Provider = "ollama"; c.LLM.Key = "" }, ""},
		{"fake needs no key", func(c *Config) { c.LLM.Provider = "fake"; c.LLM.Key = "" }, ""},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "bard" }, "Provider"},
		{"overlap not below size", func(c *Config) { c.RAG.ChunkOverlap = c.RAG.ChunkSize }, "ChunkOverlap"},
		{"short encryption key", func(c *Config) { c.RAG.EncryptionKey = "short" }, "EncryptionKey"},
		{"zero top k", func(c *Config) { c.RAG.TopK = 0 }, "TopK"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.LLM.APIKeyEnv = "GOOGLE_API_KEY"
			cfg.LLM.Key = "k"
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error: got %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
