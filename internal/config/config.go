package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"textfile-qa/internal/models"
)

type Config struct {
	LogLevel string         `yaml:"log_level" validate:"oneof=trace debug info warn error"`
	Server   ServerConfig   `yaml:"server"`
	LLM      LLMConfig      `yaml:"llm"`
	RAG      RAGConfig      `yaml:"rag"`
	Session  SessionConfig  `yaml:"session"`
	Database DatabaseConfig `yaml:"database"`
}

type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port" validate:"gt=0,lte=65535"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" validate:"gt=0"`
}

// LLMConfig selects the remote provider used for both embeddings and chat. The "fake"
// provider runs offline with a bag-of-words embedder and a model that echoes its prompt.
type LLMConfig struct {
	Provider       string  `yaml:"provider" validate:"oneof=googleai openai ollama fake"`
	BaseURL        string  `yaml:"base_url" validate:"omitempty,url"`
	APIKeyEnv      string  `yaml:"api_key_env"`
	Key            string  `yaml:"-" json:"-"`
	ChatModel      string  `yaml:"chat_model" validate:"required"`
	EmbeddingModel string  `yaml:"embedding_model" validate:"required"`
	Temperature    float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	BatchSize      int     `yaml:"batch_size" validate:"gt=0"`
}

type RAGConfig struct {
	ChunkSize     int    `yaml:"chunk_size" validate:"gt=0"`
	ChunkOverlap  int    `yaml:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	TopK          int    `yaml:"top_k" validate:"gt=0"`
	IndexDir      string `yaml:"index_dir" validate:"required"`
	EncryptionKey string `yaml:"encryption_key" json:"-" validate:"omitempty,len=32"`
}

type SessionConfig struct {
	Dir        string `yaml:"dir" validate:"required"`
	CookieName string `yaml:"cookie_name" validate:"required"`
}

// DatabaseConfig enables the Postgres session store when URL is set.
type DatabaseConfig struct {
	URL    string `yaml:"url" json:"-"`
	Driver string `yaml:"driver" validate:"omitempty,oneof=pgdriver pq"`
	Debug  bool   `yaml:"debug"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		LogLevel: "debug",
		Server: ServerConfig{
			Host:           "",
			Port:           8501,
			MaxUploadBytes: 32 << 20,
		},
		LLM: LLMConfig{
			Provider:       "googleai",
			ChatModel:      "gemini-1.5-flash",
			EmbeddingModel: "embedding-001",
			Temperature:    models.DefaultTemperature,
			BatchSize:      100,
		},
		RAG: RAGConfig{
			ChunkSize:    models.DefaultChunkSize,
			ChunkOverlap: models.DefaultChunkOverlap,
			TopK:         models.DefaultTopK,
			IndexDir:     "./index",
		},
		Session: SessionConfig{
			Dir:        "./sessions",
			CookieName: "session_id",
		},
		Database: DatabaseConfig{
			Driver: "pgdriver",
		},
	}
}

// LoadConfig reads the YAML file at path over the defaults. A missing file is not an
// error. The API key is read from the environment variable named by llm.api_key_env.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = defaultKeyEnv(cfg.LLM.Provider)
	}
	if cfg.LLM.APIKeyEnv != "" {
		cfg.LLM.Key = os.Getenv(cfg.LLM.APIKeyEnv)
	}
	return cfg, nil
}

// Validate checks field constraints and that the API key is present for remote providers.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.LLM.Provider != "ollama" && c.LLM.Provider != "fake" && c.LLM.Key == "" {
		return fmt.Errorf("%s is required for provider %s", c.LLM.APIKeyEnv, c.LLM.Provider)
	}
	return nil
}

func defaultKeyEnv(provider string) string {
	switch provider {
	case "googleai":
		return "GOOGLE_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	default:
		return ""
	}
}
