package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"textfile-qa/internal/config"
)

// ErrProvider marks failures reported by the remote embedding or chat API.
var ErrProvider = errors.New("model provider error")

// NewChatModel returns the chat-completion model for the configured provider.
func NewChatModel(ctx context.Context, llmConfig *config.LLMConfig) (llms.Model, error) {
	log.Debug().
		Str("provider", llmConfig.Provider).
		Str("model", llmConfig.ChatModel).
		Str("base_url", llmConfig.BaseURL).
		Msg("Creating chat model")

	switch llmConfig.Provider {
	case "googleai":
		return googleai.New(ctx,
			googleai.WithAPIKey(llmConfig.Key),
			googleai.WithDefaultModel(llmConfig.ChatModel),
			googleai.WithDefaultEmbeddingModel(llmConfig.EmbeddingModel),
		)
	case "openai":
		return openai.New(openAIOptions(llmConfig, llmConfig.ChatModel)...)
	case "ollama":
		return ollama.New(ollamaOptions(llmConfig, llmConfig.ChatModel)...)
	case "fake":
		return &EchoModel{}, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", llmConfig.Provider)
	}
}

// NewEmbedderClient returns the client that computes embeddings for the configured provider.
func NewEmbedderClient(ctx context.Context, llmConfig *config.LLMConfig) (embeddings.EmbedderClient, error) {
	log.Debug().
		Str("provider", llmConfig.Provider).
		Str("embedding_model", llmConfig.EmbeddingModel).
		Msg("Creating embedder client")

	switch llmConfig.Provider {
	case "googleai":
		return googleai.New(ctx,
			googleai.WithAPIKey(llmConfig.Key),
			googleai.WithDefaultModel(llmConfig.ChatModel),
			googleai.WithDefaultEmbeddingModel(llmConfig.EmbeddingModel),
		)
	case "openai":
		return openai.New(openAIOptions(llmConfig, llmConfig.ChatModel)...)
	case "ollama":
		// ollama embeds with its main model, so it gets a client of its own
		return ollama.New(ollamaOptions(llmConfig, llmConfig.EmbeddingModel)...)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", llmConfig.Provider)
	}
}

func openAIOptions(llmConfig *config.LLMConfig, model string) []openai.Option {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
		openai.WithModel(model),
		openai.WithEmbeddingModel(llmConfig.EmbeddingModel),
	}
	if llmConfig.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
	}
	return opts
}

func ollamaOptions(llmConfig *config.LLMConfig, model string) []ollama.Option {
	opts := []ollama.Option{ollama.WithModel(model)}
	if llmConfig.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(llmConfig.BaseURL))
	}
	return opts
}
