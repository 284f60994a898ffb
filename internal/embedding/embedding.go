package embedding

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"textfile-qa/internal/config"
	"textfile-qa/internal/llmservice"
	"textfile-qa/internal/models"
)

// fakeDimensions is the vector size of the offline "fake" provider.
const fakeDimensions = 256

// NewEmbedder creates an embedder for the configured provider
func NewEmbedder(ctx context.Context, llmConfig *config.LLMConfig) (embeddings.Embedder, error) {
	if llmConfig.Provider == "fake" {
		log.Warn().Msg("Using the offline fake embedder; answers echo the prompt")
		return WrapClient(NewFakeClient(fakeDimensions), llmConfig.BatchSize)
	}
	client, err := llmservice.NewEmbedderClient(ctx, llmConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder client: %w", err)
	}
	return WrapClient(client, llmConfig.BatchSize)
}

// WrapClient turns a raw embedding client into a batching langchaingo embedder.
func WrapClient(client embeddings.EmbedderClient, batchSize int) (embeddings.Embedder, error) {
	opts := []embeddings.Option{embeddings.WithStripNewLines(false)}
	if batchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(batchSize))
	}
	embedder, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

// EmbedChunks computes one embedding per chunk, preserving order.
func EmbedChunks(ctx context.Context, embedder embeddings.Embedder, chunks []models.Chunk) ([]models.ChunkEmbedding, error) {
	if len(chunks) == 0 {
		log.Info().Msg("No chunks to embed")
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed chunks: %w", llmservice.ErrProvider, err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	chunkEmbeddings := make([]models.ChunkEmbedding, len(chunks))
	for i, chunk := range chunks {
		chunkEmbeddings[i] = models.ChunkEmbedding{
			Chunk:     chunk,
			Embedding: vectors[i],
		}
	}
	log.Debug().Int("chunks", len(chunks)).Int("dimensions", len(vectors[0])).Msg("Embedded chunks")
	return chunkEmbeddings, nil
}
