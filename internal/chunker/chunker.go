package chunker

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"textfile-qa/internal/models"
)

// Config controls chunking behavior. Sizes are in characters (runes).
type Config struct {
	ChunkSize    int
	ChunkOverlap int
}

// DefaultConfig returns the chunk size and overlap used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    models.DefaultChunkSize,
		ChunkOverlap: models.DefaultChunkOverlap,
	}
}

// Split breaks text into overlapping chunks with the recursive character splitter,
// which tries paragraph, line and word boundaries before cutting mid-word.
func Split(text string, cfg Config) ([]models.Chunk, error) {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = models.DefaultChunkSize
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be in [0, %d)", cfg.ChunkOverlap, cfg.ChunkSize)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(cfg.ChunkSize),
		textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
	)
	parts, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}

	chunks := make([]models.Chunk, 0, len(parts))
	for _, part := range parts {
		chunks = append(chunks, models.Chunk{
			ID:      len(chunks),
			Content: part,
		})
	}
	return chunks, nil
}
