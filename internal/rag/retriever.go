package rag

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"

	"textfile-qa/internal/chromemdb"
	"textfile-qa/internal/llmservice"
	"textfile-qa/internal/models"
)

// Retriever returns the chunks of one persisted index closest to a question.
type Retriever struct {
	store    *chromemdb.Store
	embedder embeddings.Embedder
	indexID  string
	k        int
}

var _ schema.Retriever = Retriever{}

func NewRetriever(store *chromemdb.Store, embedder embeddings.Embedder, indexID string, k int) Retriever {
	return Retriever{store: store, embedder: embedder, indexID: indexID, k: k}
}

// Retrieve loads the index before embedding the question, so a missing index costs no API call.
func (r Retriever) Retrieve(ctx context.Context, question string) ([]models.ScoredChunk, error) {
	idx, err := r.store.Load(ctx, r.indexID)
	if err != nil {
		return nil, err
	}
	queryEmbedding, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed question: %w", llmservice.ErrProvider, err)
	}
	return idx.Search(ctx, queryEmbedding, r.k)
}

// GetRelevantDocuments implements schema.Retriever.
func (r Retriever) GetRelevantDocuments(ctx context.Context, query string) ([]schema.Document, error) {
	chunks, err := r.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}
	return toDocuments(chunks), nil
}

func toDocuments(chunks []models.ScoredChunk) []schema.Document {
	docs := make([]schema.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = schema.Document{
			PageContent: c.Content,
			Metadata:    map[string]any{"chunk_id": c.ID},
			Score:       c.Similarity,
		}
	}
	return docs
}
