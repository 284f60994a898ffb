package models

// Upload is one user-supplied file, held in memory for a single process action.
type Upload struct {
	Name string
	Data []byte
}

// Chunk represents a split segment of the raw text
type Chunk struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
}

// ScoredChunk is a chunk returned by a similarity search.
type ScoredChunk struct {
	Chunk
	Similarity float32 `json:"similarity"`
}

// ChunkEmbedding pairs a chunk with its embedding vector
type ChunkEmbedding struct {
	Chunk
	Embedding []float32
}

type Answer struct {
	Question string        `json:"question"`
	Content  string        `json:"answer"`
	Sources  []ScoredChunk `json:"sources"`
}
