package chromemdb

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"textfile-qa/internal/models"
)

// FormatVersion identifies the on-disk layout written by Save. Load refuses anything else.
const FormatVersion = "textfile-qa/chromem/v1"

const (
	collectionName = "chunks"
	compress       = false
	dataExt        = ".gob"
	manifestExt    = ".yaml"
)

var (
	ErrIndexNotFound   = errors.New("index not found")
	ErrIndexProvenance = errors.New("index was not written by this configuration")
	ErrInvalidIndexID  = errors.New("invalid index id")
)

var indexIDRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

// Manifest describes a persisted index. It is written next to the data file and checked
// before the data file is deserialized.
type Manifest struct {
	Format         string    `yaml:"format" json:"format"`
	Provider       string    `yaml:"provider" json:"provider"`
	EmbeddingModel string    `yaml:"embedding_model" json:"embedding_model"`
	ChunkSize      int       `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap   int       `yaml:"chunk_overlap" json:"chunk_overlap"`
	ChunkCount     int       `yaml:"chunk_count" json:"chunk_count"`
	Dimensions     int       `yaml:"dimensions" json:"dimensions"`
	Checksum       string    `yaml:"checksum" json:"checksum"`
	CreatedAt      time.Time `yaml:"created_at" json:"created_at"`
}

// Store saves and loads whole vector indexes under one directory, one pair of files per index ID.
type Store struct {
	dir            string
	provider       string
	embeddingModel string
	encryptionKey  string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates the index directory if needed. Indexes built with a different
// provider or embedding model than the ones given here are rejected on Load.
func NewStore(dir, provider, embeddingModel, encryptionKey string) (*Store, error) {
	if encryptionKey != "" && len(encryptionKey) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(encryptionKey))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index dir: %w", err)
	}
	return &Store{
		dir:            dir,
		provider:       provider,
		embeddingModel: embeddingModel,
		encryptionKey:  encryptionKey,
		locks:          make(map[string]*sync.Mutex),
	}, nil
}

func (s *Store) lock(indexID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[indexID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[indexID] = l
	}
	return l
}

func (s *Store) paths(indexID string) (data, manifest string, err error) {
	if !indexIDRe.MatchString(indexID) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidIndexID, indexID)
	}
	base := filepath.Join(s.dir, indexID)
	return base + dataExt, base + manifestExt, nil
}

// Save replaces the index stored under indexID with the given chunk embeddings.
// Both files are written to temporary names and renamed into place.
func (s *Store) Save(ctx context.Context, indexID string, chunkSize, chunkOverlap int, chunkEmbeddings []models.ChunkEmbedding) (*Manifest, error) {
	dataPath, manifestPath, err := s.paths(indexID)
	if err != nil {
		return nil, err
	}

	db := chromem.NewDB()
	collection, err := db.CreateCollection(collectionName, nil, noEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	docs := make([]chromem.Document, len(chunkEmbeddings))
	dimensions := 0
	for i, ce := range chunkEmbeddings {
		docs[i] = chromem.Document{
			ID:        strconv.Itoa(ce.ID),
			Content:   ce.Content,
			Metadata:  map[string]string{"chunk_id": strconv.Itoa(ce.ID)},
			Embedding: ce.Embedding,
		}
		dimensions = len(ce.Embedding)
	}
	if len(docs) > 0 {
		if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return nil, fmt.Errorf("failed to add documents: %w", err)
		}
	}

	l := s.lock(indexID)
	l.Lock()
	defer l.Unlock()

	suffix := ".tmp-" + uuid.NewString()
	dataTmp := dataPath + suffix
	manifestTmp := manifestPath + suffix
	defer os.Remove(dataTmp)
	defer os.Remove(manifestTmp)

	if err := db.ExportToFile(dataTmp, compress, s.encryptionKey, collectionName); err != nil {
		return nil, fmt.Errorf("failed to export index: %w", err)
	}
	checksum, err := fileChecksum(dataTmp)
	if err != nil {
		return nil, err
	}

	manifest := &Manifest{
		Format:         FormatVersion,
		Provider:       s.provider,
		EmbeddingModel: s.embeddingModel,
		ChunkSize:      chunkSize,
		ChunkOverlap:   chunkOverlap,
		ChunkCount:     len(docs),
		Dimensions:     dimensions,
		Checksum:       checksum,
		CreatedAt:      time.Now().UTC(),
	}
	raw, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(manifestTmp, raw, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}

	// data first: a reader that sees the new data with the old manifest fails the checksum
	if err := os.Rename(dataTmp, dataPath); err != nil {
		return nil, fmt.Errorf("failed to move index into place: %w", err)
	}
	if err := os.Rename(manifestTmp, manifestPath); err != nil {
		return nil, fmt.Errorf("failed to move manifest into place: %w", err)
	}

	log.Debug().
		Str("index", indexID).
		Int("chunks", manifest.ChunkCount).
		Int("dimensions", dimensions).
		Str("path", dataPath).
		Msg("Saved index")
	return manifest, nil
}

// Load reads the index stored under indexID after checking its manifest.
func (s *Store) Load(ctx context.Context, indexID string) (*Index, error) {
	dataPath, manifestPath, err := s.paths(indexID)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(manifestPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, indexID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var manifest Manifest
	if err := yaml.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("%w: unreadable manifest: %v", ErrIndexProvenance, err)
	}
	if err := s.checkManifest(&manifest); err != nil {
		return nil, err
	}

	// the checksum and the import see the same bytes, even if Save renames a new file in
	data, err := os.ReadFile(dataPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, indexID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	if checksum(data) != manifest.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch for %s", ErrIndexProvenance, indexID)
	}

	db := chromem.NewDB()
	if err := db.ImportFromReader(bytes.NewReader(data), s.encryptionKey, collectionName); err != nil {
		return nil, fmt.Errorf("failed to import index: %w", err)
	}
	collection := db.GetCollection(collectionName, noEmbeddingFunc)
	if collection == nil {
		return nil, fmt.Errorf("%w: collection %q missing", ErrIndexProvenance, collectionName)
	}

	log.Debug().Str("index", indexID).Int("chunks", collection.Count()).Msg("Loaded index")
	return &Index{collection: collection, manifest: manifest}, nil
}

// Delete removes both files of an index. A missing index is not an error.
func (s *Store) Delete(indexID string) error {
	dataPath, manifestPath, err := s.paths(indexID)
	if err != nil {
		return err
	}
	l := s.lock(indexID)
	l.Lock()
	defer l.Unlock()
	for _, p := range []string{manifestPath, dataPath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete %s: %w", p, err)
		}
	}
	return nil
}

func (s *Store) checkManifest(m *Manifest) error {
	if m.Format != FormatVersion {
		return fmt.Errorf("%w: format %q, want %q", ErrIndexProvenance, m.Format, FormatVersion)
	}
	if m.Provider != s.provider || m.EmbeddingModel != s.embeddingModel {
		return fmt.Errorf("%w: built with %s/%s, querying with %s/%s",
			ErrIndexProvenance, m.Provider, m.EmbeddingModel, s.provider, s.embeddingModel)
	}
	return nil
}

// Index is a loaded, read-only vector index.
type Index struct {
	collection *chromem.Collection
	manifest   Manifest
}

func (idx *Index) Manifest() Manifest {
	return idx.manifest
}

func (idx *Index) Count() int {
	return idx.collection.Count()
}

// Search returns up to k chunks ordered by similarity to the query embedding.
func (idx *Index) Search(ctx context.Context, queryEmbedding []float32, k int) ([]models.ScoredChunk, error) {
	if len(queryEmbedding) == 0 {
		return nil, fmt.Errorf("query embedding must be provided")
	}
	if idx.manifest.Dimensions > 0 && len(queryEmbedding) != idx.manifest.Dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			ErrIndexProvenance, len(queryEmbedding), idx.manifest.Dimensions)
	}
	k = min(k, idx.collection.Count())
	if k <= 0 {
		return nil, nil
	}

	results, err := idx.collection.QueryEmbedding(ctx, queryEmbedding, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	chunks := make([]models.ScoredChunk, len(results))
	for i, r := range results {
		id, err := strconv.Atoi(r.Metadata["chunk_id"])
		if err != nil {
			return nil, fmt.Errorf("%w: bad chunk id %q", ErrIndexProvenance, r.Metadata["chunk_id"])
		}
		chunks[i] = models.ScoredChunk{
			Chunk:      models.Chunk{ID: id, Content: r.Content},
			Similarity: r.Similarity,
		}
	}
	return chunks, nil
}

// noEmbeddingFunc is installed on every collection; embeddings are always computed by the
// caller, so chromem-go must never fall back to its own remote default.
func noEmbeddingFunc(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromemdb: embeddings must be supplied by the caller")
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
