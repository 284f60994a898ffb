package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"

	"textfile-qa/internal/chromemdb"
	"textfile-qa/internal/chunker"
	"textfile-qa/internal/config"
	"textfile-qa/internal/embedding"
	"textfile-qa/internal/models"
	"textfile-qa/internal/parser"
	"textfile-qa/internal/session"
)

var (
	ErrEmptyText     = errors.New("uploaded files contain no text")
	ErrEmptyQuestion = errors.New("question is empty")

	errInterrupted = errors.New("previous action was interrupted")
)

// RAG runs the two user actions: process uploads into an index, and answer a question
// from it. Each session runs at most one action at a time.
type RAG struct {
	store    *chromemdb.Store
	sessions session.Store
	embedder embeddings.Embedder
	answerer *Answerer
	chunking chunker.Config
	topK     int

	mu   sync.Mutex
	busy map[string]bool
}

func NewRAG(store *chromemdb.Store, sessions session.Store, embedder embeddings.Embedder, model llms.Model, cfg *config.Config) *RAG {
	return &RAG{
		store:    store,
		sessions: sessions,
		embedder: embedder,
		answerer: NewAnswerer(model, cfg.LLM.Temperature),
		chunking: chunker.Config{
			ChunkSize:    cfg.RAG.ChunkSize,
			ChunkOverlap: cfg.RAG.ChunkOverlap,
		},
		topK: cfg.RAG.TopK,
		busy: make(map[string]bool),
	}
}

func (r *RAG) acquire(sessionID string) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy[sessionID] {
		return nil, session.ErrBusy
	}
	r.busy[sessionID] = true
	return func() {
		r.mu.Lock()
		delete(r.busy, sessionID)
		r.mu.Unlock()
	}, nil
}

// Session returns the stored session, or a new idle one if none exists yet.
func (r *RAG) Session(ctx context.Context, sessionID string) (*session.Session, error) {
	sess, err := r.sessions.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return session.New(sessionID), nil
	}
	return sess, err
}

// begin loads the session and moves it into a busy state. A session persisted in a busy
// state while no action holds it was interrupted, so it is failed first.
func (r *RAG) begin(ctx context.Context, sessionID string, next session.State) (*session.Session, error) {
	sess, err := r.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.State == session.StateProcessing || sess.State == session.StateAnswering {
		log.Warn().Str("session", sessionID).Str("state", string(sess.State)).Msg("Recovering interrupted session")
		sess.Fail(errInterrupted)
	}
	if err := sess.Transition(next); err != nil {
		return sess, err
	}
	if err := r.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (r *RAG) fail(ctx context.Context, sess *session.Session, err error) (*session.Session, error) {
	sess.Fail(err)
	if saveErr := r.sessions.Save(ctx, sess); saveErr != nil {
		log.Error().Err(saveErr).Str("session", sess.ID).Msg("Error saving failed session")
	}
	return sess, err
}

// IndexManifest returns the manifest of the session's index, or nil if it has none.
func (r *RAG) IndexManifest(ctx context.Context, sessionID string) (*chromemdb.Manifest, error) {
	idx, err := r.store.Load(ctx, sessionID)
	if errors.Is(err, chromemdb.ErrIndexNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	manifest := idx.Manifest()
	return &manifest, nil
}

// Reset deletes the session's index and returns the session to idle.
func (r *RAG) Reset(ctx context.Context, sessionID string) (*session.Session, error) {
	release, err := r.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := r.store.Delete(sessionID); err != nil {
		return nil, err
	}
	sess := session.New(sessionID)
	if err := r.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	log.Info().Str("session", sessionID).Msg("Reset session")
	return sess, nil
}

// Process extracts, chunks and embeds the uploads and replaces the session's index.
func (r *RAG) Process(ctx context.Context, sessionID string, uploads []models.Upload) (*session.Session, error) {
	release, err := r.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := r.begin(ctx, sessionID, session.StateProcessing)
	if err != nil {
		return sess, err
	}

	start := time.Now()
	chunkCount, err := r.buildIndex(ctx, sessionID, uploads)
	if err != nil {
		log.Error().Err(err).Str("session", sessionID).Msg("Error processing documents")
		return r.fail(ctx, sess, err)
	}

	sess.Files = make([]string, len(uploads))
	for i, u := range uploads {
		sess.Files[i] = u.Name
	}
	sess.ChunkCount = chunkCount
	sess.IndexedAt = time.Now().UTC()
	sess.LastQuestion, sess.LastAnswer = "", ""
	if err := sess.Transition(session.StateReady); err != nil {
		return sess, err
	}
	if err := r.sessions.Save(ctx, sess); err != nil {
		return sess, err
	}

	log.Info().
		Str("session", sessionID).
		Int("files", len(uploads)).
		Int("chunks", chunkCount).
		Dur("took", time.Since(start)).
		Msg("Processed documents")
	return sess, nil
}

func (r *RAG) buildIndex(ctx context.Context, indexID string, uploads []models.Upload) (int, error) {
	rawText, err := parser.Concatenate(uploads)
	if err != nil {
		return 0, err
	}
	chunks, err := chunker.Split(rawText, r.chunking)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, ErrEmptyText
	}
	chunkEmbeddings, err := embedding.EmbedChunks(ctx, r.embedder, chunks)
	if err != nil {
		return 0, err
	}
	manifest, err := r.store.Save(ctx, indexID, r.chunking.ChunkSize, r.chunking.ChunkOverlap, chunkEmbeddings)
	if err != nil {
		return 0, err
	}
	return manifest.ChunkCount, nil
}

// Query answers question from the session's index.
func (r *RAG) Query(ctx context.Context, sessionID, question string) (*models.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	release, err := r.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := r.begin(ctx, sessionID, session.StateAnswering)
	if errors.Is(err, session.ErrNoIndex) {
		return nil, fmt.Errorf("%w: %w", chromemdb.ErrIndexNotFound, err)
	}
	if err != nil {
		return nil, err
	}

	retriever := NewRetriever(r.store, r.embedder, sessionID, r.topK)
	chunks, err := retriever.Retrieve(ctx, question)
	if err != nil {
		r.fail(ctx, sess, err)
		return nil, err
	}
	log.Debug().Str("session", sessionID).Int("chunks", len(chunks)).Msg("Retrieved context")

	text, err := r.answerer.Answer(ctx, question, toDocuments(chunks))
	if err != nil {
		r.fail(ctx, sess, err)
		return nil, err
	}

	sess.LastQuestion = question
	sess.LastAnswer = text
	if err := sess.Transition(session.StateReady); err != nil {
		return nil, err
	}
	if err := r.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	return &models.Answer{
		Question: question,
		Content:  text,
		Sources:  chunks,
	}, nil
}
