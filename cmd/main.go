package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"textfile-qa/internal/chromemdb"
	"textfile-qa/internal/chunker"
	"textfile-qa/internal/config"
	"textfile-qa/internal/db"
	"textfile-qa/internal/embedding"
	"textfile-qa/internal/helper"
	"textfile-qa/internal/llmservice"
	"textfile-qa/internal/models"
	"textfile-qa/internal/parser"
	"textfile-qa/internal/rag"
	"textfile-qa/internal/server"
	"textfile-qa/internal/session"
)

const shutdownTimeout = 15 * time.Second

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", "./configs/config.yaml", "Path to the config file")
	files := flag.String("file", "", "Comma separated text files to process")
	query := flag.String("query", "", "Question to be answered")
	sessionID := flag.String("session", "cli", "Session (and index) id used by -file and -query")
	dryRun := flag.Bool("dry-run", false, "Print the chunks of -file without embedding or saving them")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Error loading .env file")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	if *dryRun {
		if *files == "" {
			log.Fatal().Msg("Please provide the documents to chunk using the -file flag")
		}
		printChunks(*files, cfg)
		return
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Error validating config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, closeStores := newRAG(ctx, cfg)
	defer closeStores()

	if *files != "" || *query != "" {
		runCLI(ctx, r, *sessionID, *files, *query)
		return
	}

	srv, err := server.NewServer(r, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating server")
	}
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server stopped")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error shutting down server")
	}
}

// newRAG wires the models and stores described by cfg. The returned func releases them.
func newRAG(ctx context.Context, cfg *config.Config) (*rag.RAG, func()) {
	log.Debug().Interface("config", cfg).Msg("Loaded config")

	if err := helper.CreateFolder(cfg.RAG.IndexDir); err != nil {
		log.Fatal().Err(err).Msg("Error creating index folder")
	}
	store, err := chromemdb.NewStore(cfg.RAG.IndexDir, cfg.LLM.Provider, cfg.LLM.EmbeddingModel, cfg.RAG.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating index store")
	}

	embedder, err := embedding.NewEmbedder(ctx, &cfg.LLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}
	model, err := llmservice.NewChatModel(ctx, &cfg.LLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing chat model")
	}

	sessions, closeStores := newSessionStore(ctx, cfg)
	return rag.NewRAG(store, sessions, embedder, model, cfg), closeStores
}

// newSessionStore uses Postgres when database.url is set and YAML files otherwise.
func newSessionStore(ctx context.Context, cfg *config.Config) (session.Store, func()) {
	if cfg.Database.URL == "" {
		if err := helper.CreateFolder(cfg.Session.Dir); err != nil {
			log.Fatal().Err(err).Msg("Error creating session folder")
		}
		store, err := session.NewFileStore(cfg.Session.Dir)
		if err != nil {
			log.Fatal().Err(err).Msg("Error creating session store")
		}
		return store, func() {}
	}

	dbClient, err := db.ConnectDB(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Error connecting to database")
	}
	dbInstance := db.NewDB(dbClient, cfg.Database.Debug)
	if err := db.InitDB(ctx, dbInstance); err != nil {
		log.Fatal().Err(err).Msg("Error initializing database")
	}
	return db.NewSessionStore(dbInstance), func() { dbInstance.Close() }
}

func readUploads(files string) []models.Upload {
	var uploads []models.Upload
	for _, path := range helper.SplitList(files) {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatal().Err(err).Str("file", path).Msg("Error reading document")
		}
		uploads = append(uploads, models.Upload{Name: helper.BaseName(path), Data: data})
	}
	return uploads
}

func printChunks(files string, cfg *config.Config) {
	text, err := parser.Concatenate(readUploads(files))
	if err != nil {
		log.Fatal().Err(err).Msg("Error parsing documents")
	}
	chunks, err := chunker.Split(text, chunker.Config{
		ChunkSize:    cfg.RAG.ChunkSize,
		ChunkOverlap: cfg.RAG.ChunkOverlap,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Error chunking documents")
	}
	log.Info().Int("chunks", len(chunks)).Msg("Chunked documents")
	helper.PrettyPrint(chunks)
}

func runCLI(ctx context.Context, r *rag.RAG, sessionID, files, query string) {
	if files != "" {
		sess, err := r.Process(ctx, sessionID, readUploads(files))
		if err != nil {
			log.Fatal().Err(err).Msg("Error processing documents")
		}
		log.Info().Str("session", sess.ID).Int("chunks", sess.ChunkCount).Msg("Index ready")
	}
	if query == "" {
		return
	}

	response, err := r.Query(ctx, sessionID, query)
	if err != nil {
		log.Fatal().Err(err).Msg("Error querying")
	}

	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", query)

	log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	for _, src := range response.Sources {
		fmt.Printf("[%d] (%.3f) %s\n\n", src.ID, src.Similarity, src.Content)
	}

	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", response.Content)
}
