package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"textfile-qa/internal/config"
	"textfile-qa/internal/session"
)

// Session is the sessions table row.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:s"`
	ID            string    `bun:"id,pk"`
	State         string    `bun:"state,notnull"`
	Files         []string  `bun:"files,array"`
	ChunkCount    int       `bun:"chunk_count,notnull,default:0"`
	LastError     string    `bun:"last_error"`
	LastQuestion  string    `bun:"last_question"`
	LastAnswer    string    `bun:"last_answer"`
	IndexedAt     time.Time `bun:"indexed_at,nullzero"`
	UpdatedAt     time.Time `bun:"updated_at,notnull"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens a Postgres connection with the configured driver.
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, errors.New("database url is required")
	}
	switch cfg.Driver {
	case "pq":
		return sql.Open("postgres", cfg.URL)
	case "", "pgdriver":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.URL))), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

func InitDB(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*Session)(nil)).IfNotExists().Exec(ctx)
	return err
}

// SessionStore persists sessions in Postgres.
type SessionStore struct {
	db *bun.DB
}

func NewSessionStore(db *bun.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	row := new(Session)
	err := s.db.NewSelect().Model(row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return toSession(row), nil
}

func (s *SessionStore) Save(ctx context.Context, sess *session.Session) error {
	row := fromSession(sess)
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("state = EXCLUDED.state").
		Set("files = EXCLUDED.files").
		Set("chunk_count = EXCLUDED.chunk_count").
		Set("last_error = EXCLUDED.last_error").
		Set("last_question = EXCLUDED.last_question").
		Set("last_answer = EXCLUDED.last_answer").
		Set("indexed_at = EXCLUDED.indexed_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func toSession(row *Session) *session.Session {
	return &session.Session{
		ID:           row.ID,
		State:        session.State(row.State),
		Files:        row.Files,
		ChunkCount:   row.ChunkCount,
		LastError:    row.LastError,
		LastQuestion: row.LastQuestion,
		LastAnswer:   row.LastAnswer,
		IndexedAt:    row.IndexedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

func fromSession(sess *session.Session) *Session {
	return &Session{
		ID:           sess.ID,
		State:        string(sess.State),
		Files:        sess.Files,
		ChunkCount:   sess.ChunkCount,
		LastError:    sess.LastError,
		LastQuestion: sess.LastQuestion,
		LastAnswer:   sess.LastAnswer,
		IndexedAt:    sess.IndexedAt,
		UpdatedAt:    sess.UpdatedAt,
	}
}
