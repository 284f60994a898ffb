// Package session tracks the per-user state of the question-answering page.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
	StateReady      State = "ready"
	StateAnswering  State = "answering"
	StateError      State = "error"
)

var (
	ErrNotFound          = errors.New("session not found")
	ErrInvalidTransition = errors.New("invalid session state transition")
	// ErrNoIndex is returned when a question is asked before any documents were processed.
	ErrNoIndex = errors.New("no documents have been processed for this session")
	ErrBusy    = errors.New("session is busy with another action")
)

var transitions = map[State][]State{
	StateIdle:       {StateProcessing},
	StateProcessing: {StateReady, StateError},
	StateReady:      {StateProcessing, StateAnswering},
	StateAnswering:  {StateReady, StateError},
	StateError:      {StateProcessing, StateAnswering},
}

// Session is the persisted state of one browser session. Its ID doubles as the index ID.
type Session struct {
	ID           string    `yaml:"id" json:"id"`
	State        State     `yaml:"state" json:"state"`
	Files        []string  `yaml:"files,omitempty" json:"files,omitempty"`
	ChunkCount   int       `yaml:"chunk_count" json:"chunk_count"`
	LastError    string    `yaml:"last_error,omitempty" json:"last_error,omitempty"`
	LastQuestion string    `yaml:"last_question,omitempty" json:"last_question,omitempty"`
	LastAnswer   string    `yaml:"last_answer,omitempty" json:"last_answer,omitempty"`
	IndexedAt    time.Time `yaml:"indexed_at,omitempty" json:"indexed_at,omitempty"`
	UpdatedAt    time.Time `yaml:"updated_at" json:"updated_at"`
}

// New returns an idle session.
func New(id string) *Session {
	return &Session{ID: id, State: StateIdle, UpdatedAt: time.Now().UTC()}
}

// HasIndex reports whether a process action has ever completed for this session.
func (s *Session) HasIndex() bool {
	return !s.IndexedAt.IsZero()
}

// CanTransition reports whether moving to next is allowed from the current state.
func (s *Session) CanTransition(next State) bool {
	for _, allowed := range transitions[s.State] {
		if allowed == next {
			return next != StateAnswering || s.HasIndex()
		}
	}
	return false
}

// Transition moves the session to next or returns an error describing why it cannot.
func (s *Session) Transition(next State) error {
	if !s.CanTransition(next) {
		if next == StateAnswering && !s.HasIndex() && (s.State == StateIdle || s.State == StateError) {
			return ErrNoIndex
		}
		if s.State == StateProcessing || s.State == StateAnswering {
			return fmt.Errorf("%w: %s", ErrBusy, s.State)
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, next)
	}
	s.State = next
	s.UpdatedAt = time.Now().UTC()
	if next == StateProcessing || next == StateAnswering {
		s.LastError = ""
	}
	return nil
}

// Fail moves a busy session to the error state and records the cause.
func (s *Session) Fail(err error) {
	s.State = StateError
	s.LastError = err.Error()
	s.UpdatedAt = time.Now().UTC()
}

// Store persists sessions between requests.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
}
