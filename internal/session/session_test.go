package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTransition(t *testing.T) {
	indexed := func(s *Session) { s.IndexedAt = time.Now() }
	tests := []struct {
		name    string
		from    State
		setup   func(*Session)
		to      State
		wantErr error
	}{
		{"idle to processing", StateIdle, nil, StateProcessing, nil},
		{"processing to ready", StateProcessing, indexed, StateReady, nil},
		{"processing to error", StateProcessing, nil, StateError, nil},
		{"ready to answering", StateReady, indexed, StateAnswering, nil},
		{"answering to ready", StateAnswering, indexed, StateReady, nil},
		{"ready to processing", StateReady, indexed, StateProcessing, nil},
		{"error to processing", StateError, nil, StateProcessing, nil},
		{"error with index to answering", StateError, indexed, StateAnswering, nil},
		{"idle to answering", StateIdle, nil, StateAnswering, ErrNoIndex},
		{"error without index to answering", StateError, nil, StateAnswering, ErrNoIndex},
		{"processing twice", StateProcessing, nil, StateProcessing, ErrBusy},
		{"process while answering", StateAnswering, indexed, StateProcessing, ErrBusy},
		{"idle to ready", StateIdle, nil, StateReady, ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New("abc")
			s.State = tt.from
			if tt.setup != nil {
				tt.setup(s)
			}
			err := s.Transition(tt.to)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if s.State != tt.to {
					t.Errorf("state: got %s, want %s", s.State, tt.to)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
			if s.State != tt.from {
				t.Errorf("state changed on failed transition: %s", s.State)
			}
		})
	}
}

func TestFailRecordsError(t *testing.T) {
	s := New("abc")
	if err := s.Transition(StateProcessing); err != nil {
		t.Fatal(err)
	}
	s.Fail(errors.New("quota exceeded"))
	if s.State != StateError || s.LastError != "quota exceeded" {
		t.Errorf("got %s %q", s.State, s.LastError)
	}
	if err := s.Transition(StateProcessing); err != nil {
		t.Fatal(err)
	}
	if s.LastError != "" {
		t.Errorf("LastError should be cleared when a new action starts, got %q", s.LastError)
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := store.Get(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}

	s := New("abc-123")
	s.State = StateReady
	s.Files = []string{"a.txt", "b.txt"}
	s.ChunkCount = 7
	s.IndexedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Get(ctx, "abc-123")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != StateReady || got.ChunkCount != 7 || len(got.Files) != 2 || !got.IndexedAt.Equal(s.IndexedAt) {
		t.Errorf("got %+v", got)
	}
}

func TestFileStore_RejectsPathLikeIDs(t *testing.T) {
	store, _ := NewFileStore(t.TempDir())
	if err := store.Save(context.Background(), New("../escape")); err == nil {
		t.Fatal("expected error for path-like id")
	}
}
