package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

var idRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

// FileStore keeps one YAML file per session in a directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (fs *FileStore) path(id string) (string, error) {
	if !idRe.MatchString(id) {
		return "", fmt.Errorf("%w: invalid id %q", ErrNotFound, id)
	}
	return filepath.Join(fs.dir, id+".yaml"), nil
}

func (fs *FileStore) Get(_ context.Context, id string) (*Session, error) {
	path, err := fs.path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	var s Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session %s: %w", id, err)
	}
	return &s, nil
}

// Save writes the session to a temporary file and renames it over the previous one.
func (fs *FileStore) Save(_ context.Context, s *Session) error {
	path, err := fs.path(s.ID)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	tmp := path + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move session into place: %w", err)
	}
	return nil
}
