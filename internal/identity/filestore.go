package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps each key in its own file under a base directory. It is the
// durable storage for single-user deployments where the server itself owns
// the device token.
type FileStore struct {
	base string
}

func NewFileStore(base string) *FileStore {
	return &FileStore{base: base}
}

func (s *FileStore) Get(key string) (string, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *FileStore) Set(key, value string) error {
	if err := os.MkdirAll(s.base, 0755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	if err := os.WriteFile(s.path(key), []byte(value+"\n"), 0600); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.base, key)
}
