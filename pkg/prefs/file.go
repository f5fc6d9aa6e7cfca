package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

type fileStore struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

// NewFileStore returns a Store backed by a single JSON file.
// The file is read once on creation and rewritten atomically
// (write to a temp file, then rename) on every mutation.
func NewFileStore(path string) (Store, error) {
	if path == "" {
		return nil, errors.New("prefs: file path is required")
	}

	values := make(map[string]string)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("prefs: corrupt preference file %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// First run, nothing to load.
	default:
		return nil, fmt.Errorf("prefs: read %s: %w", path, err)
	}

	return &fileStore{path: path, values: values}, nil
}

func (s *fileStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return v, nil
}

func (s *fileStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return s.flushLocked()
}

func (s *fileStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	return s.flushLocked()
}

func (s *fileStore) flushLocked() error {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return errors.Join(ErrFailedToPersist, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".prefs-*")
	if err != nil {
		return errors.Join(ErrFailedToPersist, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Join(ErrFailedToPersist, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.Join(ErrFailedToPersist, err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return errors.Join(ErrFailedToPersist, err)
	}
	return nil
}
