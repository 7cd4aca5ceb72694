package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileCredentialStore keeps every carrier's credentials in one JSON object
// keyed by carrier
type FileCredentialStore struct {
	path string
	mu   sync.Mutex
}

// NewFileCredentialStore creates a store backed by path
func NewFileCredentialStore(path string) *FileCredentialStore {
	return &FileCredentialStore{path: path}
}

// Load returns the blob saved for key, or nil
func (s *FileCredentialStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.read()
	if err != nil {
		return nil, err
	}
	return all[key], nil
}

// Save stores blob under key. blob must be valid JSON.
func (s *FileCredentialStore) Save(_ context.Context, key string, blob []byte) error {
	if !json.Valid(blob) {
		return fmt.Errorf("credentials for %s are not valid JSON", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.read()
	if err != nil {
		return err
	}
	all[key] = json.RawMessage(blob)
	return s.write(all)
}

// Delete removes key
func (s *FileCredentialStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := all[key]; !ok {
		return nil
	}
	delete(all, key)
	return s.write(all)
}

func (s *FileCredentialStore) read() (map[string]json.RawMessage, error) {
	all := make(map[string]json.RawMessage)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return all, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	if len(data) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	return all, nil
}

func (s *FileCredentialStore) write(all map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	return writeFileAtomic(s.path, data)
}

// FileTrackingList keeps the saved tracking numbers as a JSON array
type FileTrackingList struct {
	path string
	mu   sync.Mutex
}

// NewFileTrackingList creates a list backed by path
func NewFileTrackingList(path string) *FileTrackingList {
	return &FileTrackingList{path: path}
}

// Load returns the saved numbers in order; a missing file is an empty list
func (l *FileTrackingList) Load(_ context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read()
}

// Save replaces the saved numbers
func (l *FileTrackingList) Save(_ context.Context, numbers []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.write(numbers)
}

// Update rewrites the list under the lock
func (l *FileTrackingList) Update(_ context.Context, fn func([]string) []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	numbers, err := l.read()
	if err != nil {
		return err
	}
	next := fn(numbers)
	if next == nil {
		return nil
	}
	return l.write(next)
}

func (l *FileTrackingList) read() ([]string, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tracking list: %w", err)
	}
	if len(data) == 0 {
		return []string{}, nil
	}

	var numbers []string
	if err := json.Unmarshal(data, &numbers); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", l.path, err)
	}
	if numbers == nil {
		numbers = []string{}
	}
	return numbers, nil
}

func (l *FileTrackingList) write(numbers []string) error {
	if numbers == nil {
		numbers = []string{}
	}
	data, err := json.MarshalIndent(numbers, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode tracking list: %w", err)
	}
	return writeFileAtomic(l.path, data)
}

// writeFileAtomic replaces path through a temp file in the same directory
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
