package carriers

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// memoryStore is an in-memory CredentialStore
type memoryStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	saves int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{blobs: make(map[string][]byte)}
}

func (m *memoryStore) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blobs[key], nil
}

func (m *memoryStore) Save(_ context.Context, key string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.blobs[key] = append([]byte(nil), blob...)
	return nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

func (m *memoryStore) seed(t *testing.T, key string, creds Credentials) {
	t.Helper()
	blob, err := json.Marshal(creds)
	require.NoError(t, err)
	m.blobs[key] = blob
}

func (m *memoryStore) credentials(t *testing.T, key string) Credentials {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	var creds Credentials
	require.NotNil(t, m.blobs[key], "no credentials stored for %s", key)
	require.NoError(t, json.Unmarshal(m.blobs[key], &creds))
	return creds
}

// stubAcquirer returns a canned acquisition and records requests
type stubAcquirer struct {
	mu       sync.Mutex
	requests []AcquireRequest
	result   *Acquisition
	err      error
	closed   bool
}

func (s *stubAcquirer) Acquire(_ context.Context, req AcquireRequest) (*Acquisition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	if s.result == nil {
		return nil, errors.New("no acquisition configured")
	}
	out := *s.result
	out.Credentials = *s.result.Credentials.clone()
	return &out, nil
}

func (s *stubAcquirer) Close() error {
	s.closed = true
	return nil
}

func (s *stubAcquirer) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func readFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(data)
}
