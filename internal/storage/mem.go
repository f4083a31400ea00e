package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

// MemStore keeps blobs in memory. A session's uploaded files live here for
// the session's lifetime.
type MemStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[string][]byte)}
}

func (s *MemStore) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	if key == "" {
		return "", errors.New("empty key")
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.PutBytes(key, b)
	return key, nil
}

// PutBytes stores b without copying. Callers must not modify b afterwards.
func (s *MemStore) PutBytes(key string, b []byte) {
	s.mu.Lock()
	s.blobs[key] = b
	s.mu.Unlock()
}

func (s *MemStore) Bytes(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	return b, ok
}

func (s *MemStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	b, ok := s.Bytes(key)
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *MemStore) SignedURL(key string) (string, error) {
	if _, ok := s.Bytes(key); !ok {
		return "", ErrNotFound
	}
	return "mem://" + key, nil
}
