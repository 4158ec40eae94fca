// Package blob stores binary measurement payloads outside the row
// store, keyed by content digest. CrateDB's blob API addresses blobs
// by the SHA-1 of their contents, so the digest doubles as the stored
// reference and as a dedup key.
package blob

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"sync"
)

// ErrNotFound is returned when no blob exists for a digest.
var ErrNotFound = errors.New("blob: not found")

// Store is a content-addressed blob store. Put returns the lowercase
// hex digest that Get accepts.
type Store interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, digest string) ([]byte, error)
}

// Digest returns the lowercase hex SHA-1 of data, the digest format
// CrateDB's blob protocol uses.
func Digest(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[string][]byte)}
}

func (s *MemStore) Put(_ context.Context, data []byte) (string, error) {
	digest := Digest(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[digest] = append([]byte(nil), data...)
	return digest, nil
}

func (s *MemStore) Get(_ context.Context, digest string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[digest]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Len reports the number of stored blobs.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}
