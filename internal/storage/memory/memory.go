// Package memory is an in-process storage.Store. It backs the ephemeral
// session store (gone when the process exits) and serves as the test fake
// for durable storage.
package memory

import (
	"bytes"
	"context"
	"sync"

	"github.com/dmitrijs2005/crmkeeper/internal/storage"
)

type Store struct {
	mu   sync.Mutex
	data map[storage.Key][]byte
}

func New() *Store {
	return &Store{data: make(map[storage.Key][]byte)}
}

func (s *Store) Get(ctx context.Context, key storage.Key) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

func (s *Store) Set(ctx context.Context, key storage.Key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = bytes.Clone(value)
	return nil
}

func (s *Store) Remove(ctx context.Context, key storage.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

func (s *Store) CompareAndSwap(ctx context.Context, key storage.Key, old, next []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.data[key]
	if old == nil {
		if ok {
			return false, nil
		}
	} else if !ok || !bytes.Equal(cur, old) {
		return false, nil
	}

	if next == nil {
		delete(s.data, key)
	} else {
		s.data[key] = bytes.Clone(next)
	}
	return true, nil
}

// Keys returns the keys currently present, in no particular order.
func (s *Store) Keys() []storage.Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]storage.Key, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}
