package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var ErrDecode = errors.New("cannot decode stored value")

// Store is a string key-value store, the persistence layer of the client state
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}

// GetJSON decodes the JSON value stored under key into v, reporting whether the key was present
func GetJSON(ctx context.Context, s Store, key string, v interface{}) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return true, fmt.Errorf("%w %s: %s", ErrDecode, key, err)
	}
	return true, nil
}

func SetJSON(ctx context.Context, s Store, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, string(raw))
}

// ScopedStore prefixes every key, so several applications can share one backend
type ScopedStore struct {
	prefix string
	store  Store
}

func NewScopedStore(store Store, prefix string) *ScopedStore {
	return &ScopedStore{prefix: prefix, store: store}
}

func (s *ScopedStore) Get(ctx context.Context, key string) (string, bool, error) {
	return s.store.Get(ctx, s.prefix+key)
}

func (s *ScopedStore) Set(ctx context.Context, key string, value string) error {
	return s.store.Set(ctx, s.prefix+key, value)
}

func (s *ScopedStore) Delete(ctx context.Context, key string) error {
	return s.store.Delete(ctx, s.prefix+key)
}

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}
