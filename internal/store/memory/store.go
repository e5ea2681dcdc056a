// Package memory provides an in-process store for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"example.com/parkactivity/internal/store"
)

// Store keeps items in a map guarded by a mutex.
type Store struct {
	mu    sync.RWMutex
	items map[store.Key]store.Item
}

var _ store.Store = (*Store)(nil)

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{items: make(map[store.Key]store.Item)}
}

// GetOne implements store.Store.
func (s *Store) GetOne(_ context.Context, key store.Key) (store.Item, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[key]
	if !ok {
		return nil, nil
	}
	return item.Clone(), nil
}

// Query implements store.Store.
func (s *Store) Query(_ context.Context, q store.Query) ([]store.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.Item, 0)
	for key, item := range s.items {
		if key.PK != q.PK || !q.MatchesSK(key.SK) {
			continue
		}
		out = append(out, item.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().SK < out[j].Key().SK
	})
	return out, nil
}

// ConditionalUpdate implements store.Store. The condition check and the write
// happen under the same lock.
func (s *Store) ConditionalUpdate(_ context.Context, key store.Key, set map[string]any, cond store.Condition) (store.UpdateResult, error) {
	if err := key.Validate(); err != nil {
		return store.UpdateResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.items[key]
	if !ok || !cond.Holds(current) {
		return store.UpdateResult{}, nil
	}
	updated := current.Clone()
	for k, v := range set {
		if k == store.AttrPK || k == store.AttrSK {
			continue
		}
		updated[k] = v
	}
	s.items[key] = updated
	return store.UpdateResult{Applied: true, Item: updated.Clone()}, nil
}

// Put implements store.Store.
func (s *Store) Put(_ context.Context, item store.Item) error {
	key := item.Key()
	if err := key.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = item.Clone()
	return nil
}
