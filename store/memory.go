package store

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/nci/eoselect/model"
	"github.com/nci/eoselect/query"
)

var (
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
	ErrNotACollection      = errors.New("entity is not a collection")
	ErrUnknownEntity       = errors.New("unknown entity")
)

// MemoryStore keeps the whole hierarchy in memory. It is safe for
// concurrent reads; writers take the lock.
type MemoryStore struct {
	mu       sync.RWMutex
	nextKey  int64
	order    []int64
	byKey    map[int64]*model.Entity
	byID     map[string]int64
	children map[int64][]int64
	parents  map[int64][]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byKey:    make(map[int64]*model.Entity),
		byID:     make(map[string]int64),
		children: make(map[int64][]int64),
		parents:  make(map[int64][]int64),
	}
}

// Add registers e. A zero key is replaced by the next free key. The store
// keeps e; callers must not modify it afterwards.
func (s *MemoryStore) Add(e *model.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.byID[e.Identifier]; found {
		return errors.Wrapf(ErrDuplicateIdentifier, "%q", e.Identifier)
	}
	if e.Key == 0 {
		s.nextKey++
		e.Key = s.nextKey
	} else {
		if _, found := s.byKey[e.Key]; found {
			return errors.Newf("key %d already used", e.Key)
		}
		if e.Key > s.nextKey {
			s.nextKey = e.Key
		}
	}

	s.byKey[e.Key] = e
	s.byID[e.Identifier] = e.Key
	s.order = append(s.order, e.Key)
	return nil
}

// Link makes child a member of the collection parent. Linking twice is a
// no-op. Links may form cycles.
func (s *MemoryStore) Link(parent, child string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pk, found := s.byID[parent]
	if !found {
		return errors.Wrapf(ErrUnknownEntity, "%q", parent)
	}
	ck, found := s.byID[child]
	if !found {
		return errors.Wrapf(ErrUnknownEntity, "%q", child)
	}
	if !s.byKey[pk].IsCollection() {
		return errors.Wrapf(ErrNotACollection, "%q", parent)
	}
	for _, k := range s.children[pk] {
		if k == ck {
			return nil
		}
	}
	s.children[pk] = append(s.children[pk], ck)
	s.parents[ck] = append(s.parents[ck], pk)
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *MemoryStore) Get(ctx context.Context, identifier string) (*model.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, found := s.byID[identifier]
	if !found {
		return nil, nil
	}
	return s.byKey[key], nil
}

func (s *MemoryStore) Children(ctx context.Context, collectionKey int64) ([]*model.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.children[collectionKey]
	out := make([]*model.Entity, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.byKey[k])
	}
	return out, nil
}

// Query scans every entity in insertion order.
func (s *MemoryStore) Query(ctx context.Context, q query.Query) ([]*model.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	parents := func(key int64) []int64 {
		return s.parents[key]
	}

	var out []*model.Entity
	for _, k := range s.order {
		e := s.byKey[k]
		if q.Match(e, parents) {
			out = append(out, e)
		}
	}

	query.Sort(out, q.Orders)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}
