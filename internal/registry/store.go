package registry

import (
	"context"
	"sync"
)

// Table is one logical key→record map. Lookups report absence instead of failing.
type Table[V any] interface {
	Contains(ctx context.Context, key []byte) (bool, error)
	Get(ctx context.Context, key []byte) (V, bool, error)
	// Insert overwrites any existing value for key.
	Insert(ctx context.Context, key []byte, v V) error
}

// Tx exposes the three registry tables inside one unit of work.
type Tx interface {
	Organizations() Table[Organization]
	AuthRights() Table[string]
	AuthDetails() Table[AuthDetail]
}

// Store runs units of work over the tables. Writes made by fn in Update
// become visible together when fn returns nil and are discarded otherwise.
type Store interface {
	Update(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Tx) error) error
}

// MemoryStore keeps the tables in process memory. Writers are serialised.
type MemoryStore struct {
	mu      sync.RWMutex
	orgs    map[string]Organization
	rights  map[string]string
	details map[string]AuthDetail
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orgs:    make(map[string]Organization),
		rights:  make(map[string]string),
		details: make(map[string]AuthDetail),
	}
}

func (s *MemoryStore) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.newTx(true)
	if err := fn(tx); err != nil {
		return err
	}
	tx.orgs.commit()
	tx.rights.commit()
	tx.details.commit()
	return nil
}

func (s *MemoryStore) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.newTx(false))
}

func (s *MemoryStore) newTx(writable bool) *memTx {
	return &memTx{
		orgs:    newMemTable(s.orgs, writable, Organization.clone),
		rights:  newMemTable(s.rights, writable, func(v string) string { return v }),
		details: newMemTable(s.details, writable, AuthDetail.clone),
	}
}

type memTx struct {
	orgs    *memTable[Organization]
	rights  *memTable[string]
	details *memTable[AuthDetail]
}

func (tx *memTx) Organizations() Table[Organization] { return tx.orgs }
func (tx *memTx) AuthRights() Table[string]          { return tx.rights }
func (tx *memTx) AuthDetails() Table[AuthDetail]     { return tx.details }

// memTable reads through pending writes to the committed map.
type memTable[V any] struct {
	base     map[string]V
	pending  map[string]V
	writable bool
	clone    func(V) V
}

func newMemTable[V any](base map[string]V, writable bool, clone func(V) V) *memTable[V] {
	return &memTable[V]{base: base, writable: writable, clone: clone}
}

func (t *memTable[V]) Contains(_ context.Context, key []byte) (bool, error) {
	k := string(key)
	if _, ok := t.pending[k]; ok {
		return true, nil
	}
	_, ok := t.base[k]
	return ok, nil
}

func (t *memTable[V]) Get(_ context.Context, key []byte) (V, bool, error) {
	k := string(key)
	if v, ok := t.pending[k]; ok {
		return t.clone(v), true, nil
	}
	v, ok := t.base[k]
	if !ok {
		var zero V
		return zero, false, nil
	}
	return t.clone(v), true, nil
}

func (t *memTable[V]) Insert(_ context.Context, key []byte, v V) error {
	if !t.writable {
		return ErrReadOnly
	}
	if t.pending == nil {
		t.pending = make(map[string]V)
	}
	t.pending[string(key)] = t.clone(v)
	return nil
}

func (t *memTable[V]) commit() {
	for k, v := range t.pending {
		t.base[k] = v
	}
	t.pending = nil
}
