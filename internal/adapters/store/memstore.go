package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemStore is an in-memory Store. Transactions are serialized by a
// single mutex, which trivially satisfies the serializable-transaction
// contract. Documents are held JSON-encoded so readers always get a
// deep copy.
type MemStore struct {
	mu     sync.Mutex
	docs   map[string][]byte
	closed bool
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{docs: make(map[string][]byte)}
}

// RunTransaction executes fn under the store mutex. Writes are buffered
// and applied only if fn returns nil.
func (s *MemStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{store: s, pending: make(map[string][]byte)}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	for key, doc := range tx.pending {
		s.docs[key] = doc
	}
	return nil
}

// Get reads a document outside any transaction.
func (s *MemStore) Get(ctx context.Context, key string, dest any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	doc, ok := s.docs[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err := json.Unmarshal(doc, dest); err != nil {
		return fmt.Errorf("decode document %s: %w", key, err)
	}
	return nil
}

// Close marks the store closed. Subsequent operations fail with ErrClosed.
func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Len returns the number of stored documents. Intended for tests and
// stats reporting.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// memTx buffers writes until commit. Reads observe buffered writes
// (read-your-writes within the transaction).
type memTx struct {
	store   *MemStore
	pending map[string][]byte
}

func (t *memTx) Get(ctx context.Context, key string, dest any) error {
	doc, ok := t.pending[key]
	if !ok {
		doc, ok = t.store.docs[key]
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err := json.Unmarshal(doc, dest); err != nil {
		return fmt.Errorf("decode document %s: %w", key, err)
	}
	return nil
}

func (t *memTx) Create(ctx context.Context, key string, doc any) error {
	if _, ok := t.pending[key]; ok {
		return fmt.Errorf("%w: %s", ErrKeyExists, key)
	}
	if _, ok := t.store.docs[key]; ok {
		return fmt.Errorf("%w: %s", ErrKeyExists, key)
	}
	return t.put(key, doc)
}

func (t *memTx) Set(ctx context.Context, key string, doc any) error {
	return t.put(key, doc)
}

func (t *memTx) put(key string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", key, err)
	}
	t.pending[key] = data
	return nil
}
