// Package store defines the transactional document store interface and
// an in-memory implementation.
//
// The interface is the minimal surface the ingest core needs: keyed JSON
// documents, point reads, conditional create, and a serialized
// transaction. Any backend offering serializable transactions over
// single keys can sit behind it.
package store

import "context"

// Tx provides document access inside one transaction. All reads must be
// issued before the first write; Firestore enforces this and the
// in-memory implementation follows the same contract.
type Tx interface {
	// Get reads the document at key into dest. Returns ErrNotFound if
	// the key is absent.
	Get(ctx context.Context, key string, dest any) error

	// Create writes a new document at key. Returns ErrKeyExists if the
	// key is already present; the whole transaction aborts in that case.
	Create(ctx context.Context, key string, doc any) error

	// Set writes the document at key unconditionally.
	Set(ctx context.Context, key string, doc any) error
}

// Store provides transactional and point access to documents.
type Store interface {
	// RunTransaction executes fn inside one atomic transaction.
	// Conflicting transactions are serialized by the backend; if fn
	// returns an error no write takes effect.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Get reads a document outside any transaction.
	Get(ctx context.Context, key string, dest any) error

	// Close releases backend resources.
	Close() error
}
