// Package firestorekv implements the transactional document store on
// Google Cloud Firestore. Firestore transactions give the serialized
// read-modify-write the merge engine relies on, and tx.Create supplies
// the conditional-create primitive.
package firestorekv

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pacelog/pacelog/internal/adapters/store"
)

// Store implements store.Store on a single Firestore collection, one
// document per key.
type Store struct {
	client     *firestore.Client
	collection string
}

// Config contains configuration for the Firestore store.
type Config struct {
	ProjectID       string
	CredentialsFile string
	Collection      string
}

// Option configures a Store.
type Option func(*Config)

// WithProjectID sets the GCP project ID.
func WithProjectID(projectID string) Option {
	return func(c *Config) {
		c.ProjectID = projectID
	}
}

// WithCredentialsFile sets the path to service account credentials.
// Without it, Application Default Credentials are used.
func WithCredentialsFile(path string) Option {
	return func(c *Config) {
		c.CredentialsFile = path
	}
}

// WithCollection sets the Firestore collection holding the documents.
func WithCollection(name string) Option {
	return func(c *Config) {
		c.Collection = name
	}
}

// New creates a Firestore-backed store.
func New(ctx context.Context, opts ...Option) (*Store, error) {
	config := &Config{Collection: "pacelog"}
	for _, opt := range opts {
		opt(config)
	}

	if config.ProjectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	var clientOpts []option.ClientOption
	if config.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(config.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, config.ProjectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	return &Store{client: client, collection: config.Collection}, nil
}

// NewFromClient wraps an existing client, e.g. one pointed at the
// Firestore emulator.
func NewFromClient(client *firestore.Client, collection string) *Store {
	if collection == "" {
		collection = "pacelog"
	}
	return &Store{client: client, collection: collection}
}

// RunTransaction maps directly onto a Firestore transaction. Firestore
// retries fn on contention, so fn must be idempotent over its reads.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.client.RunTransaction(ctx, func(ctx context.Context, t *firestore.Transaction) error {
		return fn(ctx, &fsTx{store: s, t: t})
	})
}

// Get reads a document outside any transaction.
func (s *Store) Get(ctx context.Context, key string, dest any) error {
	snap, err := s.doc(key).Get(ctx)
	if err != nil {
		return mapError(key, err)
	}
	return decodeSnapshot(key, snap.Data(), dest)
}

// Close releases the underlying client.
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close firestore client: %w", err)
	}
	return nil
}

func (s *Store) doc(key string) *firestore.DocumentRef {
	// Firestore document IDs must not contain slashes; the store keys
	// use them as namespace separators.
	id := strings.ReplaceAll(key, "/", ":")
	return s.client.Collection(s.collection).Doc(id)
}

// fsTx adapts a Firestore transaction to store.Tx.
type fsTx struct {
	store *Store
	t     *firestore.Transaction
}

func (x *fsTx) Get(ctx context.Context, key string, dest any) error {
	snap, err := x.t.Get(x.store.doc(key))
	if err != nil {
		return mapError(key, err)
	}
	return decodeSnapshot(key, snap.Data(), dest)
}

func (x *fsTx) Create(ctx context.Context, key string, doc any) error {
	m, err := encodeDocument(key, doc)
	if err != nil {
		return err
	}
	if err := x.t.Create(x.store.doc(key), m); err != nil {
		return mapError(key, err)
	}
	return nil
}

func (x *fsTx) Set(ctx context.Context, key string, doc any) error {
	m, err := encodeDocument(key, doc)
	if err != nil {
		return err
	}
	if err := x.t.Set(x.store.doc(key), m); err != nil {
		return mapError(key, err)
	}
	return nil
}

// encodeDocument round-trips through JSON so the stored field names
// follow the models' json tags, matching the other backends.
func encodeDocument(key string, doc any) (map[string]any, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document %s: %w", key, err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("encode document %s: %w", key, err)
	}
	return m, nil
}

func decodeSnapshot(key string, data map[string]any, dest any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("decode document %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode document %s: %w", key, err)
	}
	return nil
}

func mapError(key string, err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", store.ErrNotFound, key)
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %s", store.ErrKeyExists, key)
	default:
		return fmt.Errorf("firestore %s: %w", key, err)
	}
}
