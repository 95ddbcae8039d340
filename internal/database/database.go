// Package database handles the document store connection.
package database

import (
	"context"
	"sync"
	"time"

	"threads/internal/config"
	"threads/internal/models"
	"threads/internal/observability"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names.
const (
	CollUsers       = "users"
	CollThreads     = "threads"
	CollCommunities = "communities"
)

const dialTimeout = 15 * time.Second

// Store owns the lazily-established connection to the document store.
// EnsureConnected is safe to call concurrently from many in-flight
// operations; only the first caller dials.
type Store struct {
	uri    string
	dbName string

	mu     sync.Mutex
	client *mongo.Client
	db     *mongo.Database
}

// New returns a Store configured from cfg. No connection is made until
// EnsureConnected is called.
func New(cfg *config.Config) *Store {
	return &Store{uri: cfg.MongoURI, dbName: cfg.MongoDatabase}
}

// NewWithClient wraps an already-connected client. Used by tests and the seeder.
func NewWithClient(client *mongo.Client, dbName string) *Store {
	return &Store{client: client, db: client.Database(dbName)}
}

// EnsureConnected establishes the connection if none is active and returns
// the database handle. When already connected it is a cheap no-op: the held
// client is inspected, not re-dialed. A failed dial surfaces as a
// StoreUnavailable error so dependent operations fail instead of hanging.
func (s *Store) EnsureConnected(ctx context.Context) (*mongo.Database, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.db, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	client, err := mongo.Connect(dialCtx, options.Client().ApplyURI(s.uri))
	if err != nil {
		return nil, models.NewStoreUnavailableError(err)
	}
	if err := client.Ping(dialCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, models.NewStoreUnavailableError(err)
	}

	s.client = client
	s.db = client.Database(s.dbName)
	observability.GlobalLogger.InfoContext(ctx, "document store connected", "database", s.dbName)
	return s.db, nil
}

// Collection ensures the connection is live and returns the named collection.
func (s *Store) Collection(ctx context.Context, name string) (*mongo.Collection, error) {
	db, err := s.EnsureConnected(ctx)
	if err != nil {
		return nil, err
	}
	return db.Collection(name), nil
}

// Ping verifies the connection is usable. Used by the readiness check.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	if client == nil {
		if _, err := s.EnsureConnected(ctx); err != nil {
			return err
		}
		return nil
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return models.NewStoreUnavailableError(err)
	}
	return nil
}

// Disconnect tears down the connection if one was established.
func (s *Store) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	err := s.client.Disconnect(ctx)
	s.client = nil
	s.db = nil
	return err
}
