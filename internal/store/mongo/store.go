// Package mongo persists normalized records into MongoDB.
package mongo

import (
	"context"
	"fmt"
	"net/url"

	"github.com/morikuni/failure/v2"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-etl/internal/wayback"
)

// DefaultURI is used when no connection string is configured.
const DefaultURI = "mongodb://localhost:27017"

// Store inserts records through a single shared client.
type Store struct {
	client *mongo.Client
	logger *zap.Logger
}

// New creates a client for uri. The driver connects lazily, so an unreachable
// server is reported by the first insert rather than here.
func New(ctx context.Context, uri string, logger *zap.Logger) (*Store, error) {
	if uri == "" {
		uri = DefaultURI
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("connecting to mongodb", zap.String("uri", redact(uri)))
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	return &Store{client: client, logger: logger}, nil
}

// NewWithClient wraps an existing client (primarily for testing).
func NewWithClient(client *mongo.Client, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, logger: logger}
}

// Insert writes record as a new document. Every call appends; nothing is upserted.
func (s *Store) Insert(ctx context.Context, database, collection string, record wayback.Record) error {
	if err := wayback.RequireStoreTarget(database, collection); err != nil {
		return err
	}
	meta := record.Meta()
	s.logger.Info("inserting document",
		zap.String("endpoint", string(meta.Endpoint)),
		zap.String("url", meta.URL),
		zap.String("database", database),
		zap.String("collection", collection),
	)
	res, err := s.client.Database(database).Collection(collection).InsertOne(ctx, record)
	if err != nil {
		return failure.Wrap(err,
			failure.WithCode(wayback.ErrStoreWrite),
			failure.Message("insert document into mongodb"),
			failure.Context{
				"database":   database,
				"collection": collection,
				"endpoint":   string(meta.Endpoint),
			},
		)
	}
	s.logger.Debug("document inserted", zap.Any("id", res.InsertedID))
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongodb: %w", err)
	}
	s.logger.Info("mongodb connection closed")
	return nil
}

func redact(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}
