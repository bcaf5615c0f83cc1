// Package postgres persists normalized records as JSONB documents.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/morikuni/failure/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-etl/internal/wayback"
)

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Store writes one row per record. The database name selects the schema and
// the collection name the table, which is expected to look like:
//
//	CREATE TABLE <database>.<collection> (
//		id         BIGSERIAL PRIMARY KEY,
//		url        TEXT NOT NULL,
//		endpoint   TEXT NOT NULL,
//		fetched_at TIMESTAMPTZ NOT NULL,
//		document   JSONB NOT NULL
//	);
type Store struct {
	pool   execCloser
	logger *zap.Logger
}

// New creates a pgx pool from cfg.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(pool, logger)
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool execCloser, logger *zap.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Insert appends record to <database>.<collection>.
func (s *Store) Insert(ctx context.Context, database, collection string, record wayback.Record) error {
	if err := wayback.RequireStoreTarget(database, collection); err != nil {
		return err
	}
	if !validIdentifier.MatchString(database) || !validIdentifier.MatchString(collection) {
		return failure.New(wayback.ErrStoreWrite,
			failure.Message("invalid schema or table name"),
			failure.Context{"database": database, "collection": collection},
		)
	}
	meta := record.Meta()
	document, err := json.Marshal(record)
	if err != nil {
		return failure.Wrap(err,
			failure.WithCode(wayback.ErrStoreWrite),
			failure.Message("marshal record document"),
		)
	}

	query := fmt.Sprintf(`
INSERT INTO %s.%s (
	url,
	endpoint,
	fetched_at,
	document
) VALUES (
	$1,$2,$3,$4
)`, database, collection)

	s.logger.Info("inserting document",
		zap.String("endpoint", string(meta.Endpoint)),
		zap.String("url", meta.URL),
		zap.String("table", database+"."+collection),
	)
	if _, err := s.pool.Exec(ctx, query, meta.URL, string(meta.Endpoint), meta.FetchedAt, document); err != nil {
		return failure.Wrap(err,
			failure.WithCode(wayback.ErrStoreWrite),
			failure.Message("insert document into postgres"),
			failure.Context{"table": database + "." + collection},
		)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close(context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
