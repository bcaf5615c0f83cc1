// Package memory keeps normalized records in-process for dry runs and tests.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/wayback-etl/internal/wayback"
)

// Store appends records to per-collection slices.
type Store struct {
	mu      sync.RWMutex
	records map[string][]wayback.Record
	closed  bool
}

// New constructs an empty Store.
func New() *Store {
	return &Store{records: make(map[string][]wayback.Record)}
}

// Insert appends record under database/collection.
func (s *Store) Insert(_ context.Context, database, collection string, record wayback.Record) error {
	if err := wayback.RequireStoreTarget(database, collection); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := database + "/" + collection
	s.records[key] = append(s.records[key], record)
	return nil
}

// Records returns a copy of everything inserted under database/collection.
func (s *Store) Records(database, collection string) []wayback.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.records[database+"/"+collection]
	out := make([]wayback.Record, len(src))
	copy(out, src)
	return out
}

// Close marks the store closed.
func (s *Store) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (s *Store) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
