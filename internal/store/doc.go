// Package store groups the document stores that persist normalized archive
// records. Every implementation satisfies wayback.Store:
//
//   - mongo: the primary sink, one document per record in the configured
//     database and collection.
//   - postgres: JSONB documents in a <database>.<collection> schema-qualified table.
//   - memory: keeps records in-process for dry runs and tests.
//
// Stores never retry. A failed insert is returned as a wayback.ErrStoreWrite
// failure and aborts the run.
package store
