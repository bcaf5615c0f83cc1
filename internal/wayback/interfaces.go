package wayback

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves the payload for a request, retrying transient failures.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Payload, error)
}

// Store persists normalized records into a named database and collection.
type Store interface {
	Insert(ctx context.Context, database, collection string, record Record) error
	Close(ctx context.Context) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes record notifications to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes payload digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
