package feed

import (
	"context"
	"errors"
	"io"
	"time"
)

// Adapter-local error classes. Adapters wrap these so callers can tell a
// transport failure from malformed content with errors.Is.
var (
	ErrTransport = errors.New("transport failure")
	ErrParse     = errors.New("parse failure")
)

// Adapter fetches raw candidates from one content origin. Implementations
// recover their own per-item failures; a returned error means the adapter
// as a whole failed for this run.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context) ([]RawCandidate, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes ingest notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes a content digest.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record and log identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
