package essay

import (
	"context"
	"time"
)

// Fetcher retrieves a remote document.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// BlobStore writes an object under key and returns the URL it is reachable at.
type BlobStore interface {
	PutObject(ctx context.Context, key string, contentType string, data []byte) (string, error)
}

// Notifier announces a published essay (Pub/Sub or similar).
type Notifier interface {
	Notify(ctx context.Context, event Published) (string, error)
}

// Hasher computes hex digests of artifact content.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
