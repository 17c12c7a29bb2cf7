package pncp

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// ErrObjectExists is returned by ObjectStore.Put when the target path is
// already occupied. AttachmentProcessor handles it with one delete-then-retry.
var ErrObjectExists = errors.New("object already exists")

// ErrDuplicateKey is returned by Repository.Upsert when a uniqueness violation
// on the natural id still surfaces. The engine retries exactly once through
// UpdateByNaturalID.
var ErrDuplicateKey = errors.New("duplicate natural id")

// Repository exposes the point lookups and upserts the pipeline needs, keyed
// by the record's natural id.
type Repository interface {
	// FindByNaturalID returns the stored record or (nil, nil) when absent.
	FindByNaturalID(ctx context.Context, naturalID string) (*StoredRecord, error)
	// Upsert behaves as insert-or-replace on the natural id unique constraint
	// and returns the assigned internal id.
	Upsert(ctx context.Context, record *CanonicalRecord) (string, error)
	// UpdateByNaturalID replaces an existing row explicitly. The engine falls
	// back to it once when Upsert still surfaces a uniqueness violation.
	UpdateByNaturalID(ctx context.Context, record *CanonicalRecord) (string, error)
}

// ObjectStore writes attachment bytes to durable storage.
type ObjectStore interface {
	// Put uploads data under path and returns the object's public URL.
	// Returns ErrObjectExists when the path is already occupied.
	Put(ctx context.Context, path string, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, path string) error
}

// Renderer produces the DOM snapshot of a JavaScript-rendered page. The
// rendering session is a scarce, stateful resource: callers hold it serially
// for the duration of one scan or fetch.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// FetchResponse is the result of a plain HTTP GET.
type FetchResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Fetcher executes a single HTTP GET with the pipeline's timeout and retry
// policy applied.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResponse, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
