package scanner

import (
	"context"
	"time"
)

// Fetcher retrieves a homepage. Failures are reported as *FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (PageSnapshot, error)
}

// Classifier labels a fetched page. Implementations must be pure.
type Classifier interface {
	Classify(snapshot PageSnapshot) Label
}

// ResultSink consumes classification results. Accept may be called
// concurrently from every in-flight task.
type ResultSink interface {
	Accept(ctx context.Context, result ClassificationResult) error
	Close(ctx context.Context) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
