// Package memory provides an in-process result sink.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/cms-detector/internal/scanner"
)

// Sink collects results in memory. It is safe for concurrent use.
type Sink struct {
	mu      sync.Mutex
	results []scanner.ClassificationResult
	closed  bool
}

// New returns an empty Sink.
func New() *Sink {
	return &Sink{}
}

// Accept stores the result.
func (s *Sink) Accept(_ context.Context, result scanner.ClassificationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

// Close marks the sink closed. Results remain readable.
func (s *Sink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Results returns a copy of everything accepted so far.
func (s *Sink) Results() []scanner.ClassificationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scanner.ClassificationResult(nil), s.results...)
}

// Closed reports whether Close was called.
func (s *Sink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
