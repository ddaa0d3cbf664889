// Package csv writes classification results to a CSV file.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/JakeFAU/cms-detector/internal/scanner"
)

// Header is the first row of every file the sink writes.
var Header = []string{"organization", "url", "platform", "reason"}

// Sink appends one CSV row per result and flushes after every row, so a
// crash mid-run leaves every accepted result on disk.
type Sink struct {
	mu     sync.Mutex
	w      *csv.Writer
	closer io.Closer
}

// Create truncates path (creating parent directories) and writes the header.
func Create(path string) (*Sink, error) {
	if path == "" {
		return nil, errors.New("sink.csv_path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path) //nolint:gosec // operator-supplied output path
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	s, err := NewWriter(f, f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

// NewWriter wraps w. closer may be nil.
func NewWriter(w io.Writer, closer io.Closer) (*Sink, error) {
	s := &Sink{w: csv.NewWriter(w), closer: closer}
	if err := s.write(Header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return s, nil
}

// Accept writes one row.
func (s *Sink) Accept(_ context.Context, result scanner.ClassificationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write([]string{
		result.Organization,
		result.URL,
		result.Platform.String(),
		result.Reason,
	}); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (s *Sink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	err := s.w.Error()
	if s.closer != nil {
		if cerr := s.closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
		s.closer = nil
	}
	if err != nil {
		return fmt.Errorf("close csv: %w", err)
	}
	return nil
}

func (s *Sink) write(record []string) error {
	if err := s.w.Write(record); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}
