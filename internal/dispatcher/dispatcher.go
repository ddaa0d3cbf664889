// Package dispatcher runs a scan batch over a fixed-size worker pool.
package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/cms-detector/internal/queue/memory"
	"github.com/JakeFAU/cms-detector/internal/scanner"
	"github.com/JakeFAU/cms-detector/internal/worker"
)

// DefaultConcurrency is the number of in-flight tasks when none is configured.
const DefaultConcurrency = 5

// Dispatcher fans scan requests out to a pool of workers. The pool size is
// the concurrency ceiling: at most len(workers) tasks are in flight at once.
type Dispatcher struct {
	workers []*worker.Worker

	total      atomic.Int64
	done       atomic.Int64
	failed     atomic.Int64
	sinkFailed atomic.Int64
}

// Progress is a point-in-time view of the current run.
type Progress struct {
	Total      int64 `json:"total"`
	Done       int64 `json:"done"`
	Failed     int64 `json:"failed"`
	SinkFailed int64 `json:"sink_failed"`
}

// New creates a Dispatcher.
func New(workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{workers: workers}
}

// Concurrency returns the size of the worker pool.
func (d *Dispatcher) Concurrency() int {
	return len(d.workers)
}

// Progress reports how far the current (or last) run got. Failed counts
// Error results.
func (d *Dispatcher) Progress() Progress {
	return Progress{
		Total:      d.total.Load(),
		Done:       d.done.Load(),
		Failed:     d.failed.Load(),
		SinkFailed: d.sinkFailed.Load(),
	}
}

// Run scans every request and blocks until each result has been forwarded to
// the sink. It returns exactly one result per request, in completion order.
// The error aggregates sink failures; it never means results are missing.
func (d *Dispatcher) Run(ctx context.Context, requests []scanner.ScanRequest) ([]scanner.ClassificationResult, error) {
	if len(d.workers) == 0 {
		return nil, errors.New("dispatcher has no workers")
	}

	d.total.Store(int64(len(requests)))
	d.done.Store(0)
	d.failed.Store(0)
	d.sinkFailed.Store(0)

	var (
		mu      sync.Mutex
		results = make([]scanner.ClassificationResult, 0, len(requests))
		errs    error
	)
	collect := func(result scanner.ClassificationResult, sinkErr error) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, result)
		errs = multierr.Append(errs, sinkErr)
		d.done.Add(1)
		if result.Platform == scanner.PlatformError {
			d.failed.Add(1)
		}
		if sinkErr != nil {
			d.sinkFailed.Add(1)
		}
	}

	queue := memory.NewQueue(len(d.workers))
	var g errgroup.Group
	for _, w := range d.workers {
		g.Go(func() error {
			w.Run(ctx, queue, collect)
			return nil
		})
	}

	for i, req := range requests {
		if err := queue.Enqueue(ctx, req); err != nil {
			// not dispatched; still owed one result each
			for _, rest := range requests[i:] {
				collect(d.workers[0].Reject(ctx, rest, context.Cause(ctx)))
			}
			break
		}
	}
	queue.Close()
	_ = g.Wait() //nolint:errcheck // workers never return errors

	return results, errs
}
