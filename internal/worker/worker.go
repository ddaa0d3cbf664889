// Package worker implements the per-row scan task: fetch, classify, sink.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cms-detector/internal/metrics"
	"github.com/JakeFAU/cms-detector/internal/scanner"
)

// Queue is the source a worker drains.
type Queue interface {
	Dequeue(ctx context.Context) (scanner.ScanRequest, error)
}

// EmitFunc receives every result a worker produced together with the sink
// error for that result, if any.
type EmitFunc func(result scanner.ClassificationResult, sinkErr error)

// Config controls Worker behavior.
type Config struct {
	// SinkName labels sink failures in metrics and logs.
	SinkName string
}

// Worker consumes scan requests and executes the fetch/classify pipeline.
type Worker struct {
	fetcher    scanner.Fetcher
	classifier scanner.Classifier
	sink       scanner.ResultSink
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Worker.
func New(
	fetcher scanner.Fetcher,
	classifier scanner.Classifier,
	sink scanner.ResultSink,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SinkName == "" {
		cfg.SinkName = "sink"
	}
	return &Worker{
		fetcher:    fetcher,
		classifier: classifier,
		sink:       sink,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run drains the queue until it is closed. Cancellation of ctx does not stop
// the drain: every dequeued request still produces a result.
func (w *Worker) Run(ctx context.Context, queue Queue, emit EmitFunc) {
	drainCtx := context.WithoutCancel(ctx)
	for {
		req, err := queue.Dequeue(drainCtx)
		if err != nil {
			if errors.Is(err, scanner.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		result, sinkErr := w.Process(ctx, req)
		if emit != nil {
			emit(result, sinkErr)
		}
	}
}

// Process scans a single request and forwards the result to the sink. The
// returned error only reports sink failures; scan failures are encoded in the
// result as Platform Error.
func (w *Worker) Process(ctx context.Context, req scanner.ScanRequest) (scanner.ClassificationResult, error) {
	metrics.IncInflight()
	defer metrics.DecInflight()

	result := w.scan(ctx, req)
	return result, w.forward(ctx, result)
}

// Reject forwards an Error result for a request that was never dispatched.
func (w *Worker) Reject(ctx context.Context, req scanner.ScanRequest, cause error) (scanner.ClassificationResult, error) {
	result := scanner.ErrorResult(req, fmt.Errorf("scan canceled: %w", cause))
	w.logger.Warn("scan skipped",
		zap.String("organization", req.Organization),
		zap.String("url", req.URL),
		zap.Error(cause),
	)
	return result, w.forward(ctx, result)
}

func (w *Worker) scan(ctx context.Context, req scanner.ScanRequest) (result scanner.ClassificationResult) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("scan panicked",
				zap.String("url", req.URL),
				zap.Any("panic", r),
			)
			result = scanner.ErrorResult(req, fmt.Errorf("internal error: %v", r))
		}
	}()

	if w.fetcher == nil || w.classifier == nil {
		return scanner.ErrorResult(req, errors.New("scanner is not configured"))
	}

	start := time.Now()
	snapshot, err := w.fetcher.Fetch(ctx, req.URL)
	if err != nil {
		kind := scanner.ErrorKind(err)
		metrics.ObserveFetch(metrics.OutcomeError, time.Since(start), 0)
		metrics.ObserveFetchError(string(kind))
		w.logger.Warn("fetch failed",
			zap.String("organization", req.Organization),
			zap.String("url", req.URL),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return scanner.ErrorResult(req, err)
	}
	metrics.ObserveFetch(metrics.OutcomeOK, time.Since(start), len(snapshot.Body))

	return scanner.NewResult(req, w.classifier.Classify(snapshot))
}

// forward hands the result to the sink. The sink write is detached from ctx
// cancellation so results of finished tasks are never dropped.
func (w *Worker) forward(ctx context.Context, result scanner.ClassificationResult) error {
	metrics.ObserveScan(result.Platform.String())
	w.logger.Info("scan classified",
		zap.String("organization", result.Organization),
		zap.String("url", result.URL),
		zap.String("platform", result.Platform.String()),
		zap.String("reason", result.Reason),
	)
	if w.sink == nil {
		return nil
	}
	if err := w.sink.Accept(context.WithoutCancel(ctx), result); err != nil {
		metrics.ObserveSinkError(w.cfg.SinkName)
		w.logger.Error("sink accept failed",
			zap.String("sink", w.cfg.SinkName),
			zap.String("url", result.URL),
			zap.Error(err),
		)
		return fmt.Errorf("%s accept %q: %w", w.cfg.SinkName, result.URL, err)
	}
	return nil
}
