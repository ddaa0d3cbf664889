// Package app wires configuration into a runnable scan: it builds the fetcher,
// classifier, worker pool and result sink, and owns the sink's lifetime.
package app

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/cms-detector/internal/api"
	"github.com/JakeFAU/cms-detector/internal/classifier"
	"github.com/JakeFAU/cms-detector/internal/clock/system"
	"github.com/JakeFAU/cms-detector/internal/config"
	"github.com/JakeFAU/cms-detector/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/cms-detector/internal/fetcher/colly"
	"github.com/JakeFAU/cms-detector/internal/id/uuid"
	"github.com/JakeFAU/cms-detector/internal/input"
	"github.com/JakeFAU/cms-detector/internal/metrics"
	"github.com/JakeFAU/cms-detector/internal/scanner"
	csvsink "github.com/JakeFAU/cms-detector/internal/sink/csv"
	logsink "github.com/JakeFAU/cms-detector/internal/sink/log"
	pgsink "github.com/JakeFAU/cms-detector/internal/sink/postgres"
	sqlitesink "github.com/JakeFAU/cms-detector/internal/sink/sqlite"
	"github.com/JakeFAU/cms-detector/internal/worker"
)

// SinkFactory opens the result sink for one run.
type SinkFactory func(ctx context.Context, runID string) (scanner.ResultSink, error)

// App holds the collaborators for a scan run.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	fetcher    scanner.Fetcher
	classifier scanner.Classifier
	ids        scanner.IDGenerator
	clock      scanner.Clock
	sinkName   string
	openSink   SinkFactory
}

// Option customizes an App.
type Option func(*App)

// WithFetcher replaces the colly fetcher.
func WithFetcher(f scanner.Fetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// WithSink replaces the configured sink.
func WithSink(name string, open SinkFactory) Option {
	return func(a *App) {
		a.sinkName = name
		a.openSink = open
	}
}

// WithIDGenerator replaces the UUIDv7 run ID generator.
func WithIDGenerator(ids scanner.IDGenerator) Option {
	return func(a *App) { a.ids = ids }
}

// WithClock replaces the wall clock used for persisted timestamps.
func WithClock(c scanner.Clock) Option {
	return func(a *App) { a.clock = c }
}

// Summary describes a finished run.
type Summary struct {
	RunID   string
	Results []scanner.ClassificationResult
	Counts  map[scanner.Platform]int
}

// Platforms returns the platforms seen in the run, sorted by name.
func (s Summary) Platforms() []scanner.Platform {
	out := make([]scanner.Platform, 0, len(s.Counts))
	for p := range s.Counts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// New validates cfg and builds an App.
func New(cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:        cfg,
		logger:     logger,
		classifier: classifier.NewDefault(cfg.Rules()...),
		ids:        uuid.New(),
		clock:      system.New(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.fetcher == nil {
		a.fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.Scanner.UserAgent,
			Timeout:   cfg.FetchTimeout(),
		})
	}
	if a.openSink == nil {
		a.sinkName = cfg.Sink.Kind
		a.openSink = a.configuredSink
	}
	return a, nil
}

// RunFile loads the configured input file and scans it.
func (a *App) RunFile(ctx context.Context) (Summary, error) {
	requests, err := input.Load(a.cfg.Input.Path)
	if err != nil {
		return Summary{}, fmt.Errorf("load input: %w", err)
	}
	return a.Run(ctx, requests)
}

// Run opens the sink, scans every request and closes the sink once all tasks
// have settled. The returned summary always has one result per request; the
// error reports sink failures and setup problems.
func (a *App) Run(ctx context.Context, requests []scanner.ScanRequest) (Summary, error) {
	runID, err := a.ids.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("new run id: %w", err)
	}
	logger := a.logger.With(zap.String("run_id", runID))

	sink, err := a.openSink(ctx, runID)
	if err != nil {
		return Summary{}, fmt.Errorf("open %s sink: %w", a.sinkName, err)
	}

	metrics.Init()
	d := dispatcher.New(a.workers(sink, logger))

	logger.Info("scan started",
		zap.Int("requests", len(requests)),
		zap.Int("concurrency", d.Concurrency()),
		zap.String("sink", a.sinkName),
	)

	var (
		results []scanner.ClassificationResult
		runErr  error
	)
	if addr := a.cfg.Metrics.Addr; addr != "" {
		serveCtx, stop := context.WithCancel(ctx)
		g, gctx := errgroup.WithContext(serveCtx)
		g.Go(func() error {
			return api.NewServer(d, logger).Serve(gctx, addr, nil)
		})
		results, runErr = d.Run(ctx, requests)
		stop()
		if err := g.Wait(); err != nil {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	} else {
		results, runErr = d.Run(ctx, requests)
	}

	if err := sink.Close(context.WithoutCancel(ctx)); err != nil {
		runErr = multierr.Append(runErr, fmt.Errorf("close %s sink: %w", a.sinkName, err))
	}

	summary := Summary{RunID: runID, Results: results, Counts: make(map[scanner.Platform]int)}
	for _, r := range results {
		summary.Counts[r.Platform]++
	}
	logger.Info("scan finished", zap.Int("results", len(results)), zap.Error(runErr))
	return summary, runErr
}

func (a *App) workers(sink scanner.ResultSink, logger *zap.Logger) []*worker.Worker {
	workers := make([]*worker.Worker, 0, a.cfg.Scanner.Concurrency)
	for i := 0; i < a.cfg.Scanner.Concurrency; i++ {
		workers = append(workers, worker.New(
			a.fetcher,
			a.classifier,
			sink,
			worker.Config{SinkName: a.sinkName},
			logger.With(zap.Int("worker", i)),
		))
	}
	return workers
}

func (a *App) configuredSink(ctx context.Context, runID string) (scanner.ResultSink, error) {
	switch a.cfg.Sink.Kind {
	case config.SinkCSV:
		return csvsink.Create(a.cfg.Sink.CSVPath)
	case config.SinkSQLite:
		return sqlitesink.Open(ctx, a.cfg.Sink.SQLitePath, a.cfg.DB.Table, runID, a.clock)
	case config.SinkPostgres:
		return pgsink.New(ctx, pgsink.Config{
			DSN:                a.cfg.DB.DSN,
			Table:              a.cfg.DB.Table,
			MaxConns:           a.cfg.DB.MaxConns,
			InsecureSkipVerify: a.cfg.DB.InsecureSkipVerify,
		}, runID, a.clock)
	case config.SinkLog:
		return logsink.New(a.logger.Named("results")), nil
	default:
		return nil, fmt.Errorf("unknown sink kind %q", a.cfg.Sink.Kind)
	}
}
