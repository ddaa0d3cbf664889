// Package collyfetcher implements scanner.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/cms-detector/internal/scanner"
)

// DefaultTimeout bounds a single homepage request.
const DefaultTimeout = 7 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements scanner.Fetcher using the Colly collector. Each call
// issues exactly one GET; nothing is retried.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// fetchState collects what the collector callbacks observed.
type fetchState struct {
	snapshot  scanner.PageSnapshot
	responded bool
	err       error
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport(cfg.Timeout))
	c.SetRequestTimeout(cfg.Timeout)
	// markers may sit anywhere in the page; read the whole body
	c.MaxBodySize = 0

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch normalizes rawURL and retrieves it.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (scanner.PageSnapshot, error) {
	target, err := NormalizeURL(rawURL)
	if err != nil {
		return scanner.PageSnapshot{}, err
	}

	state := &fetchState{}
	collector := f.buildCollector()
	f.configureCollectorHooks(collector, target, state)

	visitErr := f.runCollector(ctx, collector, target)
	return evaluate(ctx, state, visitErr)
}

func (f *Fetcher) buildCollector() *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	// duplicate input rows must each get their own request
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	collector.ParseHTTPErrorResponse = true
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, target string, state *fetchState) {
	hooks.OnResponse(func(r *colly.Response) {
		snap := scanner.PageSnapshot{
			URL:        target,
			FinalURL:   target,
			StatusCode: r.StatusCode,
			Headers:    http.Header{},
			Body:       append([]byte(nil), r.Body...),
		}
		if r.Request != nil && r.Request.URL != nil {
			snap.FinalURL = r.Request.URL.String()
		}
		if r.Headers != nil {
			snap.Headers = r.Headers.Clone()
		}
		state.snapshot = snap
		state.responded = true
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		state.err = err
	})
}

// runCollector visits target and returns only once the request has ended,
// so a caller holding a concurrency slot never leaves a request running.
func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, target string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("colly fetch canceled: %w", err)
	}
	collector.Context = ctx

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		<-done
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		return err
	}
}

// evaluate maps what the collector saw onto the fetch failure taxonomy.
func evaluate(ctx context.Context, state *fetchState, visitErr error) (scanner.PageSnapshot, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return scanner.PageSnapshot{}, scanner.NewOtherError(fmt.Errorf("colly fetch canceled: %w", ctxErr))
	}
	if visitErr != nil {
		if state.err != nil && !state.responded {
			// the request went out and nothing came back
			return scanner.PageSnapshot{}, scanner.NewNoResponseError(visitErr)
		}
		return scanner.PageSnapshot{}, scanner.NewOtherError(fmt.Errorf("colly visit failed: %w", visitErr))
	}
	if !state.responded {
		return scanner.PageSnapshot{}, scanner.NewOtherError(errors.New("colly fetch produced no result"))
	}
	if code := state.snapshot.StatusCode; code < 200 || code > 299 {
		return scanner.PageSnapshot{}, scanner.NewHTTPStatusError(code, statusText(code))
	}
	return state.snapshot, nil
}

func statusText(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return "Unknown Status"
}

func newHTTPTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   timeout,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
