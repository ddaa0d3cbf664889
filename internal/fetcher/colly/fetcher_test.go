package collyfetcher

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cms-detector/internal/scanner"
)

func TestFetchReturnsSnapshot(t *testing.T) {
	t.Parallel()

	var gotUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.UserAgent())
		w.Header().Set("X-Generator", "Drupal 10")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>hello</body></html>`))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{UserAgent: "test-agent", Timeout: time.Second})
	snap, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, snap.StatusCode)
	require.Equal(t, srv.URL, snap.URL)
	require.Equal(t, "Drupal 10", snap.Headers.Get("x-generator"))
	require.Contains(t, string(snap.Body), "hello")
	require.Equal(t, "test-agent", gotUA.Load())
}

func TestFetchAddsSchemeWhenMissing(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	bare := strings.TrimPrefix(srv.URL, "http://")
	snap, err := New(Config{Timeout: time.Second}).Fetch(context.Background(), bare)
	require.NoError(t, err)
	require.Equal(t, "http://"+bare, snap.URL)
}

func TestFetchHTTPErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	_, err := New(Config{Timeout: time.Second}).Fetch(context.Background(), srv.URL)
	var fetchErr *scanner.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, scanner.FetchHTTPStatus, fetchErr.Kind)
	require.Equal(t, "HTTP 404 - Not Found", fetchErr.Reason())
}

func TestFetchUnreachableHost(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New(Config{Timeout: time.Second}).Fetch(context.Background(), addr)
	require.Error(t, err)
	require.Equal(t, scanner.FetchNoResponse, scanner.ErrorKind(err))
	require.Equal(t, "No response received from server or request timed out", scanner.Reason(err))
}

func TestFetchTimeoutIsNoResponse(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	_, err := New(Config{Timeout: 100 * time.Millisecond}).Fetch(context.Background(), srv.URL)
	require.Equal(t, scanner.FetchNoResponse, scanner.ErrorKind(err))
}

func TestFetchRejectsBlankURLWithoutNetwork(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	for _, raw := range []string{"", "   ", "\t\n"} {
		_, err := f.Fetch(context.Background(), raw)
		require.Equal(t, scanner.FetchInvalidInput, scanner.ErrorKind(err), "input %q", raw)
		require.Equal(t, "Empty or invalid URL", scanner.Reason(err))
	}
}

func TestFetchSameURLTwice(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: time.Second})
	for i := 0; i < 2; i++ {
		_, err := f.Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
	}
	require.Equal(t, int32(2), hits.Load())
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{Timeout: time.Second}).Fetch(ctx, srv.URL)
	require.Equal(t, scanner.FetchOther, scanner.ErrorKind(err))
	require.ErrorIs(t, err, context.Canceled)
}

func TestFetchCanceledContextSendsNoRequest(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := New(Config{Timeout: time.Second})
	for i := 0; i < 10; i++ {
		_, err := f.Fetch(ctx, srv.URL)
		require.Equal(t, scanner.FetchOther, scanner.ErrorKind(err))
	}
	require.Zero(t, hits.Load())
}

func TestFetchCancelMidRunKeepsCeiling(t *testing.T) {
	t.Parallel()

	const workers = 5
	var inflight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			prev := peak.Load()
			if cur <= prev || peak.CompareAndSwap(prev, cur) {
				break
			}
		}
		select {
		case <-r.Context().Done():
		case <-time.After(300 * time.Millisecond):
		}
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	rows := make(chan string, 20)
	for i := 0; i < 20; i++ {
		rows <- srv.URL + "/" + strings.Repeat("p", i+1)
	}
	close(rows)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	defer cancel()

	f := New(Config{Timeout: 5 * time.Second})
	var (
		wg      sync.WaitGroup
		fetched atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for row := range rows {
				_, _ = f.Fetch(ctx, row)
				fetched.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(20), fetched.Load())
	require.LessOrEqual(t, peak.Load(), int32(workers))
}

func TestFetchReadsLargeBody(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("a", 11*1024*1024) + `<link href="/wp-content/themes/x.css">`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	snap, err := New(Config{Timeout: 5 * time.Second}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, snap.Body, len(body))
	require.True(t, strings.HasSuffix(string(snap.Body), "/wp-content/themes/x.css\">"))
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "example.com", want: "http://example.com"},
		{in: "  example.com/path  ", want: "http://example.com/path"},
		{in: "https://example.com", want: "https://example.com"},
		{in: "HTTP://Example.com", want: "HTTP://Example.com"},
		{in: "ftp://example.com", want: "http://ftp://example.com"},
	}
	for _, tt := range tests {
		got, err := NormalizeURL(tt.in)
		require.NoError(t, err)
		require.Equal(t, tt.want, got)
	}

	_, err := NormalizeURL(" ")
	require.Equal(t, scanner.FetchInvalidInput, scanner.ErrorKind(err))
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	state := &fetchState{}
	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, "http://example.com", state)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com/home")},
	})
	require.True(t, state.responded)
	require.Equal(t, "http://example.com", state.snapshot.URL)
	require.Equal(t, "https://example.com/home", state.snapshot.FinalURL)
	require.Equal(t, "ok", state.snapshot.Headers.Get("X-Resp"))

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, state.err, "boom")
}

func TestEvaluateWithoutResponse(t *testing.T) {
	t.Parallel()

	_, err := evaluate(context.Background(), &fetchState{}, nil)
	require.Equal(t, scanner.FetchOther, scanner.ErrorKind(err))

	_, err = evaluate(context.Background(), &fetchState{}, errors.New("missing URL"))
	require.Equal(t, scanner.FetchOther, scanner.ErrorKind(err))
	require.Contains(t, scanner.Reason(err), "missing URL")
}

func TestBuildCollectorAllowsRevisit(t *testing.T) {
	t.Parallel()

	collector := New(Config{UserAgent: "ua"}).buildCollector()
	require.True(t, collector.AllowURLRevisit)
	require.True(t, collector.ParseHTTPErrorResponse)
	require.Equal(t, "ua", collector.UserAgent)
	require.Zero(t, collector.MaxBodySize)
}

func TestFetchMalformedResponseIsNoResponse(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_, _ = conn.Write([]byte("garbage not http\r\n\r\n"))
			_ = conn.Close()
		}
	}()

	_, err = New(Config{Timeout: 2 * time.Second}).Fetch(context.Background(), "http://"+ln.Addr().String())
	require.Equal(t, scanner.FetchNoResponse, scanner.ErrorKind(err))
	require.Equal(t, scanner.ReasonNoResponse, scanner.Reason(err))
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
