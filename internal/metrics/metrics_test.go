package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if scansTotal == nil || fetchErrorsTotal == nil || fetchDurationSeconds == nil ||
		sinkErrorsTotal == nil || inflightTasks == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	before := testutil.ToFloat64(scansTotal.WithLabelValues("WordPress"))
	ObserveScan("WordPress")
	if got := testutil.ToFloat64(scansTotal.WithLabelValues("WordPress")); got != before+1 {
		t.Errorf("expected WordPress scans to grow by 1, got %f -> %f", before, got)
	}

	beforeErr := testutil.ToFloat64(fetchErrorsTotal.WithLabelValues("no_response"))
	ObserveFetchError("no_response")
	if got := testutil.ToFloat64(fetchErrorsTotal.WithLabelValues("no_response")); got != beforeErr+1 {
		t.Errorf("expected fetch errors to grow by 1, got %f -> %f", beforeErr, got)
	}

	IncInflight()
	IncInflight()
	DecInflight()
	if got := testutil.ToFloat64(inflightTasks); got < 1 {
		t.Errorf("expected in-flight gauge >= 1, got %f", got)
	}
	DecInflight()

	ObserveFetch(OutcomeOK, 150*time.Millisecond, 2048)
	ObserveSinkError("csv")
}

func TestHandlerExposesCollectors(t *testing.T) {
	Init()
	ObserveScan("Unknown")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "cmsdetector_scans_total") {
		t.Fatal("expected scans counter in exposition")
	}
}
