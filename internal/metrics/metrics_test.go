package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if backfillRecordsTotal == nil || backfillFailuresTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveRecordAndFailure(t *testing.T) {
	Init()
	beforeSucceeded := testutil.ToFloat64(backfillRecordsTotal.WithLabelValues("succeeded"))
	beforeNotFound := testutil.ToFloat64(backfillFailuresTotal.WithLabelValues("not_found"))
	beforeBackoffs := testutil.ToFloat64(backfillRateLimitBackoffs)

	ObserveRecord("succeeded")
	ObserveFailure("not_found")
	ObserveFailure("not_found")
	ObserveRateLimitBackoff()
	ObserveStep("fetch", 150*time.Millisecond)

	if got := testutil.ToFloat64(backfillRecordsTotal.WithLabelValues("succeeded")) - beforeSucceeded; got != 1 {
		t.Errorf("expected 1 succeeded record, got %f", got)
	}
	if got := testutil.ToFloat64(backfillFailuresTotal.WithLabelValues("not_found")) - beforeNotFound; got != 2 {
		t.Errorf("expected 2 not_found failures, got %f", got)
	}
	if got := testutil.ToFloat64(backfillRateLimitBackoffs) - beforeBackoffs; got != 1 {
		t.Errorf("expected 1 backoff, got %f", got)
	}
	if got := testutil.CollectAndCount(backfillStepDurationSeconds); got <= 0 {
		t.Errorf("expected step histogram to be observed, got %d", got)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	ObserveRecord("skipped")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, `backfill_records_total{outcome="skipped"}`) {
		t.Fatalf("expected backfill_records_total in output, got:\n%s", body)
	}
}

func TestPushSendsToGateway(t *testing.T) {
	var gotPath string
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	ObserveRecord("succeeded")
	if err := Push(context.Background(), gateway.URL, "logo_backfill"); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if gotPath != "/metrics/job/logo_backfill" {
		t.Fatalf("unexpected push path %q", gotPath)
	}
}

func TestPushReportsGatewayErrors(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer gateway.Close()

	if err := Push(context.Background(), gateway.URL, "logo_backfill"); err == nil {
		t.Fatal("expected error from failing gateway")
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
