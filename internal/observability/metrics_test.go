package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestModule_ExportsInstruments(t *testing.T) {
	mod, err := New("media-test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer mod.Shutdown(context.Background())

	metrics, err := NewMetrics(mod.Meter())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	metrics.BatchesSent.Add(context.Background(), 2)

	rec := httptest.NewRecorder()
	mod.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "sink_batches_sent_total") {
		t.Errorf("expected sink_batches_sent_total in exposition, got:\n%s", body)
	}
}

func TestHTTPMetrics_PassesThrough(t *testing.T) {
	mod, err := New("media-test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer mod.Shutdown(context.Background())

	metrics, err := NewMetrics(mod.Meter())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	handler := HTTPMetrics(metrics, "metrics")(mod.MetricsHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	mod.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "http_request_total") {
		t.Errorf("expected http_request_total after a wrapped request")
	}
}

func TestHTTPMetrics_LabelsRouteNotPath(t *testing.T) {
	mod, err := New("media-test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer mod.Shutdown(context.Background())

	metrics, err := NewMetrics(mod.Meter())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	handler := HTTPMetrics(metrics, "fallback")(notFound)
	for _, path := range []string{"/a", "/b/c", "/random-123"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
	}

	rec := httptest.NewRecorder()
	mod.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	if !strings.Contains(body, `route="fallback"`) {
		t.Errorf("expected route label in exposition, got:\n%s", body)
	}
	if strings.Contains(body, "random-123") || strings.Contains(body, `path="`) {
		t.Errorf("request paths must not become labels:\n%s", body)
	}
	if !strings.Contains(body, "http_request_errors_total") {
		t.Errorf("expected error counter for 404 responses")
	}
}

func TestHTTPMetrics_NilMetrics(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	rec := httptest.NewRecorder()
	HTTPMetrics(nil, "x")(next).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
}
