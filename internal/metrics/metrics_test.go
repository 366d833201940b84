package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	return rec.Body.String()
}

func TestObserveLending(t *testing.T) {
	m := New()
	m.ObserveLending("borrow", OutcomeOK)
	m.ObserveLending("borrow", OutcomeOK)
	m.ObserveLending("return", OutcomeConflict)

	body := scrape(t, m)
	for _, want := range []string{
		`holocron_lending_operations_total{op="borrow",outcome="ok"} 2`,
		`holocron_lending_operations_total{op="return",outcome="conflict"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestInstrument(t *testing.T) {
	m := New()
	h := m.Instrument("borrow", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/books/b1/borrow", nil))
	m.ObserveRegistration()

	body := scrape(t, m)
	for _, want := range []string{
		`holocron_http_request_duration_seconds_count{route="borrow",status="409"} 1`,
		"holocron_books_registered_total 1",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
