package trace

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"expensetracker/internal/log"
)

type observed struct {
	method, route string
	status        int
}

type fakeObserver struct{ calls []observed }

func (f *fakeObserver) ObserveHTTP(method, route string, status int, _ time.Duration) {
	f.calls = append(f.calls, observed{method, route, status})
}

func TestMiddlewareRecordsRouteAndStatus(t *testing.T) {
	obs := &fakeObserver{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /things/{id}", func(w http.ResponseWriter, r *http.Request) {
		if GetRequestID(r.Context()) == "" {
			t.Error("request id missing from context")
		}
		w.WriteHeader(http.StatusTeapot)
	})

	tm := NewMiddleware(log.New(log.Config{Output: io.Discard}), nil, obs)
	rec := httptest.NewRecorder()
	tm.Middleware(mux).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/things/42", nil))

	if len(obs.calls) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(obs.calls))
	}
	got := obs.calls[0]
	if got.route != "GET /things/{id}" || got.status != http.StatusTeapot {
		t.Errorf("unexpected observation %+v", got)
	}
	if !strings.HasPrefix(rec.Header().Get(RequestIDHeader), "req_") {
		t.Errorf("missing generated request id header")
	}
}

func TestMiddlewareKeepsValidIncomingRequestID(t *testing.T) {
	tm := NewMiddleware(log.New(log.Config{Output: io.Discard}), nil, nil)
	h := tm.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	tests := []struct {
		in       string
		expected func(string) bool
	}{
		{"abc-123", func(s string) bool { return s == "abc-123" }},
		{"bad id with spaces", func(s string) bool { return strings.HasPrefix(s, "req_") }},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, tt.in)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if got := rec.Header().Get(RequestIDHeader); !tt.expected(got) {
			t.Errorf("incoming %q produced %q", tt.in, got)
		}
	}
}

func TestGenerateRequestIDUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := GenerateRequestID()
		if seen[id] {
			t.Fatalf("duplicate request id %s", id)
		}
		seen[id] = true
	}
}
