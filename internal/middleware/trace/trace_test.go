package trace

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

type recordingObserver struct {
	method, route string
	status        int
}

func (o *recordingObserver) ObserveHTTP(method, route string, status int, _ time.Duration) {
	o.method, o.route, o.status = method, route, status
}

func TestMiddleware_RequestIDAndRoute(t *testing.T) {
	mux := http.NewServeMux()
	var seen string
	mux.HandleFunc("GET /api/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})

	obs := &recordingObserver{}
	h := NewMiddleware(func(*http.Request) string { return "10.0.0.1" }, obs).Middleware(mux)

	tests := []struct {
		name      string
		path      string
		requestID string
		keepID    bool
		route     string
		status    int
	}{
		{"generated id", "/api/items/7", "", false, "GET /api/items/{id}", http.StatusTeapot},
		{"incoming uuid kept", "/api/items/7", "1b4e28ba-2fa1-11d2-883f-0016d3cca427", true, "GET /api/items/{id}", http.StatusTeapot},
		{"garbage id replaced", "/api/items/7", "<script>", false, "GET /api/items/{id}", http.StatusTeapot},
		{"unmatched route", "/nope", "", false, "unmatched", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.requestID != "" {
				req.Header.Set(HeaderRequestID, tt.requestID)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			got := rec.Header().Get(HeaderRequestID)
			if _, err := uuid.Parse(got); err != nil {
				t.Errorf("response request id %q is not a UUID", got)
			}
			if tt.keepID && got != tt.requestID {
				t.Errorf("request id = %s, want %s", got, tt.requestID)
			}
			if seen != "" && seen != got {
				t.Errorf("handler saw %s, response says %s", seen, got)
			}
			if obs.route != tt.route || obs.status != tt.status || obs.method != http.MethodGet {
				t.Errorf("observed %s %s %d, want %s %d", obs.method, obs.route, obs.status, tt.route, tt.status)
			}
		})
	}
}

func TestRecordRoute_ThroughReplacedRequest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/entries/{id}/toggle-paid", func(w http.ResponseWriter, r *http.Request) {})

	// The middleware in between hands the mux a copy of the request.
	replacing := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(r.Context()))
		})
	}

	obs := &recordingObserver{}
	h := NewMiddleware(nil, obs).Middleware(replacing(RecordRoute(mux)))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/entries/e1/toggle-paid", nil))

	if obs.route != "POST /api/entries/{id}/toggle-paid" {
		t.Errorf("route = %q", obs.route)
	}
}
