package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TestCorrelationIDMiddleware_GeneratesID verifies that a missing
// X-Correlation-ID header gets a generated UUID echoed back and placed in the
// request context.
func TestCorrelationIDMiddleware_GeneratesID(t *testing.T) {
	var ctxID interface{}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = r.Context().Value("correlation_id")
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	CorrelationIDMiddleware(zap.NewNop())(next).ServeHTTP(rr, req)

	header := rr.Header().Get("X-Correlation-ID")
	if header == "" {
		t.Fatal("X-Correlation-ID response header not set")
	}
	if _, err := uuid.Parse(header); err != nil {
		t.Errorf("X-Correlation-ID = %q, want a valid UUID: %v", header, err)
	}
	if ctxID != header {
		t.Errorf("context correlation_id = %v, want %q", ctxID, header)
	}
}

// TestCorrelationIDMiddleware_PropagatesID verifies that a caller-supplied
// correlation ID is reused instead of replaced.
func TestCorrelationIDMiddleware_PropagatesID(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Correlation-ID", "caller-supplied-id")
	CorrelationIDMiddleware(zap.NewNop())(next).ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Correlation-ID"); got != "caller-supplied-id" {
		t.Errorf("X-Correlation-ID = %q, want caller-supplied-id", got)
	}
}

// TestCorrelationIDMiddleware_InjectsLogger verifies that a request-scoped
// logger is placed in the context.
func TestCorrelationIDMiddleware_InjectsLogger(t *testing.T) {
	var ctxLogger interface{}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxLogger = r.Context().Value("logger")
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	CorrelationIDMiddleware(zap.NewNop())(next).ServeHTTP(httptest.NewRecorder(), req)

	if _, ok := ctxLogger.(*zap.Logger); !ok {
		t.Fatalf("context logger = %T, want *zap.Logger", ctxLogger)
	}
}

// TestMetricsMiddleware_PassesThrough verifies that the wrapped handler's
// status and body reach the client unchanged.
func TestMetricsMiddleware_PassesThrough(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	MetricsMiddleware(next).ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rr.Code)
	}
	if rr.Body.String() != "short and stout" {
		t.Errorf("body = %q, want pass-through body", rr.Body.String())
	}
}

// TestStatusRecorder_DefaultsTo200 verifies that handlers which never call
// WriteHeader are recorded as 200.
func TestStatusRecorder_DefaultsTo200(t *testing.T) {
	recorder := &statusRecorder{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	if recorder.statusCode != http.StatusOK {
		t.Errorf("statusCode = %d, want 200", recorder.statusCode)
	}
	recorder.WriteHeader(http.StatusNotFound)
	if recorder.statusCode != http.StatusNotFound {
		t.Errorf("statusCode = %d, want 404 after WriteHeader", recorder.statusCode)
	}
}

// TestGetRoute verifies route normalization for metric labels.
func TestGetRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/unknown", "/unknown"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		if got := getRoute(req); got != tt.want {
			t.Errorf("getRoute(%s) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

// TestStatusCodeString verifies status codes are bucketed by class.
func TestStatusCodeString(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{503, "5xx"},
	}
	for _, tt := range tests {
		if got := statusCodeString(tt.code); got != tt.want {
			t.Errorf("statusCodeString(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
