package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestIDAssigned(t *testing.T) {
	var fromContext string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromContext = GetRequestID(r.Context())
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/search", nil))

	if fromContext == "" {
		t.Error("expected a generated request ID in the handler context")
	}
	if echoed := rr.Header().Get(RequestIDHeader); echoed != fromContext {
		t.Errorf("response header %q does not match context ID %q", echoed, fromContext)
	}
}

// A caller-supplied ID survives so a client can correlate its own retries.
func TestRequestIDPreservesCallerID(t *testing.T) {
	const callerID = "client-retry-7"

	var fromContext string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromContext = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.Header.Set(RequestIDHeader, callerID)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if fromContext != callerID {
		t.Errorf("context ID = %q, want %q", fromContext, callerID)
	}
	if echoed := rr.Header().Get(RequestIDHeader); echoed != callerID {
		t.Errorf("response header = %q, want %q", echoed, callerID)
	}
}

func TestGetRequestIDWithoutMiddleware(t *testing.T) {
	if id := GetRequestID(context.Background()); id != "" {
		t.Errorf("expected empty ID outside the middleware, got %q", id)
	}
}
