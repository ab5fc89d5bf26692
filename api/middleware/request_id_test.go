package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/library-backend/api/responses"
)

func captureRequestID(t *testing.T, header string) (string, string) {
	t.Helper()
	var seen string
	handler := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = responses.RequestIDFrom(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(requestIDHeader, header)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return seen, resp.Header().Get(requestIDHeader)
}

func TestRequestIDKeepsCallerValue(t *testing.T) {
	seen, echoed := captureRequestID(t, "trace-abc-123")
	assert.Equal(t, "trace-abc-123", seen)
	assert.Equal(t, "trace-abc-123", echoed)
}

func TestRequestIDReplacesInvalidValues(t *testing.T) {
	for _, header := range []string{"", "has space", strings.Repeat("x", maxRequestIDLength+1)} {
		seen, echoed := captureRequestID(t, header)
		assert.NotEqual(t, header, seen)
		assert.Len(t, seen, 36, "expected a generated uuid for %q", header)
		assert.Equal(t, seen, echoed)
	}
}

func TestRecovererRethrowsAbortHandler(t *testing.T) {
	handler := Recoverer(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestRecovererWritesInternalError(t *testing.T) {
	handler := Recoverer(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.NotContains(t, resp.Body.String(), "boom")
}
