package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/V4T54L/faultline/internal/domain/mocks"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	tests := []struct {
		name           string
		key            string
		repoErr        error
		expectedStatus int
	}{
		{name: "Valid Key", key: "good", expectedStatus: http.StatusAccepted},
		{name: "Missing Key", key: "", expectedStatus: http.StatusUnauthorized},
		{name: "Invalid Key", key: "bad", expectedStatus: http.StatusUnauthorized},
		{name: "Repository Error", key: "good", repoErr: errors.New("db down"), expectedStatus: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mocks.MockAPIKeyRepository{Keys: map[string]bool{"good": true}, Err: tt.repoErr}
			h := Auth(repo, discard)(ok)

			req := httptest.NewRequest(http.MethodPost, "/entries", nil)
			if tt.key != "" {
				req.Header.Set(APIKeyHeader, tt.key)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.expectedStatus)
			}
		})
	}
}

func TestLogging_SetsRequestID(t *testing.T) {
	var seen int
	h := Logging(discard)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen++
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil).WithContext(context.Background()))
	if rr.Code != http.StatusTeapot || seen != 1 {
		t.Errorf("status = %d, calls = %d", rr.Code, seen)
	}
	if rr.Header().Get(RequestIDHeader) == "" {
		t.Error("expected a generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get(RequestIDHeader); got != "abc" {
		t.Errorf("request id = %q, want the caller's", got)
	}
}
