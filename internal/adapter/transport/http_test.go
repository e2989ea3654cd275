package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestHTTPTransport_Send(t *testing.T) {
	var gotKey, gotType, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get(APIKeyHeader)
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	tr := New(Config{Endpoint: server.URL, APIKey: "key-123", Timeout: time.Second}, server.Client(), discard)
	if err := tr.Send(context.Background(), []byte(`{"id":"1"}`)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if gotKey != "key-123" {
		t.Errorf("API key header = %q", gotKey)
	}
	if gotType != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", gotType)
	}
	if gotBody != `{"id":"1"}` {
		t.Errorf("body = %q", gotBody)
	}
}

func TestHTTPTransport_StatusErrors(t *testing.T) {
	tests := []struct {
		status    int
		permanent bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusUnauthorized, true},
		{http.StatusForbidden, true},
		{http.StatusRequestEntityTooLarge, true},
		{http.StatusTooManyRequests, false},
		{http.StatusInternalServerError, false},
		{http.StatusServiceUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer server.Close()

			tr := New(Config{Endpoint: server.URL}, server.Client(), discard)
			err := tr.Send(context.Background(), []byte(`{}`))

			var se *StatusError
			if !errors.As(err, &se) || se.StatusCode != tt.status {
				t.Fatalf("Send() error = %v, want StatusError %d", err, tt.status)
			}
			if se.Body != "nope" {
				t.Errorf("Body = %q", se.Body)
			}
			if IsPermanent(err) != tt.permanent {
				t.Errorf("IsPermanent() = %v, want %v", IsPermanent(err), tt.permanent)
			}
		})
	}
}

func TestHTTPTransport_BreakerOpens(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	tr := New(Config{Endpoint: server.URL, BreakerFailures: 3, BreakerTimeout: time.Minute}, server.Client(), discard)
	for i := 0; i < 3; i++ {
		if err := tr.Send(context.Background(), []byte(`{}`)); err == nil {
			t.Fatal("expected failure")
		}
	}
	if tr.State() != "open" {
		t.Fatalf("State() = %q, want open", tr.State())
	}

	err := tr.Send(context.Background(), []byte(`{}`))
	if err == nil {
		t.Fatal("expected the open breaker to reject the call")
	}
	if IsPermanent(err) {
		t.Error("an open breaker must not be a permanent failure")
	}
	if hits.Load() != 3 {
		t.Errorf("endpoint hit %d times, want 3", hits.Load())
	}
}

func TestHTTPTransport_PermanentErrorsKeepBreakerClosed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tr := New(Config{Endpoint: server.URL, BreakerFailures: 2}, server.Client(), discard)
	for i := 0; i < 5; i++ {
		tr.Send(context.Background(), []byte(`{}`))
	}
	if tr.State() != "closed" {
		t.Errorf("State() = %q, want closed", tr.State())
	}
}

func TestHTTPTransport_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	tr := New(Config{Endpoint: url, Timeout: time.Second}, nil, discard)
	err := tr.Send(context.Background(), []byte(`{}`))
	if err == nil {
		t.Fatal("expected a connection error")
	}
	if IsPermanent(err) {
		t.Error("connection errors are transient")
	}
}
