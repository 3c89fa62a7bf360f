package meteoam

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/icodeforyou/meteoam-go/location"
)

var rome = location.Coordinates{Latitude: "41.9", Longitude: "12.5"}

func testClient(srv *httptest.Server, opts ...Option) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithURLTemplate(srv.URL + "/preset1/%s,%s")}, opts...)
	return NewClient(logger, opts...)
}

func TestFetch(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(twoPoints))
	}))
	defer srv.Close()

	payload, err := testClient(srv).Fetch(context.Background(), rome)
	if err != nil {
		t.Fatalf("Fetch() unexpected error: %v", err)
	}
	if path != "/preset1/41.9,12.5" {
		t.Errorf("unexpected request path %q", path)
	}
	if string(payload) != twoPoints {
		t.Errorf("unexpected payload %q", payload)
	}
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		expected error
	}{
		{
			name: "service unavailable",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			expected: ErrCannotConnect,
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			expected: ErrCannotConnect,
		},
		{
			name:     "empty body",
			handler:  func(w http.ResponseWriter, r *http.Request) {},
			expected: ErrCannotConnect,
		},
		{
			name: "slow response",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-time.After(2 * time.Second):
				case <-r.Context().Done():
				}
			},
			expected: ErrTimeout,
		},
		{
			name: "slow body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"extrainfo":`))
				w.(http.Flusher).Flush()
				select {
				case <-time.After(2 * time.Second):
				case <-r.Context().Done():
				}
			},
			expected: ErrTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			payload, err := testClient(srv, WithTimeout(100*time.Millisecond)).Fetch(context.Background(), rome)
			if !errors.Is(err, tt.expected) {
				t.Fatalf("expected %v, got %v", tt.expected, err)
			}
			if payload != nil {
				t.Errorf("expected no payload on error")
			}
		})
	}
}

func TestFetchTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := testClient(srv)
	srv.Close()

	if _, err := client.Fetch(context.Background(), rome); !errors.Is(err, ErrCannotConnect) {
		t.Errorf("expected ErrCannotConnect, got %v", err)
	}
}

func TestFetchBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := testClient(srv, WithBreaker(2, time.Hour))
	for range 4 {
		if _, err := client.Fetch(context.Background(), rome); !errors.Is(err, ErrCannotConnect) {
			t.Fatalf("expected ErrCannotConnect, got %v", err)
		}
	}

	if n := calls.Load(); n != 2 {
		t.Errorf("expected the open breaker to stop requests after 2 calls, got %d", n)
	}
}

func TestURL(t *testing.T) {
	c := NewClient(slog.Default())
	expected := "https://api.meteoam.it/deda-meteograms/api/GetMeteogram/preset1/41.9,12.5"
	if got := c.URL(rome); got != expected {
		t.Errorf("URL() expected %q, got %q", expected, got)
	}
}
