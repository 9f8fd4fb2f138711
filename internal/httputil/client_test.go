package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewClientWithTimeout(t *testing.T) {
	if c := NewClientWithTimeout(5 * time.Second); c.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", c.Timeout)
	}
	if c := NewClientWithTimeout(0); c.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", c.Timeout, DefaultTimeout)
	}
}

func countingServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestGetJSON_DecodesWithNumbers(t *testing.T) {
	srv, _ := countingServer(t, http.StatusOK, `{"x":1.10,"s":"a"}`)
	r := &Requester{Client: srv.Client(), Provider: "test"}

	var v map[string]any
	if err := r.GetJSON(context.Background(), "thing", srv.URL, nil, &v); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if n, ok := v["x"].(interface{ String() string }); !ok || n.String() != "1.10" {
		t.Errorf("x = %#v, want json.Number 1.10", v["x"])
	}
}

func TestGetJSON_SendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	h := http.Header{}
	h.Set("Authorization", "Bearer k")
	var v map[string]any
	if err := (&Requester{Client: srv.Client(), Provider: "test"}).GetJSON(context.Background(), "thing", srv.URL, h, &v); err != nil {
		t.Fatal(err)
	}
}

func TestGetJSON_ClientErrorIsNotRetried(t *testing.T) {
	srv, calls := countingServer(t, http.StatusNotFound, "no such site")
	r := &Requester{Client: srv.Client(), Provider: "test", Retries: 3}

	var v any
	err := r.GetJSON(context.Background(), "thing", srv.URL, nil, &v)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusNotFound || statusErr.Body != "no such site" {
		t.Errorf("StatusError = %+v", statusErr)
	}
	if n := atomic.LoadInt32(calls); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestGetJSON_Unauthorized(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv, calls := countingServer(t, status, "")
		r := &Requester{Client: srv.Client(), Provider: "test", Retries: 3}

		var v any
		if err := r.GetJSON(context.Background(), "thing", srv.URL, nil, &v); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("status %d: err = %v, want ErrUnauthorized", status, err)
		}
		if n := atomic.LoadInt32(calls); n != 1 {
			t.Errorf("status %d: calls = %d, want 1", status, n)
		}
	}
}

func TestGetJSON_SingleAttemptByDefault(t *testing.T) {
	srv, calls := countingServer(t, http.StatusServiceUnavailable, "busy")
	r := &Requester{Client: srv.Client(), Provider: "test"}

	var v any
	if err := r.GetJSON(context.Background(), "thing", srv.URL, nil, &v); err == nil {
		t.Fatal("expected error")
	}
	if n := atomic.LoadInt32(calls); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestGetJSON_RetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	r := &Requester{Client: srv.Client(), Provider: "test", Retries: 2}
	var v struct {
		OK bool `json:"ok"`
	}
	if err := r.GetJSON(context.Background(), "thing", srv.URL, nil, &v); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if !v.OK {
		t.Error("body not decoded after retry")
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestGetJSON_BadJSON(t *testing.T) {
	srv, _ := countingServer(t, http.StatusOK, `{not json`)
	var v any
	if err := (&Requester{Client: srv.Client(), Provider: "test"}).GetJSON(context.Background(), "thing", srv.URL, nil, &v); err == nil {
		t.Fatal("expected decode error")
	}
}
