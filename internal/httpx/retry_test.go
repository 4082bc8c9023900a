package httpx

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
)

func ping(srvURL string) func(context.Context) error {
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srvURL+"/$/ping", nil)
		if err != nil {
			return err
		}
		_, err = Send(http.DefaultClient, req)
		return err
	}
}

func TestSendReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"head":{"vars":[]},"results":{"bindings":[]}}`)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/university/query", nil)
	body, err := Send(srv.Client(), req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.Contains(string(body), `"bindings"`) {
		t.Errorf("Unexpected body %q", body)
	}
}

func TestSendBrotliBody(t *testing.T) {
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	_, _ = io.WriteString(bw, `{"boolean":true}`)
	_ = bw.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/university/query", nil)
	req.Header.Set("Accept-Encoding", "br")
	body, err := Send(srv.Client(), req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if string(body) != `{"boolean":true}` {
		t.Errorf("Expected decoded body, got %q", body)
	}
}

func TestSendSyntaxError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, "Parse error: Lexical error at line 2, column 14")
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/university/query", nil)
	_, err := Send(srv.Client(), req)

	var serr *StatusError
	if !errors.As(err, &serr) {
		t.Fatalf("Expected *StatusError, got %v", err)
	}
	if serr.Status != http.StatusBadRequest || !strings.Contains(string(serr.Body), "line 2, column 14") {
		t.Errorf("Unexpected error %+v", serr)
	}
	if Starting(err) {
		t.Error("A rejected query is not a starting store")
	}
}

func TestRetryWhileStoreBoots(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, "2026-10-16T09:00:00Z")
	}))
	defer srv.Close()

	if err := Retry(context.Background(), 5, time.Millisecond, ping(srv.URL)); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("Expected 3 pings, got %d", got)
	}
}

func TestRetryGivesUpOnUnavailableStore(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := Retry(context.Background(), 3, time.Millisecond, ping(srv.URL))
	var serr *StatusError
	if !errors.As(err, &serr) || serr.Status != http.StatusServiceUnavailable {
		t.Fatalf("Expected the last 503, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("Expected 3 pings, got %d", got)
	}
}

func TestRetryRefusedDial(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	attempts := 0
	err := Retry(context.Background(), 2, time.Millisecond, func(ctx context.Context) error {
		attempts++
		return ping(addr)(ctx)
	})
	if err == nil {
		t.Fatal("Expected error from a closed port")
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts against a closed port, got %d", attempts)
	}
}

func TestRetryStopsOnMissingDataset(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if err := Retry(context.Background(), 5, time.Millisecond, ping(srv.URL)); err == nil {
		t.Fatal("Expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("Expected a single ping, got %d", got)
	}
}

func TestRetryHonorsCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := Retry(ctx, 10, time.Second, ping(srv.URL))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 900*time.Millisecond {
		t.Errorf("Expected Retry to stop waiting on cancel, took %v", elapsed)
	}
}
