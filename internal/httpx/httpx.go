// Package httpx sends single requests to the triple store and retries the
// store liveness check while it boots.
package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"
)

// StatusError is a non-2xx answer. Body holds what the server said, which
// for Fuseki is the parser message on a 400.
type StatusError struct {
	Method string
	URL    string
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http error: %s %s status=%d body=%s", e.Method, e.URL, e.Status, Snippet(e.Body, 900))
}

// Snippet returns the trimmed body, cut to max bytes.
func Snippet(b []byte, max int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// Send performs req once and returns the whole body. The body is always
// drained so the connection goes back to the pool.
func Send(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Method: req.Method, URL: req.URL.String(), Status: resp.StatusCode, Body: body}
	}
	return body, nil
}

// readBody drains and closes the body. A proxy in front of Fuseki may
// compress with br; gzip is already handled by http.Transport.
func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	var r io.Reader = resp.Body
	if strings.EqualFold(strings.TrimSpace(resp.Header.Get("Content-Encoding")), "br") {
		r = brotli.NewReader(resp.Body)
	}
	return io.ReadAll(r)
}

// Retry calls fn up to attempts times while it fails with a Starting error,
// doubling delay between calls. It returns the last error.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; ; i++ {
		err = fn(ctx)
		if err == nil || i == attempts || !Starting(err) {
			return err
		}

		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return errors.Join(err, ctx.Err())
		}
		delay *= 2
	}
}

// Starting reports whether err looks like a store that is not up yet:
// nothing listening, the connection dropped, or a 5xx while the dataset
// loads. Anything else will not get better by waiting.
func Starting(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var serr *StatusError
	if errors.As(err, &serr) {
		return serr.Status >= 500
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var operr *net.OpError
	if errors.As(err, &operr) && operr.Op == "dial" {
		return true
	}
	return IsTimeout(err)
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
