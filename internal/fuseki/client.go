// Package fuseki is the connection manager for an Apache Jena Fuseki dataset.
//
// It speaks the SPARQL 1.1 protocol over HTTP: SELECT/ASK queries are POSTed
// as form data to <base>/<dataset>/query, updates to <base>/<dataset>/update,
// and liveness is checked with GET <base>/$/ping. Failures are reported with
// the kberr taxonomy.
package fuseki

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"course-kb/internal/config"
	"course-kb/internal/httpx"
	"course-kb/internal/kberr"
	"course-kb/internal/sparql"
)

// Client is immutable after New and safe for concurrent use.
type Client struct {
	queryURL  string
	updateURL string
	pingURL   string

	user     string
	password string

	timeout      time.Duration
	pingAttempts int

	http   *http.Client
	logger *slog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default pooled client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New builds a client from the Fuseki configuration.
func New(cfg config.Fuseki, opts ...Option) (*Client, error) {
	c := &Client{
		queryURL:     cfg.Endpoint(),
		updateURL:    cfg.UpdateEndpoint(),
		user:         cfg.User,
		password:     cfg.Password,
		timeout:      cfg.Timeout,
		pingAttempts: cfg.PingAttempts,
		http:         &http.Client{Transport: http.DefaultTransport},
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
	}
	if c.pingAttempts <= 0 {
		c.pingAttempts = 1
	}

	qu, err := parseEndpoint(c.queryURL)
	if err != nil {
		return nil, fmt.Errorf("fuseki: query endpoint: %w", err)
	}
	if _, err := parseEndpoint(c.updateURL); err != nil {
		return nil, fmt.Errorf("fuseki: update endpoint: %w", err)
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" || cfg.QueryURL != "" {
		base = qu.Scheme + "://" + qu.Host
	}
	c.pingURL = base + "/$/ping"

	return c, nil
}

func parseEndpoint(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint %q", raw)
	}
	return u, nil
}

// QueryURL returns the SPARQL query endpoint.
func (c *Client) QueryURL() string { return c.queryURL }

// UpdateURL returns the SPARQL update endpoint.
func (c *Client) UpdateURL() string { return c.updateURL }

// Select runs a SELECT query and returns its tabular result. The call is
// bounded by the configured timeout and is attempted exactly once.
func (c *Client) Select(ctx context.Context, query string) (*sparql.Results, error) {
	body, err := c.post(ctx, "select", c.queryURL, "query", query, sparql.ContentType)
	if err != nil {
		return nil, err
	}

	res, err := sparql.Parse(body)
	if err != nil {
		return nil, kberr.Wrap(kberr.ErrConnection, "select", err)
	}
	return res, nil
}

// Ask runs an ASK query.
func (c *Client) Ask(ctx context.Context, query string) (bool, error) {
	body, err := c.post(ctx, "ask", c.queryURL, "query", query, sparql.ContentType)
	if err != nil {
		return false, err
	}

	res, err := sparql.Parse(body)
	if err != nil {
		return false, kberr.Wrap(kberr.ErrConnection, "ask", err)
	}
	if res.Boolean == nil {
		return false, kberr.New(kberr.ErrConnection, "ask", "response carries no boolean")
	}
	return *res.Boolean, nil
}

// Update runs a SPARQL UPDATE against the update endpoint.
func (c *Client) Update(ctx context.Context, update string) error {
	_, err := c.post(ctx, "update", c.updateURL, "update", update, "")
	return err
}

// pingDelay is the first wait between ping attempts; it doubles after each.
const pingDelay = 250 * time.Millisecond

// Ping checks that the server answers on /$/ping. While the store is still
// starting (refused dial, 5xx) it tries again, up to the configured number
// of attempts, each bounded by the request timeout.
func (c *Client) Ping(ctx context.Context) error {
	err := httpx.Retry(ctx, c.pingAttempts, pingDelay, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pingURL, nil)
		if err != nil {
			return err
		}
		_, err = httpx.Send(c.http, req)
		return err
	})
	if err != nil {
		return classify("ping", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, op, endpoint, field, payload, accept string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	form := url.Values{}
	form.Set(field, payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, kberr.Wrap(kberr.ErrConnection, op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	// An explicit Accept-Encoding turns off the transport's implicit gzip;
	// httpx decodes br itself.
	req.Header.Set("Accept-Encoding", "br")
	if c.user != "" || c.password != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	start := time.Now()
	body, err := httpx.Send(c.http, req)
	elapsed := time.Since(start)

	if err != nil {
		cerr := classify(op, err)
		c.logger.Debug("fuseki request failed",
			"op", op, "endpoint", endpoint, "duration", elapsed, "error", cerr)
		return nil, cerr
	}

	c.logger.Debug("fuseki request", "op", op, "endpoint", endpoint, "duration", elapsed, "bytes", len(body))
	return body, nil
}

// classify maps a transport failure onto the error taxonomy.
func classify(op string, err error) error {
	var herr *httpx.StatusError
	if errors.As(err, &herr) {
		switch herr.Status {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &kberr.Error{Kind: kberr.ErrAuth, Op: op, Detail: fmt.Sprintf("status %d", herr.Status), Err: err}
		case http.StatusBadRequest:
			// Fuseki puts the parser diagnostic in the body.
			return &kberr.Error{Kind: kberr.ErrQuerySyntax, Op: op, Detail: httpx.Snippet(herr.Body, 900)}
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return &kberr.Error{Kind: kberr.ErrTimeout, Op: op, Detail: fmt.Sprintf("status %d", herr.Status), Err: err}
		default:
			return &kberr.Error{Kind: kberr.ErrConnection, Op: op, Detail: fmt.Sprintf("status %d", herr.Status), Err: err}
		}
	}
	if httpx.IsTimeout(err) {
		return kberr.Wrap(kberr.ErrTimeout, op, err)
	}
	return kberr.Wrap(kberr.ErrConnection, op, err)
}
