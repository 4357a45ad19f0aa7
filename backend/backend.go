// Package backend is the client for the lookup service that resolves a
// product code into its technical-sheet record.
//
// The service is opaque: a GET with a `codigo` query parameter returns a
// JSON document such as {"found":true,"codigo":"10.100","url":"..."}.
// The client does not inspect that document beyond checking it is JSON.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/localrivet/fichas-mcp/logx"
	"github.com/localrivet/fichas-mcp/types"
)

// ConnectionErrorMessage is what callers show when the service is unreachable.
const ConnectionErrorMessage = "connection failure"

// ConnectionError reports that the request never produced an HTTP response
// (DNS failure, refused connection, unreachable network, cancelled context).
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return ConnectionErrorMessage }
func (e *ConnectionError) Unwrap() error { return e.Err }

// StatusError reports a non-2xx response. The body is not parsed.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string { return fmt.Sprintf("HTTP %d", e.StatusCode) }

// DecodeError reports a 2xx response whose body is not valid JSON.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "invalid JSON from backend: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// Lookuper resolves a code into the raw JSON record.
type Lookuper interface {
	Lookup(ctx context.Context, codigo string) (json.RawMessage, error)
}

// Client talks to the lookup service. It is safe for concurrent use.
type Client struct {
	base       *url.URL
	httpClient *http.Client
	logger     types.Logger
}

var _ Lookuper = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for per-call diagnostics.
func WithLogger(logger types.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Client for baseURL. An empty or unusable base URL is an
// error; callers treat it as fatal at startup.
func New(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("backend: base URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("backend: invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend: base URL %q must be absolute", baseURL)
	}

	c := &Client{
		base:       u,
		httpClient: http.DefaultClient,
		logger:     logx.NopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// LookupURL builds the request URL for codigo. Query parameters already on
// the base URL are kept; codigo is appended percent-encoded, with spaces as
// %20 rather than '+'.
func (c *Client) LookupURL(codigo string) string {
	u := *c.base
	param := "codigo=" + strings.ReplaceAll(url.QueryEscape(codigo), "+", "%20")
	if u.RawQuery == "" {
		u.RawQuery = param
	} else {
		u.RawQuery += "&" + param
	}
	return u.String()
}

// Lookup performs exactly one GET for codigo. Every call is independent:
// no caching, no retry.
func (c *Client) Lookup(ctx context.Context, codigo string) (json.RawMessage, error) {
	target := c.LookupURL(codigo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("backend: GET %s", target)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("backend: request for %q failed: %v", codigo, err)
		return nil, &ConnectionError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		c.logger.Warn("backend: lookup for %q returned HTTP %d", codigo, resp.StatusCode)
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		c.logger.Error("backend: lookup for %q returned invalid JSON: %v", codigo, err)
		return nil, &DecodeError{Err: err}
	}
	return json.RawMessage(compact.Bytes()), nil
}
