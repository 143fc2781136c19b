package smartfetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

// Response is the settled outcome of a successful transport execution.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport executes a request described by a config. Implementations must
// honour ctx: when it is cancelled before settlement they return an error for
// which IsCancellation holds, and a generic error on any other failure.
type Transport interface {
	Execute(ctx context.Context, cfg Config) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, cfg Config) (*Response, error)

func (f TransportFunc) Execute(ctx context.Context, cfg Config) (*Response, error) {
	return f(ctx, cfg)
}

// Middleware wraps transport round trips for cross-cutting concerns such as
// auth headers or tracing.
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// RoundTripper is the HTTP execution seam middleware composes over.
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc is a helper type for middleware.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// HTTPTransport executes configs against net/http with an optional middleware
// chain, per-request timeout, concurrency cap and circuit breaker. Responses
// with status >= 400 are surfaced as transport errors carrying the status.
type HTTPTransport struct {
	client     *http.Client
	middleware []Middleware
	timeout    time.Duration
	sem        *semaphore.Weighted
	breaker    *CircuitBreaker
}

// TransportOption configures an HTTPTransport.
type TransportOption func(*HTTPTransport)

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(client *http.Client) TransportOption {
	return func(t *HTTPTransport) {
		t.client = client
	}
}

// WithTimeout caps the duration of each execution.
func WithTimeout(d time.Duration) TransportOption {
	return func(t *HTTPTransport) {
		t.timeout = d
	}
}

// WithMiddleware appends middleware to the chain.
func WithMiddleware(middleware ...Middleware) TransportOption {
	return func(t *HTTPTransport) {
		t.middleware = append(t.middleware, middleware...)
	}
}

// WithMaxConcurrent caps the number of simultaneously executing requests.
func WithMaxConcurrent(n int64) TransportOption {
	return func(t *HTTPTransport) {
		if n > 0 {
			t.sem = semaphore.NewWeighted(n)
		}
	}
}

// WithCircuitBreaker guards executions with a circuit breaker.
func WithCircuitBreaker(config CircuitBreakerConfig) TransportOption {
	return func(t *HTTPTransport) {
		t.breaker = NewCircuitBreaker(config)
	}
}

// NewHTTPTransport constructs the default net/http backed transport.
func NewHTTPTransport(options ...TransportOption) *HTTPTransport {
	t := &HTTPTransport{
		client: &http.Client{},
	}
	for _, option := range options {
		option(t)
	}
	return t
}

// Execute implements Transport.
func (t *HTTPTransport) Execute(ctx context.Context, cfg Config) (*Response, error) {
	method := methodLabel(cfg)

	if t.sem != nil {
		if err := t.sem.Acquire(ctx, 1); err != nil {
			return nil, &Error{
				Type:    ErrorTypeCancelled,
				Message: "cancelled while waiting for a slot",
				Cause:   err,
				Method:  method,
				URL:     cfg.URL,
			}
		}
		defer t.sem.Release(1)
	}

	if t.breaker != nil && !t.breaker.Allow() {
		return nil, &Error{
			Type:    ErrorTypeCircuitOpen,
			Message: "circuit breaker is open",
			Cause:   ErrCircuitOpen,
			Method:  method,
			URL:     cfg.URL,
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = t.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := buildRequest(ctx, method, cfg)
	if err != nil {
		return nil, &Error{
			Type:    ErrorTypeConfig,
			Message: "building request failed",
			Cause:   err,
			Method:  method,
			URL:     cfg.URL,
		}
	}

	resp, err := t.roundTrip(req)
	if err != nil {
		if t.breaker != nil {
			t.breaker.RecordFailure()
		}
		// Deadline expiry is a transport failure; only explicit
		// cancellation is suppressed from instance state.
		if errors.Is(err, context.Canceled) {
			return nil, &Error{
				Type:    ErrorTypeCancelled,
				Message: "request cancelled",
				Cause:   err,
				Method:  method,
				URL:     cfg.URL,
			}
		}
		return nil, &Error{
			Type:    ErrorTypeTransport,
			Message: "network request failed",
			Cause:   err,
			Method:  method,
			URL:     cfg.URL,
		}
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		if t.breaker != nil {
			t.breaker.RecordFailure()
		}
		return nil, &Error{
			Type:       ErrorTypeTransport,
			Message:    "reading response body failed",
			Cause:      err,
			Method:     method,
			URL:        cfg.URL,
			StatusCode: resp.StatusCode,
		}
	}

	if t.breaker != nil {
		if resp.StatusCode >= 500 {
			t.breaker.RecordFailure()
		} else {
			t.breaker.RecordSuccess()
		}
	}

	if resp.StatusCode >= 400 {
		return nil, &Error{
			Type:       ErrorTypeTransport,
			Message:    http.StatusText(resp.StatusCode),
			Method:     method,
			URL:        cfg.URL,
			StatusCode: resp.StatusCode,
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}

func buildRequest(ctx context.Context, method string, cfg Config) (*http.Request, error) {
	target := cfg.URL
	if len(cfg.Params) > 0 {
		parsed, err := url.Parse(cfg.URL)
		if err != nil {
			return nil, err
		}
		query := parsed.Query()
		for k, v := range cfg.Params {
			query.Set(k, v)
		}
		parsed.RawQuery = query.Encode()
		target = parsed.String()
	}

	var body io.Reader
	contentType := ""
	switch b := cfg.Body.(type) {
	case nil:
	case []byte:
		body = bytes.NewReader(b)
	case string:
		body = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range cfg.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func (t *HTTPTransport) roundTrip(req *http.Request) (*http.Response, error) {
	if len(t.middleware) == 0 {
		return t.client.Do(req)
	}

	current := RoundTripperFunc(t.client.Do)

	for i := len(t.middleware) - 1; i >= 0; i-- {
		middleware := t.middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return middleware(r, next)
		})
	}

	return current.RoundTrip(req)
}
