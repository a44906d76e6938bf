// Package transport calls record APIs over HTTP on behalf of a table engine.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/JonMunkholm/tablekit/internal/filter"
	"github.com/JonMunkholm/tablekit/internal/table"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 10 << 20

// Config configures an HTTP transport.
type Config struct {
	BaseURL   string        // Prefixed to relative request URLs
	Timeout   time.Duration // Per-request timeout; 30s when zero
	RateLimit float64       // Requests per second; 0 disables limiting
	RateBurst int
	Header    http.Header // Sent with every request
}

// HTTP implements table.Transport.
//
// GET and DELETE requests carry the payload as query parameters. Every other
// method sends it as a JSON body. Any response with a JSON object body is
// returned with its status; only network and decoding failures are errors.
type HTTP struct {
	base    *url.URL
	client  *http.Client
	limiter *rate.Limiter
	header  http.Header
}

// New builds an HTTP transport.
func New(cfg Config) (*HTTP, error) {
	t := &HTTP{
		client: &http.Client{Timeout: cfg.Timeout},
		header: cfg.Header.Clone(),
	}
	if t.client.Timeout <= 0 {
		t.client.Timeout = 30 * time.Second
	}

	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		t.base = u
	}

	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return t, nil
}

// WithClient replaces the underlying HTTP client. Useful for tests.
func (t *HTTP) WithClient(c *http.Client) *HTTP {
	t.client = c
	return t
}

// Call performs req and decodes the JSON response body.
func (t *HTTP) Call(ctx context.Context, req table.Request) (*table.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	httpReq, err := t.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", httpReq.Method, httpReq.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	out := &table.Response{Status: resp.StatusCode}
	if len(bytes.TrimSpace(body)) == 0 {
		if resp.StatusCode >= 400 {
			out.Error = http.StatusText(resp.StatusCode)
		}
		return out, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&out.Data); err != nil {
		if resp.StatusCode >= 400 {
			out.Error = strings.TrimSpace(string(body))
			return out, nil
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if msg, ok := out.Data["error"].(string); ok {
		out.Error = msg
	} else if resp.StatusCode >= 400 {
		out.Error = http.StatusText(resp.StatusCode)
	}
	return out, nil
}

func (t *HTTP) newRequest(ctx context.Context, req table.Request) (*http.Request, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	u, err := t.resolve(req.URL)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	switch method {
	case http.MethodGet, http.MethodDelete:
		q := u.Query()
		for k, v := range req.Payload {
			q.Set(k, queryValue(v))
		}
		u.RawQuery = q.Encode()
	default:
		b, err := json.Marshal(req.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range t.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	return httpReq, nil
}

func (t *HTTP) resolve(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", raw, err)
	}
	if t.base != nil && !u.IsAbs() {
		joined := *t.base
		// Path and RawPath move together so escaped separators such as %2F
		// inside a route value survive the join.
		joined.Path = strings.TrimRight(t.base.Path, "/") + "/" + strings.TrimLeft(u.Path, "/")
		joined.RawPath = strings.TrimRight(t.base.EscapedPath(), "/") + "/" + strings.TrimLeft(u.EscapedPath(), "/")
		joined.RawQuery = u.RawQuery
		return &joined, nil
	}
	return u, nil
}

// queryValue renders a payload value as a query parameter. Nested values
// travel as JSON.
func queryValue(v any) string {
	switch v.(type) {
	case map[string]any, filter.Filters, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
	return filter.Stringify(v)
}
