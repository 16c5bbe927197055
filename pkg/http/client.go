package http

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
)

const defaultClientTimeout = 30 * time.Second

// Client is a small JSON-oriented client for outbound API calls.
type Client struct {
	hc *http.Client
}

// ClientOption configures the underlying http.Client.
type ClientOption func(*http.Client)

// WithTimeout caps how long one request may take, body read included.
func WithTimeout(d time.Duration) ClientOption {
	return func(hc *http.Client) { hc.Timeout = d }
}

// NewClient builds a client with a 30s default timeout.
func NewClient(opts ...ClientOption) *Client {
	hc := &http.Client{Timeout: defaultClientTimeout}
	for _, opt := range opts {
		opt(hc)
	}
	return &Client{hc: hc}
}

// RequestOptions describes one outbound request.
type RequestOptions struct {
	Method string
	URL    string
	Query  url.Values
	Header map[string]string
	Body   interface{} // sent as JSON unless []byte, string, or io.Reader
}

// SendRequest performs the request and returns the raw response. The
// caller owns the body.
func (c *Client) SendRequest(ctx context.Context, opts *RequestOptions) (*http.Response, error) {
	body, err := requestBody(opts.Body)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, opts.Method, opts.URL, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if len(opts.Query) > 0 {
		q := req.URL.Query()
		for k, vs := range opts.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		req.URL.RawQuery = q.Encode()
	}
	for k, v := range opts.Header {
		req.Header.Set(k, v)
	}
	if req.Body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// SendAndParse performs the request and decodes a 2xx JSON response into
// dest. Non-2xx statuses come back as errors carrying the response body.
func (c *Client) SendAndParse(ctx context.Context, opts *RequestOptions, dest interface{}) error {
	resp, err := c.SendRequest(ctx, opts)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func requestBody(v interface{}) (io.Reader, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case io.Reader:
		return b, nil
	case []byte:
		return bytes.NewReader(b), nil
	case string:
		return strings.NewReader(b), nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(raw), nil
	}
}
