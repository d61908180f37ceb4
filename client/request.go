package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-telemed-client/cache"
	"github.com/jrsteele09/go-telemed-client/endpoints"
)

const (
	HeaderRequestTime = "X-Request-Time"
	HeaderRequestID   = "X-Request-ID"

	// SourceDispatcher labels expiries detected on ordinary requests.
	SourceDispatcher = "dispatcher"

	maxResponseBytes = 10 << 20
)

// RequestOptions describes one API call. The zero value is a GET.
type RequestOptions struct {
	Method  string
	Body    any // []byte and json.RawMessage are sent as is, anything else is JSON encoded
	Headers map[string]string
	// Refresh drops any cached response and goes to the network.
	Refresh bool
	// Source labels an expiry detected by this call. Defaults to SourceDispatcher.
	Source string
}

// Request sends a call to endpoint and returns the envelope's data on
// success. Errors are *APIError, *SessionExpiredError or *ConnectivityError.
func (c *Client) Request(ctx context.Context, endpoint string, opts RequestOptions) (json.RawMessage, error) {
	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodGet
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}

	body, err := encodeBody(opts.Body)
	if err != nil {
		return nil, fmt.Errorf("encoding request body for %s: %w", endpoint, err)
	}

	rule := c.deps.Endpoints.Resolve(endpoint)
	cacheable := c.deps.Endpoints.ShouldCache(endpoint, method)
	var key string
	if cacheable {
		key = cache.Key(method, endpoint, c.language(), body)
		if opts.Refresh {
			c.deps.Cache.Delete(ctx, key)
		} else if data, ok := c.deps.Cache.Get(ctx, key); ok {
			c.logger.Debug().Str("method", method).Str("endpoint", endpoint).Str("data_type", string(rule.DataType)).Msg("API request served from cache")
			return json.RawMessage(data), nil
		}
	}

	generation := c.deps.Cache.Generation()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &ConnectivityError{Endpoint: endpoint, Message: "request not sent", Err: err}
		}
	}

	req, err := c.newHTTPRequest(ctx, method, endpoint, body, opts.Headers)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", endpoint, err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logRequest(method, endpoint, req, 0, time.Since(start))
		c.observe(method, 0, start)
		return nil, &ConnectivityError{Endpoint: endpoint, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	elapsed := time.Since(start)
	c.logRequest(method, endpoint, req, resp.StatusCode, elapsed)
	c.observe(method, resp.StatusCode, start)
	if readErr != nil {
		return nil, &ConnectivityError{Endpoint: endpoint, Status: resp.StatusCode, Message: "reading response failed", Err: readErr}
	}

	data, err := c.classify(ctx, endpoint, resp, raw, opts.Source)
	if err != nil {
		return nil, err
	}

	if cacheable {
		c.deps.Cache.SetIfCurrent(ctx, generation, key, data, rule.DataType)
	}
	if endpoints.IsMutation(method) {
		for _, dt := range c.deps.Endpoints.Invalidations(endpoint) {
			c.deps.Cache.ClearByType(ctx, dt)
		}
	}
	return data, nil
}

// RequestInto is Request decoding the data into out.
func (c *Client) RequestInto(ctx context.Context, endpoint string, opts RequestOptions, out any) error {
	data, err := c.Request(ctx, endpoint, opts)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s data: %w", endpoint, err)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, endpoint string, out any) error {
	return c.RequestInto(ctx, endpoint, RequestOptions{Method: http.MethodGet}, out)
}

func (c *Client) Post(ctx context.Context, endpoint string, body, out any) error {
	return c.RequestInto(ctx, endpoint, RequestOptions{Method: http.MethodPost, Body: body}, out)
}

func (c *Client) Put(ctx context.Context, endpoint string, body, out any) error {
	return c.RequestInto(ctx, endpoint, RequestOptions{Method: http.MethodPut, Body: body}, out)
}

func (c *Client) Patch(ctx context.Context, endpoint string, body, out any) error {
	return c.RequestInto(ctx, endpoint, RequestOptions{Method: http.MethodPatch, Body: body}, out)
}

func (c *Client) Delete(ctx context.Context, endpoint string, out any) error {
	return c.RequestInto(ctx, endpoint, RequestOptions{Method: http.MethodDelete}, out)
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return json.Marshal(b)
	}
}

func (c *Client) newHTTPRequest(ctx context.Context, method, endpoint string, body []byte, headers map[string]string) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept-Language", c.language())
	req.Header.Set(HeaderRequestTime, strconv.FormatInt(c.requestStamp(), 10))
	req.Header.Set(HeaderRequestID, uuid.NewString())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if token := c.deps.Credentials.OAuth2Token(); token != nil {
		token.SetAuthHeader(req)
	}
	return req, nil
}

// classify turns a response into data or one of the three error types.
func (c *Client) classify(ctx context.Context, endpoint string, resp *http.Response, raw []byte, source string) (json.RawMessage, error) {
	exempt := c.deps.Endpoints.IsExempt(endpoint, c.currentPage())

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		if c.isLoginRedirect(resp.Header.Get("Location")) {
			if exempt {
				return nil, &APIError{Endpoint: endpoint, Status: resp.StatusCode, Message: "redirected to login", Code: "unauthorized"}
			}
			return nil, c.expire(ctx, endpoint, resp.StatusCode, source)
		}
		return nil, &APIError{Endpoint: endpoint, Status: resp.StatusCode, Message: "unexpected redirect"}
	}

	var env Envelope
	parseErr := json.Unmarshal(raw, &env)

	if resp.StatusCode == http.StatusUnauthorized || (parseErr == nil && env.StatusCode == http.StatusUnauthorized) {
		if exempt {
			msg := env.Message
			if msg == "" {
				msg = http.StatusText(http.StatusUnauthorized)
			}
			return nil, &APIError{Endpoint: endpoint, Status: http.StatusUnauthorized, Message: msg, Code: env.ErrorCode, Field: env.Field}
		}
		return nil, c.expire(ctx, endpoint, http.StatusUnauthorized, source)
	}

	if parseErr != nil {
		return nil, &ConnectivityError{Endpoint: endpoint, Status: resp.StatusCode, Message: "unparseable response", Err: parseErr}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || env.Failed() {
		status := env.StatusCode
		if status == 0 {
			status = resp.StatusCode
		}
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(status)
		}
		return nil, &APIError{Endpoint: endpoint, Status: status, Message: msg, Code: env.ErrorCode, Field: env.Field}
	}

	if len(env.Data) == 0 {
		return json.RawMessage("null"), nil
	}
	return env.Data, nil
}

func (c *Client) expire(ctx context.Context, endpoint string, status int, source string) error {
	if source == "" {
		source = SourceDispatcher
	}
	c.logger.Warn().Str("endpoint", endpoint).Int("status", status).Str("source", source).Msg("Session expired")
	if c.expiry != nil {
		c.expiry.HandleExpired(context.WithoutCancel(ctx), source)
	}
	return &SessionExpiredError{Endpoint: endpoint, Status: status}
}

func (c *Client) logRequest(method, endpoint string, req *http.Request, status int, elapsed time.Duration) {
	event := c.logger.Debug()
	msg := "API request"
	if c.slowThreshold > 0 && elapsed > c.slowThreshold {
		event = c.logger.Warn()
		msg = "Slow API request"
	}
	event.Str("method", method).
		Str("endpoint", endpoint).
		Int("status", status).
		Dur("duration", elapsed).
		Str("request_id", req.Header.Get(HeaderRequestID)).
		Msg(msg)
}

func (c *Client) observe(method string, status int, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveRequest(method, status, start)
	}
}
