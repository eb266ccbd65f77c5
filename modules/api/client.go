// Package api implements the low-level client for the store backend:
// request building, bearer auth, the response cache with request
// coalescing, and the connectivity/session signals the rest of the
// application subscribes to.
package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/tiendafix/storeapi/common"
	"github.com/tiendafix/storeapi/common/model"
)

// DefaultCacheTTL is how long a cached GET response stays fresh.
const DefaultCacheTTL = 60 * time.Second

// RequestOptions carries the per-call knobs. The zero value is valid.
type RequestOptions struct {
	// Params are query parameters, merged into the endpoint URL.
	Params map[string]string
	// Headers are extra request headers. They participate in the cache key
	// (minus Authorization) so callers with different header sets never
	// share entries.
	Headers map[string]string
	// Reason is the human-entered justification attached to mutations as
	// the X-Reason header. Ignored on GET.
	Reason string
	// NoCache bypasses the cache and the coalescer for this GET.
	NoCache bool
}

// Client defines lower-level HTTP operations against the store backend:
// GET with caching and coalescing, JSON mutations, uploads.
type Client interface {
	GetJSON(ctx context.Context, endpoint string, entity interface{}, token *oauth2.Token, opts *RequestOptions) error
	GetBytes(ctx context.Context, endpoint string, token *oauth2.Token, opts *RequestOptions) ([]byte, error)
	PostJSON(ctx context.Context, endpoint string, payload, entity interface{}, token *oauth2.Token, opts *RequestOptions) error
	PutJSON(ctx context.Context, endpoint string, payload, entity interface{}, token *oauth2.Token, opts *RequestOptions) error
	Delete(ctx context.Context, endpoint string, token *oauth2.Token, opts *RequestOptions) error
	Upload(ctx context.Context, endpoint, field, filename string, content io.Reader, entity interface{}, token *oauth2.Token, opts *RequestOptions) error

	// InvalidateCache drops every cached response and in-flight marker.
	InvalidateCache()
	// Events exposes the signal bus (unauthorized, network degraded,
	// network recovered).
	Events() *common.Events
}

type client struct {
	baseURL    string
	httpClient common.HttpClient
	cache      common.CacheRepository
	events     *common.Events
	log        *logrus.Logger
	metrics    *Metrics
	ttl        time.Duration

	mu       sync.Mutex
	pending  map[string]*pendingCall
	degraded bool
}

// pendingCall is the in-flight marker for one cache key. Waiters block on
// done and then read data/err; the fields are written exactly once, before
// done is closed.
type pendingCall struct {
	done chan struct{}
	data []byte
	err  error
}

// Option configures optional client collaborators.
type Option func(*client)

// WithLogger sets the logger (defaults to the logrus standard logger).
func WithLogger(log *logrus.Logger) Option {
	return func(c *client) { c.log = log }
}

// WithEvents sets a shared signal bus instead of a private one.
func WithEvents(events *common.Events) Option {
	return func(c *client) { c.events = events }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(c *client) { c.metrics = m }
}

// WithCacheTTL overrides DefaultCacheTTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *client) { c.ttl = ttl }
}

// NewClient creates a Client that talks to baseURL through httpClient and
// memorizes GET responses in cache.
func NewClient(baseURL string, httpClient common.HttpClient, cache common.CacheRepository, opts ...Option) Client {
	c := &client{
		baseURL:    baseURL,
		httpClient: httpClient,
		cache:      cache,
		events:     common.NewEvents(),
		log:        logrus.StandardLogger(),
		ttl:        DefaultCacheTTL,
		pending:    make(map[string]*pendingCall),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) Events() *common.Events {
	return c.events
}

// ---------------------------------------------------
// Reads: cache lookup, coalescing, network
// ---------------------------------------------------

// GetJSON retrieves JSON from an endpoint and unmarshals into entity.
// Because cached values are stored as raw bytes and decoded per caller,
// every caller gets an independent copy: mutating the result can never
// corrupt what another reader sees.
func (c *client) GetJSON(ctx context.Context, endpoint string, entity interface{}, token *oauth2.Token, opts *RequestOptions) error {
	data, err := c.GetBytes(ctx, endpoint, token, opts)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return model.JSONUnmarshal(data, entity)
}

// GetBytes retrieves raw bytes from an endpoint. Fresh cache entries are
// answered locally; identical concurrent calls share one network request.
func (c *client) GetBytes(ctx context.Context, endpoint string, token *oauth2.Token, opts *RequestOptions) ([]byte, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}

	urlStr, err := c.buildURL(endpoint, opts.Params)
	if err != nil {
		return nil, err
	}

	if opts.NoCache {
		data, _, err := c.fetch(ctx, http.MethodGet, urlStr, token, opts, nil, "")
		return data, err
	}

	key := c.cacheKey(token, urlStr, opts.Headers)

	c.mu.Lock()
	if data, found := c.cache.Get(key); found {
		c.mu.Unlock()
		c.metrics.hit()
		c.log.WithField("endpoint", endpoint).Debug("cache hit")
		return data, nil
	}
	if p, joined := c.pending[key]; joined {
		c.mu.Unlock()
		c.metrics.coalesced()
		c.log.WithField("endpoint", endpoint).Debug("joining in-flight request")
		return awaitPending(ctx, p)
	}
	p := &pendingCall{done: make(chan struct{})}
	c.pending[key] = p
	c.mu.Unlock()

	c.metrics.miss()
	data, cacheable, err := c.fetch(ctx, http.MethodGet, urlStr, token, opts, nil, "")

	p.data, p.err = data, err
	c.mu.Lock()
	// A mutation that completed while this call was in flight swapped the
	// pending map; the response then predates the write and must not be
	// cached. Only the call that still owns its marker stores and removes
	// it, so a newer request under the same key keeps coalescing.
	if c.pending[key] == p {
		if err == nil && cacheable {
			c.cache.Set(key, data, c.ttl)
		}
		delete(c.pending, key)
	}
	c.mu.Unlock()
	close(p.done)

	return data, err
}

// awaitPending subscribes to an outstanding call. A waiter whose own
// context ends returns early; the underlying request keeps going and may
// still populate the cache for later readers.
func awaitPending(ctx context.Context, p *pendingCall) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
	}
	if p.err != nil {
		return nil, p.err
	}
	out := make([]byte, len(p.data))
	copy(out, p.data)
	return out, nil
}

// ---------------------------------------------------
// Mutations
// ---------------------------------------------------

// PostJSON sends a POST with a JSON payload and decodes the response into
// entity when one is returned.
func (c *client) PostJSON(ctx context.Context, endpoint string, payload, entity interface{}, token *oauth2.Token, opts *RequestOptions) error {
	return c.mutateJSON(ctx, http.MethodPost, endpoint, payload, entity, token, opts)
}

// PutJSON sends a PUT with a JSON payload.
func (c *client) PutJSON(ctx context.Context, endpoint string, payload, entity interface{}, token *oauth2.Token, opts *RequestOptions) error {
	return c.mutateJSON(ctx, http.MethodPut, endpoint, payload, entity, token, opts)
}

// Delete sends a DELETE.
func (c *client) Delete(ctx context.Context, endpoint string, token *oauth2.Token, opts *RequestOptions) error {
	_, err := c.DoRequest(ctx, http.MethodDelete, endpoint, nil, "", token, opts)
	return err
}

// Upload sends one file as multipart form data (CSV/XLSX imports).
func (c *client) Upload(ctx context.Context, endpoint, field, filename string, content io.Reader, entity interface{}, token *oauth2.Token, opts *RequestOptions) error {
	body, contentType, err := encodeMultipart(field, filename, content)
	if err != nil {
		return err
	}
	data, err := c.DoRequest(ctx, http.MethodPost, endpoint, body, contentType, token, opts)
	if err != nil {
		return err
	}
	if entity == nil || len(data) == 0 {
		return nil
	}
	return model.JSONUnmarshal(data, entity)
}

func (c *client) mutateJSON(ctx context.Context, method, endpoint string, payload, entity interface{}, token *oauth2.Token, opts *RequestOptions) error {
	var body io.Reader
	if payload != nil {
		raw, err := model.JSONMarshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	data, err := c.DoRequest(ctx, method, endpoint, body, "application/json", token, opts)
	if err != nil {
		return err
	}
	if entity == nil || len(data) == 0 {
		return nil
	}
	return model.JSONUnmarshal(data, entity)
}

// DoRequest performs a non-GET call. Whatever the outcome, the response
// cache ends up empty: invalidation is coarse, whole-cache, on every
// mutation.
func (c *client) DoRequest(ctx context.Context, method, endpoint string, body io.Reader, contentType string, token *oauth2.Token, opts *RequestOptions) ([]byte, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}
	defer c.InvalidateCache()

	urlStr, err := c.buildURL(endpoint, opts.Params)
	if err != nil {
		return nil, err
	}
	data, _, err := c.fetch(ctx, method, urlStr, token, opts, body, contentType)
	return data, err
}

// InvalidateCache drops all cached entries and forgets in-flight markers,
// so nothing started before a mutation can serve stale data afterwards.
func (c *client) InvalidateCache() {
	c.mu.Lock()
	c.pending = make(map[string]*pendingCall)
	c.cache.Clear()
	c.mu.Unlock()
}

// ---------------------------------------------------
// Shared request path and status handling
// ---------------------------------------------------

// fetch executes one HTTP round trip and applies the status policy:
// 401 clears the cache and signals unauthorized, 5xx and transport
// failures signal degradation, 2xx signals recovery. The bool reports
// whether the body is cacheable (successful JSON).
func (c *client) fetch(ctx context.Context, method, urlStr string, token *oauth2.Token, opts *RequestOptions, body io.Reader, contentType string) ([]byte, bool, error) {
	data, status, respType, err := c.executeRequest(ctx, method, urlStr, token, opts, body, contentType)
	c.metrics.request(method, statusClass(status))
	if err != nil {
		c.markDegraded()
		return nil, false, common.NewTransportError(err)
	}

	switch {
	case status == http.StatusUnauthorized:
		apiErr := common.ErrorFromResponse(status, data)
		c.InvalidateCache()
		c.events.Emit(common.SignalUnauthorized, apiErr.Message)
		return nil, false, apiErr
	case status >= 500:
		c.markDegraded()
		return nil, false, common.ErrorFromResponse(status, data)
	case status == http.StatusNoContent:
		c.markRecovered()
		return nil, false, nil
	case status >= 200 && status < 300:
		c.markRecovered()
		return data, strings.Contains(respType, "application/json"), nil
	default:
		return nil, false, common.ErrorFromResponse(status, data)
	}
}

// executeRequest actually does the low-level HTTP.
func (c *client) executeRequest(ctx context.Context, method, urlStr string, token *oauth2.Token, opts *RequestOptions, body io.Reader, contentType string) ([]byte, int, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, 0, "", err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if method != http.MethodGet && opts.Reason != "" {
		req.Header.Set("X-Reason", opts.Reason)
	}
	if token != nil && token.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, resp.StatusCode, "", fmt.Errorf("failed to read response body: %v", readErr)
	}
	return data, resp.StatusCode, resp.Header.Get("Content-Type"), nil
}

// markDegraded flips into the degraded state, signalling once per episode.
func (c *client) markDegraded() {
	c.mu.Lock()
	already := c.degraded
	c.degraded = true
	c.mu.Unlock()
	if !already {
		c.log.Warn("backend connectivity degraded")
		c.events.Emit(common.SignalNetworkError, common.NetworkErrorMessage)
	}
}

// markRecovered leaves the degraded state, signalling once.
func (c *client) markRecovered() {
	c.mu.Lock()
	was := c.degraded
	c.degraded = false
	c.mu.Unlock()
	if was {
		c.log.Info("backend connectivity recovered")
		c.events.Emit(common.SignalNetworkRecovered, "")
	}
}

// ---------------------------------------------------
// URL and cache-key building
// ---------------------------------------------------

// buildURL merges baseURL + endpoint + params.
func (c *client) buildURL(endpoint string, params map[string]string) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	path, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}

	fullURL := base.ResolveReference(path)
	q := fullURL.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	fullURL.RawQuery = q.Encode()
	return fullURL.String(), nil
}

// cacheKey scopes an entry to the session (token tail), the full URL and
// the caller's header set. The Authorization header never enters the key;
// instead the last 16 characters of the token stand in for the session
// without persisting the full secret.
func (c *client) cacheKey(token *oauth2.Token, urlStr string, headers map[string]string) string {
	tail := ""
	if token != nil && token.AccessToken != "" {
		tail = token.AccessToken
		if len(tail) > 16 {
			tail = tail[len(tail)-16:]
		}
	}

	pairs := make([]string, 0, len(headers))
	for k, v := range headers {
		if strings.EqualFold(k, "Authorization") {
			continue
		}
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)

	return tail + "|" + urlStr + "|" + strings.Join(pairs, ";")
}
