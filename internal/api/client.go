package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/digitalliving/life-engine-cli/internal/auth"
	"github.com/digitalliving/life-engine-cli/internal/debug"
)

const (
	DefaultTimeout = 30 * time.Second

	// AuthorizePath is appended to the API URL to reach the OAuth
	// authorization endpoint.
	AuthorizePath = "/auth/authorize"
)

// Client dispatches catalogue operations against one backend.
//
// The client owns a single auth.State shared by every Resource it hands out.
// The token is read when each request is built, so SetToken or Clear on that
// state applies to the next request. Calls are independent: there is no
// retry, queueing, or response caching.
type Client struct {
	HTTP      *http.Client
	UserAgent string

	mu       sync.RWMutex
	cfg      Config
	state    *auth.State
	registry *Registry
}

// Option configures a Client at construction.
type Option func(*Client)

// WithAuthState shares an existing auth state with the client.
func WithAuthState(state *auth.State) Option {
	return func(c *Client) {
		if state != nil {
			c.state = state
		}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.HTTP = h
		}
	}
}

// WithRegistry replaces the built-in endpoint catalogue.
func WithRegistry(r *Registry) Option {
	return func(c *Client) {
		if r != nil {
			c.registry = r
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.UserAgent = ua
	}
}

// New validates cfg and returns a client for it. An invalid configuration is
// returned as *ConfigurationError.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.normalized()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseTransport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		baseTransport = &http.Transport{}
	}
	transport := baseTransport.Clone()
	if transport.TLSClientConfig == nil {
		transport.TLSClientConfig = &tls.Config{}
	} else {
		transport.TLSClientConfig = transport.TLSClientConfig.Clone()
	}
	transport.TLSClientConfig.MinVersion = tls.VersionTLS12

	c := &Client{
		HTTP: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: transport,
		},
		cfg: cfg,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.state == nil {
		c.state = auth.NewState()
	}
	if c.registry == nil {
		c.registry = DefaultRegistry()
	}
	return c, nil
}

// Config returns the active configuration.
func (c *Client) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// SetConfig validates cfg and swaps it in. On error the previous
// configuration stays active.
func (c *Client) SetConfig(cfg Config) error {
	cfg = cfg.normalized()
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
	return nil
}

// Auth returns the auth state the client reads its bearer token from.
func (c *Client) Auth() *auth.State {
	return c.state
}

// Registry returns the endpoint catalogue.
func (c *Client) Registry() *Registry {
	return c.registry
}

// Resource returns the named catalogue entry bound to this client.
func (c *Client) Resource(name string) (*Resource, error) {
	ep, err := c.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	return &Resource{client: c, endpoint: ep}, nil
}

// Upload posts file to the upload endpoint as a multipart body. args must
// include DLId, the entity the file is attached to.
func (c *Client) Upload(ctx context.Context, file *File, args *Args, progress ProgressFunc) (*Response, error) {
	ep, err := c.registry.Lookup(UploadResource)
	if err != nil {
		return nil, err
	}
	return c.Execute(ctx, Request{
		Verb:     http.MethodPost,
		Endpoint: ep,
		Args:     args,
		File:     file,
		Progress: progress,
	})
}

// ImplicitFlow returns an OAuth implicit-grant driver that authorizes against
// this client's backend and stores the resulting token in the client's auth
// state.
func (c *Client) ImplicitFlow(scope string, store auth.FlowStore, nav auth.Navigator) (*auth.ImplicitFlow, error) {
	cfg := c.Config()
	return auth.NewImplicitFlow(auth.FlowConfig{
		AuthorizeURL: cfg.APIURL + AuthorizePath,
		ClientID:     cfg.ClientID,
		Scope:        scope,
	}, c.state, store, nav)
}

// Request describes one call.
type Request struct {
	Verb     string
	Endpoint *Endpoint
	Args     *Args
	File     *File
	Progress ProgressFunc
}

// Response is the outcome of a call that reached the backend. Data is the
// decoded JSON body, or nil when the body was empty.
type Response struct {
	Status    int
	Data      any
	Body      []byte
	Header    http.Header
	RateLimit *RateLimitInfo
}

// OK reports whether the status is below 400.
func (r *Response) OK() bool {
	return r != nil && r.Status > 0 && r.Status < 400
}

// Result is delivered by Go once the call completes.
type Result struct {
	Response *Response
	Err      error
}

// Execute performs req and waits for the outcome.
//
// Programmer errors (*InvalidUsageError, *MissingArgumentError) are returned
// with a nil Response before any I/O. Otherwise a Response is always
// returned: a status of 400 or more comes back with *HTTPError, and a call
// that never got a usable response comes back with *TransportError and, when
// no status line arrived, Status 0.
func (c *Client) Execute(ctx context.Context, req Request) (*Response, error) {
	prepared, err := c.prepare(req)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, prepared)
}

// Go validates req synchronously and then performs it on its own goroutine.
// The channel receives exactly one Result and is then closed.
func (c *Client) Go(ctx context.Context, req Request) (<-chan Result, error) {
	prepared, err := c.prepare(req)
	if err != nil {
		return nil, err
	}
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		resp, err := c.send(ctx, prepared)
		ch <- Result{Response: resp, Err: err}
	}()
	return ch, nil
}

type preparedRequest struct {
	verb     string
	payload  payload
	progress ProgressFunc
}

func (c *Client) prepare(req Request) (*preparedRequest, error) {
	verb, err := NormalizeVerb(req.Verb)
	if err != nil {
		return nil, err
	}
	if req.Endpoint == nil {
		return nil, &InvalidUsageError{Verb: verb, Reason: "no endpoint"}
	}
	if req.File != nil && verb == http.MethodGet {
		return nil, &InvalidUsageError{Verb: verb, Reason: "file uploads are not allowed on GET"}
	}

	target, err := req.Endpoint.Resolve(c.Config().APIURL, verb, req.Args)
	if err != nil {
		return nil, err
	}

	p, err := encodeRequest(verb, target, req.Args, req.File)
	if err != nil {
		return nil, err
	}
	return &preparedRequest{verb: verb, payload: p, progress: req.Progress}, nil
}

func (c *Client) send(ctx context.Context, p *preparedRequest) (*Response, error) {
	start := time.Now()
	method, target := p.verb, p.payload.url

	var body io.Reader
	length := int64(-1)
	switch {
	case p.payload.stream != nil:
		body, length = p.payload.stream, p.payload.length
	case p.payload.body != nil:
		body, length = bytes.NewReader(p.payload.body), int64(len(p.payload.body))
	}
	if body != nil && p.progress != nil {
		body = newProgressReader(body, length, p.progress)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return &Response{}, &TransportError{Method: method, URL: target, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	if body != nil && length >= 0 {
		httpReq.ContentLength = length
	}

	if token := c.state.Token(); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	if c.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.UserAgent)
	}
	if p.payload.contentType != "" {
		httpReq.Header.Set("Content-Type", p.payload.contentType)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		if debug.IsEnabled(ctx) {
			slog.Debug("request failed", "method", method, "url", target, "error", err)
		}
		return &Response{}, &TransportError{Method: method, URL: target, Err: err}
	}

	respBody, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	out := &Response{
		Status:    resp.StatusCode,
		Body:      respBody,
		Header:    resp.Header,
		RateLimit: parseRateLimitInfo(resp.Header, time.Now()),
	}
	if err != nil {
		return out, &TransportError{Method: method, URL: target, Status: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if debug.IsEnabled(ctx) {
		slog.Debug("request complete", "method", method, "url", target, "status", resp.StatusCode, "bytes", len(respBody), "duration", time.Since(start))
	}

	if len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, &out.Data); err != nil {
			out.Data = nil
			return out, &TransportError{Method: method, URL: target, Status: resp.StatusCode, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
		}
	}

	if resp.StatusCode >= 400 {
		return out, &HTTPError{
			Method:    method,
			URL:       target,
			Status:    resp.StatusCode,
			Data:      out.Data,
			Body:      respBody,
			RequestID: requestIDFromHeader(resp.Header),
		}
	}
	return out, nil
}
