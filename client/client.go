package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/novadb/novadb-mcp-demo/internal/correlation"
	"github.com/novadb/novadb-mcp-demo/internal/svcfields"
	"pkt.systems/pslog"
)

const (
	headerAuthorization = "Authorization"
	headerAccept        = "Accept"
	headerContentType   = "Content-Type"
	headerUserAgent     = "User-Agent"

	mediaTypeJSON = "application/json"
)

// Client is the authenticated HTTP transport shared by the CMS and Index
// domain clients. It is safe for concurrent use; it holds no per-call state.
type Client struct {
	baseURL     string
	authHeader  string
	httpClient  *http.Client
	httpTimeout time.Duration
	userAgent   string
	tracing     bool
	logger      pslog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient supplies the http.Client used for requests. The client's
// transport is wrapped for tracing when tracing is enabled.
func WithHTTPClient(cli *http.Client) Option {
	return func(c *Client) {
		if cli != nil {
			c.httpClient = cli
		}
	}
}

// WithLogger routes transport logs to logger.
func WithLogger(logger pslog.Logger) Option {
	return func(c *Client) {
		c.logger = svcfields.WithSubsystem(logger, svcfields.ClientHTTP)
	}
}

// WithHTTPTimeout bounds each request. Zero leaves the transport defaults in
// charge, which is the default.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.httpTimeout = d
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = strings.TrimSpace(ua)
	}
}

// WithTracing toggles OpenTelemetry instrumentation of outbound requests.
func WithTracing(enabled bool) Option {
	return func(c *Client) {
		c.tracing = enabled
	}
}

// New constructs a transport rooted at baseURL (for example
// https://nova.example.com/apis/cms/v1) authenticating with Basic credentials.
func New(baseURL, user, password string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("baseURL required")
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		return nil, fmt.Errorf("baseURL %q must be an http(s) URL", baseURL)
	}
	c := &Client{
		baseURL:    trimmed,
		authHeader: "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password)),
		userAgent:  "novadb-mcp",
		tracing:    true,
		logger:     pslog.NoopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient = c.buildHTTPClient()
	return c, nil
}

func (c *Client) buildHTTPClient() *http.Client {
	base := c.httpClient
	if base == nil {
		base = &http.Client{}
	}
	cli := *base
	if c.tracing {
		transport := cli.Transport
		if transport == nil {
			transport = http.DefaultTransport
		}
		cli.Transport = otelhttp.NewTransport(transport,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return "novadb.http." + strings.ToLower(r.Method)
			}),
		)
	}
	return &cli
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// BuildURL joins the base URL, path and the non-empty query parameters.
func (c *Client) BuildURL(path string, query Query) string {
	url := c.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		url += "?" + encoded
	}
	return url
}

// Get issues a JSON GET.
func (c *Client) Get(ctx context.Context, path string, query Query) (json.RawMessage, error) {
	return c.doJSON(ctx, http.MethodGet, path, query, nil, false, nil)
}

// Post issues a JSON POST with body encoded as JSON.
func (c *Client) Post(ctx context.Context, path string, query Query, body any, headers http.Header) (json.RawMessage, error) {
	return c.doJSON(ctx, http.MethodPost, path, query, body, true, headers)
}

// Patch issues a JSON PATCH with body encoded as JSON.
func (c *Client) Patch(ctx context.Context, path string, query Query, body any, headers http.Header) (json.RawMessage, error) {
	return c.doJSON(ctx, http.MethodPatch, path, query, body, true, headers)
}

// Delete issues a DELETE. A JSON body is sent only when body is non-nil.
func (c *Client) Delete(ctx context.Context, path string, query Query, body any, headers http.Header) (json.RawMessage, error) {
	return c.doJSON(ctx, http.MethodDelete, path, query, body, body != nil, headers)
}

// GetRaw issues a GET and hands back the live response so callers can stream
// the body. The caller must close resp.Body.
func (c *Client) GetRaw(ctx context.Context, path string, query Query) (*http.Response, error) {
	url := c.BuildURL(path, query)
	req, cancel, err := c.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	c.logger.Trace("client.http.raw.begin", c.enrich(ctx, "url", url)...)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		c.logger.Warn("client.http.raw.transport_error", c.enrich(ctx, "url", url, "error", err)...)
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer cancel()
		defer resp.Body.Close()
		return nil, c.decodeError(ctx, req, resp)
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	c.logger.Debug("client.http.raw.success", c.enrich(ctx,
		"url", url,
		"status", resp.StatusCode,
		"content_type", resp.Header.Get(headerContentType),
		"content_length", resp.ContentLength,
	)...)
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query Query, payload any, sendBody bool, headers http.Header) (json.RawMessage, error) {
	url := c.BuildURL(path, query)
	var body io.Reader
	if sendBody {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(payload); err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		body = buf
	}
	req, cancel, err := c.newRequest(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	defer cancel()
	req.Header.Set(headerAccept, mediaTypeJSON)
	if sendBody {
		req.Header.Set(headerContentType, mediaTypeJSON)
	}
	applyHeaders(req, headers)
	return c.execute(ctx, req)
}

func (c *Client) execute(ctx context.Context, req *http.Request) (json.RawMessage, error) {
	begin := time.Now()
	c.logger.Trace("client.http.request.begin", c.enrich(ctx, "method", req.Method, "url", req.URL.String())...)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("client.http.request.transport_error", c.enrich(ctx, "method", req.Method, "url", req.URL.String(), "error", err)...)
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.decodeError(ctx, req, resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s response: %w", req.Method, req.URL.Path, err)
	}
	out, err := normalizeBody(req.Method, resp.Header.Get(headerContentType), data)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	c.logger.Debug("client.http.request.success", c.enrich(ctx,
		"method", req.Method,
		"url", req.URL.String(),
		"status", resp.StatusCode,
		"bytes", len(data),
		"elapsed", time.Since(begin),
	)...)
	return out, nil
}

// normalizeBody turns a successful response body into JSON. Bodiless
// responses (204, or DELETE without content) become an empty object, as does
// a DELETE answered with a non-JSON acknowledgement such as "OK".
func normalizeBody(method, contentType string, data []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return json.RawMessage(`{}`), nil
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed), nil
	}
	if strings.Contains(strings.ToLower(contentType), "json") {
		return nil, fmt.Errorf("decode response: invalid JSON body")
	}
	if method == http.MethodDelete {
		return json.RawMessage(`{}`), nil
	}
	return nil, fmt.Errorf("decode response: unexpected content type %q", contentType)
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, context.CancelFunc, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	reqCtx, cancel := ctx, context.CancelFunc(func() {})
	if c.httpTimeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, c.httpTimeout)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, url, body)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	req.Header.Set(headerAuthorization, c.authHeader)
	if c.userAgent != "" {
		req.Header.Set(headerUserAgent, c.userAgent)
	}
	if cid := correlation.ID(ctx); cid != "" {
		req.Header.Set(correlation.Header, cid)
	}
	return req, cancel, nil
}

func applyHeaders(req *http.Request, headers http.Header) {
	for k, vals := range headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
}

func (c *Client) decodeError(ctx context.Context, req *http.Request, resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		data = []byte(fmt.Sprintf("<unreadable body: %v>", err))
	}
	c.logger.Warn("client.http.request.error", c.enrich(ctx,
		"method", req.Method,
		"url", req.URL.String(),
		"status", resp.StatusCode,
	)...)
	return &APIError{
		Status:      resp.StatusCode,
		Body:        data,
		Method:      req.Method,
		URL:         req.URL.String(),
		ContentType: resp.Header.Get(headerContentType),
	}
}

func (c *Client) enrich(ctx context.Context, keyvals ...any) []any {
	if cid := correlation.ID(ctx); cid != "" {
		keyvals = append(keyvals, "cid", cid)
	}
	return keyvals
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
