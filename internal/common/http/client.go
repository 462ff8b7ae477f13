// Package http sends duplicated requests to their destinations.
package http

import (
	"bytes"
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"traffic-duplicator/internal/circuitbreaker"
	"traffic-duplicator/internal/common/errors"
	"traffic-duplicator/internal/models"
)

// ClientConfig holds HTTP client configuration
type ClientConfig struct {
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	DisableKeepAlives   bool
	DisableCompression  bool
	InsecureSkipVerify  bool
	Transport           http.RoundTripper
	CheckRedirect       func(req *http.Request, via []*http.Request) error
	Breakers            *circuitbreaker.Manager
}

// DefaultClientConfig returns default HTTP client configuration. Redirects
// are returned to the caller rather than followed.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:             time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		CheckRedirect:       noRedirect,
	}
}

func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

// ClientOption is a function that modifies ClientConfig
type ClientOption func(*ClientConfig)

// WithTimeout sets the default per-call timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.Timeout = timeout
	}
}

// WithMaxIdleConns sets the maximum number of idle connections
func WithMaxIdleConns(max int) ClientOption {
	return func(c *ClientConfig) {
		c.MaxIdleConns = max
	}
}

// WithMaxIdleConnsPerHost sets the maximum number of idle connections per host
func WithMaxIdleConnsPerHost(max int) ClientOption {
	return func(c *ClientConfig) {
		c.MaxIdleConnsPerHost = max
	}
}

// WithIdleConnTimeout sets the idle connection timeout
func WithIdleConnTimeout(timeout time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.IdleConnTimeout = timeout
	}
}

// WithoutKeepAlives disables keep-alives
func WithoutKeepAlives() ClientOption {
	return func(c *ClientConfig) {
		c.DisableKeepAlives = true
	}
}

// WithoutCompression disables compression
func WithoutCompression() ClientOption {
	return func(c *ClientConfig) {
		c.DisableCompression = true
	}
}

// WithTransport sets a custom transport
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *ClientConfig) {
		c.Transport = transport
	}
}

// WithCheckRedirect sets a custom redirect policy
func WithCheckRedirect(checkRedirect func(req *http.Request, via []*http.Request) error) ClientOption {
	return func(c *ClientConfig) {
		c.CheckRedirect = checkRedirect
	}
}

// WithInsecureSkipVerify disables SSL certificate verification
func WithInsecureSkipVerify() ClientOption {
	return func(c *ClientConfig) {
		c.InsecureSkipVerify = true
	}
}

// WithBreakers runs every call through the breaker of its destination host
func WithBreakers(breakers *circuitbreaker.Manager) ClientOption {
	return func(c *ClientConfig) {
		c.Breakers = breakers
	}
}

// NewHTTPClient creates a new HTTP client with the given options
func NewHTTPClient(opts ...ClientOption) *http.Client {
	cfg := buildConfig(opts)
	return newHTTPClient(cfg, cfg.Timeout)
}

func buildConfig(opts []ClientOption) ClientConfig {
	cfg := DefaultClientConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func newHTTPClient(cfg ClientConfig, timeout time.Duration) *http.Client {
	var transport http.RoundTripper
	if cfg.Transport != nil {
		transport = cfg.Transport
	} else {
		httpTransport := &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        cfg.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
			IdleConnTimeout:     cfg.IdleConnTimeout,
			DisableKeepAlives:   cfg.DisableKeepAlives,
			DisableCompression:  cfg.DisableCompression,
		}
		if cfg.InsecureSkipVerify {
			httpTransport.TLSClientConfig = &tls.Config{
				InsecureSkipVerify: true,
			}
		}
		transport = httpTransport
	}

	client := &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
	if cfg.CheckRedirect != nil {
		client.CheckRedirect = cfg.CheckRedirect
	}
	return client
}

// Request is one outbound call. A zero Timeout uses the client default.
type Request struct {
	Method  string
	URL     string
	Headers []models.Header
	Body    []byte
	Timeout time.Duration
}

// Response is a fully read response
type Response struct {
	StatusCode int
	Headers    []models.Header
	Body       []byte
	Duration   time.Duration
}

// Performer performs outbound calls
type Performer interface {
	Perform(ctx context.Context, req *Request) (*Response, error)
}

// Client performs calls with a per-call deadline and classifies failures as
// timeout or connection errors
type Client struct {
	client   *http.Client
	timeout  time.Duration
	breakers *circuitbreaker.Manager
}

// NewClient creates a client. The configured timeout becomes the default
// per-call deadline.
func NewClient(opts ...ClientOption) *Client {
	cfg := buildConfig(opts)
	return &Client{
		client:   newHTTPClient(cfg, 0),
		timeout:  cfg.Timeout,
		breakers: cfg.Breakers,
	}
}

// HTTPClient returns the underlying HTTP client
func (c *Client) HTTPClient() *http.Client {
	return c.client
}

// Close releases idle connections
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}

// Perform sends req and reads the whole response. Non-2xx statuses are not
// errors.
func (c *Client) Perform(ctx context.Context, req *Request) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	target, err := url.Parse(req.URL)
	if err != nil {
		return nil, errors.ValidationError(fmt.Sprintf("invalid url %q", req.URL)).WithContext("error", err.Error())
	}

	httpReq, err := buildRequest(ctx, req)
	if err != nil {
		return nil, errors.ValidationError("failed to create request").WithContext("error", err.Error())
	}

	var response *Response
	call := func() error {
		var callErr error
		response, callErr = c.do(httpReq)
		return callErr
	}

	if c.breakers != nil {
		err = c.breakers.GetOrCreate(target.Host).Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return nil, err
	}
	return response, nil
}

func (c *Client) do(httpReq *http.Request) (*Response, error) {
	start := time.Now()

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classify(httpReq, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(httpReq, err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    flattenHeaders(resp.Header),
		Body:       body,
		Duration:   time.Since(start),
	}, nil
}

// skipHeaders are managed by the transport
var skipHeaders = map[string]bool{
	"Content-Length":    true,
	"Connection":        true,
	"Transfer-Encoding": true,
	"Keep-Alive":        true,
}

func buildRequest(ctx context.Context, req *Request) (*http.Request, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, err
	}

	for _, h := range req.Headers {
		name := http.CanonicalHeaderKey(h.Name)
		switch {
		case name == "Host":
			httpReq.Host = h.Value
		case skipHeaders[name]:
		default:
			httpReq.Header.Add(name, h.Value)
		}
	}
	return httpReq, nil
}

func classify(httpReq *http.Request, err error) error {
	host := httpReq.URL.Host

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}

	var netErr net.Error
	if stderrors.Is(err, context.DeadlineExceeded) || (stderrors.As(err, &netErr) && netErr.Timeout()) {
		return errors.TimeoutError(fmt.Sprintf("call to %s", host), err).WithContext("host", host)
	}
	return errors.ConnectionError(fmt.Sprintf("call to %s failed", host), err).WithContext("host", host)
}

func flattenHeaders(header http.Header) []models.Header {
	names := make([]string, 0, len(header))
	for name := range header {
		names = append(names, name)
	}
	sort.Strings(names)

	headers := make([]models.Header, 0, len(names))
	for _, name := range names {
		for _, value := range header[name] {
			headers = append(headers, models.Header{Name: name, Value: value})
		}
	}
	return headers
}

// HeaderValue returns the first value of name in headers
func HeaderValue(headers []models.Header, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
