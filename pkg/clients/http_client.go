// Package clients provides the remote transports used by connectors: an
// HTTP client with retry, rate limiting and circuit breaking, and a SQL
// client over database/sql.
package clients

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/oauth2"

	"github.com/ajitpratap0/remotescan/pkg/config"
	"github.com/ajitpratap0/remotescan/pkg/errors"
	"github.com/ajitpratap0/remotescan/pkg/metrics"
)

const (
	// maxErrorBody bounds the response excerpt attached to transport errors
	maxErrorBody = 512
	// maxRetryAfter bounds a server-directed pause
	maxRetryAfter = time.Minute
)

// HTTPConfig configures the HTTP client
type HTTPConfig struct {
	// Connection settings
	MaxIdleConnsPerHost int           `json:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `json:"idle_conn_timeout"`
	DisableCompression  bool          `json:"disable_compression"`
	EnableHTTP2         bool          `json:"enable_http2"`
	InsecureSkipVerify  bool          `json:"insecure_skip_verify"`

	// Timeouts
	DialTimeout           time.Duration `json:"dial_timeout"`
	TLSHandshakeTimeout   time.Duration `json:"tls_handshake_timeout"`
	ResponseHeaderTimeout time.Duration `json:"response_header_timeout"`
	RequestTimeout        time.Duration `json:"request_timeout"`
	KeepAlive             time.Duration `json:"keep_alive"`

	// Rate limiting (0 = unlimited)
	RateLimit float64 `json:"rate_limit"`
	RateBurst int     `json:"rate_burst"`

	// Circuit breaker
	CircuitBreakerEnabled bool          `json:"circuit_breaker_enabled"`
	FailureThreshold      int           `json:"failure_threshold"`
	BreakerTimeout        time.Duration `json:"breaker_timeout"`

	// Retry policy for transient failures; nil disables retries
	Retry *RetryPolicy `json:"-"`

	// Authentication. BearerToken is shorthand for a static TokenSource.
	BearerToken string             `json:"-"`
	TokenSource oauth2.TokenSource `json:"-"`

	// Headers are added to every request
	Headers   map[string]string `json:"headers"`
	UserAgent string            `json:"user_agent"`
}

// DefaultHTTPConfig returns the default client configuration
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		EnableHTTP2:           true,
		DialTimeout:           10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		RequestTimeout:        30 * time.Second,
		KeepAlive:             30 * time.Second,
		CircuitBreakerEnabled: true,
		FailureThreshold:      5,
		BreakerTimeout:        30 * time.Second,
		Retry:                 DefaultRetryPolicy(),
		UserAgent:             "remotescan/1.0",
	}
}

// HTTPConfigFromEngine derives client settings from the engine configuration
func HTTPConfigFromEngine(cfg *config.EngineConfig) *HTTPConfig {
	hc := DefaultHTTPConfig()
	hc.RequestTimeout = cfg.Timeouts.Request
	hc.ResponseHeaderTimeout = cfg.Timeouts.Request
	hc.DialTimeout = cfg.Timeouts.Connection
	hc.IdleConnTimeout = cfg.Timeouts.Idle
	hc.KeepAlive = cfg.Timeouts.KeepAlive

	rel := cfg.Reliability
	hc.Retry = NewRetryPolicy(rel.RetryAttempts, rel.RetryDelay, rel.MaxRetryDelay, rel.RetryMultiplier)
	hc.CircuitBreakerEnabled = rel.CircuitBreaker
	hc.FailureThreshold = rel.FailureThreshold
	hc.BreakerTimeout = rel.BreakerTimeout
	if rel.IsRateLimited() {
		hc.RateLimit = float64(rel.RateLimitPerSec)
		hc.RateBurst = rel.RateLimitBurst
	}
	return hc
}

// Clone returns a shallow copy with its own header map
func (hc *HTTPConfig) Clone() *HTTPConfig {
	cp := *hc
	cp.Headers = make(map[string]string, len(hc.Headers))
	for k, v := range hc.Headers {
		cp.Headers[k] = v
	}
	return &cp
}

// Request is a single remote call
type Request struct {
	Method string
	URL    string
	Body   []byte
	Header http.Header
	// Idempotent allows retrying a non-idempotent method on any transient
	// failure, e.g. a POST carrying an idempotency key.
	Idempotent bool
}

// Response is a fully read remote response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int
}

// IsSuccess reports a 2xx status
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Err converts a non-2xx response into a structured error carrying the
// status code. It returns nil for 2xx responses.
func (r *Response) Err() error {
	if r.IsSuccess() {
		return nil
	}
	var errType errors.ErrorType
	switch {
	case r.StatusCode == http.StatusNotFound:
		errType = errors.ErrorTypeNotFound
	case r.StatusCode == http.StatusUnauthorized || r.StatusCode == http.StatusForbidden:
		errType = errors.ErrorTypeAuthentication
	case r.StatusCode == http.StatusTooManyRequests:
		errType = errors.ErrorTypeRateLimit
	case r.StatusCode == http.StatusRequestTimeout || r.StatusCode == http.StatusGatewayTimeout:
		errType = errors.ErrorTypeTimeout
	case r.StatusCode >= 500:
		errType = errors.ErrorTypeConnection
	default:
		errType = errors.ErrorTypeTransport
	}
	body := r.Body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return errors.Newf(errType, "remote returned status %d", r.StatusCode).
		WithDetail("status", r.StatusCode).
		WithDetail("body", string(body))
}

// HTTPStats represents HTTP client statistics
type HTTPStats struct {
	TotalRequests  int64 `json:"total_requests"`
	FailedRequests int64 `json:"failed_requests"`
	Retries        int64 `json:"retries"`
	BytesIn        int64 `json:"bytes_in"`
}

// HTTPClient sends requests with rate limiting, circuit breaking and retry
// of transient failures. Response bodies are read fully before returning.
type HTTPClient struct {
	config     *HTTPConfig
	logger     *zap.Logger
	httpClient *http.Client
	transport  *http.Transport

	rateLimiter    RateLimiter
	circuitBreaker *CircuitBreaker
	retry          *RetryPolicy

	totalRequests  int64
	failedRequests int64
	retries        int64
	bytesIn        int64
}

// NewHTTPClient creates a new HTTP client
func NewHTTPClient(cfg *HTTPConfig, logger *zap.Logger) *HTTPClient {
	if cfg == nil {
		cfg = DefaultHTTPConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := &HTTPClient{
		config: cfg,
		logger: logger.With(zap.String("component", "http_client")),
		retry:  cfg.Retry,
	}
	if client.retry == nil {
		client.retry = NoRetryPolicy()
	}

	client.transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: cfg.KeepAlive,
		}).DialContext,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		// bodies are decoded in readBody so Accept-Encoding stays under our control
		DisableCompression: true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for test servers
			MinVersion:         tls.VersionTLS12,
		},
	}

	if cfg.EnableHTTP2 {
		if err := http2.ConfigureTransport(client.transport); err != nil {
			client.logger.Warn("failed to configure HTTP/2", zap.Error(err))
		}
	}

	var rt http.RoundTripper = client.transport
	if src := tokenSource(cfg); src != nil {
		rt = &oauth2.Transport{Source: src, Base: rt}
	}

	client.httpClient = &http.Client{
		Transport: rt,
		Timeout:   cfg.RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	if cfg.RateLimit > 0 {
		client.rateLimiter = NewTokenBucketRateLimiter(cfg.RateLimit, cfg.RateBurst)
	}

	if cfg.CircuitBreakerEnabled {
		client.circuitBreaker = NewCircuitBreaker(CircuitBreakerConfig{
			Name:             "http",
			FailureThreshold: cfg.FailureThreshold,
			Timeout:          cfg.BreakerTimeout,
		}, client.logger)
	}

	return client
}

// Get performs a GET request
func (c *HTTPClient) Get(ctx context.Context, rawURL string) (*Response, error) {
	return c.Send(ctx, &Request{Method: http.MethodGet, URL: rawURL})
}

// PostForm performs a form-encoded POST request
func (c *HTTPClient) PostForm(ctx context.Context, rawURL string, form url.Values, idempotencyKey string) (*Response, error) {
	h := http.Header{}
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	if idempotencyKey != "" {
		h.Set("Idempotency-Key", idempotencyKey)
	}
	return c.Send(ctx, &Request{
		Method:     http.MethodPost,
		URL:        rawURL,
		Body:       []byte(form.Encode()),
		Header:     h,
		Idempotent: idempotencyKey != "",
	})
}

// Delete performs a DELETE request
func (c *HTTPClient) Delete(ctx context.Context, rawURL string) (*Response, error) {
	return c.Send(ctx, &Request{Method: http.MethodDelete, URL: rawURL})
}

// Send performs a request, retrying transient failures. A response with a
// non-transient status is returned without error; callers inspect it with
// Response.Err. An error is returned for transport failures and for
// transient statuses that outlive the retry budget.
func (c *HTTPClient) Send(ctx context.Context, req *Request) (*Response, error) {
	var resp *Response
	err := c.retry.Execute(ctx, func(attempt int) error {
		if attempt > 0 {
			atomic.AddInt64(&c.retries, 1)
			metrics.RemoteRetries.WithLabelValues(hostOf(req.URL)).Inc()
		}
		r, err := c.do(ctx, req)
		if err != nil {
			return err
		}
		r.Attempts = attempt + 1
		resp = r
		if isTransientStatus(r.StatusCode) {
			return r.Err()
		}
		return nil
	}, func(err error) bool {
		return c.shouldRetry(req, err)
	})
	if err != nil {
		atomic.AddInt64(&c.failedRequests, 1)
		if errors.IsType(err, errors.ErrorTypeTransport) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrorTypeTransport, fmt.Sprintf("%s %s failed", req.Method, redactURL(req.URL))).
			WithDetail("status", errors.StatusCode(err))
	}
	return resp, nil
}

// shouldRetry decides whether a failed attempt is worth repeating.
// Idempotent methods retry on any transient failure; others only when the
// request never reached the server or the server asked us to slow down.
func (c *HTTPClient) shouldRetry(req *Request, err error) bool {
	if !errors.IsRetryable(err) {
		return false
	}
	if req.Idempotent || isIdempotentMethod(req.Method) {
		return true
	}
	if errors.IsType(err, errors.ErrorTypeRateLimit) {
		return true
	}
	var e *errors.Error
	if errors.As(err, &e) {
		if dial, _ := e.Detail("dial").(bool); dial {
			return true
		}
	}
	return false
}

// do performs one attempt
func (c *HTTPClient) do(ctx context.Context, req *Request) (*Response, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "rate limiter wait aborted")
		}
	}

	if c.circuitBreaker != nil && !c.circuitBreaker.Allow() {
		return nil, errors.New(errors.ErrorTypeTransport, "circuit breaker open").
			WithDetail("host", hostOf(req.URL))
	}

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid request")
	}

	atomic.AddInt64(&c.totalRequests, 1)
	timer := metrics.NewTimer()
	httpResp, err := c.httpClient.Do(httpReq)
	host := httpReq.URL.Host
	metrics.RemoteRequestDuration.WithLabelValues(host, req.Method).Observe(timer.Elapsed().Seconds())

	if err != nil {
		metrics.RemoteRequests.WithLabelValues(host, req.Method, metrics.StatusClass(0)).Inc()
		classified := classifyError(err)
		if c.circuitBreaker != nil && errors.IsRetryable(classified) {
			c.circuitBreaker.RecordFailure()
		}
		c.logger.Debug("request failed",
			zap.String("method", req.Method),
			zap.String("host", host),
			zap.Error(err))
		return nil, classified
	}
	defer httpResp.Body.Close()

	body, err := readBody(httpResp)
	if err != nil {
		if c.circuitBreaker != nil {
			c.circuitBreaker.RecordFailure()
		}
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to read response body")
	}
	atomic.AddInt64(&c.bytesIn, int64(len(body)))
	metrics.RemoteRequests.WithLabelValues(host, req.Method, metrics.StatusClass(httpResp.StatusCode)).Inc()

	if httpResp.StatusCode == http.StatusTooManyRequests && c.rateLimiter != nil {
		if d := retryAfter(httpResp.Header, time.Now()); d > 0 {
			c.rateLimiter.Pause(d)
			c.logger.Info("remote asked to slow down",
				zap.String("host", host),
				zap.Duration("retry_after", d))
		}
	}

	if c.circuitBreaker != nil {
		if isTransientStatus(httpResp.StatusCode) {
			c.circuitBreaker.RecordFailure()
		} else {
			c.circuitBreaker.RecordSuccess()
		}
	}

	c.logger.Debug("request completed",
		zap.String("method", req.Method),
		zap.String("url", redactURL(req.URL)),
		zap.Int("status", httpResp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("duration", timer.Elapsed()))

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}, nil
}

func (c *HTTPClient) newRequest(ctx context.Context, req *Request) (*http.Request, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}

	for key, value := range c.config.Headers {
		httpReq.Header.Set(key, value)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if httpReq.Header.Get("Accept-Encoding") == "" && !c.config.DisableCompression {
		httpReq.Header.Set("Accept-Encoding", "gzip, deflate")
	}
	if httpReq.Header.Get("User-Agent") == "" && c.config.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
	}

	return httpReq, nil
}

// GetStats returns current client statistics
func (c *HTTPClient) GetStats() HTTPStats {
	return HTTPStats{
		TotalRequests:  atomic.LoadInt64(&c.totalRequests),
		FailedRequests: atomic.LoadInt64(&c.failedRequests),
		Retries:        atomic.LoadInt64(&c.retries),
		BytesIn:        atomic.LoadInt64(&c.bytesIn),
	}
}

// CircuitState returns the breaker state, or StateClosed when disabled
func (c *HTTPClient) CircuitState() CircuitState {
	if c.circuitBreaker == nil {
		return StateClosed
	}
	return c.circuitBreaker.State()
}

// Close releases idle connections
func (c *HTTPClient) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}

// readBody reads the whole body, decoding gzip and deflate content encodings
func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	case "deflate":
		fr := flate.NewReader(resp.Body)
		defer fr.Close()
		r = fr
	}
	return io.ReadAll(r)
}

func classifyError(err error) *errors.Error {
	if errors.Is(err, context.Canceled) {
		return errors.Wrap(err, errors.ErrorTypeInternal, "request cancelled")
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return errors.Wrap(err, errors.ErrorTypeTimeout, "request timed out")
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return errors.Wrap(err, errors.ErrorTypeConnection, "connection failed").WithDetail("dial", true)
	}
	return errors.Wrap(err, errors.ErrorTypeConnection, "request failed")
}

func isTransientStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// retryAfter reads a Retry-After header given in seconds or as an HTTP
// date, capped at maxRetryAfter
func retryAfter(h http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	var d time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		d = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(v); err == nil {
		d = at.Sub(now)
	}
	if d > maxRetryAfter {
		d = maxRetryAfter
	}
	if d < 0 {
		return 0
	}
	return d
}

func isIdempotentMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

func tokenSource(cfg *HTTPConfig) oauth2.TokenSource {
	if cfg.TokenSource != nil {
		return cfg.TokenSource
	}
	if cfg.BearerToken != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.BearerToken, TokenType: "Bearer"})
	}
	return nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// redactURL drops credentials and query values from a URL for logging
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	u.User = nil
	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			q.Set(k, "x")
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}
