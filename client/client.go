package client

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	saiLogger "github.com/saiset-co/sai-request-cache/logger"
	"github.com/saiset-co/sai-request-cache/metrics"
	"github.com/saiset-co/sai-request-cache/types"
	"github.com/saiset-co/sai-request-cache/utils"
)

type State int32

const (
	StateRunning State = iota
	StateStopped
)

const (
	defaultTimeout      = 30 * time.Second
	defaultRetryBackoff = time.Second
	requestIDHeader     = "X-Request-ID"
)

// HTTPClient is the fasthttp transport behind a request cache. Retries and
// circuit breaking live here, never in the cache.
type HTTPClient struct {
	ctx            context.Context
	cancel         context.CancelFunc
	logger         types.Logger
	metrics        types.MetricsManager
	name           string
	client         *fasthttp.Client
	baseURL        string
	config         *types.ClientConfig
	circuitBreaker *CircuitBreaker
	state          atomic.Value
	requestTimeout time.Duration
	retryBackoff   time.Duration
}

func NewHTTPClient(ctx context.Context, logger types.Logger, metricsManager types.MetricsManager, name string, config *types.ClientConfig) *HTTPClient {
	clientCtx, cancel := context.WithCancel(ctx)

	if logger == nil {
		logger = saiLogger.NewNopLogger()
	}
	if metricsManager == nil {
		metricsManager = metrics.NewNopMetrics()
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &HTTPClient{
		ctx:            clientCtx,
		cancel:         cancel,
		logger:         logger,
		metrics:        metricsManager,
		name:           name,
		baseURL:        strings.TrimRight(config.BaseURL, "/"),
		config:         config,
		circuitBreaker: NewCircuitBreaker(config.CircuitBreaker, logger, name),
		requestTimeout: timeout,
		retryBackoff:   defaultRetryBackoff,
		client: &fasthttp.Client{
			Name:         name,
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
	}

	c.state.Store(StateRunning)

	return c
}

func (c *HTTPClient) Get(ctx context.Context, path string) (*types.Response, error) {
	return c.Call(ctx, http.MethodGet, path, nil, nil)
}

func (c *HTTPClient) Post(ctx context.Context, path string, body interface{}) (*types.Response, error) {
	return c.Call(ctx, http.MethodPost, path, body, nil)
}

func (c *HTTPClient) Put(ctx context.Context, path string, body interface{}) (*types.Response, error) {
	return c.Call(ctx, http.MethodPut, path, body, nil)
}

func (c *HTTPClient) Delete(ctx context.Context, path string) (*types.Response, error) {
	return c.Call(ctx, http.MethodDelete, path, nil, nil)
}

// Call issues one logical request. A completed request with a non-2xx status
// returns both the response and a *types.ResponseError.
func (c *HTTPClient) Call(ctx context.Context, method, path string, data interface{}, opts *types.CallOptions) (*types.Response, error) {
	if !c.IsRunning() {
		return nil, types.ErrClientNotRunning
	}

	start := time.Now()

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.resolveURL(path))
	req.Header.SetMethod(method)
	req.Header.Set(fasthttp.HeaderAcceptEncoding, "br, gzip")
	req.Header.Set(requestIDHeader, uuid.NewString())

	for key, value := range c.config.Headers {
		req.Header.Set(key, value)
	}

	if data != nil {
		body, err := encodeBody(data)
		if err != nil {
			return nil, types.WrapError(err, "failed to marshal request data")
		}
		req.SetBody(body)
		req.Header.SetContentType("application/json")
	}

	timeout := c.requestTimeout
	retries := c.config.Retries

	if opts != nil {
		for key, value := range opts.Headers {
			req.Header.Set(key, value)
		}
		if opts.Timeout > 0 {
			timeout = opts.Timeout
		}
		if opts.Retry > 0 {
			retries = opts.Retry
		}
	}

	response, err := c.executeWithRetries(ctx, req, resp, timeout, retries)

	status := "success"
	if err != nil {
		status = "error"
	}
	c.recordMetrics(method, status, time.Since(start))

	return response, err
}

func (c *HTTPClient) Close() {
	if !c.state.CompareAndSwap(StateRunning, StateStopped) {
		return
	}
	c.cancel()
	c.client.CloseIdleConnections()

	c.logger.Debug("HTTP client closed", zap.String("service", c.name))
}

func (c *HTTPClient) IsRunning() bool {
	return c.state.Load().(State) == StateRunning
}

func (c *HTTPClient) CircuitBreaker() *CircuitBreaker {
	return c.circuitBreaker
}

func (c *HTTPClient) BreakerState() string {
	return c.circuitBreaker.State().String()
}

func (c *HTTPClient) resolveURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func (c *HTTPClient) executeWithRetries(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response, timeout time.Duration, maxRetries int) (*types.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if !c.IsRunning() {
			return nil, types.ErrClientNotRunning
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !c.circuitBreaker.CanExecute() {
			return nil, types.ErrCircuitBreakerOpen
		}

		resp.Reset()
		err := c.client.DoDeadline(req, resp, deadline(ctx, timeout))
		statusCode := resp.StatusCode()

		switch {
		case IsSuccessfulResponse(statusCode, err):
			c.circuitBreaker.RecordSuccess()
		case IsCircuitBreakerFailure(statusCode, err):
			c.circuitBreaker.RecordFailure()
		default:
			c.circuitBreaker.Release()
		}

		if err == nil {
			response, decodeErr := readResponse(resp)
			if decodeErr != nil {
				return nil, decodeErr
			}
			if statusCode >= 200 && statusCode < 300 {
				return response, nil
			}
			lastErr = &types.ResponseError{StatusCode: statusCode, Body: response.Body}
			if !IsRetryableError(statusCode, nil) || attempt == maxRetries {
				return response, lastErr
			}
		} else {
			retryable := IsRetryableError(0, err)
			if errors.Is(err, fasthttp.ErrTimeout) {
				err = types.NewErrorf("%w: %s %s: %w", types.ErrClientTimeout, req.Header.Method(), req.URI().String(), err)
			}
			lastErr = err
			if !retryable {
				break
			}
		}

		if attempt < maxRetries {
			backoff := time.Duration(attempt+1) * c.retryBackoff

			c.logger.Debug("Retrying request",
				zap.String("service", c.name),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-c.ctx.Done():
				return nil, types.ErrClientNotRunning
			}
		}
	}

	return nil, types.NewErrorf("%w: service %s: %w", types.ErrClientRequestFailed, c.name, lastErr)
}

func (c *HTTPClient) recordMetrics(method, status string, duration time.Duration) {
	c.metrics.Counter("http_client_requests_total", map[string]string{
		"service": c.name,
		"method":  method,
		"status":  status,
	}).Inc()

	c.metrics.Histogram("http_client_request_duration_seconds",
		[]float64{0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		map[string]string{"service": c.name, "method": method},
	).Observe(duration.Seconds())
}

func deadline(ctx context.Context, timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}

func encodeBody(data interface{}) ([]byte, error) {
	switch v := data.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return utils.Marshal(v)
	}
}
