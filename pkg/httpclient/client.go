// Package httpclient is the outbound HTTP stack shared by the service and its
// tools: retries with backoff, trace propagation and a circuit breaker.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

var (
	clientRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_client_requests_total",
			Help: "Outbound HTTP attempts by client and outcome.",
		},
		[]string{"client", "outcome"},
	)

	clientRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_client_retries_total",
			Help: "Outbound HTTP attempts that were retried.",
		},
		[]string{"client"},
	)
)

// Config holds HTTP client configuration.
type Config struct {
	// Name labels the client's metrics.
	Name            string
	Timeout         time.Duration
	MaxRetries      int
	RetryWaitMin    time.Duration
	RetryWaitMax    time.Duration
	MaxConnsPerHost int

	// Transport replaces the pooled default transport.
	Transport http.RoundTripper
}

// DefaultConfig returns defaults for a client named name.
func DefaultConfig(name string) Config {
	return Config{
		Name:            name,
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		RetryWaitMin:    time.Second,
		RetryWaitMax:    5 * time.Second,
		MaxConnsPerHost: 100,
	}
}

// Client wraps http.Client with retries and trace propagation.
type Client struct {
	httpClient *http.Client
	config     Config
}

// New creates a client from cfg.
func New(cfg Config) *Client {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
			MaxConnsPerHost:       cfg.MaxConnsPerHost,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
	}

	return &Client{
		httpClient: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		config:     cfg,
	}
}

// Do sends req, retrying network errors, 429 and 5xx responses other than
// 501. A request whose body cannot be rewound is sent once. When retries run
// out on a retryable status, the last response is returned as is.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.Clone(ctx)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	maxRetries := c.config.MaxRetries
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		maxRetries = 0
	}

	for attempt := 0; ; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("rewind request body: %w", err)
			}
			req.Body = body
		}

		resp, err := c.httpClient.Do(req)
		retry := attempt < maxRetries && shouldRetry(resp, err)
		c.observe(resp, err, retry)

		if !retry {
			if err != nil {
				return nil, fmt.Errorf("%s %s failed after %d attempts: %w", req.Method, req.URL.Redacted(), attempt+1, err)
			}
			return resp, nil
		}

		wait := c.backoff(attempt, resp)
		if resp != nil {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
			_ = resp.Body.Close()
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Client) observe(resp *http.Response, err error, retry bool) {
	outcome := "error"
	if err == nil {
		outcome = strconv.Itoa(resp.StatusCode/100) + "xx"
	}
	clientRequests.WithLabelValues(c.config.Name, outcome).Inc()
	if retry {
		clientRetries.WithLabelValues(c.config.Name).Inc()
	}
}

// backoff doubles RetryWaitMin per attempt up to RetryWaitMax with ±25%
// jitter. A Retry-After header in seconds takes precedence, capped at
// RetryWaitMax.
func (c *Client) backoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs >= 0 {
			return min(time.Duration(secs)*time.Second, c.config.RetryWaitMax)
		}
	}
	wait := c.config.RetryWaitMin << attempt
	if wait > c.config.RetryWaitMax || wait <= 0 {
		wait = c.config.RetryWaitMax
	}
	return addJitter(wait)
}

// addJitter spreads d by up to 25% in either direction.
func addJitter(d time.Duration) time.Duration {
	spread := int64(d) / 2
	if spread <= 0 {
		return d
	}
	return d - time.Duration(spread/2) + time.Duration(rand.Int64N(spread+1)) // #nosec G404 -- non-cryptographic jitter
}

// shouldRetry reports whether an attempt's outcome is worth repeating.
func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		var netErr net.Error
		return errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return true
	case resp.StatusCode == http.StatusNotImplemented:
		return false
	default:
		return resp.StatusCode >= 500
	}
}
