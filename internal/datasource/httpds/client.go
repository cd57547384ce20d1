// Package httpds fetches a trip-data CSV over HTTP with retry and
// exponential backoff.
//
// Transport errors, 429 and 5xx responses are retried. Any other non-2xx
// status is final. Context cancellation stops both requests and backoff
// waits.
package httpds

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// ErrStatus is wrapped by errors for non-2xx responses.
var ErrStatus = errors.New("httpds: unexpected status")

// Config configures the client. Zero values get defaults:
// Timeout 30s, InitialBackoff 200ms, MaxBackoff 5s. MaxRetries=0 means a
// single attempt.
type Config struct {
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// InsecureSkipVerify disables TLS certificate checks.
	InsecureSkipVerify bool

	// Header is sent with every request.
	Header http.Header

	// Transport overrides the default *http.Transport.
	Transport http.RoundTripper

	// Logger receives one line per retried attempt. Nil disables it.
	Logger *zerolog.Logger
}

// Client wraps an http.Client with retry behavior.
type Client struct {
	httpClient *http.Client
	maxRetries int
	header     http.Header
	logger     zerolog.Logger

	// newBackOff builds the wait policy for one call. Tests swap it for a
	// zero-wait policy.
	newBackOff func() backoff.BackOff
}

// NewClient constructs a Client from cfg, applying defaults for zero values.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // explicitly configurable
			},
		}
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	initial, max := cfg.InitialBackoff, cfg.MaxBackoff
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		maxRetries: cfg.MaxRetries,
		header:     cfg.Header.Clone(),
		logger:     logger,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = initial
			bo.MaxInterval = max
			bo.MaxElapsedTime = 0
			return bo
		},
	}
}

// Get issues a GET for url and returns the first 2xx response. The caller
// must close the body. Non-2xx responses are closed and reported as errors
// wrapping ErrStatus.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	if url == "" {
		return nil, errors.New("httpds: url must not be empty")
	}

	var (
		resp    *http.Response
		attempt int
	)
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("httpds: build request: %w", err))
		}
		for k, vs := range c.header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		r, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("httpds: GET %s: %w", url, err)
		}
		if r.StatusCode >= 200 && r.StatusCode <= 299 {
			resp = r
			return nil
		}

		snippet, _ := io.ReadAll(io.LimitReader(r.Body, 512))
		_ = r.Body.Close()
		err = fmt.Errorf("%w %d from GET %s: %s", ErrStatus, r.StatusCode, url, snippet)
		if !isRetryableStatus(r.StatusCode) {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.maxRetries)), ctx)
	notify := func(err error, wait time.Duration) {
		c.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Str("url", url).Msg("http source retry")
	}
	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		return nil, err
	}
	return resp, nil
}

// isRetryableStatus treats 429 and 5xx as transient.
func isRetryableStatus(code int) bool {
	if code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

// Source is a datasource reading one URL.
type Source struct {
	client *Client
	url    string
}

// NewSource returns a Source that downloads url with c.
func NewSource(c *Client, url string) *Source {
	return &Source{client: c, url: url}
}

// URL returns the configured URL.
func (s *Source) URL() string { return s.url }

// Open starts the download and returns the response body.
func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	resp, err := s.client.Get(ctx, s.url)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
