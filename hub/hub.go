// Package hub is a low-level client for the XYZ Hub REST API. It owns
// authentication headers, the query parameter grammar, rate-limit retries
// and response decoding. Higher-level orchestration (chunked uploads,
// divided spatial searches) lives in the parent package.
package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"
)

// DefaultURL is the public XYZ Hub endpoint.
const DefaultURL = "https://xyz.api.here.com"

// clientID identifies this client in every request, mirroring the
// clientId query parameter the hub expects.
const clientID = "go-spaces"

const geoJSONContentType = "application/geo+json"

// RetryConfig bounds the transparent retry on HTTP 429 responses.
// All other error statuses fail immediately.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultRetryConfig returns the retry bounds used when Config.Retry is zero.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
	}
}

// Config carries the settings needed to talk to a hub instance.
type Config struct {
	// URL is the base endpoint. Empty means DefaultURL.
	URL string
	// Token is the bearer token sent with every request.
	Token string
	// HTTPClient overrides the default client (30s timeout).
	HTTPClient *http.Client
	// Limiter optionally paces outgoing requests.
	Limiter *rate.Limiter
	// Logger receives request-level debug logs. Nil means slog.Default.
	Logger *slog.Logger
	// Retry bounds the 429 retry loop. Zero value means DefaultRetryConfig.
	Retry RetryConfig
}

// DefaultConfig returns a Config pointing at the public endpoint with the
// token resolved from the environment.
func DefaultConfig() Config {
	return Config{
		URL:   DefaultURL,
		Token: TokenFromEnv(),
	}
}

// TokenFromEnv returns the value of the XYZ_TOKEN environment variable,
// loading a .env file from the working directory first if one exists.
func TokenFromEnv() string {
	_ = godotenv.Load()
	return os.Getenv("XYZ_TOKEN")
}

// Client is an authenticated XYZ Hub API client. It is safe for
// concurrent use.
type Client struct {
	baseURL string
	token   string
	hc      *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
	retry   RetryConfig
}

// New creates a Client from the given config.
func New(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	return &Client{
		baseURL: cfg.URL,
		token:   cfg.Token,
		hc:      cfg.HTTPClient,
		limiter: cfg.Limiter,
		log:     cfg.Logger,
		retry:   cfg.Retry,
	}
}

// Logger returns the logger the client was configured with.
func (c *Client) Logger() *slog.Logger { return c.log }

// request performs one API call, retrying on 429 with exponential backoff.
// A non-nil out is filled by JSON-decoding the response body.
func (c *Client) request(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("hub: marshal request body: %w", err)
		}
	}

	if query == nil {
		query = url.Values{}
	}
	query.Set("clientId", clientID)
	u := c.baseURL + path + "?" + query.Encode()

	backoff := c.retry.BaseDelay
	var lastErr error
	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = time.Duration(float64(backoff) * c.retry.Multiplier)
			if backoff > c.retry.MaxDelay {
				backoff = c.retry.MaxDelay
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		data, err := c.do(ctx, method, u, payload)
		if err == nil {
			if out == nil || len(data) == 0 {
				return nil
			}
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("hub: decode response: %w", err)
			}
			return nil
		}
		if !IsRateLimited(err) {
			return err
		}
		lastErr = err
		if ra := retryAfter(err); ra > 0 {
			backoff = ra
		}
		c.log.Debug("hub: rate limited, backing off",
			"method", method, "path", path, "attempt", attempt+1, "backoff", backoff)
	}
	return fmt.Errorf("hub: %s %s after %d attempts: %w", method, path, c.retry.MaxAttempts, lastErr)
}

func (c *Client) do(ctx context.Context, method, u string, payload []byte) ([]byte, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, fmt.Errorf("hub: build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", geoJSONContentType)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hub: %s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("hub: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(data),
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			if ra, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
				apiErr.RetryAfter = time.Duration(ra) * time.Second
			}
			return nil, fmt.Errorf("%w: %w", ErrRateLimited, apiErr)
		}
		return nil, apiErr
	}
	return data, nil
}

// retryAfter extracts a server-suggested delay from a rate-limit error
// chain, or zero when none was sent.
func retryAfter(err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}
