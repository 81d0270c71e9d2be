package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// BatchPath is the ingestion route relative to the endpoint.
const BatchPath = "/v1/events/batch"

// Errors returned by Client.Send.
var (
	ErrNonRetryable = errors.New("transport: non-retryable response")
	ErrExhausted    = errors.New("transport: all retries exhausted")
)

// SendResult holds the outcome of a batch send.
type SendResult struct {
	// StatusCode is the HTTP status code of the final response.
	StatusCode int

	// Accepted is the number of events the server accepted. It equals the
	// batch size when the server does not report counts.
	Accepted int

	// Rejected is the number of events the server rejected.
	Rejected int
}

// Config configures a Client.
type Config struct {
	// Endpoint is the server base URL, e.g. "https://analytics.example.com".
	Endpoint string

	// APIKey is sent in the X-API-Key header.
	APIKey string

	// UserAgent is sent in the User-Agent header.
	UserAgent string

	// Timeout bounds a single HTTP request (default 10s).
	Timeout time.Duration

	// Retry schedules retries of transient failures (default DefaultRetry).
	Retry RetryStrategy

	// RequestsPerSecond limits outgoing requests; zero disables the limit.
	RequestsPerSecond float64

	// Burst is the limiter burst size (default 1).
	Burst int

	// HTTPClient overrides the HTTP client. Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client sends envelope batches to the Causality server.
type Client struct {
	httpClient *http.Client
	url        string
	apiKey     string
	userAgent  string
	retry      RetryStrategy
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a transport client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Retry == nil {
		cfg.Retry = DefaultRetry
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1))
	}

	return &Client{
		httpClient: httpClient,
		url:        strings.TrimRight(cfg.Endpoint, "/") + BatchPath,
		apiKey:     cfg.APIKey,
		userAgent:  cfg.UserAgent,
		retry:      cfg.Retry,
		limiter:    limiter,
		logger:     logger.With("component", "transport"),
	}
}

type batchRequest struct {
	Events []json.RawMessage `json:"events"`
}

type batchResponse struct {
	AcceptedCount *int `json:"accepted_count"`
	RejectedCount int  `json:"rejected_count"`
}

// SendBatch sends payloads and reports only the error. It satisfies the
// batch package's Sender.
func (c *Client) SendBatch(ctx context.Context, payloads [][]byte) error {
	_, err := c.Send(ctx, payloads)
	return err
}

// Send posts payloads as one batch. Network errors, 429 and 5xx responses are
// retried with the configured strategy; other 4xx responses fail at once
// with ErrNonRetryable.
func (c *Client) Send(ctx context.Context, payloads [][]byte) (*SendResult, error) {
	if len(payloads) == 0 {
		return &SendResult{StatusCode: http.StatusOK}, nil
	}

	events := make([]json.RawMessage, len(payloads))
	for i, p := range payloads {
		events[i] = p
	}
	body, err := json.Marshal(batchRequest{Events: events})
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	var lastErr error
	maxAttempts := c.retry.MaxAttempts()

	for attempt := 0; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		result, retryAfter, err := c.post(ctx, body, len(payloads))
		if err == nil {
			c.logger.Debug("batch delivered",
				"events", len(payloads),
				"accepted", result.Accepted,
				"rejected", result.Rejected,
			)
			return result, nil
		}
		if errors.Is(err, ErrNonRetryable) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err

		delay := c.retryDelay(attempt, retryAfter)
		if delay == 0 {
			break
		}

		c.logger.Warn("batch delivery failed, retrying",
			"error", err,
			"delay", delay,
			"attempt", attempt+1,
			"max_attempts", maxAttempts,
		)

		if !sleepWithContext(ctx, delay) {
			return nil, fmt.Errorf("context canceled during retry wait: %w", ctx.Err())
		}
	}

	return nil, fmt.Errorf("%w: %w", ErrExhausted, lastErr)
}

// post performs one request. It returns the Retry-After header of a failed
// response.
func (c *Client) post(ctx context.Context, body []byte, n int) (*SendResult, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("%w: create request: %w", ErrNonRetryable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		result := &SendResult{StatusCode: resp.StatusCode, Accepted: n}
		var parsed batchResponse
		if json.Unmarshal(respBody, &parsed) == nil && parsed.AcceptedCount != nil {
			result.Accepted = *parsed.AcceptedCount
			result.Rejected = parsed.RejectedCount
		}
		return result, "", nil

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, resp.Header.Get("Retry-After"), fmt.Errorf("server error: status %d", resp.StatusCode)

	default:
		return nil, "", fmt.Errorf("%w: status %d", ErrNonRetryable, resp.StatusCode)
	}
}

// retryDelay returns the wait before the next attempt. A valid Retry-After
// header wins when it is longer than the strategy's delay.
func (c *Client) retryDelay(attempt int, retryAfter string) time.Duration {
	strategyDelay := c.retry.NextDelay(attempt)
	if strategyDelay == 0 || retryAfter == "" {
		return strategyDelay
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return max(time.Duration(seconds)*time.Second, strategyDelay)
	}

	if t, err := http.ParseTime(retryAfter); err == nil {
		return max(time.Until(t), strategyDelay)
	}

	return strategyDelay
}

// sleepWithContext sleeps for d or until ctx is canceled. It reports whether
// the full sleep completed.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
