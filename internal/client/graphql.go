package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/odysseycaravels/ranking-scraper/internal/metrics"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var (
	// ErrRateLimited is returned when the API answers 429 Too Many Requests
	ErrRateLimited = errors.New("rate limited by remote API")

	// ErrProtocol is returned when a response does not carry a usable data envelope
	ErrProtocol = errors.New("remote API protocol violation")
)

// StatusError is a non-retryable HTTP failure
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.Code, e.Body)
}

// Request is a GraphQL query document with its variables
type Request struct {
	Name      string // Operation name, used for logging and metrics
	Query     string
	Variables map[string]any
}

// Config holds client configuration
type Config struct {
	Endpoint          string
	Token             string
	Timeout           time.Duration
	RequestsPerMinute int
	Retry             RetryPolicy
}

// Client is a GraphQL-over-HTTP client with request pacing and rate-limit backoff.
// Requests are issued one at a time by the caller; the remote rate limit is
// shared per account so there is nothing to gain from parallel calls.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryPolicy
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewClient creates a new GraphQL client
func NewClient(cfg Config) *Client {
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	}

	return &Client{
		endpoint: cfg.Endpoint,
		token:    cfg.Token,
		limiter:  rate.NewLimiter(limit, 1),
		retry:    cfg.Retry,
		sleep:    sleepContext,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Execute submits a request and decodes the "data" envelope of the response into out.
// Rate-limited requests are retried according to the retry policy; any other
// failure is returned immediately.
func (c *Client) Execute(ctx context.Context, req Request, out any) error {
	var (
		state RetryState
		data  json.RawMessage
	)
	for {
		var err error
		data, err = c.post(ctx, req)
		state = c.retry.Next(state, err)
		if state.Done {
			break
		}

		metrics.RecordRetry(req.Name)
		log.Warn().
			Str("operation", req.Name).
			Int("attempt", state.Attempt).
			Dur("backoff", state.Wait).
			Msg("Too many requests, waiting before retrying")

		if err := c.sleep(ctx, state.Wait); err != nil {
			return err
		}
	}
	if state.Err != nil {
		return fmt.Errorf("%s: %w", req.Name, state.Err)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: failed to decode data: %w (%w)", req.Name, err, ErrProtocol)
	}
	return nil
}

// post performs a single attempt and returns the raw "data" value
func (c *Client) post(ctx context.Context, req Request) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	variables := req.Variables
	if variables == nil {
		variables = map[string]any{}
	}
	payload, err := json.Marshal(map[string]any{
		"query":     req.Query,
		"variables": variables,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	log.Debug().
		Str("operation", req.Name).
		Interface("variables", variables).
		Msg("Executing query")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		metrics.RecordAPICall(req.Name, "network_error", time.Since(start).Seconds())
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	metrics.RecordAPICall(req.Name, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	default:
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(body, 500)}
	}

	var envelope struct {
		Data   json.RawMessage   `json:"data"`
		Errors []json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		log.Error().Str("operation", req.Name).Str("payload", truncate(body, 2000)).Msg("Response is not valid JSON")
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		log.Error().
			Str("operation", req.Name).
			Str("payload", truncate(body, 2000)).
			Msg(`Result did not contain "data" key`)
		return nil, fmt.Errorf("%w: missing data envelope", ErrProtocol)
	}
	if len(envelope.Errors) > 0 {
		log.Warn().
			Str("operation", req.Name).
			Int("errors", len(envelope.Errors)).
			Msg("Response carried partial errors")
	}

	return envelope.Data, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// truncate returns a truncated string representation for error messages
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
