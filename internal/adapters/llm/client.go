// Package llm wraps the outbound completion call to the hosted model provider.
// Both request-time and worker-time code paths go through this single client so
// retry semantics cannot drift between them.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/planlab/evalplan-api/internal/core"
)

const (
	defaultAttemptTimeout  = 5 * time.Minute
	defaultMaxAttempts     = 3
	defaultBackoffBase     = 2 * time.Second
	defaultTruncationFloor = 500
	maxErrorBodyBytes      = 2 * 1024
)

// UpstreamError indicates the provider answered with a non-success status.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

// TimeoutError indicates a single attempt exceeded the hard per-attempt timeout.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("completion call timed out after %s", e.Timeout)
}

// TruncatedResponseError indicates a syntactically successful response that is
// too short or malformed to be a real completion. Treated as transient.
type TruncatedResponseError struct {
	Length int
	Floor  int
	Reason string
}

func (e *TruncatedResponseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("response looks truncated: %s", e.Reason)
	}
	return fmt.Sprintf("response looks truncated: body is %d chars, floor is %d", e.Length, e.Floor)
}

// Options configures the completion client.
type Options struct {
	Endpoint string
	APIKey   string

	// Policy knobs; zero values fall back to the design defaults.
	AttemptTimeout  time.Duration // hard timeout per attempt
	MaxAttempts     int           // total attempts including the first
	BackoffBase     time.Duration // exponential backoff seed applied before retries
	TruncationFloor int           // minimum plausible body length in characters

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client performs one provider round trip per Complete call, with retries.
type Client struct {
	endpoint        string
	apiKey          string
	attemptTimeout  time.Duration
	maxAttempts     int
	backoffBase     time.Duration
	truncationFloor int
	http            *http.Client
	logger          *slog.Logger
}

var _ core.CompletionClient = (*Client)(nil)

// NewClient constructs a completion client.
func NewClient(opts Options) (*Client, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("completion endpoint is required")
	}

	c := &Client{
		endpoint:        opts.Endpoint,
		apiKey:          opts.APIKey,
		attemptTimeout:  opts.AttemptTimeout,
		maxAttempts:     opts.MaxAttempts,
		backoffBase:     opts.BackoffBase,
		truncationFloor: opts.TruncationFloor,
		http:            opts.HTTPClient,
		logger:          opts.Logger,
	}
	if c.attemptTimeout <= 0 {
		c.attemptTimeout = defaultAttemptTimeout
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.backoffBase <= 0 {
		c.backoffBase = defaultBackoffBase
	}
	if c.truncationFloor <= 0 {
		c.truncationFloor = defaultTruncationFloor
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

type completionPayload struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete performs the provider round trip with the configured retry budget.
// Backoff doubles from the base delay and is applied before each retry, never
// before the first attempt. After the budget is exhausted the last observed
// error is returned.
func (c *Client) Complete(ctx context.Context, req core.CompletionRequest) (string, error) {
	var lastErr error
	delay := c.backoffBase

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			delay *= 2
		}

		text, err := c.attempt(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if !retryable(err) {
			return "", err
		}
		c.logger.WarnContext(ctx, "completion attempt failed",
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"error", err,
		)
	}
	return "", lastErr
}

func (c *Client) attempt(ctx context.Context, req core.CompletionRequest) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	body, err := c.buildRequestBody(req)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if attemptCtx.Err() != nil && ctx.Err() == nil {
			return "", &TimeoutError{Timeout: c.attemptTimeout}
		}
		return "", fmt.Errorf("send request: %w", err)
	}

	// Read the whole body before parsing so short bodies are detectable.
	raw, readErr := io.ReadAll(resp.Body)
	if closeErr := resp.Body.Close(); closeErr != nil && readErr == nil {
		readErr = fmt.Errorf("close response body: %w", closeErr)
	}
	if readErr != nil {
		if attemptCtx.Err() != nil && ctx.Err() == nil {
			return "", &TimeoutError{Timeout: c.attemptTimeout}
		}
		return "", fmt.Errorf("read response body: %w", readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &UpstreamError{StatusCode: resp.StatusCode, Body: errorBodySnippet(raw)}
	}

	if len(raw) < c.truncationFloor {
		return "", &TruncatedResponseError{Length: len(raw), Floor: c.truncationFloor}
	}

	var parsed completionResponse
	if parseErr := json.Unmarshal(raw, &parsed); parseErr != nil {
		return "", &TruncatedResponseError{
			Length: len(raw),
			Floor:  c.truncationFloor,
			Reason: fmt.Sprintf("malformed response body: %v", parseErr),
		}
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", &TruncatedResponseError{
			Length: len(raw),
			Floor:  c.truncationFloor,
			Reason: "response contains no generated text",
		}
	}

	return parsed.Choices[0].Message.Content, nil
}

func (c *Client) buildRequestBody(req core.CompletionRequest) ([]byte, error) {
	payload := completionPayload{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
	}
	for _, m := range req.Messages {
		payload.Messages = append(payload.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	if req.Temperature > 0 {
		t := req.Temperature
		payload.Temperature = &t
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request payload: %w", err)
	}
	return body, nil
}

// retryable reports whether an attempt error is worth another try.
// Timeouts, truncation, parse failures, and server-side upstream errors are
// transient; client-side upstream errors (other than 408/429) are not.
func retryable(err error) bool {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.StatusCode >= 500 ||
			upstream.StatusCode == http.StatusRequestTimeout ||
			upstream.StatusCode == http.StatusTooManyRequests
	}

	var timeout *TimeoutError
	var truncated *TruncatedResponseError
	if errors.As(err, &timeout) || errors.As(err, &truncated) {
		return true
	}

	// Transport-level failures (connection reset, DNS) are transient.
	return !errors.Is(err, context.Canceled)
}

func errorBodySnippet(raw []byte) string {
	if len(raw) > maxErrorBodyBytes {
		raw = raw[:maxErrorBodyBytes]
	}
	return string(raw)
}
