// Package analysis is a thin HTTP client for the local text-analysis
// service. It handles bearer authentication, JSON marshaling, and
// retry with exponential backoff on transient failures.
package analysis

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

	"github.com/dolwer/mailsheet/internal/config"
	"github.com/dolwer/mailsheet/internal/retry"
)

// Result is the flat field-to-value mapping returned by the service.
// Non-scalar values in the response are dropped; only strings end up
// in spreadsheet cells.
type Result map[string]string

// Error is a logical analysis failure: the service answered 200 but
// the decoded body carried an "error" key.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("analysis failed: %s", e.Message)
}

// IsAnalysisError reports whether err (or its chain) is a logical
// analysis failure rather than a transport one.
func IsAnalysisError(err error) bool {
	var ae *Error
	return errors.As(err, &ae)
}

// statusError is a non-2xx HTTP response.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("analysis service returned %d: %s", e.status, e.body)
}

// transient reports whether an error is worth retrying: network
// failures, 429, and 5xx. Other HTTP statuses are permanent.
func transient(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status == http.StatusTooManyRequests || se.status >= 500
	}
	return true
}

// Client talks to the analysis service.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
	policy     retry.Policy
}

// NewClient creates an analysis client from configuration.
func NewClient(cfg config.AnalyzerConfig, logger *slog.Logger) *Client {
	timeout := cfg.TimeoutSec
	if timeout <= 0 {
		timeout = 30
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
		logger: logger,
		policy: retry.DefaultPolicy(),
	}
}

// AnalyzeText sends one synchronous analysis request and decodes the
// response. A transport or HTTP failure is returned as an error; a 200
// body carrying an "error" key is returned as *Error.
func (c *Client) AnalyzeText(ctx context.Context, text, model string) (Result, error) {
	payload := map[string]string{
		"text":  text,
		"model": model,
	}

	var decoded map[string]any
	err := retry.Do(ctx, c.policy, c.logger, transient, func() error {
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshaling analysis request: %w", err)
		}

		req, err := http.NewRequestWithContext(
			ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body),
		)
		if err != nil {
			return fmt.Errorf("creating analysis request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("calling analysis service: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading analysis response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(respBody))}
		}

		decoded = nil
		if err := json.Unmarshal(respBody, &decoded); err != nil {
			return fmt.Errorf("decoding analysis response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if msg, ok := decoded["error"]; ok {
		return nil, &Error{Message: fmt.Sprint(msg)}
	}

	return flatten(decoded), nil
}

// AnalyzeEmail analyzes one message body using the configured model,
// prefixing the thread context so the service sees the exchange it
// belongs to.
func (c *Client) AnalyzeEmail(ctx context.Context, body, threadContext string) (Result, error) {
	text := body
	if threadContext != "" {
		text = threadContext + "\n\n" + body
	}
	return c.AnalyzeText(ctx, text, c.model)
}

// HealthCheck probes the service's health endpoint. Any failure at
// all reads as unhealthy.
func (c *Client) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, c.baseURL+"/health", nil,
	)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("analysis service health check failed", "error", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("analysis service unhealthy", "status", resp.StatusCode)
		return false
	}
	return true
}

// flatten keeps the scalar fields of the decoded response as strings.
func flatten(decoded map[string]any) Result {
	out := make(Result, len(decoded))
	for key, value := range decoded {
		switch v := value.(type) {
		case string:
			out[key] = v
		case float64:
			out[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			out[key] = strconv.FormatBool(v)
		case nil:
			out[key] = ""
		}
	}
	return out
}
