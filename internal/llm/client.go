package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Veraticus/dre-classifier/internal/common"
)

// Client sends a prompt to a model and returns its raw classification.
type Client interface {
	Classify(ctx context.Context, prompt string) (ClassificationResponse, error)
	Model() string
}

// ClassificationResponse is the model's answer before it is mapped to a category.
type ClassificationResponse struct {
	Category   string
	Reasoning  string
	Confidence float64
}

const systemPrompt = "You classify Brazilian bank statement lines into a chart of accounts. " +
	"You MUST respond with ONLY a valid JSON object of the form " +
	`{"category": "<exact category name>", "confidence": <0.0-1.0>, "reasoning": "<one sentence>"}. ` +
	"Do not include markdown or commentary."

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// postJSON sends body to url and decodes the response into out. Transport
// failures, 429 and 5xx are retryable; other statuses are permanent.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return common.NewRetryableError(fmt.Errorf("%w: %v", common.ErrProviderUnavailable, err), ctx.Err() == nil)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return common.NewRetryableError(fmt.Errorf("failed to read response: %w", err), true)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return common.NewRetryableError(fmt.Errorf("%w (status %d): %s", common.ErrRateLimit, resp.StatusCode, respBody), true)
	case resp.StatusCode >= http.StatusInternalServerError:
		return common.NewRetryableError(fmt.Errorf("%w (status %d): %s", common.ErrProviderUnavailable, resp.StatusCode, respBody), true)
	case resp.StatusCode != http.StatusOK:
		return common.NewRetryableError(fmt.Errorf("API error (status %d): %s", resp.StatusCode, respBody), false)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return common.NewRetryableError(fmt.Errorf("failed to parse response: %w", err), false)
	}
	return nil
}
