package perplexity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/leaveopt/leaveopt/internal/ailink/driver"
)

const (
	// DefaultBaseURL is the Perplexity API root.
	DefaultBaseURL = "https://api.perplexity.ai"

	driverName = "perplexity"

	// maxResponseBytes bounds how much of an upstream body is read.
	maxResponseBytes = 4 << 20
)

// Client implements the chat completions driver via direct HTTP. Any
// OpenAI-compatible endpoint that accepts the Perplexity search extensions works.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
	Tracer     *driver.Tracer
}

// NewClient returns a client with defaults applied.
func NewClient(baseURL, apiKey string) *Client {
	url := strings.TrimSpace(baseURL)
	if url == "" {
		url = DefaultBaseURL
	}

	return &Client{
		BaseURL: url,
		APIKey:  strings.TrimSpace(apiKey),
	}
}

// Name returns the driver identifier.
func (c *Client) Name() string {
	return driverName
}

// Complete sends one non-streaming chat completion request.
func (c *Client) Complete(ctx context.Context, req *driver.Request) (*driver.Response, error) {
	if c == nil {
		return nil, fmt.Errorf("perplexity client not configured")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}

	payload, err := buildChatRequest(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, c.Timeout)
	if cancel != nil {
		defer cancel()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	endpoint := strings.TrimRight(c.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	trace := driver.TraceEntry{
		Driver:      driverName,
		Endpoint:    endpoint,
		Model:       req.Model,
		PromptSlug:  req.PromptSlug,
		RequestBody: body,
	}
	start := time.Now()

	resp, err := client.Do(httpReq)
	if err != nil {
		c.trace(trace, start, 0, nil, err)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.trace(trace, start, resp.StatusCode, nil, err)
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		providerErr := &driver.ProviderError{
			Provider:    driverName,
			StatusCode:  resp.StatusCode,
			Message:     strings.TrimSpace(string(respBody)),
			RawResponse: respBody,
		}
		c.trace(trace, start, resp.StatusCode, respBody, providerErr)
		return nil, providerErr
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		c.trace(trace, start, resp.StatusCode, respBody, err)
		return nil, fmt.Errorf("%w: decode response: %v", driver.ErrMalformedResponse, err)
	}

	out, err := toDriverResponse(&parsed)
	c.trace(trace, start, resp.StatusCode, respBody, err)
	return out, err
}

func (c *Client) trace(entry driver.TraceEntry, start time.Time, status int, response []byte, err error) {
	if c.Tracer == nil {
		return
	}
	entry.StatusCode = status
	entry.Response = response
	entry.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		entry.Error = err.Error()
	}
	c.Tracer.Write(entry)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, nil
	}
	return context.WithTimeout(ctx, timeout)
}
