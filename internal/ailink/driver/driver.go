package driver

import (
	"context"
	"errors"

	"github.com/leaveopt/leaveopt/internal/ailink/content"
)

// ErrMalformedResponse marks a 2xx provider response that could not be
// decoded or carried no completion text.
var ErrMalformedResponse = errors.New("malformed provider response")

// Driver defines the interface for chat completion providers.
type Driver interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *Request) (*Response, error)
	// Name returns the driver identifier (e.g., "perplexity").
	Name() string
}

// Usage contains token usage statistics.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Sampling holds the generation parameters sent with every request.
// Nil pointers are omitted from the wire payload.
type Sampling struct {
	Temperature      *float64
	TopP             *float64
	TopK             *int
	MaxTokens        *int
	PresencePenalty  *float64
	FrequencyPenalty *float64
}

// Search holds the online-search options of search-augmented models.
type Search struct {
	DomainFilter           []string
	RecencyFilter          string
	ReturnImages           bool
	ReturnRelatedQuestions bool
}

// Request is a provider-agnostic completion request.
type Request struct {
	Model      string
	Messages   []content.Message
	Sampling   Sampling
	Search     *Search
	PromptSlug string
	Metadata   map[string]string
}

// Response is a provider-agnostic completion response.
type Response struct {
	Content      []content.ContentBlock
	FinishReason string
	Usage        *Usage
	Citations    []string
}

// Text returns the completion text.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return content.JoinText(r.Content)
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
