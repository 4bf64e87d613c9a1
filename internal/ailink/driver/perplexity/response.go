package perplexity

import (
	"fmt"

	"github.com/leaveopt/leaveopt/internal/ailink/content"
	"github.com/leaveopt/leaveopt/internal/ailink/driver"
)

type chatCompletionResponse struct {
	ID        string   `json:"id"`
	Model     string   `json:"model"`
	Choices   []choice `json:"choices"`
	Citations []string `json:"citations,omitempty"`
	Usage     *usage   `json:"usage,omitempty"`
}

type choice struct {
	Message      *chatResponseMessage `json:"message"`
	FinishReason string               `json:"finish_reason"`
}

type chatResponseMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// toDriverResponse extracts choices[0].message.content. A missing choice,
// message, or content field is malformed; an empty string is not.
func toDriverResponse(resp *chatCompletionResponse) (*driver.Response, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response choices", driver.ErrMalformedResponse)
	}

	first := resp.Choices[0]
	if first.Message == nil || first.Message.Content == nil {
		return nil, fmt.Errorf("%w: missing choices[0].message.content", driver.ErrMalformedResponse)
	}

	response := &driver.Response{
		Content:      []content.ContentBlock{{Type: content.ContentTypeText, Text: *first.Message.Content}},
		FinishReason: first.FinishReason,
		Citations:    resp.Citations,
	}

	if resp.Usage != nil {
		response.Usage = &driver.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	return response, nil
}
