package perplexity

import (
	"fmt"
	"strings"

	"github.com/leaveopt/leaveopt/internal/ailink/content"
	"github.com/leaveopt/leaveopt/internal/ailink/driver"
)

type chatCompletionRequest struct {
	Model                  string        `json:"model"`
	Messages               []chatMessage `json:"messages"`
	MaxTokens              *int          `json:"max_tokens,omitempty"`
	Temperature            *float64      `json:"temperature,omitempty"`
	TopP                   *float64      `json:"top_p,omitempty"`
	TopK                   *int          `json:"top_k,omitempty"`
	PresencePenalty        *float64      `json:"presence_penalty,omitempty"`
	FrequencyPenalty       *float64      `json:"frequency_penalty,omitempty"`
	SearchDomainFilter     []string      `json:"search_domain_filter,omitempty"`
	SearchRecencyFilter    string        `json:"search_recency_filter,omitempty"`
	ReturnImages           bool          `json:"return_images"`
	ReturnRelatedQuestions bool          `json:"return_related_questions"`
	Stream                 bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func buildChatRequest(req *driver.Request) (*chatCompletionRequest, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	if strings.TrimSpace(req.Model) == "" {
		return nil, fmt.Errorf("model is required")
	}

	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	payload := &chatCompletionRequest{
		Model:            req.Model,
		Messages:         messages,
		MaxTokens:        req.Sampling.MaxTokens,
		Temperature:      req.Sampling.Temperature,
		TopP:             req.Sampling.TopP,
		TopK:             req.Sampling.TopK,
		PresencePenalty:  req.Sampling.PresencePenalty,
		FrequencyPenalty: req.Sampling.FrequencyPenalty,
	}
	if req.Search != nil {
		payload.SearchDomainFilter = req.Search.DomainFilter
		payload.SearchRecencyFilter = req.Search.RecencyFilter
		payload.ReturnImages = req.Search.ReturnImages
		payload.ReturnRelatedQuestions = req.Search.ReturnRelatedQuestions
	}

	return payload, nil
}

// convertMessages flattens content blocks to the plain-string form the
// chat completions endpoint expects.
func convertMessages(messages []content.Message) ([]chatMessage, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("messages are required")
	}
	result := make([]chatMessage, 0, len(messages))
	for _, msg := range messages {
		for _, block := range msg.Content {
			if block.Type != content.ContentTypeText && block.Type != "" {
				return nil, fmt.Errorf("unsupported content type: %s", block.Type)
			}
		}
		result = append(result, chatMessage{Role: msg.Role, Content: content.JoinText(msg.Content)})
	}
	return result, nil
}
