package content

import "strings"

// ContentType represents supported content types using IANA media types.
type ContentType string

const (
	ContentTypeText ContentType = "text/plain"
	ContentTypeJSON ContentType = "application/json"
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContentBlock represents a single piece of content.
type ContentBlock struct {
	Type ContentType `json:"type"`
	Text string      `json:"text,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// TextMessage builds a single-block text message.
func TextMessage(role, text string) Message {
	return Message{
		Role:    role,
		Content: []ContentBlock{{Type: ContentTypeText, Text: text}},
	}
}

// JoinText concatenates the text blocks of blocks in order.
func JoinText(blocks []ContentBlock) string {
	if len(blocks) == 1 {
		return blocks[0].Text
	}
	var b strings.Builder
	for _, block := range blocks {
		if block.Type == ContentTypeText || block.Type == "" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}
