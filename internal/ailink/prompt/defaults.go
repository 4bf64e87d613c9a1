package prompt

import (
	"embed"
	"fmt"
	"strings"
)

// LeavePlanSlug identifies the annual-leave plan prompt.
const LeavePlanSlug = "leave-plan"

//go:embed prompts/*.md
var defaultPromptsFS embed.FS

// LoadDefault loads the embedded prompt with the given slug.
func LoadDefault(slug string) (*Prompt, error) {
	name := "prompts/" + strings.TrimSpace(slug) + ".md"
	data, err := defaultPromptsFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("prompt %q not found: %w", slug, err)
	}
	return Load(name, data)
}

// Resolve returns the prompt at path when set, else the embedded leave-plan prompt.
func Resolve(path string) (*Prompt, error) {
	if strings.TrimSpace(path) != "" {
		return LoadFile(path)
	}
	return LoadDefault(LeavePlanSlug)
}
