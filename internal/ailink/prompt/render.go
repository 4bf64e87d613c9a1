package prompt

import (
	"errors"
	"strings"
)

// Render substitutes {{name}} placeholders in both templates. Substitution is
// a single pass, so values containing placeholder text are left as-is.
func (p *Prompt) Render(vars map[string]string) (system string, user string, err error) {
	if p == nil {
		return "", "", errors.New("prompt is required")
	}

	pairs := make([]string, 0, len(vars)*2)
	for key, value := range vars {
		pairs = append(pairs, "{{"+key+"}}", value)
	}
	replacer := strings.NewReplacer(pairs...)

	system = strings.TrimSpace(replacer.Replace(p.Config.SystemTemplate))
	user = strings.TrimSpace(replacer.Replace(p.Config.UserTemplate))

	if system == "" {
		return "", "", errors.New("system prompt is required")
	}
	return system, user, nil
}

// Slug returns the prompt slug.
func (p *Prompt) Slug() string {
	if p == nil {
		return ""
	}
	return p.Config.Slug
}
