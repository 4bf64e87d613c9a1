package prompt

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load parses and validates a prompt definition. The markdown body becomes
// the system template unless the frontmatter sets one.
func Load(source string, data []byte) (*Prompt, error) {
	config, body, err := parseYAMLWithFrontmatter(data)
	if err != nil {
		return nil, fmt.Errorf("parse prompt %s: %w", source, err)
	}

	if strings.TrimSpace(config.SystemTemplate) == "" {
		config.SystemTemplate = strings.TrimSpace(body)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("validate prompt %s: %w", source, err)
	}

	return &Prompt{Config: config, Source: source}, nil
}

// LoadFile reads a single prompt file from disk.
func LoadFile(path string) (*Prompt, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- prompt path is operator-provided
	if err != nil {
		return nil, fmt.Errorf("read prompt %s: %w", path, err)
	}
	return Load(path, data)
}

func parseYAMLWithFrontmatter(data []byte) (Config, string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Config{}, "", fmt.Errorf("empty prompt")
	}

	lines := bufio.NewScanner(bytes.NewReader(trimmed))
	lines.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lines.Split(bufio.ScanLines)

	var (
		frontmatter []string
		body        []string
		inFront     bool
		headerSeen  bool
	)

	for lines.Scan() {
		line := lines.Text()
		switch {
		case !headerSeen && len(frontmatter) == 0 && len(body) == 0 && strings.TrimSpace(line) == "---":
			headerSeen = true
			inFront = true
		case inFront && strings.TrimSpace(line) == "---":
			inFront = false
		case inFront:
			frontmatter = append(frontmatter, line)
		default:
			body = append(body, line)
		}
	}
	if err := lines.Err(); err != nil {
		return Config{}, "", err
	}
	if inFront {
		return Config{}, "", fmt.Errorf("unterminated frontmatter")
	}

	var cfg Config
	if headerSeen {
		if err := yaml.Unmarshal([]byte(strings.Join(frontmatter, "\n")), &cfg); err != nil {
			return Config{}, "", fmt.Errorf("invalid frontmatter: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(trimmed, &cfg); err != nil {
			return Config{}, "", fmt.Errorf("invalid yaml: %w", err)
		}
	}

	return cfg, strings.Join(body, "\n"), nil
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Slug) == "" {
		return fmt.Errorf("slug is required")
	}
	if strings.TrimSpace(cfg.SystemTemplate) == "" {
		return fmt.Errorf("system_template is required")
	}
	templates := cfg.SystemTemplate + cfg.UserTemplate
	for _, name := range cfg.Input.RequiredVariables {
		if !strings.Contains(templates, "{{"+name+"}}") {
			return fmt.Errorf("required variable %q not referenced by any template", name)
		}
	}
	return nil
}
