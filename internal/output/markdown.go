package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/leaveopt/leaveopt/internal/core"
)

// MarkdownFormatter renders results as Markdown.
type MarkdownFormatter struct{}

// FormatPlan returns the plan under a heading naming the selection. The plan
// body is already Markdown.
func (f *MarkdownFormatter) FormatPlan(result *PlanResult) (string, error) {
	if result == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Leave plan: %s, %s (%s)\n\n", result.State, result.Country, result.Year))
	sb.WriteString(strings.TrimSpace(result.Plan))
	sb.WriteString("\n")
	return sb.String(), nil
}

// FormatEntries renders cache entries as a markdown table.
func (f *MarkdownFormatter) FormatEntries(entries []core.CacheEntry, now time.Time) (string, error) {
	var sb strings.Builder
	sb.WriteString("| Key | Created | Expires In | Preview |\n")
	sb.WriteString("|-----|---------|------------|---------|\n")

	for _, entry := range entries {
		row := toRow(entry, now)
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			escapeMarkdownCell(row.Key),
			escapeMarkdownCell(row.CreatedAt),
			escapeMarkdownCell(row.ExpiresIn),
			escapeMarkdownCell(row.Preview),
		))
	}

	sb.WriteString(fmt.Sprintf("\n**Entries**: %d\n", len(entries)))
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
