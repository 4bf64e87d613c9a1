package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/leaveopt/leaveopt/internal/core"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

// FormatPlan renders the selection as a table followed by the plan text.
func (f *TableFormatter) FormatPlan(result *PlanResult) (string, error) {
	if result == nil {
		return "", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Country", "State", "Year"})
	t.AppendRow(table.Row{result.Country, result.State, result.Year})

	var sb strings.Builder
	sb.WriteString(t.Render())
	sb.WriteString("\n\n")
	sb.WriteString(strings.TrimSpace(result.Plan))
	sb.WriteString("\n")
	return sb.String(), nil
}

// FormatEntries renders cache entries as a table.
func (f *TableFormatter) FormatEntries(entries []core.CacheEntry, now time.Time) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Key", "Created", "Expires In", "Preview"})

	expired := 0
	for _, entry := range entries {
		row := toRow(entry, now)
		if entry.Expired(now) {
			expired++
		}
		t.AppendRow(table.Row{row.Key, row.CreatedAt, row.ExpiresIn, row.Preview})
	}

	summary := fmt.Sprintf("%d entries", len(entries))
	if expired > 0 {
		summary += fmt.Sprintf(", %d expired", expired)
	}
	t.AppendFooter(table.Row{"", "", "", summary})

	return t.Render(), nil
}
