package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/leaveopt/leaveopt/internal/core"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// PlanResult is a generated plan together with the selection that produced it.
type PlanResult struct {
	Country  string `json:"country"`
	State    string `json:"state"`
	Year     string `json:"year"`
	CacheKey string `json:"cache_key"`
	Plan     string `json:"plan"`
}

// NewPlanResult pairs req with its plan.
func NewPlanResult(req core.LeaveRequest, plan string) *PlanResult {
	return &PlanResult{
		Country:  req.Country,
		State:    req.State,
		Year:     req.Year.String(),
		CacheKey: req.Key().String(),
		Plan:     plan,
	}
}

// Formatter renders plans and cache listings.
type Formatter interface {
	FormatPlan(result *PlanResult) (string, error)
	FormatEntries(entries []core.CacheEntry, now time.Time) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// entryRow is the display form of a cache entry.
type entryRow struct {
	Key       string
	Preview   string
	CreatedAt string
	ExpiresIn string
}

func toRow(entry core.CacheEntry, now time.Time) entryRow {
	return entryRow{
		Key:       entry.Key.String(),
		Preview:   preview(entry.Value, 48),
		CreatedAt: entry.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresIn: expiresIn(entry, now),
	}
}

func expiresIn(entry core.CacheEntry, now time.Time) string {
	if entry.Expired(now) {
		return "expired"
	}
	return entry.ExpiresAt.Sub(now).Round(time.Second).String()
}

// preview collapses whitespace and truncates to limit runes.
func preview(value string, limit int) string {
	collapsed := strings.Join(strings.Fields(value), " ")
	runes := []rune(collapsed)
	if len(runes) <= limit {
		return collapsed
	}
	return string(runes[:limit-1]) + "…"
}
