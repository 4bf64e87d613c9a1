package output

import (
	"encoding/json"
	"time"

	"github.com/leaveopt/leaveopt/internal/core"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

// jsonEntry adds the computed expired flag to a cache entry.
type jsonEntry struct {
	core.CacheEntry
	Expired bool `json:"expired"`
}

// FormatPlan renders a plan as JSON.
func (f *JSONFormatter) FormatPlan(result *PlanResult) (string, error) {
	if result == nil {
		return "", nil
	}
	return f.marshal(result)
}

// FormatEntries renders cache entries as a JSON array.
func (f *JSONFormatter) FormatEntries(entries []core.CacheEntry, now time.Time) (string, error) {
	out := make([]jsonEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, jsonEntry{CacheEntry: entry, Expired: entry.Expired(now)})
	}
	return f.marshal(out)
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
