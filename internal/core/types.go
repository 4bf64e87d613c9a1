package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Year is the plan year as submitted by the form. Clients send either a JSON
// number or a string; both decode to the same normalized text.
type Year string

// UnmarshalJSON accepts numbers, strings and null.
func (y *Year) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*y = ""
		return nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*y = Year(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("year must be a number or string: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*y = Year(strconv.FormatInt(i, 10))
		return nil
	}
	// 2025.0 and 2.025e3 name the same year as 2025.
	if f, err := n.Float64(); err == nil && f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		*y = Year(strconv.FormatInt(int64(f), 10))
		return nil
	}
	*y = Year(n.String())
	return nil
}

// String returns the normalized year text.
func (y Year) String() string {
	return string(y)
}

// LeaveRequest is the selection submitted by the form.
type LeaveRequest struct {
	Country string `json:"country"`
	State   string `json:"state"`
	Year    Year   `json:"year"`
}

// Key derives the cache key for the request.
func (r LeaveRequest) Key() CacheKey {
	return DeriveCacheKey(r.Country, r.State, r.Year.String())
}

// CacheEntry is a stored plan and its expiry.
type CacheEntry struct {
	Key       CacheKey  `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is logically absent at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// RateLimitWindow captures the fixed-window counter for one client address.
type RateLimitWindow struct {
	Address     string
	WindowStart time.Time
	Count       int
}
