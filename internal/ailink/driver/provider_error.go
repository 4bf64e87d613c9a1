package driver

import "fmt"

// ProviderError is returned when a provider responds with a non-2xx status.
//
// RawResponse holds the provider response body and must never include API keys.
type ProviderError struct {
	Provider    string
	StatusCode  int
	Message     string
	RawResponse []byte
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s request failed: status %d: %s", e.Provider, e.StatusCode, truncate(e.Message, 512))
	}
	return fmt.Sprintf("%s request failed: %s", e.Provider, truncate(e.Message, 512))
}

// Retryable reports whether the status suggests a later retry may succeed.
func (e *ProviderError) Retryable() bool {
	if e == nil {
		return false
	}
	return e.StatusCode == 429 || e.StatusCode >= 500
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
