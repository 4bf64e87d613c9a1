package driver

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// TraceEntry is one upstream exchange, written as a single NDJSON line.
type TraceEntry struct {
	Timestamp   time.Time       `json:"timestamp"`
	Driver      string          `json:"driver"`
	Endpoint    string          `json:"endpoint"`
	Model       string          `json:"model,omitempty"`
	PromptSlug  string          `json:"prompt_slug,omitempty"`
	RequestBody json.RawMessage `json:"request_body,omitempty"`
	StatusCode  int             `json:"status_code,omitempty"`
	Response    json.RawMessage `json:"response,omitempty"`
	Error       string          `json:"error,omitempty"`
	DurationMs  int64           `json:"duration_ms"`
}

// Tracer appends upstream exchanges to a writer. A nil Tracer discards entries.
type Tracer struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// NewTracer traces to w. The caller keeps ownership of w.
func NewTracer(w io.Writer) *Tracer {
	return &Tracer{w: w}
}

// OpenTracer appends traces to the file at path, creating it with 0600.
func OpenTracer(path string) (*Tracer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) // #nosec G304 -- trace path is operator-provided
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return &Tracer{w: f, closer: f}, nil
}

// Write records entry. Encoding failures are dropped.
func (t *Tracer) Write(entry TraceEntry) {
	if t == nil || t.w == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if len(entry.Response) > 0 && !json.Valid(entry.Response) {
		quoted, _ := json.Marshal(string(entry.Response))
		entry.Response = quoted
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = t.w.Write(append(data, '\n'))
}

// Close closes the underlying file when the tracer owns one.
func (t *Tracer) Close() error {
	if t == nil || t.closer == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closer.Close()
}
