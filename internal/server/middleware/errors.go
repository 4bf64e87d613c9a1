package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	"github.com/leaveopt/leaveopt/internal/metrics"
	"github.com/leaveopt/leaveopt/internal/observability"
)

// panicMessage matches the generic 500 body used by the API handlers.
const panicMessage = "An error occurred while fetching data"

// Recovery turns a handler panic into a logged critical envelope and a
// generic 500 response.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				panicErr := errors.NewErrorEnvelope("INTERNAL_ERROR", fmt.Sprintf("panic: %v", rec)).
					WithCorrelationID(GetRequestID(r.Context()))
				panicErr, _ = panicErr.WithContext(map[string]interface{}{
					"stack_trace": string(debug.Stack()),
				})
				panicErr, _ = panicErr.WithSeverity(errors.SeverityCritical)

				metrics.RecordPanic()
				if logger := observability.Logger(); logger != nil {
					logger.Error(panicErr.Message,
						zap.String("path", r.URL.Path),
						zap.String("request_id", panicErr.CorrelationID),
						zap.Any("stack_trace", panicErr.Context["stack_trace"]))
				}

				writeErrorResponse(w, http.StatusInternalServerError, panicMessage)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// ErrorResponse is the JSON error body shared with the handlers package.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeErrorResponse writes the body directly; the errors package imports
// this one, so it cannot be used here.
func writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
