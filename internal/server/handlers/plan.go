package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/leaveopt/leaveopt/internal/core"
	"github.com/leaveopt/leaveopt/internal/core/engine"
	apperrors "github.com/leaveopt/leaveopt/internal/errors"
	"github.com/leaveopt/leaveopt/internal/observability"
	"github.com/leaveopt/leaveopt/internal/server/middleware"
)

// maxPlanRequestBytes bounds the form payload.
const maxPlanRequestBytes = 64 << 10

// LeavePlanner produces a plan for a selection.
type LeavePlanner interface {
	Plan(ctx context.Context, req core.LeaveRequest) (string, error)
}

// PlanHandler serves POST /optimize-leave.
type PlanHandler struct {
	Planner LeavePlanner
}

// ServeHTTP decodes the selection and answers with the plan as a JSON string.
// Missing fields are forwarded as empty values; only undecodable bodies are rejected.
func (h *PlanHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Planner == nil {
		respondWithError(w, r, apperrors.NewInternalError("planner not configured"))
		return
	}

	req, err := decodeLeaveRequest(w, r)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "request body must be a JSON object with country, state and year"))
		return
	}

	plan, err := h.Planner.Plan(r.Context(), req)
	if err != nil {
		if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
			if logger := observability.Logger(); logger != nil {
				logger.Debug("client went away before plan was ready",
					zap.String("cache_key", req.Key().String()),
					zap.String("request_id", middleware.GetRequestID(r.Context())))
			}
			return
		}

		var upstreamErr *engine.UpstreamError
		if errors.As(err, &upstreamErr) {
			respondWithError(w, r, apperrors.WrapUpstream(r.Context(), err, "plan generation failed"))
			return
		}
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "plan generation failed"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(plan)
}

func decodeLeaveRequest(w http.ResponseWriter, r *http.Request) (core.LeaveRequest, error) {
	var req core.LeaveRequest
	body := http.MaxBytesReader(w, r.Body, maxPlanRequestBytes)

	decoder := json.NewDecoder(body)
	if err := decoder.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return core.LeaveRequest{}, nil
		}
		return core.LeaveRequest{}, err
	}
	return req, nil
}
