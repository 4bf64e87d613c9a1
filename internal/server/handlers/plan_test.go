package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/leaveopt/leaveopt/internal/core"
	"github.com/leaveopt/leaveopt/internal/core/engine"
)

type stubPlanner struct {
	plan string
	err  error
	got  []core.LeaveRequest
}

func (s *stubPlanner) Plan(ctx context.Context, req core.LeaveRequest) (string, error) {
	s.got = append(s.got, req)
	return s.plan, s.err
}

func postPlan(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/optimize-leave", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPlanHandlerReturnsPlanAsJSONString(t *testing.T) {
	planner := &stubPlanner{plan: "# Plan\n\nTake leave around Easter."}
	rec := postPlan(t, &PlanHandler{Planner: planner}, `{"country":"Australia","state":"Victoria","year":2025}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %s", ct)
	}

	var plan string
	if err := json.NewDecoder(rec.Body).Decode(&plan); err != nil {
		t.Fatalf("body is not a JSON string: %v", err)
	}
	if plan != planner.plan {
		t.Fatalf("unexpected plan %q", plan)
	}

	want := core.LeaveRequest{Country: "Australia", State: "Victoria", Year: "2025"}
	if len(planner.got) != 1 || planner.got[0] != want {
		t.Fatalf("unexpected planner input %+v", planner.got)
	}
}

func TestPlanHandlerForwardsMissingFields(t *testing.T) {
	for _, body := range []string{`{"country":"Canada"}`, ``, `{}`} {
		planner := &stubPlanner{plan: "ok"}
		rec := postPlan(t, &PlanHandler{Planner: planner}, body)

		if rec.Code != http.StatusOK {
			t.Fatalf("body %q: expected status 200, got %d", body, rec.Code)
		}
		if len(planner.got) != 1 {
			t.Fatalf("body %q: expected one planner call", body)
		}
	}
}

func TestPlanHandlerRejectsInvalidJSON(t *testing.T) {
	planner := &stubPlanner{plan: "ok"}
	rec := postPlan(t, &PlanHandler{Planner: planner}, `{"country":`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if len(planner.got) != 0 {
		t.Fatal("planner must not be called for undecodable bodies")
	}
}

func TestPlanHandlerHidesUpstreamFailure(t *testing.T) {
	planner := &stubPlanner{err: &engine.UpstreamError{Kind: engine.KindUpstream, Err: errors.New("status 401: invalid api key sk-123")}}
	rec := postPlan(t, &PlanHandler{Planner: planner}, `{"country":"Australia","state":"Victoria","year":"2025"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}

	var resp struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error != "An error occurred while fetching data" {
		t.Fatalf("unexpected error message %q", resp.Error)
	}
	if strings.Contains(rec.Body.String(), "sk-123") {
		t.Fatal("upstream detail leaked to client")
	}
}

func TestPlanHandlerWithoutPlanner(t *testing.T) {
	rec := postPlan(t, &PlanHandler{}, `{}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
}

func TestPlanHandlerSilentOnClientCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	planner := &stubPlanner{err: context.Canceled}
	req := httptest.NewRequest(http.MethodPost, "/optimize-leave", strings.NewReader(`{}`)).WithContext(ctx)
	rec := httptest.NewRecorder()

	(&PlanHandler{Planner: planner}).ServeHTTP(rec, req)

	if rec.Body.Len() != 0 {
		t.Fatalf("expected no body after client cancel, got %q", rec.Body.String())
	}
}
