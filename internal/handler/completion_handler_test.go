package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/taskrank/internal/aggregate"
	"github.com/hitoshi/taskrank/internal/badge"
	"github.com/hitoshi/taskrank/internal/model"
)

// --- POST /api/completions テスト ---

func TestCompletionHandler_RecordCompletion_Success(t *testing.T) {
	day := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	goal := 20
	svc := &mockCompletionService{
		recordFn: func(ctx context.Context, userID string, points int, timing model.Timing) (*aggregate.Result, error) {
			if userID != "user-123" {
				t.Errorf("userID = %q, want %q", userID, "user-123")
			}
			if points != 30 {
				t.Errorf("points = %d, want 30", points)
			}
			if timing != model.TimingEarly {
				t.Errorf("timing = %q, want %q", timing, model.TimingEarly)
			}
			agg := model.NewUserAggregate(userID)
			agg.TotalPoints = 30
			agg.TasksCompleted = 1
			agg.TasksEarly = 1
			agg.CurrentStreak = 1
			agg.LongestStreak = 1
			agg.LastCompletionDay = &day
			agg.Badges[model.BadgeFirstTask] = true
			return &aggregate.Result{
				Aggregate: agg,
				NewBadges: []model.BadgeID{model.BadgeFirstTask},
				CompletedChallenges: []*model.Challenge{{
					ID: "c-1", Kind: model.ChallengeWeekly, Title: "Weekly Challenge 2026-W42", GoalTasks: &goal, Active: true,
				}},
			}, nil
		},
	}

	h := NewCompletionHandler(svc)

	req := withUserID(newJSONRequest(http.MethodPost, "/api/completions", `{"points":30,"early":true}`), "user-123")
	w := httptest.NewRecorder()

	h.RecordCompletion(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var resp completionResponse
	decodeJSON(t, w, &resp)

	if resp.Stats.TotalPoints != 30 || resp.Stats.TasksEarly != 1 {
		t.Errorf("stats = %+v", resp.Stats)
	}
	if resp.Stats.LastCompletionDay == nil || *resp.Stats.LastCompletionDay != "2026-10-15" {
		t.Errorf("last_completion_day = %v, want 2026-10-15", resp.Stats.LastCompletionDay)
	}
	if len(resp.NewBadges) != 1 || resp.NewBadges[0].ID != "first_task" || resp.NewBadges[0].Name == "" {
		t.Errorf("new_badges = %+v", resp.NewBadges)
	}
	if len(resp.CompletedChallenges) != 1 || resp.CompletedChallenges[0].ID != "c-1" {
		t.Errorf("completed_challenges = %+v", resp.CompletedChallenges)
	}
	if resp.CompletedChallenges[0].GoalPoints != nil {
		t.Error("goal_points should be null when unset")
	}
}

func TestCompletionHandler_RecordCompletion_EmptyNotificationsAreArrays(t *testing.T) {
	h := NewCompletionHandler(&mockCompletionService{})

	req := withUserID(newJSONRequest(http.MethodPost, "/api/completions", `{"points":0,"on_time":true}`), "user-123")
	w := httptest.NewRecorder()

	h.RecordCompletion(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"new_badges":[]`) || !strings.Contains(body, `"completed_challenges":[]`) {
		t.Errorf("expected empty arrays, got %s", body)
	}
}

func TestCompletionHandler_RecordCompletion_InvalidTimingFlags(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"none", `{"points":10}`},
		{"two", `{"points":10,"on_time":true,"late":true}`},
		{"all", `{"points":10,"on_time":true,"early":true,"late":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockCompletionService{
				recordFn: func(ctx context.Context, userID string, points int, timing model.Timing) (*aggregate.Result, error) {
					t.Fatal("RecordCompletion should not be called")
					return nil, nil
				},
			}
			h := NewCompletionHandler(svc)

			req := withUserID(newJSONRequest(http.MethodPost, "/api/completions", tt.body), "user-123")
			w := httptest.NewRecorder()

			h.RecordCompletion(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if body := parseAPIErrorResponse(t, w); body["code"] != model.ErrCodeValidation {
				t.Errorf("code = %q, want %q", body["code"], model.ErrCodeValidation)
			}
		})
	}
}

func TestCompletionHandler_RecordCompletion_InvalidJSON(t *testing.T) {
	h := NewCompletionHandler(&mockCompletionService{})

	req := withUserID(newJSONRequest(http.MethodPost, "/api/completions", `{invalid`), "user-123")
	w := httptest.NewRecorder()

	h.RecordCompletion(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestCompletionHandler_RecordCompletion_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"negative points", model.NewValidationError("pointsは0以上"), http.StatusBadRequest, model.ErrCodeValidation},
		{"conflict", model.NewConcurrencyConflictError("user-123", 5), http.StatusConflict, model.ErrCodeConcurrencyConflict},
		{"internal", errors.New("ledger append failed"), http.StatusInternalServerError, model.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockCompletionService{
				recordFn: func(ctx context.Context, userID string, points int, timing model.Timing) (*aggregate.Result, error) {
					return nil, tt.err
				},
			}
			h := NewCompletionHandler(svc)

			req := withUserID(newJSONRequest(http.MethodPost, "/api/completions", `{"points":-1,"late":true}`), "user-123")
			w := httptest.NewRecorder()

			h.RecordCompletion(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if body := parseAPIErrorResponse(t, w); body["code"] != tt.wantCode {
				t.Errorf("code = %q, want %q", body["code"], tt.wantCode)
			}
		})
	}
}

func TestCompletionHandler_RecordCompletion_NoUserID_ReturnsUnauthorized(t *testing.T) {
	h := NewCompletionHandler(&mockCompletionService{})

	req := newJSONRequest(http.MethodPost, "/api/completions", `{"points":10,"on_time":true}`)
	w := httptest.NewRecorder()

	h.RecordCompletion(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// --- GET /api/me/stats テスト ---

func TestCompletionHandler_Stats_ZeroState(t *testing.T) {
	h := NewCompletionHandler(&mockCompletionService{})

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/me/stats", nil), "new-user")
	w := httptest.NewRecorder()

	h.Stats(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp statsResponse
	decodeJSON(t, w, &resp)
	if resp.UserID != "new-user" || resp.TotalPoints != 0 || resp.LastCompletionDay != nil {
		t.Errorf("unexpected zero state: %+v", resp)
	}
	if resp.Badges == nil || len(resp.Badges) != 0 {
		t.Errorf("badges = %v, want empty array", resp.Badges)
	}
}

func TestCompletionHandler_Stats_BadgesSorted(t *testing.T) {
	svc := &mockCompletionService{
		getFn: func(ctx context.Context, userID string) (*model.UserAggregate, error) {
			agg := model.NewUserAggregate(userID)
			agg.Badges[model.BadgeTaskMaster10] = true
			agg.Badges[model.BadgeFirstTask] = true
			return agg, nil
		},
	}
	h := NewCompletionHandler(svc)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/me/stats", nil), "user-123")
	w := httptest.NewRecorder()

	h.Stats(w, req)

	var resp statsResponse
	decodeJSON(t, w, &resp)
	if len(resp.Badges) != 2 || resp.Badges[0] != "first_task" || resp.Badges[1] != "task_master_10" {
		t.Errorf("badges = %v", resp.Badges)
	}
}

func TestCompletionHandler_Stats_InternalError(t *testing.T) {
	svc := &mockCompletionService{
		getFn: func(ctx context.Context, userID string) (*model.UserAggregate, error) {
			return nil, errors.New("connection refused")
		},
	}
	h := NewCompletionHandler(svc)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/me/stats", nil), "user-123")
	w := httptest.NewRecorder()

	h.Stats(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if strings.Contains(w.Body.String(), "connection refused") {
		t.Error("internal error detail should not be exposed")
	}
}

// --- GET /api/badges テスト ---

func TestCompletionHandler_Badges_MarksEarned(t *testing.T) {
	svc := &mockCompletionService{
		getFn: func(ctx context.Context, userID string) (*model.UserAggregate, error) {
			agg := model.NewUserAggregate(userID)
			agg.Badges[model.BadgeStreak7] = true
			return agg, nil
		},
	}
	h := NewCompletionHandler(svc)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/badges", nil), "user-123")
	w := httptest.NewRecorder()

	h.Badges(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp []badgeResponse
	decodeJSON(t, w, &resp)
	if len(resp) != len(badge.Catalogue()) {
		t.Fatalf("len = %d, want %d", len(resp), len(badge.Catalogue()))
	}
	for _, b := range resp {
		want := b.ID == string(model.BadgeStreak7)
		if b.Earned != want {
			t.Errorf("badge %s earned = %t, want %t", b.ID, b.Earned, want)
		}
	}
}
