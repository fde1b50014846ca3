package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/taskrank/internal/aggregate"
	"github.com/hitoshi/taskrank/internal/leaderboard"
	"github.com/hitoshi/taskrank/internal/middleware"
	"github.com/hitoshi/taskrank/internal/model"
)

// --- モック定義 ---

// mockCompletionService はCompletionServiceのモック実装。
type mockCompletionService struct {
	recordFn func(ctx context.Context, userID string, points int, timing model.Timing) (*aggregate.Result, error)
	getFn    func(ctx context.Context, userID string) (*model.UserAggregate, error)
}

func (m *mockCompletionService) RecordCompletion(ctx context.Context, userID string, points int, timing model.Timing) (*aggregate.Result, error) {
	if m.recordFn != nil {
		return m.recordFn(ctx, userID, points, timing)
	}
	return &aggregate.Result{Aggregate: model.NewUserAggregate(userID)}, nil
}

func (m *mockCompletionService) Get(ctx context.Context, userID string) (*model.UserAggregate, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID)
	}
	return model.NewUserAggregate(userID), nil
}

// mockPointsService はPointsServiceのモック実装。
type mockPointsService struct {
	historyFn func(ctx context.Context, userID string, from, to time.Time) ([]*model.PointsLedgerEntry, error)
	dailyFn   func(ctx context.Context, userID string, from, to time.Time) ([]model.DailyTotal, error)
}

func (m *mockPointsService) History(ctx context.Context, userID string, from, to time.Time) ([]*model.PointsLedgerEntry, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, userID, from, to)
	}
	return nil, nil
}

func (m *mockPointsService) DailyTotals(ctx context.Context, userID string, from, to time.Time) ([]model.DailyTotal, error) {
	if m.dailyFn != nil {
		return m.dailyFn(ctx, userID, from, to)
	}
	return nil, nil
}

// mockLeaderboardService はLeaderboardServiceのモック実装。
type mockLeaderboardService struct {
	globalFn   func(ctx context.Context, limit, offset int) (*leaderboard.Page, error)
	positionFn func(ctx context.Context, userID string) (*leaderboard.Entry, error)
	contactsFn func(ctx context.Context, userID string) ([]leaderboard.Entry, error)
	groupFn    func(ctx context.Context, groupID string) ([]leaderboard.GroupEntry, error)
	addScoreFn func(ctx context.Context, groupID, userID string, delta int) (int, error)
}

func (m *mockLeaderboardService) Global(ctx context.Context, limit, offset int) (*leaderboard.Page, error) {
	if m.globalFn != nil {
		return m.globalFn(ctx, limit, offset)
	}
	return &leaderboard.Page{Limit: leaderboard.DefaultLimit}, nil
}

func (m *mockLeaderboardService) Position(ctx context.Context, userID string) (*leaderboard.Entry, error) {
	if m.positionFn != nil {
		return m.positionFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockLeaderboardService) Contacts(ctx context.Context, userID string) ([]leaderboard.Entry, error) {
	if m.contactsFn != nil {
		return m.contactsFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockLeaderboardService) Group(ctx context.Context, groupID string) ([]leaderboard.GroupEntry, error) {
	if m.groupFn != nil {
		return m.groupFn(ctx, groupID)
	}
	return nil, nil
}

func (m *mockLeaderboardService) AddGroupScore(ctx context.Context, groupID, userID string, delta int) (int, error) {
	if m.addScoreFn != nil {
		return m.addScoreFn(ctx, groupID, userID, delta)
	}
	return delta, nil
}

// mockChallengeService はChallengeServiceのモック実装。
type mockChallengeService struct {
	listFn     func(ctx context.Context, userID string) ([]challengeProgressResponse, error)
	progressFn func(ctx context.Context, challengeID, userID string) (*challengeProgressResponse, error)
}

func (m *mockChallengeService) ListActive(ctx context.Context, userID string) ([]challengeProgressResponse, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockChallengeService) Progress(ctx context.Context, challengeID, userID string) (*challengeProgressResponse, error) {
	if m.progressFn != nil {
		return m.progressFn(ctx, challengeID, userID)
	}
	return nil, model.NewChallengeNotFoundError(challengeID)
}

// --- ヘルパー ---

// withUserID はテスト用にリクエストコンテキストへユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// newJSONRequest はJSONボディつきのリクエストを生成する。
func newJSONRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// decodeJSON はレスポンスボディをvにデコードするヘルパー。
func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v\nraw: %s", err, w.Body.String())
	}
}
