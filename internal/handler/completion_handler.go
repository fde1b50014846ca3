package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/hitoshi/taskrank/internal/aggregate"
	"github.com/hitoshi/taskrank/internal/badge"
	"github.com/hitoshi/taskrank/internal/model"
)

// CompletionService はタスク完了記録と集計参照に必要なサービスインターフェース。
type CompletionService interface {
	// RecordCompletion はタスク完了イベントを集計に反映する。
	RecordCompletion(ctx context.Context, userID string, points int, timing model.Timing) (*aggregate.Result, error)
	// Get はユーザーの集計を返す。未記録のユーザーにはゼロ状態を返す。
	Get(ctx context.Context, userID string) (*model.UserAggregate, error)
}

// CompletionHandler はタスク完了記録・統計・バッジのHTTPハンドラー。
type CompletionHandler struct {
	service CompletionService
}

// NewCompletionHandler はCompletionHandlerを生成する。
func NewCompletionHandler(service CompletionService) *CompletionHandler {
	return &CompletionHandler{service: service}
}

// recordCompletionRequest はタスク完了記録リクエストのボディ。
// on_time/early/lateはちょうど1つだけtrueにする。
type recordCompletionRequest struct {
	Points int  `json:"points"`
	OnTime bool `json:"on_time"`
	Early  bool `json:"early"`
	Late   bool `json:"late"`
}

// statsResponse はユーザー集計のAPIレスポンス。
type statsResponse struct {
	UserID            string   `json:"user_id"`
	TotalPoints       int      `json:"total_points"`
	TasksCompleted    int      `json:"tasks_completed"`
	TasksOnTime       int      `json:"tasks_on_time"`
	TasksEarly        int      `json:"tasks_early"`
	TasksLate         int      `json:"tasks_late"`
	CurrentStreak     int      `json:"current_streak"`
	LongestStreak     int      `json:"longest_streak"`
	LastCompletionDay *string  `json:"last_completion_day"`
	Badges            []string `json:"badges"`
}

// badgeResponse はバッジ定義のAPIレスポンス。
type badgeResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Earned      bool   `json:"earned"`
}

// completionResponse はタスク完了記録のAPIレスポンス。
// new_badgesとcompleted_challengesは通知用の情報。
type completionResponse struct {
	Stats               statsResponse       `json:"stats"`
	NewBadges           []badgeResponse     `json:"new_badges"`
	CompletedChallenges []challengeResponse `json:"completed_challenges"`
}

// RecordCompletion はタスク完了を記録する。
// POST /api/completions
func (h *CompletionHandler) RecordCompletion(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req recordCompletionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	timing, err := model.TimingFromFlags(req.OnTime, req.Early, req.Late)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	result, err := h.service.RecordCompletion(r.Context(), userID, req.Points, timing)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := completionResponse{
		Stats:               toStatsResponse(result.Aggregate),
		NewBadges:           make([]badgeResponse, 0, len(result.NewBadges)),
		CompletedChallenges: make([]challengeResponse, 0, len(result.CompletedChallenges)),
	}
	for _, id := range result.NewBadges {
		resp.NewBadges = append(resp.NewBadges, toBadgeResponse(id, true))
	}
	for _, c := range result.CompletedChallenges {
		resp.CompletedChallenges = append(resp.CompletedChallenges, toChallengeResponse(c))
	}

	writeJSON(w, http.StatusCreated, resp)
}

// Stats は呼び出し元ユーザーの集計を返す。
// GET /api/me/stats
func (h *CompletionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	agg, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toStatsResponse(agg))
}

// Badges はバッジカタログを呼び出し元の獲得状況つきで返す。
// GET /api/badges
func (h *CompletionHandler) Badges(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	agg, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	defs := badge.Catalogue()
	resp := make([]badgeResponse, len(defs))
	for i, d := range defs {
		resp[i] = badgeResponse{
			ID:          string(d.ID),
			Name:        d.Name,
			Description: d.Description,
			Earned:      agg.HasBadge(d.ID),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// toStatsResponse はドメインの集計をレスポンス型に変換する。
func toStatsResponse(a *model.UserAggregate) statsResponse {
	resp := statsResponse{
		UserID:         a.UserID,
		TotalPoints:    a.TotalPoints,
		TasksCompleted: a.TasksCompleted,
		TasksOnTime:    a.TasksOnTime,
		TasksEarly:     a.TasksEarly,
		TasksLate:      a.TasksLate,
		CurrentStreak:  a.CurrentStreak,
		LongestStreak:  a.LongestStreak,
		Badges:         make([]string, 0, len(a.Badges)),
	}
	if a.LastCompletionDay != nil {
		day := formatDay(*a.LastCompletionDay)
		resp.LastCompletionDay = &day
	}
	for id, owned := range a.Badges {
		if owned {
			resp.Badges = append(resp.Badges, string(id))
		}
	}
	sort.Strings(resp.Badges)
	return resp
}

// toBadgeResponse はバッジIDをカタログの表示情報つきレスポンスに変換する。
func toBadgeResponse(id model.BadgeID, earned bool) badgeResponse {
	resp := badgeResponse{ID: string(id), Earned: earned}
	if d, ok := badge.Lookup(id); ok {
		resp.Name = d.Name
		resp.Description = d.Description
	}
	return resp
}

// challengeResponse はチャレンジ定義のAPIレスポンス。
type challengeResponse struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Title       string    `json:"title"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	GoalPoints  *int      `json:"goal_points"`
	GoalTasks   *int      `json:"goal_tasks"`
	RewardBadge *string   `json:"reward_badge"`
	Active      bool      `json:"active"`
}

// toChallengeResponse はドメインのチャレンジをレスポンス型に変換する。
func toChallengeResponse(c *model.Challenge) challengeResponse {
	return challengeResponse{
		ID:          c.ID,
		Kind:        string(c.Kind),
		Title:       c.Title,
		StartDate:   c.StartDate,
		EndDate:     c.EndDate,
		GoalPoints:  c.GoalPoints,
		GoalTasks:   c.GoalTasks,
		RewardBadge: c.RewardBadge,
		Active:      c.Active,
	}
}
