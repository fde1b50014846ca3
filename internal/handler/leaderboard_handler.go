package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/taskrank/internal/leaderboard"
)

// LeaderboardService はランキング参照とグループスコア更新に必要なサービスインターフェース。
type LeaderboardService interface {
	Global(ctx context.Context, limit, offset int) (*leaderboard.Page, error)
	Position(ctx context.Context, userID string) (*leaderboard.Entry, error)
	Contacts(ctx context.Context, userID string) ([]leaderboard.Entry, error)
	Group(ctx context.Context, groupID string) ([]leaderboard.GroupEntry, error)
	AddGroupScore(ctx context.Context, groupID, userID string, delta int) (int, error)
}

// LeaderboardHandler はランキングのHTTPハンドラー。
type LeaderboardHandler struct {
	service LeaderboardService
}

// NewLeaderboardHandler はLeaderboardHandlerを生成する。
func NewLeaderboardHandler(service LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{service: service}
}

// leaderboardEntryResponse はランキング1行のAPIレスポンス。
type leaderboardEntryResponse struct {
	Rank           int    `json:"rank"`
	UserID         string `json:"user_id"`
	TotalPoints    int    `json:"total_points"`
	TasksCompleted int    `json:"tasks_completed"`
	CurrentStreak  int    `json:"current_streak"`
	LongestStreak  int    `json:"longest_streak"`
}

// leaderboardPageResponse は全体ランキングのAPIレスポンス。
type leaderboardPageResponse struct {
	Entries []leaderboardEntryResponse `json:"entries"`
	Total   int                        `json:"total"`
	Limit   int                        `json:"limit"`
	Offset  int                        `json:"offset"`
}

// positionResponse は自分の順位のAPIレスポンス。
// 集計を持たないユーザーはranked=falseでentryを省略する。
type positionResponse struct {
	Ranked bool                      `json:"ranked"`
	Entry  *leaderboardEntryResponse `json:"entry,omitempty"`
}

// groupEntryResponse はグループランキング1行のAPIレスポンス。
type groupEntryResponse struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Score  int    `json:"score"`
}

// addGroupScoreRequest はグループスコア加算リクエストのボディ。
type addGroupScoreRequest struct {
	Delta int `json:"delta"`
}

// groupScoreResponse はグループスコア加算のAPIレスポンス。
type groupScoreResponse struct {
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`
	Score   int    `json:"score"`
}

// Global は全体ランキングを返す。
// GET /api/leaderboard?limit=20&offset=0
func (h *LeaderboardHandler) Global(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	page, err := h.service.Global(r.Context(), limit, offset)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, leaderboardPageResponse{
		Entries: toEntryResponses(page.Entries),
		Total:   page.Total,
		Limit:   page.Limit,
		Offset:  page.Offset,
	})
}

// Me は呼び出し元ユーザーの全体順位を返す。
// GET /api/leaderboard/me
func (h *LeaderboardHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	entry, err := h.service.Position(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := positionResponse{}
	if entry != nil {
		e := toEntryResponse(*entry)
		resp.Ranked = true
		resp.Entry = &e
	}
	writeJSON(w, http.StatusOK, resp)
}

// Contacts は呼び出し元と承認済み連絡先のランキングを返す。
// GET /api/leaderboard/contacts
func (h *LeaderboardHandler) Contacts(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	entries, err := h.service.Contacts(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryResponses(entries))
}

// Group はグループ内スコアのランキングを返す。
// GET /api/groups/{id}/leaderboard
func (h *LeaderboardHandler) Group(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "id")

	entries, err := h.service.Group(r.Context(), groupID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]groupEntryResponse, len(entries))
	for i, e := range entries {
		resp[i] = groupEntryResponse{Rank: e.Rank, UserID: e.UserID, Score: e.Score}
	}
	writeJSON(w, http.StatusOK, resp)
}

// AddGroupScore は呼び出し元ユーザーのグループスコアにdeltaを加算する。
// POST /api/groups/{id}/scores
func (h *LeaderboardHandler) AddGroupScore(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	groupID := chi.URLParam(r, "id")

	var req addGroupScoreRequest
	if !decodeBody(w, r, &req) {
		return
	}

	score, err := h.service.AddGroupScore(r.Context(), groupID, userID, req.Delta)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, groupScoreResponse{GroupID: groupID, UserID: userID, Score: score})
}

func toEntryResponse(e leaderboard.Entry) leaderboardEntryResponse {
	return leaderboardEntryResponse{
		Rank:           e.Rank,
		UserID:         e.UserID,
		TotalPoints:    e.TotalPoints,
		TasksCompleted: e.TasksCompleted,
		CurrentStreak:  e.CurrentStreak,
		LongestStreak:  e.LongestStreak,
	}
}

func toEntryResponses(entries []leaderboard.Entry) []leaderboardEntryResponse {
	resp := make([]leaderboardEntryResponse, len(entries))
	for i, e := range entries {
		resp[i] = toEntryResponse(e)
	}
	return resp
}
