package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// ChallengeService はチャレンジと進捗の参照に必要なサービスインターフェース。
type ChallengeService interface {
	// ListActive はアクティブなチャレンジを呼び出し元の進捗つきで返す。
	ListActive(ctx context.Context, userID string) ([]challengeProgressResponse, error)
	// Progress は指定チャレンジの呼び出し元の進捗を返す。
	Progress(ctx context.Context, challengeID, userID string) (*challengeProgressResponse, error)
}

// ChallengeHandler はチャレンジのHTTPハンドラー。
type ChallengeHandler struct {
	service ChallengeService
}

// NewChallengeHandler はChallengeHandlerを生成する。
func NewChallengeHandler(service ChallengeService) *ChallengeHandler {
	return &ChallengeHandler{service: service}
}

// progressResponse はチャレンジ進捗のAPIレスポンス。
type progressResponse struct {
	PointsEarned   int        `json:"points_earned"`
	TasksCompleted int        `json:"tasks_completed"`
	Completed      bool       `json:"completed"`
	CompletedAt    *time.Time `json:"completed_at"`
}

// challengeProgressResponse はチャレンジ定義と呼び出し元の進捗をまとめたAPIレスポンス。
type challengeProgressResponse struct {
	Challenge challengeResponse `json:"challenge"`
	Progress  progressResponse  `json:"progress"`
}

// List はアクティブなチャレンジを進捗つきで返す。
// GET /api/challenges
func (h *ChallengeHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	items, err := h.service.ListActive(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []challengeProgressResponse{}
	}

	writeJSON(w, http.StatusOK, items)
}

// Progress は指定チャレンジの進捗を返す。
// GET /api/challenges/{id}/progress
func (h *ChallengeHandler) Progress(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	challengeID := chi.URLParam(r, "id")

	item, err := h.service.Progress(r.Context(), challengeID, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, item)
}
