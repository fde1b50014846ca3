package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/taskrank/internal/middleware"
	"github.com/hitoshi/taskrank/internal/model"
)

// HealthChecker はヘルスチェック時に依存先の疎通を確認するインターフェース。
// *sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	UserIDHeader      string
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	StatusObserver    middleware.StatusObserver

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// スコアリング
	CompletionService  CompletionService
	PointsService      PointsService
	LeaderboardService LeaderboardService
	ChallengeService   ChallengeService
	PointsHandlerOpts  PointsHandlerOptions
}

// PointsHandlerOptions はポイント履歴ハンドラーの日付解釈設定。
type PointsHandlerOptions struct {
	Clock    model.Clock
	Location *time.Location
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	UserID → Logging → Recovery → SecurityHeaders → CORS → (/api) RequireUser → RateLimit(General)
//
// /health と /metrics はユーザー識別を必要としない。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewUserIDMiddleware(deps.UserIDHeader))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusObserver))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin, headerOrDefault(deps.UserIDHeader)))

	completionHandler := NewCompletionHandler(deps.CompletionService)
	pointsHandler := NewPointsHandler(deps.PointsService, deps.PointsHandlerOpts.Clock, deps.PointsHandlerOpts.Location)
	leaderboardHandler := NewLeaderboardHandler(deps.LeaderboardService)
	challengeHandler := NewChallengeHandler(deps.ChallengeService)

	// --- ユーザー識別不要のルート ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- ユーザー識別が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewRequireUserMiddleware())
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}

		// POST /api/completions はタスク完了専用のレート制限を追加
		if deps.RateLimiter != nil {
			r.With(deps.RateLimiter.CompletionMiddleware()).Post("/api/completions", completionHandler.RecordCompletion)
		} else {
			r.Post("/api/completions", completionHandler.RecordCompletion)
		}

		r.Route("/api/me", func(r chi.Router) {
			r.Get("/stats", completionHandler.Stats)
			r.Get("/points", pointsHandler.History)
			r.Get("/points/daily", pointsHandler.Daily)
		})

		r.Get("/api/badges", completionHandler.Badges)

		r.Route("/api/leaderboard", func(r chi.Router) {
			r.Get("/", leaderboardHandler.Global)
			r.Get("/me", leaderboardHandler.Me)
			r.Get("/contacts", leaderboardHandler.Contacts)
		})

		r.Route("/api/groups/{id}", func(r chi.Router) {
			r.Get("/leaderboard", leaderboardHandler.Group)
			r.Post("/scores", leaderboardHandler.AddGroupScore)
		})

		r.Route("/api/challenges", func(r chi.Router) {
			r.Get("/", challengeHandler.List)
			r.Get("/{id}/progress", challengeHandler.Progress)
		})
	})

	return r
}

func headerOrDefault(header string) string {
	if header == "" {
		return middleware.DefaultUserIDHeader
	}
	return header
}

// healthHandler はプロセスと依存先の疎通を返すハンドラーを生成する。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
