package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）
	GeneralBurst    int           // API全般のバーストサイズ
	CompletionRate  rate.Limit    // タスク完了記録のレート（req/sec）
	CompletionBurst int           // タスク完了記録のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/user、タスク完了記録 60 req/min/user。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return NewRateLimiterConfig(120, 60)
}

// NewRateLimiterConfig は1分あたりのリクエスト数からレート制限設定を生成する。
// バーストサイズは1分あたりの上限と同じにする。
func NewRateLimiterConfig(generalPerMinute, completionPerMinute int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     perMinute(generalPerMinute),
		GeneralBurst:    max(generalPerMinute, 1),
		CompletionRate:  perMinute(completionPerMinute),
		CompletionBurst: max(completionPerMinute, 1),
		CleanupInterval: 5 * time.Minute,
	}
}

func perMinute(n int) rate.Limit {
	if n <= 0 {
		n = 1
	}
	return rate.Limit(float64(n) / 60.0)
}

// userLimiter はユーザーごとのレートリミッターとアクセス時刻を保持する。
type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterPool は1種類のレート制限についてユーザーごとのリミッターを管理する。
type limiterPool struct {
	name  string
	rate  rate.Limit
	burst int

	mu       sync.RWMutex
	limiters map[string]*userLimiter
}

func newLimiterPool(name string, r rate.Limit, burst int) *limiterPool {
	return &limiterPool{
		name:     name,
		rate:     r,
		burst:    burst,
		limiters: make(map[string]*userLimiter),
	}
}

// get はユーザーのリミッターを取得または作成する。
func (p *limiterPool) get(userID string, now time.Time) *rate.Limiter {
	p.mu.RLock()
	ul, exists := p.limiters[userID]
	p.mu.RUnlock()

	if exists {
		p.mu.Lock()
		ul.lastAccess = now
		p.mu.Unlock()
		return ul.limiter
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// ダブルチェック
	if ul, exists := p.limiters[userID]; exists {
		ul.lastAccess = now
		return ul.limiter
	}

	limiter := rate.NewLimiter(p.rate, p.burst)
	p.limiters[userID] = &userLimiter{limiter: limiter, lastAccess: now}
	return limiter
}

// evict は最終アクセスがttlより古いエントリを削除する。
func (p *limiterPool) evict(now time.Time, ttl time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for userID, ul := range p.limiters {
		if now.Sub(ul.lastAccess) > ttl {
			delete(p.limiters, userID)
		}
	}
}

func (p *limiterPool) size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.limiters)
}

// middleware はプールのリミッターでリクエストを制限するミドルウェアを返す。
func (p *limiterPool) middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if !p.get(userID, time.Now()).Allow() {
				writeRateLimitResponse(w, p.rate)
				slog.Warn("rate limit exceeded",
					slog.String("user_id", userID),
					slog.String("limit_type", p.name),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter はユーザーごとのレート制限を管理する。
// API全般のレート制限とタスク完了記録のレート制限の2種類を提供する。
type RateLimiter struct {
	config     RateLimiterConfig
	general    *limiterPool
	completion *limiterPool
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	rl := &RateLimiter{
		config:     config,
		general:    newLimiterPool("general", config.GeneralRate, config.GeneralBurst),
		completion: newLimiterPool("completion", config.CompletionRate, config.CompletionBurst),
		stopCh:     make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。複数回呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// リクエストコンテキストにユーザーIDが含まれている必要がある（UserIDMiddlewareの後に配置）。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.general.middleware()
}

// CompletionMiddleware はタスク完了記録専用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) CompletionMiddleware() func(next http.Handler) http.Handler {
	return rl.completion.middleware()
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.size()
}

// CompletionLimiterCount は現在管理されているタスク完了記録リミッターのエントリ数を返す。
func (rl *RateLimiter) CompletionLimiterCount() int {
	return rl.completion.size()
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := time.Now()
	rl.general.evict(now, ttl)
	rl.completion.evict(now, ttl)
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     "RATE_LIMIT_EXCEEDED",
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterの秒数だけ待ってから再度お試しください。",
	})
}
