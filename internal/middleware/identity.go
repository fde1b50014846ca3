// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/taskrank/internal/model"
)

// DefaultUserIDHeader は前段のゲートウェイが認証済みユーザーIDを設定するヘッダー名。
const DefaultUserIDHeader = "X-User-ID"

// maxUserIDLength はヘッダーから受け付けるユーザーIDの最大長。
const maxUserIDLength = 128

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// NewUserIDMiddleware は信頼済みヘッダーから呼び出し元ユーザーIDを読み取り、
// リクエストコンテキストに注入するミドルウェアを返す。
// ヘッダーが無い、または不正な場合は何も注入せずに次へ渡す。
// 拒否はNewRequireUserMiddlewareが行う。
func NewUserIDMiddleware(header string) func(next http.Handler) http.Handler {
	if header == "" {
		header = DefaultUserIDHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(header))
			if userID != "" && len(userID) <= maxUserIDLength {
				r = r.WithContext(ContextWithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewRequireUserMiddleware はユーザーIDがコンテキストに無いリクエストを401で拒否するミドルウェアを返す。
// NewUserIDMiddlewareの後に配置すること。
func NewRequireUserMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := UserIDFromContext(r.Context()); err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// NewUserIDMiddlewareを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
