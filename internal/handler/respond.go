// Package handler はスコアリングエンジンのHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/taskrank/internal/middleware"
	"github.com/hitoshi/taskrank/internal/model"
)

// dateLayout はクエリパラメータとレスポンスで使う日付の書式。
const dateLayout = "2006-01-02"

// maxBodyBytes はリクエストボディの上限。
const maxBodyBytes = 1 << 16

// writeJSON はステータスコードとともにJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// handleServiceError はサービス層から返されたエラーを統一フォーマットのレスポンスに変換する。
// APIError以外は詳細をログのみに記録する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		slog.Error("internal server error",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	middleware.WriteError(w, err)
}

// writeValidationError は入力検証エラーを400で返す。
func writeValidationError(w http.ResponseWriter, reason string) {
	middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError(reason))
}

// callerID はコンテキストから呼び出し元ユーザーIDを取得する。
// 取得できない場合は401を書き込みfalseを返す。
func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return userID, true
}

// decodeBody はリクエストボディをJSONとしてvに読み込む。
// 失敗した場合は400を書き込みfalseを返す。
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeValidationError(w, "リクエストボディの解析に失敗しました")
		return false
	}
	return true
}

// queryInt は整数のクエリパラメータを読む。未指定の場合はdefを返す。
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, model.NewValidationError(name + "は整数で指定してください")
	}
	return v, nil
}

// formatDay は日付をYYYY-MM-DDに整形する。
func formatDay(t time.Time) string {
	return t.Format(dateLayout)
}
