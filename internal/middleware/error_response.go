package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/taskrank/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     model.ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// StatusForError はエラーに対応するHTTPステータスコードを返す。
// APIError以外はすべて500とする。
func StatusForError(err error) int {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return http.StatusInternalServerError
	}
	switch apiErr.Code {
	case model.ErrCodeValidation:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeChallengeNotFound:
		return http.StatusNotFound
	case model.ErrCodeConcurrencyConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteError はエラーを統一フォーマットで書き込む。
// APIErrorはそのまま返し、それ以外は内部エラーとして詳細を隠す。
func WriteError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code != model.ErrCodeInternal {
		WriteErrorResponse(w, StatusForError(err), apiErr)
		return
	}
	WriteInternalServerError(w)
}
