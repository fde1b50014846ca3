// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, scoring, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	ErrCodeChallengeNotFound   = "CHALLENGE_NOT_FOUND"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewValidationError は入力検証エラーを生成する。
// 状態を変更する前に返すこと。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力が不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewConcurrencyConflictError は楽観的排他制御のリトライが上限に達した場合のエラーを生成する。
// 呼び出し側は適用済みの可能性を考慮し、無条件に再送してはならない。
func NewConcurrencyConflictError(userID string, attempts int) *APIError {
	return &APIError{
		Code:     ErrCodeConcurrencyConflict,
		Message:  fmt.Sprintf("集計の更新が競合しました (user=%s, attempts=%d)", userID, attempts),
		Category: "scoring",
		Action:   "しばらく待ってから状態を確認してください。",
	}
}

// NewChallengeNotFoundError はチャレンジが見つからない場合のエラーを生成する。
func NewChallengeNotFoundError(challengeID string) *APIError {
	return &APIError{
		Code:     ErrCodeChallengeNotFound,
		Message:  fmt.Sprintf("指定されたチャレンジが見つかりません: %s", challengeID),
		Category: "scoring",
		Action:   "チャレンジIDを確認してください。",
	}
}

// NewUnauthorizedError は呼び出し元ユーザーを特定できない場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// IsAPIErrorCode はerrがcodeを持つAPIErrorかどうかを返す。
func IsAPIErrorCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}
