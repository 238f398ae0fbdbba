// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, filter, security, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeUnknownPreference = "UNKNOWN_PREFERENCE"
	ErrCodeInvalidBody       = "INVALID_BODY"
	ErrCodeFilterUnavailable = "FILTER_UNAVAILABLE"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeCSRFInvalid       = "CSRF_INVALID"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// NewUnauthorizedError は未ログインエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "ログインしていません。",
		Category: "auth",
		Action:   "Steamでログインしてください。",
	}
}

// NewUnknownPreferenceError は未定義の設定キーが指定された場合のエラーを生成する。
func NewUnknownPreferenceError(key string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownPreference,
		Message:  fmt.Sprintf("未定義の設定キーです: %s", key),
		Category: "validation",
		Action:   "sidebarWidth または userSectionWidth を指定してください。",
	}
}

// NewInvalidBodyError はリクエストボディが不正な場合のエラーを生成する。
func NewInvalidBodyError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidBody,
		Message:  fmt.Sprintf("リクエストボディが不正です: %s", reason),
		Category: "validation",
		Action:   "JSON形式のボディを送信してください。",
	}
}

// NewFilterUnavailableError はフィルタ参照データを取得できない場合のエラーを生成する。
func NewFilterUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeFilterUnavailable,
		Message:  "フィルタデータを取得できませんでした。",
		Category: "filter",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewCSRFInvalidError はCSRFトークンの検証に失敗した場合のエラーを生成する。
func NewCSRFInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRFトークンが無効です。",
		Category: "security",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ残す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
