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
	Category string // カテゴリ: auth, validation, interview, ai, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAuthRequired        = "AUTH_REQUIRED"
	ErrCodeNotFoundOrForbidden = "NOT_FOUND_OR_FORBIDDEN"
	ErrCodeAITransport         = "AI_TRANSPORT"
	ErrCodeAIMalformed         = "AI_MALFORMED"
	ErrCodeStorageFailure      = "STORAGE_FAILURE"
	ErrCodeValidationFailure   = "VALIDATION_FAILURE"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewAuthRequiredError は認証情報が無い、または無効な場合のエラーを生成する。
func NewAuthRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthRequired,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewNotFoundOrForbiddenError は対象が存在しない、または所有者でない場合のエラーを生成する。
// 存在の有無を漏らさないため、両者を区別しない。
func NewNotFoundOrForbiddenError(resource string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFoundOrForbidden,
		Message:  fmt.Sprintf("指定された%sが見つかりません。", resource),
		Category: "interview",
		Action:   "IDを確認してください。",
	}
}

// NewAITransportError はAIエンドポイントの呼び出しに失敗した場合のエラーを生成する。
// reasonにはプロバイダーが返したメッセージをそのまま渡す。
func NewAITransportError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeAITransport,
		Message:  fmt.Sprintf("AIサービスの呼び出しに失敗しました: %s", reason),
		Category: "ai",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewAIMalformedError はAIの応答を解釈できなかった場合のエラーを生成する。
func NewAIMalformedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeAIMalformed,
		Message:  fmt.Sprintf("AIの応答を解析できませんでした: %s", reason),
		Category: "ai",
		Action:   "もう一度生成をお試しください。",
	}
}

// NewStorageFailureError は保存処理に失敗した場合のエラーを生成する。
func NewStorageFailureError() *APIError {
	return &APIError{
		Code:     ErrCodeStorageFailure,
		Message:  "データの保存に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewValidationError は入力値が不正な場合のエラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailure,
		Message:  fmt.Sprintf("入力内容が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewRateLimitedError はレート制限を超過した場合のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "時間をおいて再度お試しください。",
	}
}

// NewInternalError は内部エラーの統一レスポンス用エラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// HasCode はerrがcodeを持つAPIErrorかどうかを返す。
func HasCode(err error, code string) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Code == code
}

// AsAPIError はエラーチェーンからAPIErrorを取り出す。
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
