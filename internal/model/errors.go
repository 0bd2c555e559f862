// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, conflict, not_found, upstream, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_FAILED"
	ErrCodeEmailInUse         = "EMAIL_IN_USE"
	ErrCodeAlreadySubscribed  = "ALREADY_SUBSCRIBED"
	ErrCodeChannelNotFound    = "CHANNEL_NOT_FOUND"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeFeedUnreachable    = "FEED_UNREACHABLE"
	ErrCodeFeedInvalid        = "FEED_INVALID"
	ErrCodeCredentialMismatch = "CREDENTIAL_MISMATCH"
	ErrCodeSSRFBlocked        = "SSRF_BLOCKED"
)

// NewValidationError は入力値検証エラーを生成する。
// サインアップ検証は最初に失敗したルールのメッセージのみを返す。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "Check the submitted values and try again.",
	}
}

// NewEmailInUseError はメールアドレス重複エラーを生成する。
func NewEmailInUseError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailInUse,
		Message:  "E-mail is already in use.",
		Category: "conflict",
		Action:   "Use a different e-mail address or sign in instead.",
	}
}

// NewAlreadySubscribedError は購読重複エラーを生成する。
func NewAlreadySubscribedError(channelID string) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadySubscribed,
		Message:  fmt.Sprintf("You are already subscribed to this channel: %s", channelID),
		Category: "conflict",
		Action:   "Check your subscription list.",
	}
}

// NewChannelNotFoundError はチャンネル未検出エラーを生成する。
func NewChannelNotFoundError(channelID string) *APIError {
	return &APIError{
		Code:     ErrCodeChannelNotFound,
		Message:  fmt.Sprintf("Channel not found: %s", channelID),
		Category: "not_found",
		Action:   "Check the channel id.",
	}
}

// NewUserNotFoundError はユーザー未検出エラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found.",
		Category: "not_found",
		Action:   "Sign in again.",
	}
}

// NewFeedUnreachableError はフィード取得失敗エラーを生成する。
func NewFeedUnreachableError(url string, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedUnreachable,
		Message:  fmt.Sprintf("Could not fetch the feed at %s: %s", url, reason),
		Category: "upstream",
		Action:   "Check the URL and try again later.",
	}
}

// NewFeedInvalidError はフィード解析失敗エラーを生成する。
func NewFeedInvalidError(url string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedInvalid,
		Message:  fmt.Sprintf("The document at %s is not a valid feed.", url),
		Category: "upstream",
		Action:   "Enter the URL of a valid RSS/Atom feed.",
	}
}

// NewCredentialMismatchError は認証失敗エラーを生成する。
// アカウントの存在を漏らさないため、原因がメールかパスワードかは区別しない。
func NewCredentialMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodeCredentialMismatch,
		Message:  "Wrong e-mail or password.",
		Category: "auth",
		Action:   "Check your credentials and try again.",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "Access to the given URL is blocked by the security policy.",
		Category: "validation",
		Action:   "Enter the URL of a publicly reachable site.",
	}
}
