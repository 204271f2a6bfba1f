// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	ErrCodeAccountInactive       = "ACCOUNT_INACTIVE"
	ErrCodeEmailAlreadyExists    = "EMAIL_ALREADY_EXISTS"
	ErrCodeInvalidExternalToken  = "INVALID_EXTERNAL_TOKEN"
	ErrCodeMissingRequiredClaims = "MISSING_REQUIRED_CLAIMS"
	ErrCodeTokenExpired          = "TOKEN_EXPIRED"
	ErrCodeTokenInvalid          = "TOKEN_INVALID"
	ErrCodeUserNotFound          = "USER_NOT_FOUND"
	ErrCodeValidationFailed      = "VALIDATION_FAILED"
)

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// ユーザー不存在とパスワード不一致を同一のエラーで返し、
// ユーザー列挙のサイドチャネルを作らない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewAccountInactiveError はアカウント無効化エラーを生成する。
func NewAccountInactiveError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountInactive,
		Message:  "このアカウントは無効化されています。",
		Category: "auth",
		Action:   "管理者にお問い合わせください。",
	}
}

// NewEmailAlreadyExistsError はメールアドレス重複エラーを生成する。
func NewEmailAlreadyExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailAlreadyExists,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "validation",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewInvalidExternalTokenError は外部トークン検証失敗エラーを生成する。
// 署名・発行者・対象者・有効期限のいずれの失敗でも同一のエラーを返す。
func NewInvalidExternalTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidExternalToken,
		Message:  "外部プロバイダーのトークンを検証できませんでした。",
		Category: "auth",
		Action:   "再度ログインし直してください。",
	}
}

// NewMissingRequiredClaimsError は必須クレーム欠落エラーを生成する。
func NewMissingRequiredClaimsError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingRequiredClaims,
		Message:  "外部プロバイダーのトークンに必須の情報が含まれていません。",
		Category: "auth",
		Action:   "プロバイダー側のアカウント設定を確認してください。",
	}
}

// NewTokenExpiredError はアクセストークン期限切れエラーを生成する。
func NewTokenExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenExpired,
		Message:  "アクセストークンの有効期限が切れています。",
		Category: "auth",
		Action:   "リフレッシュトークンで再発行するか、ログインし直してください。",
	}
}

// NewTokenInvalidError はアクセストークン不正エラーを生成する。
func NewTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenInvalid,
		Message:  "アクセストークンが不正です。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
// トークン検証後にユーザー行が削除されていた場合もこのエラーを使い、
// 境界では500ではなく401にマッピングする。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewValidationFailedError は入力検証エラーを生成する。
func NewValidationFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力内容が正しくありません: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認して再度お試しください。",
	}
}
