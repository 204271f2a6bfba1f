package model

import (
	"errors"
	"strings"
	"testing"
)

func TestAPIError_ImplementsError(t *testing.T) {
	var err error = NewInvalidCredentialsError()

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatal("APIError should satisfy errors.As")
	}
	if apiErr.Code != ErrCodeInvalidCredentials {
		t.Errorf("code = %q, want %q", apiErr.Code, ErrCodeInvalidCredentials)
	}
	if !strings.Contains(err.Error(), ErrCodeInvalidCredentials) {
		t.Errorf("Error() = %q, want code included", err.Error())
	}
}

func TestNewValidationFailedError_IncludesReason(t *testing.T) {
	err := NewValidationFailedError("パスワードは8文字以上である必要があります")

	if err.Code != ErrCodeValidationFailed {
		t.Errorf("code = %q, want %q", err.Code, ErrCodeValidationFailed)
	}
	if !strings.Contains(err.Message, "8文字以上") {
		t.Errorf("message = %q, want reason included", err.Message)
	}
}

func TestErrorConstructors_Categories(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want string
	}{
		{"認証失敗", NewInvalidCredentialsError(), "auth"},
		{"アカウント無効", NewAccountInactiveError(), "auth"},
		{"メール重複", NewEmailAlreadyExistsError(), "validation"},
		{"外部トークン不正", NewInvalidExternalTokenError(), "auth"},
		{"必須クレーム欠落", NewMissingRequiredClaimsError(), "auth"},
		{"トークン期限切れ", NewTokenExpiredError(), "auth"},
		{"トークン不正", NewTokenInvalidError(), "auth"},
		{"ユーザー不存在", NewUserNotFoundError(), "auth"},
		{"入力検証", NewValidationFailedError("x"), "validation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Category != tt.want {
				t.Errorf("category = %q, want %q", tt.err.Category, tt.want)
			}
			if tt.err.Action == "" {
				t.Error("action should not be empty")
			}
		})
	}
}
