// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// Role はユーザーの役割を表す。固定の列挙値のみを許可する。
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleOrganizer   Role = "organizer"
	RoleSpeaker     Role = "speaker"
	RoleParticipant Role = "participant"
)

// ParseRole は文字列をRoleに変換する。
// 列挙値以外の文字列はエラーを返す。自由入力をロールとして受け入れない。
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleOrganizer, RoleSpeaker, RoleParticipant:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role: %q", s)
	}
}

// User はサービス利用ユーザーを表す。
// PasswordHashは外部IdP経由で作成されたユーザーの場合は空。
// AzureADObjectIDはAzure AD経由で作成されたユーザーにのみ設定され、
// 設定されている場合は全ユーザーで一意。
type User struct {
	ID                string
	Email             string
	FirstName         string
	LastName          string
	PasswordHash      string
	AzureADObjectID   *string
	Role              Role
	IsActive          bool
	ProfilePictureURL string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	LastLoginAt       *time.Time
}

// UserProfile はユーザーの拡張プロフィールを表す。
// Userと1対1で対応し、初回のプロフィール更新時に遅延作成される。
// 所有ユーザーの削除時にCASCADE削除される。
type UserProfile struct {
	UserID    string
	Bio       string
	Company   string
	JobTitle  string
	Phone     string
	Country   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Claims はアクセストークン検証後に得られる検証済みの属性。
// 認可判断はこの値を信頼し、ストレージへの再問い合わせは行わない。
type Claims struct {
	UserID string
	Email  string
	Role   Role
}

// SessionTokens はトークン発行の結果を表す。
// RefreshTokenはクライアントに返す生の値であり、サーバー側にはハッシュのみが保存される。
type SessionTokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// RefreshToken はサーバー側に保存されたリフレッシュトークンの行を表す。
// TokenHashは生のトークン値のSHA-256ハッシュ。生の値は保存しない。
type RefreshToken struct {
	TokenHash string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
