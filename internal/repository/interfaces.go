// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/eventgate/internal/model"
)

// 一意制約違反をドメイン層に伝えるためのエラー。
// 一意性の真のシリアライズポイントはストレージ層の一意制約であり、
// サービス層の事前チェックは補助でしかない。制約違反はこのエラーに
// 変換され、生のドライバーエラーとして漏れない。
var (
	// ErrDuplicateEmail はlower(email)の一意制約違反を表す。
	ErrDuplicateEmail = errors.New("email already exists")
	// ErrDuplicateAzureObjectID はazure_ad_object_idの一意制約違反を表す。
	ErrDuplicateAzureObjectID = errors.New("azure ad object id already exists")
)

// ProfileUpdate はプロフィール部分更新の入力。nilのフィールドは変更しない。
// 氏名とプロフィール画像URLはusersテーブル側（UpdateNames）が持つ。
type ProfileUpdate struct {
	Bio      *string
	Company  *string
	JobTitle *string
	Phone    *string
	Country  *string
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。
	// 大文字小文字を区別しない。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	// 一意制約違反はErrDuplicateEmail / ErrDuplicateAzureObjectIDに変換する。
	Create(ctx context.Context, user *model.User) error

	// FindOrCreateByAzureObjectID はAzure ADのオブジェクトIDで
	// ユーザーを取得し、存在しない場合は作成する。
	// 単一のUPSERT文で実行し、同一サブジェクトの同時交換でも
	// ちょうど1行だけが存在することを一意インデックスで保証する。
	// 戻り値のboolは新規作成されたかどうかを示す。
	FindOrCreateByAzureObjectID(ctx context.Context, user *model.User) (*model.User, bool, error)

	// UpdateLastLogin は最終ログイン日時を更新する。
	// 同時ログイン間の競合はlast-write-winsで許容する。
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error

	// UpdateNames は氏名とプロフィール画像URLを更新し、更新後の行を返す。
	// メールアドレスとロールはこの経路からは変更できない。
	UpdateNames(ctx context.Context, id string, firstName, lastName, pictureURL *string) (*model.User, error)

	// UpdateRole はロールを変更し、更新後の行を返す。
	// 見つからない場合はnilを返す。発行済みトークンのロールは変わらない。
	UpdateRole(ctx context.Context, id string, role model.Role) (*model.User, error)

	// Deactivate はアクティブフラグを落とす。通常の無効化経路。
	Deactivate(ctx context.Context, id string) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するuser_profiles、refresh_tokensはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// ProfileRepository は拡張プロフィールの永続化インターフェース。
type ProfileRepository interface {
	// FindByUserID は指定ユーザーのプロフィールを取得する。
	// 未作成の場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.UserProfile, error)

	// Upsert はプロフィールを冪等にUPSERTする。
	// 行が存在しない場合は遅延作成する。nilのフィールドは変更しない。
	Upsert(ctx context.Context, userID string, update ProfileUpdate) (*model.UserProfile, error)
}

// RefreshTokenRepository はリフレッシュトークンの永続化インターフェース。
// 失効と再利用検知のため、トークンはハッシュでサーバー側に保存する。
type RefreshTokenRepository interface {
	// Create は新しいリフレッシュトークンのハッシュを保存する。
	Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error

	// FindByHash はハッシュでトークンを検索する。
	// 見つからない場合と期限切れの場合はnilを返す。
	FindByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)

	// DeleteByHash はハッシュでトークンを削除する。
	// 存在しないトークンの削除はエラーとしない。
	DeleteByHash(ctx context.Context, tokenHash string) error

	// DeleteByUserID は指定ユーザーの全トークンを削除する。ログアウト用。
	DeleteByUserID(ctx context.Context, userID string) error
}
