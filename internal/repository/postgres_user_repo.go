package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/eventgate/internal/model"
)

// uniqueViolation はPostgreSQLのunique_violationエラーコード。
const uniqueViolation = "23505"

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, email, first_name, last_name, password_hash, azure_ad_object_id,
	 role, is_active, profile_picture_url, created_at, updated_at, last_login_at`

// scanUser は1行をmodel.Userに読み込む。
func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	user := &model.User{}
	var role string
	err := row.Scan(
		&user.ID, &user.Email, &user.FirstName, &user.LastName,
		&user.PasswordHash, &user.AzureADObjectID,
		&role, &user.IsActive, &user.ProfilePictureURL,
		&user.CreatedAt, &user.UpdatedAt, &user.LastLoginAt,
	)
	if err != nil {
		return nil, err
	}
	user.Role = model.Role(role)
	return user, nil
}

// translateUniqueViolation は一意制約違反をドメインエラーに変換する。
// 対象外のエラーはそのまま返す。
func translateUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return err
	}
	switch pqErr.Constraint {
	case "users_email_lower_key":
		return ErrDuplicateEmail
	case "users_azure_ad_object_id_key":
		return ErrDuplicateAzureObjectID
	default:
		return err
	}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを検索する。
// 大文字小文字を区別しない。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`,
		email,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。
// 一意制約違反はErrDuplicateEmail / ErrDuplicateAzureObjectIDに変換する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, first_name, last_name, password_hash,
		 azure_ad_object_id, role, is_active, profile_picture_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		user.ID, user.Email, user.FirstName, user.LastName, user.PasswordHash,
		user.AzureADObjectID, string(user.Role), user.IsActive, user.ProfilePictureURL,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if derr := translateUniqueViolation(err); derr != err {
			return derr
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// FindOrCreateByAzureObjectID はAzure ADのオブジェクトIDでユーザーを
// 取得し、存在しない場合は作成する。
// 読み取り→書き込みの2段階ではなく単一のUPSERT文で実行するため、
// 同一サブジェクトの同時交換でも一意インデックス上でシリアライズされ、
// どちらの呼び出しも同じ1行を受け取る。
// ON CONFLICT時はlast_login_atのみを更新する（既存ユーザーのログイン扱い）。
func (r *PostgresUserRepo) FindOrCreateByAzureObjectID(ctx context.Context, user *model.User) (*model.User, bool, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, email, first_name, last_name, password_hash,
		 azure_ad_object_id, role, is_active, profile_picture_url, created_at, updated_at, last_login_at)
		 VALUES ($1, $2, $3, $4, '', $5, $6, TRUE, '', $7, $7, $7)
		 ON CONFLICT (azure_ad_object_id) WHERE azure_ad_object_id IS NOT NULL
		 DO UPDATE SET last_login_at = EXCLUDED.last_login_at
		 RETURNING `+userColumns+`, (xmax = 0) AS inserted`,
		user.ID, user.Email, user.FirstName, user.LastName,
		user.AzureADObjectID, string(user.Role), user.CreatedAt,
	)

	got := &model.User{}
	var role string
	var inserted bool
	err := row.Scan(
		&got.ID, &got.Email, &got.FirstName, &got.LastName,
		&got.PasswordHash, &got.AzureADObjectID,
		&role, &got.IsActive, &got.ProfilePictureURL,
		&got.CreatedAt, &got.UpdatedAt, &got.LastLoginAt,
		&inserted,
	)
	if err != nil {
		// メールアドレス側の一意制約に当たった場合は、既存のローカル
		// アカウントと衝突している。外部アカウントによる乗っ取りを
		// 防ぐため、マージせずドメインエラーとして返す。
		if derr := translateUniqueViolation(err); derr != err {
			return nil, false, derr
		}
		return nil, false, fmt.Errorf("failed to upsert user by azure object id: %w", err)
	}
	got.Role = model.Role(role)
	return got, inserted, nil
}

// UpdateLastLogin は最終ログイン日時を更新する。
func (r *PostgresUserRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = $2 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// UpdateNames は氏名とプロフィール画像URLを更新し、更新後の行を返す。
// nilの引数は変更しない。メールアドレスとロールはこの文からは更新できない。
func (r *PostgresUserRepo) UpdateNames(ctx context.Context, id string, firstName, lastName, pictureURL *string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`UPDATE users SET
		   first_name = COALESCE($2, first_name),
		   last_name = COALESCE($3, last_name),
		   profile_picture_url = COALESCE($4, profile_picture_url),
		   updated_at = now()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, firstName, lastName, pictureURL,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user names: %w", err)
	}
	return user, nil
}

// UpdateRole はロールを変更し、更新後の行を返す。
// 発行済みトークンのロールは次回のトークン発行まで変わらない。
func (r *PostgresUserRepo) UpdateRole(ctx context.Context, id string, role model.Role) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`UPDATE users SET role = $2, updated_at = now() WHERE id = $1
		 RETURNING `+userColumns,
		id, string(role),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user role: %w", err)
	}
	return user, nil
}

// Deactivate はアクティブフラグを落とす。
func (r *PostgresUserRepo) Deactivate(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_active = FALSE, updated_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// DeleteByID は指定IDのユーザーを削除する。
// 関連するuser_profiles、refresh_tokensはCASCADE削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
