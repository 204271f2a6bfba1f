package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/eventgate/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用した拡張プロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByUserID は指定ユーザーのプロフィールを取得する。未作成の場合はnilを返す。
func (r *PostgresProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.UserProfile, error) {
	profile := &model.UserProfile{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, bio, company, job_title, phone, country, created_at, updated_at
		 FROM user_profiles WHERE user_id = $1`,
		userID,
	).Scan(
		&profile.UserID, &profile.Bio, &profile.Company, &profile.JobTitle,
		&profile.Phone, &profile.Country, &profile.CreatedAt, &profile.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	return profile, nil
}

// Upsert はプロフィールを冪等にUPSERTする。
// 行が存在しない場合は遅延作成する。nilのフィールドは変更せず既存の値を維持する。
func (r *PostgresProfileRepo) Upsert(ctx context.Context, userID string, update ProfileUpdate) (*model.UserProfile, error) {
	profile := &model.UserProfile{}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO user_profiles (user_id, bio, company, job_title, phone, country)
		 VALUES ($1, COALESCE($2, ''), COALESCE($3, ''), COALESCE($4, ''), COALESCE($5, ''), COALESCE($6, ''))
		 ON CONFLICT (user_id) DO UPDATE SET
		   bio = COALESCE($2, user_profiles.bio),
		   company = COALESCE($3, user_profiles.company),
		   job_title = COALESCE($4, user_profiles.job_title),
		   phone = COALESCE($5, user_profiles.phone),
		   country = COALESCE($6, user_profiles.country),
		   updated_at = now()
		 RETURNING user_id, bio, company, job_title, phone, country, created_at, updated_at`,
		userID, update.Bio, update.Company, update.JobTitle, update.Phone, update.Country,
	).Scan(
		&profile.UserID, &profile.Bio, &profile.Company, &profile.JobTitle,
		&profile.Phone, &profile.Country, &profile.CreatedAt, &profile.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert profile: %w", err)
	}
	return profile, nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
