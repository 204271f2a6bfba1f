// Package auth は認証・セッション管理のドメインロジックを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/eventgate/internal/model"
	"github.com/hitoshi/eventgate/internal/repository"
)

// ExternalVerifier は外部IdPが発行したIDトークンの検証インターフェース。
type ExternalVerifier interface {
	// GetLoginURL はプロバイダーの認可URLを生成する。
	GetLoginURL(state string) string
	// Verify はIDトークンを検証し、検証済みアイデンティティを返す。
	Verify(ctx context.Context, rawToken string) (*ExternalIdentity, error)
}

// TextSanitizer はプロフィール自由入力欄のサニタイズインターフェース。
type TextSanitizer interface {
	Sanitize(s string) string
}

// MetricsRecorder は認証結果のメトリクス記録インターフェース。
// nilの場合は記録しない。
type MetricsRecorder interface {
	RecordLogin(outcome string)
	RecordRegistration()
	RecordExternalExchange(outcome string, created bool)
	RecordTokenIssued(duration time.Duration)
	RecordRefresh(outcome string)
}

// UpdateProfileInput はプロフィール更新の入力。nilのフィールドは変更しない。
// メールアドレスとロールはこの経路からは変更できない。
type UpdateProfileInput struct {
	FirstName         *string
	LastName          *string
	ProfilePictureURL *string
	Bio               *string
	Company           *string
	JobTitle          *string
	Phone             *string
	Country           *string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	profileRepo repository.ProfileRepository
	refreshRepo repository.RefreshTokenRepository
	hasher      PasswordHasher
	issuer      *TokenIssuer
	verifier    ExternalVerifier
	sanitizer   TextSanitizer
	metrics     MetricsRecorder
}

// NewService はServiceを生成する。
// sanitizerとmetricsはnilを許容する。
func NewService(
	userRepo repository.UserRepository,
	profileRepo repository.ProfileRepository,
	refreshRepo repository.RefreshTokenRepository,
	hasher PasswordHasher,
	issuer *TokenIssuer,
	verifier ExternalVerifier,
	sanitizer TextSanitizer,
	metrics MetricsRecorder,
) *Service {
	return &Service{
		userRepo:    userRepo,
		profileRepo: profileRepo,
		refreshRepo: refreshRepo,
		hasher:      hasher,
		issuer:      issuer,
		verifier:    verifier,
		sanitizer:   sanitizer,
		metrics:     metrics,
	}
}

// GetAzureLoginURL はAzure ADの認可URLを生成する。
func (s *Service) GetAzureLoginURL(state string) string {
	return s.verifier.GetLoginURL(state)
}

// Login はメールアドレスとパスワードでユーザーを認証し、セッショントークンを発行する。
// ユーザー不存在とパスワード不一致は呼び出し側から区別できない
// （INVALID_CREDENTIALSに集約し、ユーザー列挙のサイドチャネルを作らない）。
// パスワードが一致してもアクティブフラグが落ちている場合はACCOUNT_INACTIVE。
// 成功時は最終ログイン日時を更新する。
func (s *Service) Login(ctx context.Context, email, password string) (*model.User, *model.SessionTokens, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		s.recordLogin("invalid_credentials")
		return nil, nil, model.NewInvalidCredentialsError()
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil || user.PasswordHash == "" {
		s.recordLogin("invalid_credentials")
		return nil, nil, model.NewInvalidCredentialsError()
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil || !ok {
		s.recordLogin("invalid_credentials")
		return nil, nil, model.NewInvalidCredentialsError()
	}

	if !user.IsActive {
		s.recordLogin("account_inactive")
		return nil, nil, model.NewAccountInactiveError()
	}

	now := time.Now()
	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, nil, fmt.Errorf("failed to update last login: %w", err)
	}
	user.LastLoginAt = &now

	tokens, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	s.recordLogin("success")
	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
	return user, tokens, nil
}

// Register は新規ユーザーを登録し、セッショントークンを発行する。
// ロールは常にparticipantを割り当てる。クライアントがロールを指定しても
// 無視する（自己昇格の禁止）。
// ここでの存在チェックは補助であり、一意性の保証はストレージ層の
// 一意制約が担う。同時登録で制約違反になった場合も同じ
// EMAIL_ALREADY_EXISTSに変換する。
func (s *Service) Register(ctx context.Context, email, firstName, lastName, password string) (*model.User, *model.SessionTokens, error) {
	email = strings.TrimSpace(email)
	if err := validateRegistration(email, firstName, lastName, password); err != nil {
		return nil, nil, err
	}

	// 補助的な事前チェック。衝突の早期検出のみが目的
	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, nil, model.NewEmailAlreadyExistsError()
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		FirstName:    firstName,
		LastName:     lastName,
		PasswordHash: hash,
		Role:         model.RoleParticipant,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, nil, model.NewEmailAlreadyExistsError()
		}
		return nil, nil, fmt.Errorf("failed to create user: %w", err)
	}

	tokens, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordRegistration()
	}
	slog.Info("new user registered",
		slog.String("user_id", user.ID),
	)
	return user, tokens, nil
}

// ExchangeAzureToken は外部発行のIDトークンを検証し、ローカルユーザーと
// 突き合わせてセッショントークンを発行する。
// 未登録のアイデンティティの場合はparticipantロールのユーザーを自動作成する。
// 突き合わせは単一のUPSERTで行うため、同一サブジェクトの同時交換でも
// ローカルアカウントはちょうど1つしか作られない。
func (s *Service) ExchangeAzureToken(ctx context.Context, rawToken string) (*model.User, *model.SessionTokens, error) {
	identity, err := s.verifier.Verify(ctx, rawToken)
	if err != nil {
		if errors.Is(err, ErrMissingRequiredClaims) {
			s.recordExchange("missing_claims", false)
			return nil, nil, model.NewMissingRequiredClaimsError()
		}
		s.recordExchange("invalid_token", false)
		return nil, nil, model.NewInvalidExternalTokenError()
	}

	objectID := identity.ObjectID
	now := time.Now()
	candidate := &model.User{
		ID:              uuid.New().String(),
		Email:           identity.Email,
		FirstName:       identity.GivenName,
		LastName:        identity.FamilyName,
		AzureADObjectID: &objectID,
		Role:            model.RoleParticipant,
		IsActive:        true,
		CreatedAt:       now,
	}

	user, created, err := s.userRepo.FindOrCreateByAzureObjectID(ctx, candidate)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			// 同じメールアドレスのローカルアカウントが既に存在する。
			// 外部アカウントとの自動マージは行わない
			s.recordExchange("email_conflict", false)
			return nil, nil, model.NewEmailAlreadyExistsError()
		}
		return nil, nil, fmt.Errorf("failed to reconcile external identity: %w", err)
	}

	if !user.IsActive {
		s.recordExchange("account_inactive", false)
		return nil, nil, model.NewAccountInactiveError()
	}

	tokens, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	s.recordExchange("success", created)
	if created {
		slog.Info("new user created via azure ad",
			slog.String("user_id", user.ID),
		)
	} else {
		slog.Info("existing user logged in via azure ad",
			slog.String("user_id", user.ID),
		)
	}
	return user, tokens, nil
}

// Refresh はリフレッシュトークンを検証し、新しいセッショントークンを発行する。
// 提示されたトークンはローテーションされ、以後は使用できない。
// 不明・期限切れ・失効済みのトークンはTOKEN_INVALIDとして扱う。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*model.User, *model.SessionTokens, error) {
	if refreshToken == "" {
		s.recordRefresh("invalid")
		return nil, nil, model.NewTokenInvalidError()
	}

	stored, err := s.refreshRepo.FindByHash(ctx, HashRefreshToken(refreshToken))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find refresh token: %w", err)
	}
	if stored == nil {
		s.recordRefresh("invalid")
		return nil, nil, model.NewTokenInvalidError()
	}

	user, err := s.userRepo.FindByID(ctx, stored.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		s.recordRefresh("user_not_found")
		return nil, nil, model.NewUserNotFoundError()
	}
	if !user.IsActive {
		s.recordRefresh("account_inactive")
		return nil, nil, model.NewAccountInactiveError()
	}

	// 新しいトークンの保存に成功してから、提示されたトークンを無効化する
	tokens, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	if err := s.refreshRepo.DeleteByHash(ctx, stored.TokenHash); err != nil {
		return nil, nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	s.recordRefresh("success")
	return user, tokens, nil
}

// Logout は指定ユーザーの全リフレッシュトークンを失効させる。
// 発行済みのアクセストークンはTTL満了まで有効（設計上の許容）。
func (s *Service) Logout(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("user ID is required")
	}

	if err := s.refreshRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}

	slog.Info("user logged out", slog.String("user_id", userID))
	return nil
}

// GetUser はユーザーと拡張プロフィールを取得する。
// トークン検証後にユーザー行が削除されていた場合はUSER_NOT_FOUNDを返す
// （境界では401にマッピングされる）。
func (s *Service) GetUser(ctx context.Context, userID string) (*model.User, *model.UserProfile, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, nil, model.NewUserNotFoundError()
	}

	profile, err := s.profileRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find profile: %w", err)
	}

	return user, profile, nil
}

// UpdateProfile はプロフィールを部分更新する。
// メールアドレスとロールはこの経路からは変更できない。
// 自由入力欄はサニタイズしてから保存する。
// 拡張プロフィール行は初回更新時に遅延作成される。
func (s *Service) UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (*model.User, *model.UserProfile, error) {
	user, err := s.userRepo.UpdateNames(ctx, userID, input.FirstName, input.LastName, input.ProfilePictureURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update user: %w", err)
	}
	if user == nil {
		return nil, nil, model.NewUserNotFoundError()
	}

	update := repository.ProfileUpdate{
		Bio:      s.sanitize(input.Bio),
		Company:  s.sanitize(input.Company),
		JobTitle: s.sanitize(input.JobTitle),
		Phone:    s.sanitize(input.Phone),
		Country:  s.sanitize(input.Country),
	}

	profile, err := s.profileRepo.Upsert(ctx, userID, update)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to upsert profile: %w", err)
	}

	return user, profile, nil
}

// AssignRole はユーザーのロールを変更する。管理者用の操作。
// 変更は次回のトークン発行から有効になり、発行済みのアクセストークンには
// 遡及しない。
func (s *Service) AssignRole(ctx context.Context, userID, roleStr string) (*model.User, error) {
	role, err := model.ParseRole(roleStr)
	if err != nil {
		return nil, model.NewValidationFailedError("不正なロールです")
	}

	user, err := s.userRepo.UpdateRole(ctx, userID, role)
	if err != nil {
		return nil, fmt.Errorf("failed to update user role: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	slog.Info("user role updated",
		slog.String("user_id", userID),
		slog.String("role", string(role)),
	)
	return user, nil
}

// Deactivate はアカウントを無効化する。通常の退会経路。
// 無効化と同時に全リフレッシュトークンを失効させる。
func (s *Service) Deactivate(ctx context.Context, userID string) error {
	if err := s.userRepo.Deactivate(ctx, userID); err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	if err := s.refreshRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}

	slog.Info("user deactivated", slog.String("user_id", userID))
	return nil
}

// Withdraw はユーザーを完全に削除する。管理用の最終手段であり、
// 通常の退会にはDeactivateを使う。
// 削除順序: refresh_tokens → user（+ CASCADE: user_profiles）
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	if err := s.refreshRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}

	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	slog.Info("user withdrawn", slog.String("user_id", userID))
	return nil
}

// ValidateAccessToken はアクセストークンを検証し、検証済みクレームを返す。
// ミドルウェアから呼ばれる。ストレージへの問い合わせは行わない。
func (s *Service) ValidateAccessToken(tokenString string) (*model.Claims, error) {
	return s.issuer.Validate(tokenString)
}

// issueSession はトークン一式を発行し、リフレッシュトークンのハッシュを保存する。
// ハッシュの保存に失敗した場合はトークンを返さない（部分的なセッションを作らない）。
func (s *Service) issueSession(ctx context.Context, user *model.User) (*model.SessionTokens, error) {
	start := time.Now()

	tokens, refreshHash, err := s.issuer.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue tokens: %w", err)
	}

	expiresAt := time.Now().Add(s.issuer.RefreshTokenTTL())
	if err := s.refreshRepo.Create(ctx, user.ID, refreshHash, expiresAt); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordTokenIssued(time.Since(start))
	}
	return tokens, nil
}

// sanitize はnil安全にサニタイズを適用する。
func (s *Service) sanitize(v *string) *string {
	if v == nil || s.sanitizer == nil {
		return v
	}
	cleaned := s.sanitizer.Sanitize(*v)
	return &cleaned
}

func (s *Service) recordLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordLogin(outcome)
	}
}

func (s *Service) recordExchange(outcome string, created bool) {
	if s.metrics != nil {
		s.metrics.RecordExternalExchange(outcome, created)
	}
}

func (s *Service) recordRefresh(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordRefresh(outcome)
	}
}

// validateRegistration は登録入力を検証する。
func validateRegistration(email, firstName, lastName, password string) error {
	if email == "" {
		return model.NewValidationFailedError("メールアドレスは必須です")
	}
	if !strings.Contains(email, "@") {
		return model.NewValidationFailedError("メールアドレスの形式が正しくありません")
	}
	if firstName == "" || lastName == "" {
		return model.NewValidationFailedError("氏名は必須です")
	}
	if len(password) < 8 {
		return model.NewValidationFailedError("パスワードは8文字以上で指定してください")
	}
	return nil
}
