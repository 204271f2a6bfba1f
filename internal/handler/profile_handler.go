package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/eventgate/internal/auth"
	"github.com/hitoshi/eventgate/internal/middleware"
	"github.com/hitoshi/eventgate/internal/model"
)

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	// GetUser はユーザーと拡張プロフィールを取得する。
	GetUser(ctx context.Context, userID string) (*model.User, *model.UserProfile, error)
	// UpdateProfile はプロフィールを部分更新する。メールアドレスとロールは変更できない。
	UpdateProfile(ctx context.Context, userID string, input auth.UpdateProfileInput) (*model.User, *model.UserProfile, error)
	// Deactivate はユーザーを無効化する。
	Deactivate(ctx context.Context, userID string) error
	// Withdraw はユーザーを退会させ、関連データを削除する。
	Withdraw(ctx context.Context, userID string) error
}

// ImageURLValidator はプロフィール画像URLの事前検証インターフェース。
type ImageURLValidator interface {
	ValidateImageURL(rawURL string) error
}

// ProfileHandler はプロフィール管理のHTTPハンドラー。
type ProfileHandler struct {
	service      ProfileServiceInterface
	urlValidator ImageURLValidator
}

// NewProfileHandler はProfileHandlerを生成する。
// urlValidatorはnilを許容する。nilの場合は画像URLの事前検証を行わない。
func NewProfileHandler(service ProfileServiceInterface, urlValidator ImageURLValidator) *ProfileHandler {
	return &ProfileHandler{
		service:      service,
		urlValidator: urlValidator,
	}
}

// updateProfileRequest はプロフィール更新リクエストのボディ。
// nilのフィールドは変更しない。emailとroleはこの経路からは受け付けない。
type updateProfileRequest struct {
	FirstName         *string `json:"firstName"`
	LastName          *string `json:"lastName"`
	ProfilePictureURL *string `json:"profilePictureUrl"`
	Bio               *string `json:"bio"`
	Company           *string `json:"company"`
	JobTitle          *string `json:"jobTitle"`
	Phone             *string `json:"phone"`
	Country           *string `json:"country"`
}

// profileResponse はプロフィール情報のAPIレスポンス。
type profileResponse struct {
	UserID            string  `json:"userId"`
	Email             string  `json:"email"`
	FirstName         string  `json:"firstName"`
	LastName          string  `json:"lastName"`
	Role              string  `json:"role"`
	ProfilePictureURL string  `json:"profilePictureUrl,omitempty"`
	Bio               string  `json:"bio,omitempty"`
	Company           string  `json:"company,omitempty"`
	JobTitle          string  `json:"jobTitle,omitempty"`
	Phone             string  `json:"phone,omitempty"`
	Country           string  `json:"country,omitempty"`
	CreatedAt         string  `json:"createdAt"`
	LastLoginAt       *string `json:"lastLoginAt,omitempty"`
}

// GetProfile は認証済みユーザー自身のプロフィールを返す。
// GET /api/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedError(w)
		return
	}

	user, profile, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, toProfileResponse(user, profile))
}

// UpdateProfile は認証済みユーザー自身のプロフィールを部分更新する。
// リクエストに含まれないフィールドは変更しない。
// PUT /api/profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedError(w)
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestError(w)
		return
	}

	if req.ProfilePictureURL != nil && h.urlValidator != nil {
		if err := h.urlValidator.ValidateImageURL(*req.ProfilePictureURL); err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest,
				model.NewValidationFailedError("プロフィール画像URLが不正です"))
			return
		}
	}

	user, profile, err := h.service.UpdateProfile(r.Context(), userID, auth.UpdateProfileInput{
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		ProfilePictureURL: req.ProfilePictureURL,
		Bio:               req.Bio,
		Company:           req.Company,
		JobTitle:          req.JobTitle,
		Phone:             req.Phone,
		Country:           req.Country,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, toProfileResponse(user, profile))
}

// Deactivate は認証済みユーザー自身のアカウントを無効化する。
// 発行済みのリフレッシュトークンも破棄される。
// POST /api/users/me/deactivate
func (h *ProfileHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedError(w)
		return
	}

	if err := h.service.Deactivate(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Withdraw は認証済みユーザー自身を退会させる。
// ユーザー行と関連データが削除される破壊的操作。
// DELETE /api/users/me
func (h *ProfileHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedError(w)
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// toProfileResponse はユーザーと拡張プロフィールをAPIレスポンスに変換する。
// 拡張プロフィール行が未作成の場合、拡張フィールドは空で返す。
func toProfileResponse(user *model.User, profile *model.UserProfile) profileResponse {
	resp := profileResponse{
		UserID:            user.ID,
		Email:             user.Email,
		FirstName:         user.FirstName,
		LastName:          user.LastName,
		Role:              string(user.Role),
		ProfilePictureURL: user.ProfilePictureURL,
		CreatedAt:         user.CreatedAt.UTC().Format(time.RFC3339),
	}
	if user.LastLoginAt != nil {
		s := user.LastLoginAt.UTC().Format(time.RFC3339)
		resp.LastLoginAt = &s
	}
	if profile != nil {
		resp.Bio = profile.Bio
		resp.Company = profile.Company
		resp.JobTitle = profile.JobTitle
		resp.Phone = profile.Phone
		resp.Country = profile.Country
	}
	return resp
}

// auth.Serviceが各ハンドラーの要求するインターフェースを満たすことの
// コンパイル時チェック。
var (
	_ AuthServiceInterface      = (*auth.Service)(nil)
	_ ProfileServiceInterface   = (*auth.Service)(nil)
	_ UserAdminServiceInterface = (*auth.Service)(nil)
)
