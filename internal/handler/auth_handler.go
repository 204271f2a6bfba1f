// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/eventgate/internal/middleware"
	"github.com/hitoshi/eventgate/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// GetAzureLoginURL はAzure ADの認可エンドポイントURLを返す。
	GetAzureLoginURL(state string) string
	// Login はメールアドレスとパスワードで認証しセッションを発行する。
	Login(ctx context.Context, email, password string) (*model.User, *model.SessionTokens, error)
	// Register は新規ユーザーを登録しセッションを発行する。
	Register(ctx context.Context, email, firstName, lastName, password string) (*model.User, *model.SessionTokens, error)
	// ExchangeAzureToken は外部IDトークンを検証しローカルセッションに交換する。
	ExchangeAzureToken(ctx context.Context, rawToken string) (*model.User, *model.SessionTokens, error)
	// Refresh はリフレッシュトークンをローテーションし新しいセッションを発行する。
	Refresh(ctx context.Context, refreshToken string) (*model.User, *model.SessionTokens, error)
	// Logout はユーザーの全リフレッシュトークンを破棄する。
	Logout(ctx context.Context, userID string) error
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{
		service: service,
	}
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// registerRequest はユーザー登録リクエストのボディ。
// ロールは受け付けない。登録されるユーザーは常にparticipantとなる。
type registerRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Password  string `json:"password"`
}

// refreshRequest はトークン更新リクエストのボディ。
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// azureCallbackRequest は外部IDトークン交換リクエストのボディ。
type azureCallbackRequest struct {
	AccessToken string `json:"accessToken"`
}

// sessionResponse はセッション発行のAPIレスポンス。
type sessionResponse struct {
	UserID       string `json:"userId"`
	Email        string `json:"email"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Role         string `json:"role"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    string `json:"expiresAt"`
}

// loginURLResponse はAzureログインURLのAPIレスポンス。
type loginURLResponse struct {
	LoginURL string `json:"loginUrl"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// Login はパスワード認証を処理する。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestError(w)
		return
	}

	if req.Email == "" || req.Password == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationFailedError("メールアドレスとパスワードは必須です"))
		return
	}

	user, tokens, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, toSessionResponse(user, tokens))
}

// Register はセルフ登録を処理する。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestError(w)
		return
	}

	user, tokens, err := h.service.Register(r.Context(), req.Email, req.FirstName, req.LastName, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, toSessionResponse(user, tokens))
}

// Refresh はリフレッシュトークンによるセッション更新を処理する。
// POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestError(w)
		return
	}

	if req.RefreshToken == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationFailedError("リフレッシュトークンは必須です"))
		return
	}

	user, tokens, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, toSessionResponse(user, tokens))
}

// Logout は認証済みユーザーの全リフレッシュトークンを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedError(w)
		return
	}

	if err := h.service.Logout(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// AzureLoginURL はAzure ADの認可エンドポイントURLを返す。
// GET /auth/azure/login-url
func (h *AuthHandler) AzureLoginURL(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	writeJSONResponse(w, http.StatusOK, loginURLResponse{
		LoginURL: h.service.GetAzureLoginURL(state),
	})
}

// AzureCallback は外部IDトークンをローカルセッションに交換する。
// POST /auth/azure/callback
func (h *AuthHandler) AzureCallback(w http.ResponseWriter, r *http.Request) {
	var req azureCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestError(w)
		return
	}

	if req.AccessToken == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationFailedError("外部トークンは必須です"))
		return
	}

	user, tokens, err := h.service.ExchangeAzureToken(r.Context(), req.AccessToken)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, toSessionResponse(user, tokens))
}

// --- ヘルパー関数 ---

// toSessionResponse はセッション発行結果をAPIレスポンスに変換する。
func toSessionResponse(user *model.User, tokens *model.SessionTokens) sessionResponse {
	return sessionResponse{
		UserID:       user.ID,
		Email:        user.Email,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Role:         string(user.Role),
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

// writeJSONResponse はJSONレスポンスを書き込む。
func writeJSONResponse(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// writeInvalidRequestError はリクエストボディの解析失敗レスポンスを書き込む。
func writeInvalidRequestError(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}

// writeUnauthorizedError は認証必須レスポンスを書き込む。
func writeUnauthorizedError(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
		Code:     "UNAUTHORIZED",
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// クライアントに内部エラーの詳細を漏らさない。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeAccountInactive:
		return http.StatusForbidden
	case model.ErrCodeEmailAlreadyExists:
		return http.StatusBadRequest
	case model.ErrCodeInvalidExternalToken:
		return http.StatusUnauthorized
	case model.ErrCodeMissingRequiredClaims:
		return http.StatusBadRequest
	case model.ErrCodeTokenExpired, model.ErrCodeTokenInvalid:
		return http.StatusUnauthorized
	case model.ErrCodeUserNotFound:
		// 失効したトークンでの参照。再ログインを促す
		return http.StatusUnauthorized
	case model.ErrCodeValidationFailed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
