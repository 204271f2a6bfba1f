package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/eventgate/internal/model"
)

// UserAdminServiceInterface はユーザー管理ハンドラーが必要とするサービスインターフェース。
type UserAdminServiceInterface interface {
	// AssignRole はユーザーのロールを変更する。
	AssignRole(ctx context.Context, userID, role string) (*model.User, error)
}

// UserAdminHandler はユーザー管理のHTTPハンドラー。
// ルーティング側でuser.manage権限によるゲートを前提とする。
type UserAdminHandler struct {
	service UserAdminServiceInterface
}

// NewUserAdminHandler はUserAdminHandlerを生成する。
func NewUserAdminHandler(service UserAdminServiceInterface) *UserAdminHandler {
	return &UserAdminHandler{
		service: service,
	}
}

// assignRoleRequest はロール変更リクエストのボディ。
type assignRoleRequest struct {
	Role string `json:"role"`
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
	IsActive  bool   `json:"isActive"`
}

// AssignRole はユーザーのロールを変更する。
// 発行済みのアクセストークンのロールは次回の発行まで変わらない。
// PUT /api/users/{id}/role
func (h *UserAdminHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	var req assignRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestError(w)
		return
	}

	user, err := h.service.AssignRole(r.Context(), userID, req.Role)
	if err != nil {
		// 対象ユーザーの不存在は、自分自身の失効トークン参照（401）とは
		// 異なり404として返す
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeUserNotFound {
			writeAPIErrorResponse(w, http.StatusNotFound, apiErr)
			return
		}
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, userResponse{
		UserID:    user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      string(user.Role),
		IsActive:  user.IsActive,
	})
}
