package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/eventgate/internal/model"
)

// mockUserAdminService はテスト用のUserAdminServiceInterface実装。
type mockUserAdminService struct {
	assignRoleFn func(ctx context.Context, userID, role string) (*model.User, error)
}

func (m *mockUserAdminService) AssignRole(ctx context.Context, userID, role string) (*model.User, error) {
	return m.assignRoleFn(ctx, userID, role)
}

var _ UserAdminServiceInterface = (*mockUserAdminService)(nil)

// assignRoleRequestTo はchiのURLパラメータを解決するためルーター経由でリクエストする。
func assignRoleRequestTo(h *UserAdminHandler, targetUserID, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Put("/api/users/{id}/role", h.AssignRole)

	req := httptest.NewRequest(http.MethodPut, "/api/users/"+targetUserID+"/role", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAssignRoleHandler_Success(t *testing.T) {
	service := &mockUserAdminService{
		assignRoleFn: func(ctx context.Context, userID, role string) (*model.User, error) {
			if userID != "user-9" {
				t.Errorf("AssignRole called with userID %q", userID)
			}
			if role != "organizer" {
				t.Errorf("AssignRole called with role %q", role)
			}
			return &model.User{
				ID:        "user-9",
				Email:     "jiro@example.com",
				FirstName: "次郎",
				LastName:  "鈴木",
				Role:      model.RoleOrganizer,
				IsActive:  true,
			}, nil
		},
	}
	h := NewUserAdminHandler(service)

	w := assignRoleRequestTo(h, "user-9", `{"role":"organizer"}`)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var got userResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Role != "organizer" {
		t.Errorf("role = %q, want %q", got.Role, "organizer")
	}
	if got.UserID != "user-9" {
		t.Errorf("userId = %q, want %q", got.UserID, "user-9")
	}
}

func TestAssignRoleHandler_UnknownTargetUser(t *testing.T) {
	// 対象ユーザーの不存在は404（失効トークンの401とは区別する）
	service := &mockUserAdminService{
		assignRoleFn: func(ctx context.Context, userID, role string) (*model.User, error) {
			return nil, model.NewUserNotFoundError()
		},
	}
	h := NewUserAdminHandler(service)

	w := assignRoleRequestTo(h, "no-such-user", `{"role":"organizer"}`)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
	if got := decodeAPIError(t, w); got.Code != model.ErrCodeUserNotFound {
		t.Errorf("code = %q, want %q", got.Code, model.ErrCodeUserNotFound)
	}
}

func TestAssignRoleHandler_UnknownRole(t *testing.T) {
	service := &mockUserAdminService{
		assignRoleFn: func(ctx context.Context, userID, role string) (*model.User, error) {
			return nil, model.NewValidationFailedError("不正なロールです")
		},
	}
	h := NewUserAdminHandler(service)

	w := assignRoleRequestTo(h, "user-9", `{"role":"superuser"}`)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestAssignRoleHandler_MalformedJSON(t *testing.T) {
	service := &mockUserAdminService{
		assignRoleFn: func(ctx context.Context, userID, role string) (*model.User, error) {
			t.Fatal("AssignRole should not be called")
			return nil, nil
		},
	}
	h := NewUserAdminHandler(service)

	w := assignRoleRequestTo(h, "user-9", `{not json`)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}
