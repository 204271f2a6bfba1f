package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/eventgate/internal/auth"
	"github.com/hitoshi/eventgate/internal/model"
)

// mockTokenValidator はテスト用のTokenValidator実装。
type mockTokenValidator struct {
	validateFn func(tokenString string) (*model.Claims, error)
}

func (m *mockTokenValidator) ValidateAccessToken(tokenString string) (*model.Claims, error) {
	return m.validateFn(tokenString)
}

var _ TokenValidator = (*mockTokenValidator)(nil)

// decodeErrorBody はレスポンスボディを統一エラーフォーマットとして読み取る。
func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) ErrorResponseBody {
	t.Helper()
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	wantClaims := &model.Claims{
		UserID: "user-1",
		Email:  "taro@example.com",
		Role:   model.RoleParticipant,
	}
	validator := &mockTokenValidator{
		validateFn: func(tokenString string) (*model.Claims, error) {
			if tokenString != "valid-token" {
				t.Errorf("token passed to validator = %q, want %q", tokenString, "valid-token")
			}
			return wantClaims, nil
		},
	}

	var gotClaims *model.Claims
	handler := NewAuthMiddleware(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := ClaimsFromContext(r.Context())
		if err != nil {
			t.Fatalf("ClaimsFromContext() error = %v", err)
		}
		gotClaims = claims
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if gotClaims != wantClaims {
		t.Errorf("claims in context = %+v, want %+v", gotClaims, wantClaims)
	}
}

func TestAuthMiddleware_MissingOrMalformedHeader(t *testing.T) {
	validator := &mockTokenValidator{
		validateFn: func(tokenString string) (*model.Claims, error) {
			t.Fatal("validator should not be called without a bearer token")
			return nil, nil
		},
	}

	handler := NewAuthMiddleware(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler should not be called")
	}))

	tests := []struct {
		name   string
		header string
	}{
		{"ヘッダーなし", ""},
		{"Bearerではない", "Basic dXNlcjpwYXNz"},
		{"トークン部分が空", "Bearer "},
		{"プレフィックスのみ", "Bearer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Result().StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
			}
			if body := decodeErrorBody(t, w); body.Code != "TOKEN_INVALID" {
				t.Errorf("code = %q, want TOKEN_INVALID", body.Code)
			}
		})
	}
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	validator := &mockTokenValidator{
		validateFn: func(tokenString string) (*model.Claims, error) {
			return nil, auth.ErrTokenExpired
		},
	}

	handler := NewAuthMiddleware(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.Header.Set("Authorization", "Bearer expired-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
	// 期限切れはTOKEN_INVALIDではなくTOKEN_EXPIREDで区別する
	if body := decodeErrorBody(t, w); body.Code != "TOKEN_EXPIRED" {
		t.Errorf("code = %q, want TOKEN_EXPIRED", body.Code)
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	validator := &mockTokenValidator{
		validateFn: func(tokenString string) (*model.Claims, error) {
			return nil, auth.ErrTokenInvalid
		},
	}

	handler := NewAuthMiddleware(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.Header.Set("Authorization", "Bearer tampered-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
	if body := decodeErrorBody(t, w); body.Code != "TOKEN_INVALID" {
		t.Errorf("code = %q, want TOKEN_INVALID", body.Code)
	}
}

func TestClaimsFromContext_NotSet(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	if _, err := ClaimsFromContext(req.Context()); err == nil {
		t.Error("ClaimsFromContext() on bare context should return error")
	}
	if _, err := UserIDFromContext(req.Context()); err == nil {
		t.Error("UserIDFromContext() on bare context should return error")
	}
}

func TestContextWithClaims_RoundTrip(t *testing.T) {
	claims := &model.Claims{UserID: "user-2", Email: "jiro@example.com", Role: model.RoleOrganizer}
	ctx := ContextWithClaims(httptest.NewRequest(http.MethodGet, "/", nil).Context(), claims)

	got, err := ClaimsFromContext(ctx)
	if err != nil {
		t.Fatalf("ClaimsFromContext() error = %v", err)
	}
	if got != claims {
		t.Errorf("claims = %+v, want %+v", got, claims)
	}

	userID, err := UserIDFromContext(ctx)
	if err != nil {
		t.Fatalf("UserIDFromContext() error = %v", err)
	}
	if userID != "user-2" {
		t.Errorf("userID = %q, want %q", userID, "user-2")
	}
}
