package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/eventgate/internal/metrics"
	"github.com/hitoshi/eventgate/internal/middleware"
	"github.com/hitoshi/eventgate/internal/model"
)

// routerTokenValidator はルーターテスト用のTokenValidator。
// トークン文字列をそのままユーザーIDとロールに対応付ける。
type routerTokenValidator struct {
	claimsByToken map[string]*model.Claims
}

func (v *routerTokenValidator) ValidateAccessToken(tokenString string) (*model.Claims, error) {
	claims, ok := v.claimsByToken[tokenString]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return claims, nil
}

// pingChecker はテスト用のHealthChecker。
type pingChecker struct {
	err error
}

func (p *pingChecker) PingContext(ctx context.Context) error {
	return p.err
}

// newTestRouter は全ルートを構成したテスト用ルーターを返す。
func newTestRouter(t *testing.T, healthErr error) http.Handler {
	t.Helper()

	registry := prometheus.NewRegistry()
	metrics.NewCollector(registry)

	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     100,
		GeneralBurst:    100,
		LoginRate:       100,
		LoginBurst:      100,
		CleanupInterval: 1 * time.Minute,
	})
	t.Cleanup(rl.Stop)

	authService := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (*model.User, *model.SessionTokens, error) {
			return sessionUser(), sessionTokens(), nil
		},
	}
	profileService := &mockProfileService{
		getUserFn: func(ctx context.Context, userID string) (*model.User, *model.UserProfile, error) {
			return profileUser(), nil, nil
		},
	}
	adminService := &mockUserAdminService{
		assignRoleFn: func(ctx context.Context, userID, role string) (*model.User, error) {
			return &model.User{ID: userID, Role: model.Role(role), IsActive: true}, nil
		},
	}

	return NewRouter(&RouterDeps{
		TokenValidator: &routerTokenValidator{
			claimsByToken: map[string]*model.Claims{
				"participant-token": {UserID: "user-1", Email: "taro@example.com", Role: model.RoleParticipant},
				"admin-token":       {UserID: "admin-1", Email: "admin@example.com", Role: model.RoleAdmin},
			},
		},
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		AuthService:       authService,
		ProfileService:    profileService,
		UserAdminService:  adminService,
		HealthChecker:     &pingChecker{err: healthErr},
		MetricsGatherer:   registry,
	})
}

func TestRouter_ProtectedRouteRequiresToken(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestRouter_ProtectedRouteWithValidToken(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.Header.Set("Authorization", "Bearer participant-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d: %s", w.Result().StatusCode, http.StatusOK, w.Body.String())
	}
}

func TestRouter_RoleAssignmentRequiresAdminRole(t *testing.T) {
	router := newTestRouter(t, nil)

	newReq := func(token string) *http.Request {
		req := httptest.NewRequest(http.MethodPut, "/api/users/user-9/role",
			strings.NewReader(`{"role":"organizer"}`))
		req.Header.Set("Authorization", "Bearer "+token)
		return req
	}

	// participantは403
	w := httptest.NewRecorder()
	router.ServeHTTP(w, newReq("participant-token"))
	if w.Result().StatusCode != http.StatusForbidden {
		t.Errorf("participant: status = %d, want %d", w.Result().StatusCode, http.StatusForbidden)
	}

	// adminは200
	w = httptest.NewRecorder()
	router.ServeHTTP(w, newReq("admin-token"))
	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("admin: status = %d, want %d: %s", w.Result().StatusCode, http.StatusOK, w.Body.String())
	}
}

func TestRouter_LoginDoesNotRequireToken(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"taro@example.com","password":"correct-password"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d: %s", w.Result().StatusCode, http.StatusOK, w.Body.String())
	}
}

func TestRouter_SecurityHeadersApplied(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Result().Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := w.Result().Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q, want configured origin", got)
	}
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if w.Body.String() != "ok" {
		t.Errorf("body = %q, want %q", w.Body.String(), "ok")
	}
}

func TestRouter_HealthUnavailableWhenDBDown(t *testing.T) {
	router := newTestRouter(t, errors.New("connection refused"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusServiceUnavailable)
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "eventgate_") {
		t.Errorf("metrics output does not contain eventgate_ series: %s", w.Body.String())
	}
}

func TestRouter_LoginRateLimited(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics.NewCollector(registry)

	// ログイン系はバースト1で即座に制限がかかる設定
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     100,
		GeneralBurst:    100,
		LoginRate:       1,
		LoginBurst:      1,
		CleanupInterval: 1 * time.Minute,
	})
	t.Cleanup(rl.Stop)

	router := NewRouter(&RouterDeps{
		TokenValidator:    &routerTokenValidator{},
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		AuthService: &mockAuthService{
			loginFn: func(ctx context.Context, email, password string) (*model.User, *model.SessionTokens, error) {
				return sessionUser(), sessionTokens(), nil
			},
		},
		ProfileService:   &mockProfileService{},
		UserAdminService: &mockUserAdminService{},
		MetricsGatherer:  registry,
	})

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/auth/login",
			strings.NewReader(`{"email":"taro@example.com","password":"x"}`))
		req.RemoteAddr = "203.0.113.5:40000"
		return req
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, newReq())
	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("first request: status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, newReq())
	if w.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("second request: status = %d, want %d", w.Result().StatusCode, http.StatusTooManyRequests)
	}
}
