package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/eventgate/internal/metrics"
	"github.com/hitoshi/eventgate/internal/middleware"
)

// HealthChecker はヘルスチェックのための依存の抽象。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenValidator    middleware.TokenValidator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface

	// プロフィール
	ProfileService ProfileServiceInterface
	URLValidator   ImageURLValidator

	// ユーザー管理
	UserAdminService UserAdminServiceInterface

	// 運用
	HealthChecker   HealthChecker
	MetricsGatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging
//
// 認証ルート（/auth/*）にはログイン専用のIP別レート制限を、
// 認証必須ルート（/api/*）にはトークン検証とユーザー別レート制限を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))

	authHandler := NewAuthHandler(deps.AuthService)
	profileHandler := NewProfileHandler(deps.ProfileService, deps.URLValidator)
	userAdminHandler := NewUserAdminHandler(deps.UserAdminService)

	// --- 認証不要のルート ---

	r.Route("/auth", func(r chi.Router) {
		// 資格情報を受けるエンドポイントはIP別レート制限で保護する
		loginLimited := r.With(deps.RateLimiter.LoginMiddleware())
		loginLimited.Post("/login", authHandler.Login)
		loginLimited.Post("/register", authHandler.Register)
		loginLimited.Post("/refresh", authHandler.Refresh)
		loginLimited.Post("/azure/callback", authHandler.AzureCallback)

		r.Get("/azure/login-url", authHandler.AzureLoginURL)

		// ログアウトは認証必須
		r.With(middleware.NewAuthMiddleware(deps.TokenValidator)).
			Post("/logout", authHandler.Logout)
	})

	// ヘルスチェック
	if deps.HealthChecker != nil {
		r.Get("/health", healthHandler(deps.HealthChecker))
	}

	// Prometheusスクレイプ
	if deps.MetricsGatherer != nil {
		r.Get("/metrics", metrics.Handler(deps.MetricsGatherer).ServeHTTP)
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.TokenValidator))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// プロフィール管理
		r.Route("/api/profile", func(r chi.Router) {
			r.Get("/", profileHandler.GetProfile)
			r.Put("/", profileHandler.UpdateProfile)
		})

		// ユーザー管理
		r.Route("/api/users", func(r chi.Router) {
			r.Delete("/me", profileHandler.Withdraw)
			r.Post("/me/deactivate", profileHandler.Deactivate)

			// 管理者のみ: ロール変更
			r.With(middleware.RequireAction("user.manage")).
				Put("/{id}/role", userAdminHandler.AssignRole)
		})
	})

	return r
}

// healthHandler はDB接続を確認するヘルスチェックハンドラーを返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := checker.PingContext(ctx); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("unhealthy"))
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}
