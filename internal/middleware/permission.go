package middleware

import (
	"net/http"

	"github.com/hitoshi/eventgate/internal/authz"
	"github.com/hitoshi/eventgate/internal/model"
)

// RequireAction は指定アクションの実行権限を持つロールのみを通す
// ミドルウェアを返す。認証ミドルウェアの後に配置する。
// 未知のアクション名は常に拒否する（フェイルクローズ）。
// 権限はトークンの検証済みロールから判定時点で導出するため、
// 権限テーブルの変更はトークンの再発行なしに反映される。
func RequireAction(action string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := ClaimsFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenInvalidError())
				return
			}

			if !authz.Allowed(claims.Role, action) {
				WriteErrorResponse(w, http.StatusForbidden, &model.APIError{
					Code:     "FORBIDDEN",
					Message:  "この操作を実行する権限がありません。",
					Category: "auth",
					Action:   "必要な権限を持つアカウントでログインしてください。",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
