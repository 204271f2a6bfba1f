package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// 署名鍵などの秘密情報はここで受け取り、各コンポーネントの
// コンストラクタへ明示的に渡す。プロセス全体のシングルトンにはしない。
type Config struct {
	// Database
	DatabaseURL string

	// Token
	JWTSecret       string
	TokenIssuer     string
	TokenAudience   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Azure AD
	AzureADTenantID    string
	AzureADClientID    string
	AzureADRedirectURL string
	JWKSCacheTTL       time.Duration
	JWKSFetchTimeout   time.Duration

	// Rate Limit
	RateLimitGeneral int // 認証済みAPI全般（req/min/user）
	RateLimitLogin   int // ログイン系エンドポイント（req/min/IP）

	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("AUTH_JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "AUTH_JWT_SECRET")
	}

	cfg.AzureADTenantID = os.Getenv("AZURE_AD_TENANT_ID")
	if cfg.AzureADTenantID == "" {
		missing = append(missing, "AZURE_AD_TENANT_ID")
	}

	cfg.AzureADClientID = os.Getenv("AZURE_AD_CLIENT_ID")
	if cfg.AzureADClientID == "" {
		missing = append(missing, "AZURE_AD_CLIENT_ID")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// 短すぎる署名鍵は総当たりに弱いため起動時に拒否する
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("AUTH_JWT_SECRET must be at least 32 bytes")
	}

	// Optional fields with defaults
	cfg.TokenIssuer = getEnvString("TOKEN_ISSUER", "eventgate")
	cfg.TokenAudience = getEnvString("TOKEN_AUDIENCE", "eventgate-api")
	cfg.AccessTokenTTL = getEnvDuration("ACCESS_TOKEN_TTL", 1*time.Hour)
	cfg.RefreshTokenTTL = getEnvDuration("REFRESH_TOKEN_TTL", 720*time.Hour)
	cfg.AzureADRedirectURL = getEnvString("AZURE_AD_REDIRECT_URL", strings.TrimSuffix(cfg.BaseURL, "/")+"/auth/azure/callback")
	cfg.JWKSCacheTTL = getEnvDuration("JWKS_CACHE_TTL", 1*time.Hour)
	cfg.JWKSFetchTimeout = getEnvDuration("JWKS_FETCH_TIMEOUT", 10*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
