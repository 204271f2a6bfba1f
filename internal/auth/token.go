package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/eventgate/internal/model"
)

// トークン検証の失敗種別。期限切れとそれ以外（署名・発行者・対象者の
// 不一致、構造不正）を区別する。
var (
	ErrTokenExpired = errors.New("access token expired")
	ErrTokenInvalid = errors.New("access token invalid")
)

// refreshTokenBytes はリフレッシュトークンのエントロピー（256ビット）。
const refreshTokenBytes = 32

// IssuerConfig はトークン発行・検証の設定。
// 署名鍵は設定として注入し、コードやログには埋め込まない。
type IssuerConfig struct {
	Secret          []byte
	Issuer          string
	Audience        string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// accessClaims はアクセストークンに埋め込むクレーム。
// subjectにはユーザーID、加えてメールアドレスとロールを含める。
type accessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// TokenIssuer はアクセストークンの発行・検証とリフレッシュトークンの
// 生成を行う。副作用は持たない（最終ログイン日時の更新などは呼び出し側の責務）。
type TokenIssuer struct {
	config IssuerConfig
	now    func() time.Time
}

// NewTokenIssuer はTokenIssuerを生成する。
func NewTokenIssuer(config IssuerConfig) *TokenIssuer {
	return &TokenIssuer{
		config: config,
		now:    time.Now,
	}
}

// Issue はユーザーに対するセッショントークン一式を発行する。
// 戻り値のrefreshHashはサーバー側に保存するためのSHA-256ハッシュであり、
// 生のリフレッシュトークンはSessionTokensにのみ含まれる。
func (i *TokenIssuer) Issue(user *model.User) (*model.SessionTokens, string, error) {
	now := i.now()
	expiresAt := now.Add(i.config.AccessTokenTTL)

	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    i.config.Issuer,
			Audience:  jwt.ClaimStrings{i.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: user.Email,
		Role:  string(user.Role),
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.config.Secret)
	if err != nil {
		return nil, "", fmt.Errorf("failed to sign access token: %w", err)
	}

	refreshToken, refreshHash, err := generateRefreshToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &model.SessionTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}, refreshHash, nil
}

// RefreshTokenTTL はリフレッシュトークンの有効期間を返す。
func (i *TokenIssuer) RefreshTokenTTL() time.Duration {
	return i.config.RefreshTokenTTL
}

// Validate はアクセストークンを検証し、検証済みクレームを返す。
// 期限切れはErrTokenExpired、署名・発行者・対象者の不一致や構造不正は
// ErrTokenInvalidを返す。検証に成功するまでクレームは返さない。
func (i *TokenIssuer) Validate(tokenString string) (*model.Claims, error) {
	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return i.config.Secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.config.Issuer),
		jwt.WithAudience(i.config.Audience),
		jwt.WithTimeFunc(func() time.Time { return i.now() }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	role, err := model.ParseRole(claims.Role)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	return &model.Claims{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   role,
	}, nil
}

// generateRefreshToken は暗号的に安全なリフレッシュトークンを生成する。
// クライアントに返す生の値と、保存用のSHA-256ハッシュの組を返す。
func generateRefreshToken() (token, hash string, err error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	token = base64.RawURLEncoding.EncodeToString(b)
	return token, HashRefreshToken(token), nil
}

// HashRefreshToken は生のリフレッシュトークンの保存用ハッシュを計算する。
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
